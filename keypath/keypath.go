// Package keypath maps hierarchical URIs such as "public://a/b.jpg" onto the
// flat object keys stored in a bucket, and back.
//
// All functions are pure: no I/O, and the only error is ErrMalformedURI for
// input without a "://" scheme separator.
package keypath

import (
	"errors"
	"path"
	"strings"
)

// Separator between a scheme and its path.
const Separator = "://"

// Well-known schemes.
const (
	SchemeS3      = "s3"
	SchemePublic  = "public"
	SchemePrivate = "private"
)

// Default storage folders for the public and private schemes.
const (
	DefaultPublicFolder  = "s3fs-public"
	DefaultPrivateFolder = "s3fs-private"
)

// ErrMalformedURI is returned when a URI lacks a scheme separator.
var ErrMalformedURI = errors.New("keypath: malformed uri")

// Split returns the scheme and the normalized path of uri.
func Split(uri string) (scheme, p string, err error) {
	i := strings.Index(uri, Separator)
	if i <= 0 {
		return "", "", ErrMalformedURI
	}
	return uri[:i], cleanPath(uri[i+len(Separator):]), nil
}

// Normalize canonicalizes uri: duplicate separators (including any directly
// after the scheme) collapse to one, and a trailing separator is removed.
// The bare root "scheme://" is returned unchanged. Input without a scheme is
// cleaned the same way but keeps no scheme.
func Normalize(uri string) string {
	scheme, p, err := Split(uri)
	if err != nil {
		return cleanPath(uri)
	}
	return scheme + Separator + p
}

// IsRoot reports whether uri is a bare "scheme://".
func IsRoot(uri string) bool {
	_, p, err := Split(uri)
	return err == nil && p == ""
}

// Root returns the root URI of scheme.
func Root(scheme string) string {
	return scheme + Separator
}

// Dirname returns the parent of uri with the same scheme. The parent of a
// top-level entry, and of the root itself, is the root "scheme://".
func Dirname(uri string) string {
	scheme, p, err := Split(uri)
	if err != nil {
		return uri
	}
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return scheme + Separator
	}
	return scheme + Separator + p[:i]
}

// Basename returns the last element of uri's path, or "" for the root.
func Basename(uri string) string {
	_, p, err := Split(uri)
	if err != nil {
		return path.Base(cleanPath(uri))
	}
	if p == "" {
		return ""
	}
	return p[strings.LastIndex(p, "/")+1:]
}

// Join appends name to uri.
func Join(uri, name string) string {
	scheme, p, err := Split(uri)
	if err != nil {
		return cleanPath(uri + "/" + name)
	}
	if p == "" {
		return scheme + Separator + cleanPath(name)
	}
	return scheme + Separator + cleanPath(p+"/"+name)
}

// Ancestors returns every ancestor of uri from its parent upwards, excluding
// the root.
func Ancestors(uri string) []string {
	var out []string
	for cur := Dirname(uri); !IsRoot(cur) && cur != uri; cur = Dirname(cur) {
		out = append(out, cur)
		uri = cur
	}
	return out
}

// DirPrefix returns uri with a single trailing separator, the form used to
// match descendants ("s3://foo/bar/" matches "s3://foo/bar/x" but not
// "s3://foo/barbell.jpg"). The root returns "scheme://".
func DirPrefix(uri string) string {
	n := Normalize(uri)
	if IsRoot(n) {
		return n
	}
	return n + "/"
}

// cleanPath collapses runs of "/" and strips leading and trailing "/".
func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(p))
	prevSlash := true // drops leading separators
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return strings.TrimSuffix(b.String(), "/")
}
