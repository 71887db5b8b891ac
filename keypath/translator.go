package keypath

import "strings"

// Config holds the folder layout of a bucket.
type Config struct {
	// PublicFolder holds objects of the public scheme.
	PublicFolder string

	// PrivateFolder holds objects of the private scheme.
	PrivateFolder string

	// RootFolder, when set, prefixes every key in the bucket.
	RootFolder string

	// Bucket is prepended by ObjectKey when a bucket-qualified path is requested.
	Bucket string
}

// Translator converts between URIs and object keys. It is immutable and safe
// for concurrent use.
type Translator struct {
	public  string
	private string
	root    string
	bucket  string
}

// NewTranslator creates a Translator. Empty folder names fall back to
// DefaultPublicFolder and DefaultPrivateFolder.
func NewTranslator(cfg Config) *Translator {
	t := &Translator{
		public:  cleanPath(cfg.PublicFolder),
		private: cleanPath(cfg.PrivateFolder),
		root:    cleanPath(cfg.RootFolder),
		bucket:  cleanPath(cfg.Bucket),
	}
	if t.public == "" {
		t.public = DefaultPublicFolder
	}
	if t.private == "" {
		t.private = DefaultPrivateFolder
	}
	return t
}

// PublicFolder returns the folder of the public scheme.
func (t *Translator) PublicFolder() string { return t.public }

// PrivateFolder returns the folder of the private scheme.
func (t *Translator) PrivateFolder() string { return t.private }

// RootFolder returns the global root folder, possibly empty.
func (t *Translator) RootFolder() string { return t.root }

// Folder returns the storage folder of scheme. The s3 scheme and unknown
// schemes have none.
func (t *Translator) Folder(scheme string) string {
	switch scheme {
	case SchemePublic:
		return t.public
	case SchemePrivate:
		return t.private
	}
	return ""
}

// SchemeKey returns the key of uri with its scheme folder applied but without
// the root folder.
func (t *Translator) SchemeKey(uri string) (string, error) {
	scheme, p, err := Split(uri)
	if err != nil {
		return "", err
	}
	return joinKey(t.Folder(scheme), p), nil
}

// ObjectKey returns the object key stored remotely for uri: scheme folder,
// then root folder, then (when prependBucket is set) the bucket.
func (t *Translator) ObjectKey(uri string, prependBucket bool) (string, error) {
	key, err := t.SchemeKey(uri)
	if err != nil {
		return "", err
	}
	return t.Qualify(key, prependBucket), nil
}

// Qualify applies the root folder, and optionally the bucket, to a key
// produced by SchemeKey.
func (t *Translator) Qualify(schemeKey string, prependBucket bool) string {
	key := joinKey(t.root, schemeKey)
	if prependBucket {
		key = joinKey(t.bucket, key)
	}
	return key
}

// ListPrefix returns the key prefix under which every object managed by the
// translator lives: the root folder with a trailing separator, or "".
func (t *Translator) ListPrefix() string {
	if t.root == "" {
		return ""
	}
	return t.root + "/"
}

// URI maps an object key back to its URI. The second result is false when
// key lies outside the root folder.
func (t *Translator) URI(key string) (string, bool) {
	key = cleanPath(key)
	if t.root != "" {
		rest, ok := cutFolder(key, t.root)
		if !ok {
			return "", false
		}
		key = rest
	}
	if rest, ok := cutFolder(key, t.public); ok {
		return SchemePublic + Separator + rest, true
	}
	if rest, ok := cutFolder(key, t.private); ok {
		return SchemePrivate + Separator + rest, true
	}
	return SchemeS3 + Separator + key, true
}

// cutFolder strips folder from key when key is the folder itself or lies
// inside it.
func cutFolder(key, folder string) (string, bool) {
	if key == folder {
		return "", true
	}
	if rest, ok := strings.CutPrefix(key, folder+"/"); ok {
		return rest, true
	}
	return "", false
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "/" + key
}
