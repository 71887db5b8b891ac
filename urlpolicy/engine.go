// Package urlpolicy decides how a bucketfs URI is exposed as a link.
//
// An Engine evaluates a fixed sequence of rules for every URI:
//
//  1. private:// URIs redirect to an internal route guarded by the host.
//  2. styles/ derivatives that do not exist yet redirect to a generation route.
//  3. public .css and .js files are rewritten to proxy routes.
//  4. The scheme folder is applied to the key.
//  5. Presign and force-download patterns are matched.
//  6. Hooks may adjust the assembled Settings.
//  7. The root folder is applied.
//  8. The URL is built: CDN domain, presigned, or plain object URL.
//  9. A metadata version becomes a "v" cache-busting argument.
//  10. Torrent patterns add a bare "torrent" argument on public URLs.
//  11. Caller arguments are appended last.
package urlpolicy

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/grokify/bucketfs/keypath"
	"github.com/grokify/bucketfs/metacache"
	"github.com/grokify/bucketfs/metrics"
	"github.com/grokify/bucketfs/objectstore"
)

// Default routes and expiries.
const (
	DefaultPrivateRoute    = "/system/files"
	DefaultDerivativeRoute = "/bucketfs/styles"
	DefaultCSSRoute        = "/bucketfs-css"
	DefaultJSRoute         = "/bucketfs-js"

	// DefaultOverrideExpiry applies to signed URLs that are signed only
	// because they carry response overrides.
	DefaultOverrideExpiry = 60 * time.Minute

	// VersionArg is the cache-busting query argument.
	VersionArg = "v"

	// TorrentArg is appended, without a value, to torrent-eligible URLs.
	TorrentArg = "torrent"
)

// URL kinds reported to metrics.
const (
	KindPrivate    = "private"
	KindDerivative = "derivative"
	KindCSS        = "css"
	KindJS         = "js"
	KindCDN        = "cdn"
	KindPresigned  = "presigned"
	KindDirect     = "direct"
)

// Config is the immutable URL policy.
type Config struct {
	// PrivateRoute prefixes private:// paths.
	PrivateRoute string

	// DerivativeRoute prefixes "<scheme>/<path>" of missing styles/ derivatives.
	DerivativeRoute string

	// CSSRoute and JSRoute prefix rewritten public stylesheets and scripts.
	CSSRoute string
	JSRoute  string

	// NoRewriteCSSJS serves public .css and .js files like any other object.
	NoRewriteCSSJS bool

	// Domain enables CDN mode: URLs are built as <scheme>://<Domain>/<key>
	// without calling the object store. Domain may carry a path prefix.
	Domain string

	// CDNInsecure builds CDN URLs with http instead of https.
	CDNInsecure bool

	// Presign lists keys served through presigned URLs.
	Presign PresignRules

	// ForceDownload lists keys served with an attachment disposition.
	ForceDownload PatternList

	// Torrent lists keys that get the torrent argument.
	Torrent PatternList

	// OverrideExpiry is the expiry of URLs signed only for their overrides.
	OverrideExpiry time.Duration
}

// DefaultConfig returns a Config with the default routes.
func DefaultConfig() Config {
	return Config{
		PrivateRoute:    DefaultPrivateRoute,
		DerivativeRoute: DefaultDerivativeRoute,
		CSSRoute:        DefaultCSSRoute,
		JSRoute:         DefaultJSRoute,
		OverrideExpiry:  DefaultOverrideExpiry,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PrivateRoute == "" {
		c.PrivateRoute = d.PrivateRoute
	}
	if c.DerivativeRoute == "" {
		c.DerivativeRoute = d.DerivativeRoute
	}
	if c.CSSRoute == "" {
		c.CSSRoute = d.CSSRoute
	}
	if c.JSRoute == "" {
		c.JSRoute = d.JSRoute
	}
	if c.OverrideExpiry <= 0 {
		c.OverrideExpiry = d.OverrideExpiry
	}
	return c
}

// Settings is the URL assembled for one URI before it is built. Hooks
// receive it after pattern matching and may change any field.
type Settings struct {
	// URI is the normalized URI being resolved.
	URI string

	// Scheme of the URI.
	Scheme string

	// Key is the object key with the scheme folder applied and without
	// the root folder.
	Key string

	// Presigned requests a presigned URL valid for Timeout.
	Presigned bool
	Timeout   time.Duration

	// ForceDownload marks an attachment download.
	ForceDownload bool

	// Overrides are response header overrides. Any non-zero override
	// forces a signed URL.
	Overrides objectstore.ResponseOverrides
}

// Hook adjusts Settings before the URL is built.
type Hook func(ctx context.Context, s *Settings)

// MetadataReader reads cached metadata. *metacache.Store implements it.
type MetadataReader interface {
	Read(ctx context.Context, uri string) (metacache.FileMetadata, error)
}

// Engine builds URLs. It is safe for concurrent use.
type Engine struct {
	cfg        Config
	store      objectstore.Store
	meta       MetadataReader
	translator *keypath.Translator
	hooks      []Hook
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHooks appends hooks, run in order.
func WithHooks(hooks ...Hook) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks...)
	}
}

// WithLogger sets the logger. If nil, a null logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine.
func New(cfg Config, store objectstore.Store, meta MetadataReader, translator *keypath.Translator, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg.withDefaults(),
		store:      store,
		meta:       meta,
		translator: translator,
		logger:     slogutil.Null(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// URL returns the external URL of uri. custom is appended last; it may be nil.
//
// The version, torrent and custom arguments are appended after signing.
// SigV4 query authentication signs the whole query string, so a presigned
// URL carrying any of them fails verification at S3. Presign rules should
// not be combined with versioned URLs, torrent rules or custom arguments.
func (e *Engine) URL(ctx context.Context, uri string, custom url.Values) (string, error) {
	uri = keypath.Normalize(uri)
	scheme, p, err := keypath.Split(uri)
	if err != nil {
		return "", fmt.Errorf("urlpolicy: %s: %w", uri, err)
	}

	if scheme == keypath.SchemePrivate {
		metrics.RecordURL(KindPrivate)
		return route(e.cfg.PrivateRoute, p), nil
	}

	if strings.HasPrefix(p, "styles/") && !strings.HasSuffix(p, ".css") {
		_, err := e.meta.Read(ctx, uri)
		switch {
		case metacache.IsNotFound(err):
			metrics.RecordURL(KindDerivative)
			return route(e.cfg.DerivativeRoute, scheme+"/"+p), nil
		case err != nil:
			return "", fmt.Errorf("urlpolicy: reading metadata of %s: %w", uri, err)
		}
	}

	schemeKey, err := e.translator.SchemeKey(uri)
	if err != nil {
		return "", err
	}

	if scheme == keypath.SchemePublic && !e.cfg.NoRewriteCSSJS {
		switch path.Ext(p) {
		case ".css":
			metrics.RecordURL(KindCSS)
			return route(e.cfg.CSSRoute, schemeKey), nil
		case ".js":
			metrics.RecordURL(KindJS)
			return route(e.cfg.JSRoute, schemeKey), nil
		}
	}

	s := &Settings{URI: uri, Scheme: scheme, Key: schemeKey}
	if timeout, ok := e.cfg.Presign.Match(s.Key); ok {
		s.Presigned = true
		s.Timeout = timeout
	}
	if e.cfg.ForceDownload.Match(s.Key) {
		s.ForceDownload = true
		s.Overrides.ContentDisposition = fmt.Sprintf(`attachment; filename="%s"`, path.Base(s.Key))
	}

	for _, hook := range e.hooks {
		hook(ctx, s)
	}

	key := e.translator.Qualify(s.Key, false)

	link, kind, err := e.build(ctx, key, s)
	if err != nil {
		return "", err
	}

	var args []string
	if version := e.version(ctx, uri); version != "" {
		args = append(args, VersionArg+"="+url.QueryEscape(version))
	}
	if !s.Presigned && !s.ForceDownload && e.cfg.Torrent.Match(s.Key) {
		args = append(args, TorrentArg)
	}
	if len(custom) > 0 {
		args = append(args, custom.Encode())
	}

	metrics.RecordURL(kind)
	return appendQuery(link, args...), nil
}

// build produces the base URL of key.
func (e *Engine) build(ctx context.Context, key string, s *Settings) (string, string, error) {
	if e.cfg.Domain != "" {
		return e.cdnURL(key), KindCDN, nil
	}

	if s.Presigned || !s.Overrides.IsZero() {
		expiry := e.cfg.OverrideExpiry
		if s.Presigned && s.Timeout > 0 {
			expiry = s.Timeout
		}
		link, err := e.store.PresignGet(ctx, key, expiry, s.Overrides)
		if err != nil {
			return "", "", fmt.Errorf("urlpolicy: presigning %s: %w", key, err)
		}
		return link, KindPresigned, nil
	}

	link, err := e.store.ObjectURL(ctx, key)
	if err != nil {
		return "", "", fmt.Errorf("urlpolicy: object url of %s: %w", key, err)
	}
	return link, KindDirect, nil
}

func (e *Engine) cdnURL(key string) string {
	scheme := "https"
	if e.cfg.CDNInsecure {
		scheme = "http"
	}
	host, prefix, _ := strings.Cut(strings.Trim(e.cfg.Domain, "/"), "/")
	p := "/" + key
	if prefix != "" {
		p = "/" + prefix + p
	}
	return (&url.URL{Scheme: scheme, Host: host, Path: p}).String()
}

// version returns the cached version token of uri, if any. Lookup errors
// only cost the cache-busting argument.
func (e *Engine) version(ctx context.Context, uri string) string {
	m, err := e.meta.Read(ctx, uri)
	if err != nil {
		if !metacache.IsNotFound(err) {
			e.logger.Warn("version lookup failed", slog.String("uri", uri), slog.Any("error", err))
		}
		return ""
	}
	return m.Version
}

func route(base, p string) string {
	return (&url.URL{Path: strings.TrimSuffix(base, "/") + "/" + p}).EscapedPath()
}

func appendQuery(link string, args ...string) string {
	for _, arg := range args {
		if arg == "" {
			continue
		}
		if strings.Contains(link, "?") {
			link += "&" + arg
		} else {
			link += "?" + arg
		}
	}
	return link
}
