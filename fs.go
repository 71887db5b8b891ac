// Package bucketfs makes a flat object store behave like a hierarchical
// filesystem.
//
// URIs such as "public://images/a.jpg" map onto object keys in a single
// bucket. A durable metadata table, fronted by a short-lived in-process
// tier, answers existence and stat queries so that most lookups never reach
// the object store. Directories are synthetic rows in that table.
//
// Basic usage:
//
//	store, _ := objectstore.Open("s3", map[string]string{"bucket": "files"})
//	table, _ := pgtable.Open(ctx, os.Getenv("DATABASE_URL"))
//	fsys, err := bucketfs.New(store, table, bucketfs.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer fsys.Close()
//
//	if _, err := fsys.WriteFile(ctx, "public://docs/a.pdf", r); err != nil {
//	    return err
//	}
//	link, _ := fsys.URL(ctx, "public://docs/a.pdf", nil)
//
// With logging:
//
//	fsys, err := bucketfs.New(store, table, cfg, bucketfs.WithLogger(slog.Default()))
package bucketfs

import (
	"errors"
	"log/slog"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/grokify/bucketfs/keypath"
	"github.com/grokify/bucketfs/metacache"
	"github.com/grokify/bucketfs/objectstore"
	"github.com/grokify/bucketfs/urlpolicy"
)

// Filesystem is the bucketfs facade. It is safe for concurrent use.
type Filesystem struct {
	cfg        Config
	store      objectstore.Store
	meta       *metacache.Store
	translator *keypath.Translator
	urls       *urlpolicy.Engine
	logger     *slog.Logger
}

type options struct {
	logger *slog.Logger
	tier   metacache.Tier
	hooks  []urlpolicy.Hook
}

// Option configures a Filesystem.
type Option func(*options)

// WithLogger sets the logger. If nil, a null logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTier replaces the default in-process LRU tier, e.g. with a shared
// cache.
func WithTier(tier metacache.Tier) Option {
	return func(o *options) {
		o.tier = tier
	}
}

// WithURLHooks adds hooks run by URL before the root folder is applied.
func WithURLHooks(hooks ...urlpolicy.Hook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hooks...)
	}
}

// New creates a Filesystem over store and the durable metadata table.
func New(store objectstore.Store, table metacache.Table, cfg Config, opts ...Option) (*Filesystem, error) {
	if store == nil || table == nil {
		return nil, errors.New("bucketfs: store and table are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slogutil.Null()
	}
	tier := o.tier
	if tier == nil {
		tier = metacache.NewLRUTier(cfg.TierSize, cfg.TierTTL)
	}

	policy, err := cfg.policy()
	if err != nil {
		return nil, err
	}

	translator := cfg.translator()
	meta := metacache.New(table,
		metacache.WithTier(tier),
		metacache.WithLockWait(cfg.LockWait),
		metacache.WithLogger(logger),
	)

	return &Filesystem{
		cfg:        cfg,
		store:      store,
		meta:       meta,
		translator: translator,
		urls: urlpolicy.New(policy, store, meta, translator,
			urlpolicy.WithHooks(o.hooks...),
			urlpolicy.WithLogger(logger),
		),
		logger: logger,
	}, nil
}

// Config returns the configuration the filesystem was built with.
func (f *Filesystem) Config() Config {
	return f.cfg
}

// Store returns the backing object store.
func (f *Filesystem) Store() objectstore.Store {
	return f.store
}

// Metadata returns the metadata cache.
func (f *Filesystem) Metadata() *metacache.Store {
	return f.meta
}

// Translator returns the path translator.
func (f *Filesystem) Translator() *keypath.Translator {
	return f.translator
}

// Close closes the metadata table and the object store.
func (f *Filesystem) Close() error {
	return errors.Join(f.meta.Close(), f.store.Close())
}
