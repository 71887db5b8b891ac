package metacache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/grokify/mogo/log/slogutil"
	"golang.org/x/sync/singleflight"

	"github.com/grokify/bucketfs/keypath"
	"github.com/grokify/bucketfs/metrics"
)

// DefaultLockWait bounds how long a reader waits on another caller's
// in-flight durable read before reading for itself.
const DefaultLockWait = 3 * time.Second

// generationStripes is the number of invalidation counters keys hash onto.
const generationStripes = 256

// Store is the two-tier metadata cache. It is safe for concurrent use.
type Store struct {
	table    Table
	tier     Tier
	group    singleflight.Group
	lockWait time.Duration
	logger   *slog.Logger

	// generations are bumped on every invalidation. A load only publishes
	// its row to the tier when its key's counter did not move meanwhile.
	generations [generationStripes]atomic.Uint64
}

// Option configures a Store.
type Option func(*Store)

// WithTier sets the short-lived tier. Without one, every read reaches the
// durable table (still single-flighted).
func WithTier(tier Tier) Option {
	return func(s *Store) {
		if tier != nil {
			s.tier = tier
		}
	}
}

// WithLockWait sets the bounded single-flight wait.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

// WithLogger sets the logger. If nil, a null logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store over table.
func New(table Table, opts ...Option) *Store {
	s := &Store{
		table:    table,
		tier:     nopTier{},
		lockWait: DefaultLockWait,
		logger:   slogutil.Null(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table returns the durable table.
func (s *Store) Table() Table {
	return s.table
}

// Read returns the metadata of uri, or ErrNotFound.
//
// A tier hit returns without blocking. On a miss, concurrent readers of the
// same URI share one durable read. A reader that waits longer than the lock
// wait performs its own durable read instead.
func (s *Store) Read(ctx context.Context, uri string) (FileMetadata, error) {
	uri = keypath.Normalize(uri)
	key := TierKey(uri)

	if m, ok := s.tierGet(ctx, key); ok {
		return m, nil
	}

	// The shared read outlives any single caller's cancellation
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		if m, ok := s.tierGet(shared, key); ok {
			return m, nil
		}
		return s.load(shared, uri, key)
	})

	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.Shared {
			metrics.RecordSingleFlight("shared")
		} else {
			metrics.RecordSingleFlight("single")
		}
		if r.Err != nil {
			return FileMetadata{}, r.Err
		}
		return r.Val.(FileMetadata), nil
	case <-timer.C:
		metrics.RecordSingleFlight("timeout")
		s.logger.Warn("single-flight wait expired, reading directly",
			slog.String("uri", uri),
			slog.Duration("wait", s.lockWait))
		return s.load(ctx, uri, key)
	case <-ctx.Done():
		return FileMetadata{}, ctx.Err()
	}
}

// load reads uri from the durable table and populates the tier on a hit.
//
// A row read before a concurrent invalidation is returned to the caller but
// never left in the tier.
func (s *Store) load(ctx context.Context, uri, key string) (FileMetadata, error) {
	gen := s.generation(key)
	before := gen.Load()

	m, err := s.get(ctx, uri)
	if err != nil {
		return FileMetadata{}, err
	}

	if gen.Load() != before {
		return m, nil
	}
	if err := s.tier.Set(ctx, key, m); err != nil {
		metrics.RecordTierError()
		s.logger.Warn("tier set failed", slog.String("uri", uri), slog.Any("error", err))
	}
	// An invalidation between the check and the Set may have missed it
	if gen.Load() != before {
		s.dropTier(ctx, uri, key)
	}
	return m, nil
}

// get reads uri from the durable table, bypassing the tier.
func (s *Store) get(ctx context.Context, uri string) (FileMetadata, error) {
	start := time.Now()
	m, err := s.table.Get(ctx, uri)
	metrics.RecordDurableQuery("get", time.Since(start))
	metrics.RecordDurableRead()

	if err != nil {
		if IsNotFound(err) {
			return FileMetadata{}, ErrNotFound
		}
		return FileMetadata{}, fmt.Errorf("metacache: reading %s: %w", uri, err)
	}
	return m, nil
}

// Write upserts m, invalidates its tier entry and then ensures every
// ancestor directory exists.
//
// A file row never replaces a directory that has entries below it; Write
// returns ErrIsDirectory instead.
func (s *Store) Write(ctx context.Context, m FileMetadata) error {
	m.URI = keypath.Normalize(m.URI)
	if m.IsDir {
		m.Size = 0
	} else if err := s.checkNotPopulatedDir(ctx, m.URI); err != nil {
		return err
	}

	start := time.Now()
	err := s.table.Upsert(ctx, m)
	metrics.RecordDurableQuery("upsert", time.Since(start))
	if err != nil {
		return fmt.Errorf("metacache: writing %s: %w", m.URI, err)
	}
	s.invalidate(ctx, m.URI)

	if keypath.IsRoot(m.URI) {
		return nil
	}
	return s.ensureAncestors(ctx, m.URI)
}

// checkNotPopulatedDir fails when uri is a directory row with descendants.
func (s *Store) checkNotPopulatedDir(ctx context.Context, uri string) error {
	existing, err := s.get(ctx, uri)
	switch {
	case IsNotFound(err):
		return nil
	case err != nil:
		return err
	case !existing.IsDir:
		return nil
	}
	nonEmpty, err := s.HasDescendants(ctx, uri)
	if err != nil {
		return err
	}
	if nonEmpty {
		return fmt.Errorf("%w: %s", ErrIsDirectory, uri)
	}
	return nil
}

// ensureAncestors walks up from the parent of uri, creating missing
// directory rows. It stops at the first existing directory since that
// directory's own ancestors already exist. Ancestors are read from the
// durable table so a directory removed by DeleteEmpty is recreated even
// while a stale tier entry still names it.
func (s *Store) ensureAncestors(ctx context.Context, uri string) error {
	for _, dir := range keypath.Ancestors(uri) {
		existing, err := s.get(ctx, dir)
		switch {
		case err == nil && existing.IsDir:
			return nil
		case err == nil:
			return fmt.Errorf("%w: %s", ErrNotDirectory, dir)
		case !IsNotFound(err):
			return err
		}

		start := time.Now()
		err = s.table.Upsert(ctx, Directory(dir))
		metrics.RecordDurableQuery("upsert", time.Since(start))
		if err != nil {
			return fmt.Errorf("metacache: creating directory %s: %w", dir, err)
		}
		s.invalidate(ctx, dir)
		s.logger.Debug("created ancestor directory", slog.String("uri", dir))
	}
	return nil
}

// Delete removes the rows of uris in one transaction and invalidates their
// tier entries.
func (s *Store) Delete(ctx context.Context, uris ...string) error {
	if len(uris) == 0 {
		return nil
	}
	normalized := make([]string, len(uris))
	for i, uri := range uris {
		normalized[i] = keypath.Normalize(uri)
	}

	start := time.Now()
	err := s.table.Delete(ctx, normalized...)
	metrics.RecordDurableQuery("delete", time.Since(start))
	if err != nil {
		return fmt.Errorf("metacache: deleting %d rows: %w", len(normalized), err)
	}
	for _, uri := range normalized {
		s.invalidate(ctx, uri)
	}
	return nil
}

// DeleteEmpty removes the directory row of uri unless entries exist below
// it. The check and the delete are one durable operation, so a concurrent
// Write into the directory either fails the delete with
// ErrDirectoryNotEmpty or recreates the directory through its backfill.
func (s *Store) DeleteEmpty(ctx context.Context, uri string) error {
	uri = keypath.Normalize(uri)

	start := time.Now()
	err := s.table.DeleteEmpty(ctx, uri, keypath.DirPrefix(uri))
	metrics.RecordDurableQuery("delete_empty", time.Since(start))
	s.invalidate(ctx, uri)
	switch {
	case err == nil:
		return nil
	case IsNotFound(err), errors.Is(err, ErrDirectoryNotEmpty):
		return fmt.Errorf("%w: %s", err, uri)
	default:
		return fmt.Errorf("metacache: deleting directory %s: %w", uri, err)
	}
}

// Rename moves the row of from to to, preserving its metadata, and
// backfills the ancestors of to.
func (s *Store) Rename(ctx context.Context, from, to string) error {
	from = keypath.Normalize(from)
	to = keypath.Normalize(to)

	m, err := s.Read(ctx, from)
	if err != nil {
		return err
	}
	m.URI = to

	start := time.Now()
	err = s.table.Replace(ctx, from, m)
	metrics.RecordDurableQuery("replace", time.Since(start))
	if err != nil {
		return fmt.Errorf("metacache: renaming %s to %s: %w", from, to, err)
	}
	s.invalidate(ctx, from)
	s.invalidate(ctx, to)

	return s.ensureAncestors(ctx, to)
}

// HasDescendants reports whether any row lies strictly below dirURI.
// A sibling sharing the directory name as a prefix does not count.
func (s *Store) HasDescendants(ctx context.Context, dirURI string) (bool, error) {
	start := time.Now()
	ok, err := s.table.HasPrefix(ctx, keypath.DirPrefix(dirURI))
	metrics.RecordDurableQuery("has_prefix", time.Since(start))
	if err != nil {
		return false, fmt.Errorf("metacache: checking descendants of %s: %w", dirURI, err)
	}
	return ok, nil
}

// Children yields the direct children of dirURI. Each range re-queries the
// durable table.
func (s *Store) Children(ctx context.Context, dirURI string) iter.Seq2[FileMetadata, error] {
	return s.table.Children(ctx, keypath.DirPrefix(dirURI))
}

// Invalidate drops the tier entry of uri.
func (s *Store) Invalidate(ctx context.Context, uri string) {
	s.invalidate(ctx, keypath.Normalize(uri))
}

// Close closes the durable table.
func (s *Store) Close() error {
	return s.table.Close()
}

func (s *Store) tierGet(ctx context.Context, key string) (FileMetadata, bool) {
	m, ok, err := s.tier.Get(ctx, key)
	if err != nil {
		metrics.RecordTierError()
		s.logger.Warn("tier get failed", slog.String("key", key), slog.Any("error", err))
		ok = false
	}
	metrics.RecordTierLookup(ok)
	return m, ok
}

// invalidate bumps the generation of uri, detaches readers from any
// in-flight load and drops the tier entry.
func (s *Store) invalidate(ctx context.Context, uri string) {
	key := TierKey(uri)
	s.generation(key).Add(1)
	s.group.Forget(key)
	s.dropTier(ctx, uri, key)
}

func (s *Store) generation(key string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.generations[h.Sum32()%generationStripes]
}

func (s *Store) dropTier(ctx context.Context, uri, key string) {
	if err := s.tier.Delete(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
		metrics.RecordTierError()
		s.logger.Warn("tier invalidate failed", slog.String("uri", uri), slog.Any("error", err))
	}
}
