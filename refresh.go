package bucketfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/grokify/bucketfs/keypath"
	"github.com/grokify/bucketfs/metacache"
	"github.com/grokify/bucketfs/metrics"
)

// RefreshCache rebuilds the metadata table from the object store.
//
// Every object under the root folder is mapped back to its URI and written
// to the cache; ancestor directories appear through the write backfill.
// Folder marker objects ("a/b/") become directory rows. An object whose
// path collides with another entry (a file above it, or a populated
// directory at its URI) is logged and skipped.
//
// Once the listing completes without error, rows that no listed object
// accounts for are deleted in one transaction: files whose object is gone
// and directories that are neither a folder marker nor an ancestor of a
// listed object. Writes that land while a refresh is scanning may be pruned
// with them. RefreshCache returns the number of objects recorded.
func (f *Filesystem) RefreshCache(ctx context.Context) (int, error) {
	start := time.Now()
	var recorded atomic.Int64

	workers := f.cfg.RefreshConcurrency
	if workers <= 0 {
		workers = DefaultRefreshConcurrency
	}
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()

	// Only the listing loop touches seen
	seen := make(map[string]struct{})
	var listErr error
	for info, err := range f.store.List(ctx, f.translator.ListPrefix()) {
		if err != nil {
			listErr = fmt.Errorf("bucketfs: listing objects: %w", err)
			break
		}

		uri, ok := f.translator.URI(info.Key)
		if !ok || keypath.IsRoot(uri) {
			continue
		}
		uri = keypath.Normalize(uri)
		seen[uri] = struct{}{}
		for _, dir := range keypath.Ancestors(uri) {
			seen[dir] = struct{}{}
		}

		var m metacache.FileMetadata
		if info.IsDirMarker() {
			m = metacache.Directory(uri)
		} else {
			m = metadataFromInfo(uri, info)
		}

		p.Go(func(ctx context.Context) error {
			if err := f.meta.Write(ctx, m); err != nil {
				if errors.Is(err, ErrNotDirectory) || errors.Is(err, ErrIsDirectory) {
					f.logger.Warn("skipping conflicting object",
						slog.String("uri", m.URI),
						slog.Any("error", err))
					return nil
				}
				return err
			}
			if !m.IsDir {
				recorded.Add(1)
			}
			return nil
		})
	}

	err := errors.Join(listErr, p.Wait())
	pruned := 0
	if err == nil {
		pruned, err = f.pruneUnseen(ctx, seen)
	}

	count := int(recorded.Load())
	metrics.SetRefreshedObjects(count)
	f.logger.Info("refreshed metadata cache",
		slog.Int("objects", count),
		slog.Int("pruned", pruned),
		slog.Duration("elapsed", time.Since(start)),
		slog.Any("error", err))
	return count, err
}

// pruneUnseen deletes every row below the scheme roots whose URI is not in
// seen.
func (f *Filesystem) pruneUnseen(ctx context.Context, seen map[string]struct{}) (int, error) {
	var stale []string
	pending := []string{
		keypath.Root(keypath.SchemeS3),
		keypath.Root(keypath.SchemePublic),
		keypath.Root(keypath.SchemePrivate),
	}
	for len(pending) > 0 {
		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		for m, err := range f.meta.Children(ctx, dir) {
			if err != nil {
				return 0, fmt.Errorf("bucketfs: scanning %s: %w", dir, err)
			}
			if m.IsDir {
				pending = append(pending, m.URI)
			}
			if _, ok := seen[m.URI]; !ok {
				stale = append(stale, m.URI)
			}
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}
	if err := f.meta.Delete(ctx, stale...); err != nil {
		return 0, err
	}
	f.logger.Debug("pruned stale rows", slog.Int("rows", len(stale)))
	return len(stale), nil
}
