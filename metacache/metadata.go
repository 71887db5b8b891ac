// Package metacache is the metadata cache behind bucketfs: a durable table
// of FileMetadata rows keyed by normalized URI, fronted by a short-lived
// tier with single-flight population.
//
// Basic usage:
//
//	store := metacache.New(pgtable.New(db),
//	    metacache.WithTier(metacache.NewLRUTier(10000, time.Minute)),
//	    metacache.WithLogger(slog.Default()),
//	)
//	if err := store.Write(ctx, metacache.FileMetadata{URI: "s3://a/b.jpg", Size: 10}); err != nil {
//	    return err
//	}
//	m, err := store.Read(ctx, "s3:///a//b.jpg") // normalized to s3://a/b.jpg
package metacache

import (
	"context"
	"errors"
	"iter"
	"time"
)

// Errors returned by the metadata cache.
var (
	// ErrNotFound is returned when no row exists for a URI.
	ErrNotFound = errors.New("metacache: not found")

	// ErrNotDirectory is returned when a file row occupies a path that
	// must be a directory.
	ErrNotDirectory = errors.New("metacache: not a directory")

	// ErrIsDirectory is returned when a file row would replace a directory
	// that still has entries below it.
	ErrIsDirectory = errors.New("metacache: is a directory")

	// ErrDirectoryNotEmpty is returned by DeleteEmpty when rows exist
	// below the directory.
	ErrDirectoryNotEmpty = errors.New("metacache: directory not empty")
)

// IsNotFound returns true if err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FileMetadata is one namespace entry.
type FileMetadata struct {
	// URI is the normalized hierarchical path, e.g. "public://a/b.jpg".
	URI string

	// Size in bytes. Always 0 for directories.
	Size int64

	// Timestamp is the last known modification time.
	Timestamp time.Time

	// IsDir marks synthetic directory entries. Directories never have a
	// backing object.
	IsDir bool

	// Version is an opaque token used for cache busting. May be empty.
	Version string
}

// Directory returns a directory entry for uri stamped with the current time.
func Directory(uri string) FileMetadata {
	return FileMetadata{
		URI:       uri,
		IsDir:     true,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
}

// Table is the durable metadata store.
//
// Implementations must make Upsert an atomic insert-or-replace and run the
// multi-row operations (Delete, Replace) in a single transaction.
type Table interface {
	// Get returns the row for uri or ErrNotFound.
	Get(ctx context.Context, uri string) (FileMetadata, error)

	// Upsert inserts or replaces the row keyed by m.URI.
	Upsert(ctx context.Context, m FileMetadata) error

	// Delete removes the rows of every given URI.
	Delete(ctx context.Context, uris ...string) error

	// Replace deletes oldURI and upserts m.
	Replace(ctx context.Context, oldURI string, m FileMetadata) error

	// DeleteEmpty removes the row of uri unless a row's URI starts with
	// prefix, checking and deleting atomically. It returns ErrNotFound when
	// no row exists and ErrDirectoryNotEmpty when rows exist below it.
	DeleteEmpty(ctx context.Context, uri, prefix string) error

	// HasPrefix reports whether any row's URI starts with prefix.
	HasPrefix(ctx context.Context, prefix string) (bool, error)

	// Children yields the rows directly below prefix: URIs that start with
	// prefix and contain no further separator.
	Children(ctx context.Context, prefix string) iter.Seq2[FileMetadata, error]

	// Close releases resources held by the table.
	Close() error
}
