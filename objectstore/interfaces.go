// Package objectstore defines the object-store capability bucketfs is built on.
//
// A Store addresses objects by flat keys inside a single bucket. It knows
// nothing about directories, schemes or metadata caching; those concerns live
// in the bucketfs, keypath and metacache packages.
//
// Adapters register themselves by name so that callers can open a store from
// a string map:
//
//	store, _ := objectstore.Open("s3", map[string]string{
//	    "bucket": "my-bucket",
//	    "region": "us-east-1",
//	})
//	info, err := store.Head(ctx, "s3fs-public/a/b.jpg")
package objectstore

import (
	"context"
	"io"
	"iter"
	"time"
)

// Store is the object-store capability consumed by bucketfs.
//
// Stores are safe for concurrent use by multiple goroutines.
// All methods accept a context.Context for cancellation and timeouts.
type Store interface {
	// Head returns metadata about an object.
	// Returns ErrNotFound if the key does not exist.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// ObjectURL returns the plain, unsigned URL of an object.
	// It does not check that the object exists.
	ObjectURL(ctx context.Context, key string) (string, error)

	// PresignGet returns a time-limited signed GET URL for an object.
	// Non-empty fields of overrides become response-* query parameters
	// and are covered by the signature.
	PresignGet(ctx context.Context, key string, expiry time.Duration, overrides ResponseOverrides) (string, error)

	// WaitUntilExists blocks until the object becomes visible or the poll
	// policy is exhausted. It returns false, nil on exhaustion; an error is
	// returned only when polling itself fails or ctx is cancelled.
	WaitUntilExists(ctx context.Context, key string, policy PollPolicy) (bool, error)

	// Put uploads an object, replacing any existing object at key.
	Put(ctx context.Context, key string, body io.Reader, opts ...PutOption) (*ObjectInfo, error)

	// Copy performs a server-side copy from src to dst.
	// Returns ErrNotFound if src does not exist.
	Copy(ctx context.Context, src, dst string, opts ...PutOption) error

	// Delete removes an object.
	// Returns nil if the key does not exist (idempotent).
	Delete(ctx context.Context, key string) error

	// List yields every object whose key begins with prefix.
	// Iteration stops at the first error, which is yielded once.
	List(ctx context.Context, prefix string) iter.Seq2[*ObjectInfo, error]

	// Close releases any resources held by the store.
	// After Close, all other methods return ErrStoreClosed.
	Close() error
}

// ResponseOverrides are response header overrides baked into a presigned URL.
type ResponseOverrides struct {
	ContentDisposition string
	ContentType        string
	CacheControl       string
}

// IsZero reports whether no override is set.
func (o ResponseOverrides) IsZero() bool {
	return o == ResponseOverrides{}
}
