package metacache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// KeyPrefix namespaces tier keys.
const KeyPrefix = "bucketfs:meta:"

// Tier is the short-lived cache in front of the durable table.
//
// Errors are never fatal: the Store logs them and treats the lookup as a
// miss. A shared tier (e.g. a networked cache) can implement this interface.
type Tier interface {
	// Get returns the cached entry for key and whether it was present.
	Get(ctx context.Context, key string) (FileMetadata, bool, error)

	// Set stores m under key.
	Set(ctx context.Context, key string, m FileMetadata) error

	// Delete invalidates key.
	Delete(ctx context.Context, key string) error
}

// TierKey returns the namespaced tier key of a normalized URI.
func TierKey(uri string) string {
	return KeyPrefix + uri
}

// LRUTier is an in-process Tier with a size bound and per-entry TTL.
type LRUTier struct {
	lru *expirable.LRU[string, FileMetadata]
}

// NewLRUTier creates an LRUTier holding at most size entries, each for at
// most ttl. A size of 0 means unbounded; a ttl of 0 disables expiry.
func NewLRUTier(size int, ttl time.Duration) *LRUTier {
	return &LRUTier{lru: expirable.NewLRU[string, FileMetadata](size, nil, ttl)}
}

// Get implements Tier.
func (t *LRUTier) Get(_ context.Context, key string) (FileMetadata, bool, error) {
	m, ok := t.lru.Get(key)
	return m, ok, nil
}

// Set implements Tier.
func (t *LRUTier) Set(_ context.Context, key string, m FileMetadata) error {
	t.lru.Add(key, m)
	return nil
}

// Delete implements Tier.
func (t *LRUTier) Delete(_ context.Context, key string) error {
	t.lru.Remove(key)
	return nil
}

// Len returns the number of live entries.
func (t *LRUTier) Len() int {
	return t.lru.Len()
}

// nopTier caches nothing.
type nopTier struct{}

func (nopTier) Get(context.Context, string) (FileMetadata, bool, error) {
	return FileMetadata{}, false, nil
}
func (nopTier) Set(context.Context, string, FileMetadata) error { return nil }
func (nopTier) Delete(context.Context, string) error            { return nil }
