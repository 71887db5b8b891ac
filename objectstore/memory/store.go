// Package memory provides an in-memory object store.
//
// The memory store is useful for:
//   - Unit testing without network access
//   - Simulating eventually consistent stores (see VisibleAfter)
//   - Development and prototyping
//
// Data is stored in RAM and lost when the store is closed or the process exits.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"iter"
	"maps"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grokify/bucketfs/objectstore"
)

func init() {
	objectstore.Register("memory", NewFromConfig)
}

// object represents a stored object in memory.
type object struct {
	data         []byte
	contentType  string
	cacheControl string
	acl          string
	metadata     map[string]string
	modTime      time.Time
	version      int
	hiddenHeads  int
}

// Store implements objectstore.Store in memory.
type Store struct {
	baseURL      string
	objects      map[string]*object
	visibleAfter int
	headErr      error
	headCalls    atomic.Int64
	closed       bool
	mu           sync.RWMutex
}

// New creates a new memory store whose object URLs are rooted at baseURL.
// An empty baseURL defaults to "https://memory.invalid".
func New(baseURL string) *Store {
	if baseURL == "" {
		baseURL = "https://memory.invalid"
	}
	return &Store{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string]*object),
	}
}

// NewFromConfig creates a new memory store from a config map.
// The only recognized key is "base_url".
func NewFromConfig(config map[string]string) (objectstore.Store, error) {
	return New(config["base_url"]), nil
}

// VisibleAfter makes every object written from now on invisible to the
// first n Head calls for its key, simulating a store with eventual
// read-after-write consistency.
func (s *Store) VisibleAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibleAfter = n
}

// FailHead makes every subsequent Head call return err.
// Pass nil to restore normal behavior.
func (s *Store) FailHead(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headErr = err
}

// HeadCalls returns the number of Head calls made so far.
func (s *Store) HeadCalls() int {
	return int(s.headCalls.Load())
}

// Head returns metadata about an object.
func (s *Store) Head(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	s.headCalls.Add(1)

	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.headErr != nil {
		return nil, s.headErr
	}

	obj, exists := s.objects[key]
	if !exists {
		return nil, objectstore.ErrNotFound
	}
	if obj.hiddenHeads > 0 {
		obj.hiddenHeads--
		return nil, objectstore.ErrNotFound
	}

	return obj.info(key), nil
}

// ObjectURL returns the unsigned URL of an object.
func (s *Store) ObjectURL(ctx context.Context, key string) (string, error) {
	if err := s.checkClosed(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateKey(key); err != nil {
		return "", err
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", err
	}
	u.Path = path.Join(u.Path, "/", key)
	return u.String(), nil
}

// PresignGet returns a fake signed URL carrying the expiry and overrides as
// query parameters, in the same shape as an S3 SigV4 URL.
func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration, overrides objectstore.ResponseOverrides) (string, error) {
	raw, err := s.ObjectURL(ctx, key)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("X-Amz-Expires", strconv.Itoa(int(expiry/time.Second)))
	q.Set("X-Amz-Signature", "memory")
	if overrides.ContentDisposition != "" {
		q.Set("response-content-disposition", overrides.ContentDisposition)
	}
	if overrides.ContentType != "" {
		q.Set("response-content-type", overrides.ContentType)
	}
	if overrides.CacheControl != "" {
		q.Set("response-cache-control", overrides.CacheControl)
	}
	return raw + "?" + q.Encode(), nil
}

// WaitUntilExists polls Head with the given policy.
func (s *Store) WaitUntilExists(ctx context.Context, key string, policy objectstore.PollPolicy) (bool, error) {
	return objectstore.PollHead(ctx, s, key, policy)
}

// Put stores an object.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, opts ...objectstore.PutOption) (*objectstore.ObjectInfo, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if body != nil {
		if _, err := io.Copy(&buf, body); err != nil {
			return nil, err
		}
	}
	cfg := objectstore.ApplyPutOptions(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	version := 1
	if prev, ok := s.objects[key]; ok {
		version = prev.version + 1
	}
	obj := &object{
		data:         buf.Bytes(),
		contentType:  cfg.ContentType,
		cacheControl: cfg.CacheControl,
		acl:          cfg.ACL,
		metadata:     maps.Clone(cfg.Metadata),
		modTime:      time.Now().UTC().Truncate(time.Second),
		version:      version,
		hiddenHeads:  s.visibleAfter,
	}
	s.objects[key] = obj

	return obj.info(key), nil
}

// Copy copies an object from src to dst.
func (s *Store) Copy(ctx context.Context, src, dst string, opts ...objectstore.PutOption) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(src); err != nil {
		return err
	}
	if err := validateKey(dst); err != nil {
		return err
	}
	cfg := objectstore.ApplyPutOptions(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	srcObj, exists := s.objects[src]
	if !exists {
		return objectstore.ErrNotFound
	}

	// Create a copy of the data
	dataCopy := make([]byte, len(srcObj.data))
	copy(dataCopy, srcObj.data)

	contentType := srcObj.contentType
	if cfg.ContentType != "" {
		contentType = cfg.ContentType
	}
	metadata := srcObj.metadata
	if cfg.Metadata != nil {
		metadata = cfg.Metadata
	}
	version := 1
	if prev, ok := s.objects[dst]; ok {
		version = prev.version + 1
	}
	s.objects[dst] = &object{
		data:         dataCopy,
		contentType:  contentType,
		metadata:     maps.Clone(metadata),
		cacheControl: cfg.CacheControl,
		acl:          cfg.ACL,
		modTime:      time.Now().UTC().Truncate(time.Second),
		version:      version,
		hiddenHeads:  s.visibleAfter,
	}

	return nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()

	return nil
}

// List yields objects whose key begins with prefix, in key order.
func (s *Store) List(ctx context.Context, prefix string) iter.Seq2[*objectstore.ObjectInfo, error] {
	return func(yield func(*objectstore.ObjectInfo, error) bool) {
		if err := s.checkClosed(); err != nil {
			yield(nil, err)
			return
		}

		s.mu.RLock()
		var infos []*objectstore.ObjectInfo
		for key, obj := range s.objects {
			if strings.HasPrefix(key, prefix) {
				infos = append(infos, obj.info(key))
			}
		}
		s.mu.RUnlock()

		sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

		for _, info := range infos {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

// Close releases any resources held by the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.objects = nil
	return nil
}

// ACL returns the canned ACL recorded for key, for tests.
func (s *Store) ACL(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if obj, ok := s.objects[key]; ok {
		return obj.acl
	}
	return ""
}

// Metadata returns the user metadata recorded for key, for tests.
func (s *Store) Metadata(key string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if obj, ok := s.objects[key]; ok {
		return maps.Clone(obj.metadata)
	}
	return nil
}

// Count returns the number of objects in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// checkClosed returns an error if the store is closed.
func (s *Store) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return objectstore.ErrStoreClosed
	}
	return nil
}

func (o *object) info(key string) *objectstore.ObjectInfo {
	sum := md5.Sum(o.data)
	return &objectstore.ObjectInfo{
		Key:          key,
		Size:         int64(len(o.data)),
		LastModified: o.modTime,
		VersionID:    strconv.Itoa(o.version),
		ContentType:  o.contentType,
		ETag:         hex.EncodeToString(sum[:]),
	}
}

// validateKey checks if a key is usable.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return objectstore.ErrInvalidKey
	}
	return nil
}

// Ensure Store implements objectstore.Store
var _ objectstore.Store = (*Store)(nil)
