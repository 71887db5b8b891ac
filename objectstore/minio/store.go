// Package minio provides a MinIO-backed object store for bucketfs.
//
// Use it for MinIO deployments and other S3-compatible services that are
// more convenient to reach with minio-go than with the AWS SDK:
//
//	store, err := minio.New(minio.Config{
//	    Endpoint:  "localhost:9000",
//	    Bucket:    "files",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	})
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"

	"github.com/grokify/bucketfs/objectstore"
)

func init() {
	objectstore.Register("minio", NewFromConfig)
}

// Errors specific to the MinIO store.
var (
	ErrBucketRequired   = errors.New("minio: bucket is required")
	ErrEndpointRequired = errors.New("minio: endpoint is required when client is not provided")
)

// Config holds MinIO store configuration.
type Config struct {
	// Endpoint is the MinIO server address (e.g., "localhost:9000").
	Endpoint string

	// Bucket is the bucket name (required).
	Bucket string

	// AccessKey is the access key ID for authentication.
	AccessKey string

	// SecretKey is the secret access key for authentication.
	SecretKey string

	// Region is the bucket region. Optional for MinIO.
	Region string

	// UseSSL enables HTTPS connections.
	UseSSL bool

	// Client is an optional pre-configured MinIO client.
	// If provided, Endpoint, AccessKey, SecretKey and UseSSL are ignored.
	Client *minio.Client
}

// ConfigFromMap creates a Config from a string map.
// Supported keys: endpoint, bucket, access_key, secret_key, region, use_ssl.
func ConfigFromMap(m map[string]string) Config {
	cfg := Config{
		Endpoint:  m["endpoint"],
		Bucket:    m["bucket"],
		AccessKey: m["access_key"],
		SecretKey: m["secret_key"],
		Region:    m["region"],
	}
	if v := m["use_ssl"]; v == "true" || v == "1" {
		cfg.UseSSL = true
	}
	return cfg
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}
	if c.Client == nil && c.Endpoint == "" {
		return ErrEndpointRequired
	}
	return nil
}

// Store implements objectstore.Store on a MinIO client.
type Store struct {
	client *minio.Client
	bucket string
	closed bool
	mu     sync.RWMutex
}

// New creates a MinIO-backed store.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio: creating client: %w", err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// NewFromConfig creates a MinIO store from a config map.
// This is used by the objectstore registry.
func NewFromConfig(configMap map[string]string) (objectstore.Store, error) {
	return New(ConfigFromMap(configMap))
}

// Head returns metadata about an object.
func (s *Store) Head(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, err
	}

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, translateError(err, key)
	}

	return &objectstore.ObjectInfo{
		Key:          key,
		Size:         info.Size,
		LastModified: info.LastModified,
		VersionID:    info.VersionID,
		ContentType:  info.ContentType,
		ETag:         strings.Trim(info.ETag, "\""),
	}, nil
}

// ObjectURL returns the path-style, unsigned URL of an object.
func (s *Store) ObjectURL(ctx context.Context, key string) (string, error) {
	if err := s.check(ctx, key); err != nil {
		return "", err
	}

	endpoint := s.client.EndpointURL()
	u := &url.URL{
		Scheme: endpoint.Scheme,
		Host:   endpoint.Host,
		Path:   "/" + s.bucket + "/" + key,
	}
	return u.String(), nil
}

// PresignGet returns a presigned GET URL with response header overrides.
func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration, overrides objectstore.ResponseOverrides) (string, error) {
	if err := s.check(ctx, key); err != nil {
		return "", err
	}

	params := url.Values{}
	if overrides.ContentDisposition != "" {
		params.Set("response-content-disposition", overrides.ContentDisposition)
	}
	if overrides.ContentType != "" {
		params.Set("response-content-type", overrides.ContentType)
	}
	if overrides.CacheControl != "" {
		params.Set("response-cache-control", overrides.CacheControl)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, params)
	if err != nil {
		return "", fmt.Errorf("minio: presigning %s: %w", key, err)
	}
	return u.String(), nil
}

// WaitUntilExists polls StatObject with the given policy.
func (s *Store) WaitUntilExists(ctx context.Context, key string, policy objectstore.PollPolicy) (bool, error) {
	return objectstore.PollHead(ctx, s, key, policy)
}

// Put uploads an object.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, opts ...objectstore.PutOption) (*objectstore.ObjectInfo, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if body != nil {
		if _, err := io.Copy(&buf, body); err != nil {
			return nil, fmt.Errorf("minio: reading body for %s: %w", key, err)
		}
	}

	putOpts, err := putOptions(objectstore.ApplyPutOptions(opts...))
	if err != nil {
		return nil, err
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), putOpts)
	if err != nil {
		return nil, fmt.Errorf("minio: uploading object %s: %w", key, translateError(err, key))
	}

	return &objectstore.ObjectInfo{
		Key:          key,
		Size:         info.Size,
		LastModified: info.LastModified,
		VersionID:    info.VersionID,
		ContentType:  putOpts.ContentType,
		ETag:         strings.Trim(info.ETag, "\""),
	}, nil
}

// Copy performs a server-side copy.
func (s *Store) Copy(ctx context.Context, src, dst string, opts ...objectstore.PutOption) error {
	if err := s.check(ctx, src); err != nil {
		return err
	}
	if dst == "" {
		return objectstore.ErrInvalidKey
	}
	cfg := objectstore.ApplyPutOptions(opts...)

	dest := minio.CopyDestOptions{Bucket: s.bucket, Object: dst}
	if cfg.Encryption != "" {
		sse, err := serverSide(cfg.Encryption)
		if err != nil {
			return err
		}
		dest.Encryption = sse
	}

	_, err := s.client.CopyObject(ctx, dest, minio.CopySrcOptions{Bucket: s.bucket, Object: src})
	if err != nil {
		return translateError(err, src)
	}
	return nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}

	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !objectstore.IsNotFound(translateError(err, key)) {
		return translateError(err, key)
	}
	return nil
}

// List yields every object whose key begins with prefix.
func (s *Store) List(ctx context.Context, prefix string) iter.Seq2[*objectstore.ObjectInfo, error] {
	return func(yield func(*objectstore.ObjectInfo, error) bool) {
		if err := s.checkClosed(); err != nil {
			yield(nil, err)
			return
		}

		// Cancel the listing goroutine if the consumer stops early
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if obj.Err != nil {
				yield(nil, fmt.Errorf("minio: listing objects: %w", obj.Err))
				return
			}
			info := &objectstore.ObjectInfo{
				Key:          obj.Key,
				Size:         obj.Size,
				LastModified: obj.LastModified,
				VersionID:    obj.VersionID,
				ETag:         strings.Trim(obj.ETag, "\""),
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
	return nil
}

func (s *Store) check(ctx context.Context, key string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" || strings.HasPrefix(key, "/") {
		return objectstore.ErrInvalidKey
	}
	return nil
}

func (s *Store) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return objectstore.ErrStoreClosed
	}
	return nil
}

// putOptions maps bucketfs put options onto minio-go options.
// Canned ACLs are sent as the x-amz-acl header.
func putOptions(cfg *objectstore.PutConfig) (minio.PutObjectOptions, error) {
	opts := minio.PutObjectOptions{
		ContentType:  cfg.ContentType,
		CacheControl: cfg.CacheControl,
		UserMetadata: map[string]string{},
	}
	for k, v := range cfg.Metadata {
		opts.UserMetadata[k] = v
	}
	if cfg.ACL != "" {
		opts.UserMetadata["x-amz-acl"] = cfg.ACL
	}
	if cfg.Encryption != "" {
		sse, err := serverSide(cfg.Encryption)
		if err != nil {
			return opts, err
		}
		opts.ServerSideEncryption = sse
	}
	return opts, nil
}

// serverSide returns the SSE-S3 setting. KMS requires a key id that the
// bucketfs configuration does not carry, so only AES256 is accepted.
func serverSide(algorithm string) (encrypt.ServerSide, error) {
	if algorithm == "AES256" {
		return encrypt.NewSSE(), nil
	}
	return nil, fmt.Errorf("minio: unsupported server-side encryption %q", algorithm)
}

// translateError converts MinIO errors to objectstore errors.
func translateError(err error, key string) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return objectstore.ErrNotFound
	case "AccessDenied":
		return fmt.Errorf("%w: %s", objectstore.ErrPermissionDenied, key)
	}

	return fmt.Errorf("minio: %w", err)
}

// Ensure Store implements objectstore.Store
var _ objectstore.Store = (*Store)(nil)
