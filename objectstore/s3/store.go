// Package s3 provides an S3-compatible object store for bucketfs.
//
// This store works with:
//   - AWS S3
//   - Cloudflare R2
//   - MinIO
//   - Any S3-compatible object storage
//
// Basic usage:
//
//	store, err := s3.New(ctx, s3.Config{
//	    Bucket: "my-bucket",
//	    Region: "us-east-1",
//	})
//
// For S3-compatible services:
//
//	store, err := s3.New(ctx, s3.Config{
//	    Bucket:       "my-bucket",
//	    Endpoint:     "https://play.min.io",
//	    UsePathStyle: true,
//	})
package s3

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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/grokify/bucketfs/objectstore"
)

func init() {
	objectstore.Register("s3", NewFromConfig)
}

// Errors specific to the S3 store.
var (
	ErrBucketRequired = errors.New("s3: bucket is required")
)

// Store implements objectstore.Store for S3-compatible storage.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	region  string
	config  Config
	closed  bool
	mu      sync.RWMutex
}

// New creates a new S3 store with the given configuration.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Build AWS config options
	var optFns []func(*config.LoadOptions) error

	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	var s3OptFns []func(*s3.Options)

	if cfg.Endpoint != "" {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3OptFns...)

	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		region:  awsCfg.Region,
		config:  cfg,
	}, nil
}

// NewFromConfig creates a new S3 store from a config map.
// This is used by the objectstore registry.
func NewFromConfig(configMap map[string]string) (objectstore.Store, error) {
	return New(context.Background(), ConfigFromMap(configMap))
}

// Bucket returns the bucket the store operates on.
func (s *Store) Bucket() string {
	return s.config.Bucket
}

// Head returns metadata about an object.
func (s *Store) Head(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, err
	}

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.translateError(err, key)
	}

	info := &objectstore.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(result.ContentLength),
		VersionID:   aws.ToString(result.VersionId),
		ContentType: aws.ToString(result.ContentType),
		ETag:        strings.Trim(aws.ToString(result.ETag), "\""),
	}
	if result.LastModified != nil {
		info.LastModified = *result.LastModified
	}
	return info, nil
}

// ObjectURL returns the unsigned URL of an object.
func (s *Store) ObjectURL(ctx context.Context, key string) (string, error) {
	if err := s.check(ctx, key); err != nil {
		return "", err
	}
	return objectURL(s.config, s.region, key)
}

// PresignGet returns a SigV4 presigned GET URL.
func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration, overrides objectstore.ResponseOverrides) (string, error) {
	if err := s.check(ctx, key); err != nil {
		return "", err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}
	if overrides.ContentDisposition != "" {
		input.ResponseContentDisposition = aws.String(overrides.ContentDisposition)
	}
	if overrides.ContentType != "" {
		input.ResponseContentType = aws.String(overrides.ContentType)
	}
	if overrides.CacheControl != "" {
		input.ResponseCacheControl = aws.String(overrides.CacheControl)
	}

	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("s3: presigning %s: %w", key, err)
	}
	return req.URL, nil
}

// WaitUntilExists uses the SDK's ObjectExists waiter with a fixed delay of
// policy.Interval and a total budget of MaxAttempts × Interval.
func (s *Store) WaitUntilExists(ctx context.Context, key string, policy objectstore.PollPolicy) (bool, error) {
	if err := s.check(ctx, key); err != nil {
		return false, err
	}
	policy = policy.Normalize()

	waiter := s3.NewObjectExistsWaiter(s.client, func(o *s3.ObjectExistsWaiterOptions) {
		o.MinDelay = policy.Interval
		o.MaxDelay = policy.Interval
	})

	err := waiter.Wait(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}, policy.Budget())
	if err == nil {
		return true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if strings.Contains(err.Error(), "exceeded max wait time") {
		return false, nil
	}
	return false, s.translateError(err, key)
}

// Put uploads an object.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, opts ...objectstore.PutOption) (*objectstore.ObjectInfo, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, err
	}

	// Buffer the body so the SDK can sign a seekable payload
	var buf bytes.Buffer
	if body != nil {
		if _, err := io.Copy(&buf, body); err != nil {
			return nil, fmt.Errorf("s3: reading body for %s: %w", key, err)
		}
	}
	cfg := objectstore.ApplyPutOptions(opts...)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.config.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
	}
	if cfg.ContentType != "" {
		input.ContentType = aws.String(cfg.ContentType)
	}
	if cfg.CacheControl != "" {
		input.CacheControl = aws.String(cfg.CacheControl)
	}
	if cfg.ACL != "" {
		input.ACL = types.ObjectCannedACL(cfg.ACL)
	}
	if cfg.Encryption != "" {
		input.ServerSideEncryption = types.ServerSideEncryption(cfg.Encryption)
	}
	if len(cfg.Metadata) > 0 {
		input.Metadata = cfg.Metadata
	}

	result, err := s.client.PutObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("s3: uploading object %s: %w", key, s.translateError(err, key))
	}

	return &objectstore.ObjectInfo{
		Key:         key,
		Size:        int64(buf.Len()),
		VersionID:   aws.ToString(result.VersionId),
		ContentType: cfg.ContentType,
		ETag:        strings.Trim(aws.ToString(result.ETag), "\""),
	}, nil
}

// Copy copies an object using S3 server-side copy.
// Object metadata is copied from the source; only ACL and encryption
// options apply.
func (s *Store) Copy(ctx context.Context, src, dst string, opts ...objectstore.PutOption) error {
	if err := s.check(ctx, src); err != nil {
		return err
	}
	if err := validateKey(dst); err != nil {
		return err
	}
	cfg := objectstore.ApplyPutOptions(opts...)

	input := &s3.CopyObjectInput{
		Bucket:     aws.String(s.config.Bucket),
		CopySource: aws.String(s.config.Bucket + "/" + escapeKey(src)),
		Key:        aws.String(dst),
	}
	if cfg.ACL != "" {
		input.ACL = types.ObjectCannedACL(cfg.ACL)
	}
	if cfg.Encryption != "" {
		input.ServerSideEncryption = types.ServerSideEncryption(cfg.Encryption)
	}

	if _, err := s.client.CopyObject(ctx, input); err != nil {
		return s.translateError(err, src)
	}
	return nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// S3 delete is idempotent, but check for other errors
		var nsk *types.NotFound
		if errors.As(err, &nsk) {
			return nil
		}
		return s.translateError(err, key)
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

		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.config.Bucket),
			Prefix: aws.String(prefix),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(nil, fmt.Errorf("s3: listing objects: %w", err))
				return
			}

			for _, obj := range page.Contents {
				if obj.Key == nil {
					continue
				}
				info := &objectstore.ObjectInfo{
					Key:  *obj.Key,
					Size: aws.ToInt64(obj.Size),
					ETag: strings.Trim(aws.ToString(obj.ETag), "\""),
				}
				if obj.LastModified != nil {
					info.LastModified = *obj.LastModified
				}
				if !yield(info, nil) {
					return
				}
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

// check validates the key and returns an error if the store is closed or
// ctx is done.
func (s *Store) check(ctx context.Context, key string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return validateKey(key)
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

// translateError converts S3 errors to objectstore errors.
func (s *Store) translateError(err error, key string) error {
	if err == nil {
		return nil
	}

	var nf *types.NotFound
	if errors.As(err, &nf) {
		return objectstore.ErrNotFound
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return objectstore.ErrNotFound
	}

	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("s3: bucket not found: %s", s.config.Bucket)
	}

	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return objectstore.ErrNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s", objectstore.ErrPermissionDenied, key)
		}
	}

	return fmt.Errorf("s3: %w", err)
}

// objectURL builds the public, unsigned URL of key.
func objectURL(cfg Config, region, key string) (string, error) {
	u := &url.URL{Scheme: "https"}

	switch {
	case cfg.Endpoint != "":
		ep, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return "", fmt.Errorf("s3: parsing endpoint: %w", err)
		}
		u.Scheme = ep.Scheme
		if cfg.UsePathStyle {
			u.Host = ep.Host
			u.Path = strings.TrimSuffix(ep.Path, "/") + "/" + cfg.Bucket + "/" + key
		} else {
			u.Host = cfg.Bucket + "." + ep.Host
			u.Path = "/" + key
		}
	case cfg.UsePathStyle:
		u.Host = "s3." + regionOrDefault(region) + ".amazonaws.com"
		u.Path = "/" + cfg.Bucket + "/" + key
	default:
		u.Host = cfg.Bucket + ".s3." + regionOrDefault(region) + ".amazonaws.com"
		u.Path = "/" + key
	}

	return u.String(), nil
}

func regionOrDefault(region string) string {
	if region == "" {
		return "us-east-1"
	}
	return region
}

// escapeKey URL-escapes each segment of key for use in x-amz-copy-source.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
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
