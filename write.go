package bucketfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"

	"github.com/grokify/bucketfs/keypath"
	"github.com/grokify/bucketfs/metacache"
	"github.com/grokify/bucketfs/objectstore"
)

// WriteFile uploads r to uri and records its metadata once the object is
// visible.
//
// The upload carries the configured Cache-Control and server-side
// encryption, a content type derived from the extension, and a canned ACL:
// private for private:// and public-read otherwise. opts are applied after
// these defaults. If the object does not become visible within the wait
// policy, WriteFile returns ErrConsistencyTimeout and records nothing.
func (f *Filesystem) WriteFile(ctx context.Context, uri string, r io.Reader, opts ...objectstore.PutOption) (metacache.FileMetadata, error) {
	uri = keypath.Normalize(uri)
	if err := f.checkFileTarget(ctx, uri); err != nil {
		return metacache.FileMetadata{}, err
	}

	key, err := f.translator.ObjectKey(uri, false)
	if err != nil {
		return metacache.FileMetadata{}, err
	}

	putOpts := append(f.putOptions(uri, key), opts...)
	if _, err := f.store.Put(ctx, key, r, putOpts...); err != nil {
		return metacache.FileMetadata{}, fmt.Errorf("bucketfs: uploading %s: %w", uri, err)
	}

	info, err := f.awaitObject(ctx, uri, key)
	if err != nil {
		return metacache.FileMetadata{}, err
	}

	m := metadataFromInfo(uri, info)
	if err := f.meta.Write(ctx, m); err != nil {
		return metacache.FileMetadata{}, err
	}
	f.logger.Debug("wrote file",
		slog.String("uri", uri),
		slog.Int64("size", m.Size),
		slog.String("version", m.Version))
	return m, nil
}

// Rename moves the file at from to to with a server-side copy. The metadata
// row moves with it, keeping its size, timestamp and version.
func (f *Filesystem) Rename(ctx context.Context, from, to string) error {
	from = keypath.Normalize(from)
	to = keypath.Normalize(to)
	if from == to {
		return nil
	}

	src, err := f.Resolve(ctx, from)
	if err != nil {
		return err
	}
	if src.IsDir {
		return fmt.Errorf("%w: %s", ErrIsDirectory, from)
	}
	if err := f.checkFileTarget(ctx, to); err != nil {
		return err
	}

	srcKey, err := f.translator.ObjectKey(from, false)
	if err != nil {
		return err
	}
	dstKey, err := f.translator.ObjectKey(to, false)
	if err != nil {
		return err
	}

	if err := f.store.Copy(ctx, srcKey, dstKey, f.putOptions(to, dstKey)...); err != nil {
		return fmt.Errorf("bucketfs: copying %s to %s: %w", from, to, err)
	}
	if _, err := f.awaitObject(ctx, to, dstKey); err != nil {
		return err
	}
	if err := f.store.Delete(ctx, srcKey); err != nil {
		return fmt.Errorf("bucketfs: deleting %s: %w", from, err)
	}

	if err := f.meta.Rename(ctx, from, to); err != nil {
		return err
	}
	f.logger.Debug("renamed file", slog.String("from", from), slog.String("to", to))
	return nil
}

// Unlink deletes the file at uri and its metadata row.
func (f *Filesystem) Unlink(ctx context.Context, uri string) error {
	uri = keypath.Normalize(uri)

	m, err := f.Resolve(ctx, uri)
	if err != nil {
		return err
	}
	if m.IsDir {
		return fmt.Errorf("%w: %s", ErrIsDirectory, uri)
	}

	key, err := f.translator.ObjectKey(uri, false)
	if err != nil {
		return err
	}
	if err := f.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("bucketfs: deleting %s: %w", uri, err)
	}
	if err := f.meta.Delete(ctx, uri); err != nil {
		return err
	}
	f.logger.Debug("unlinked file", slog.String("uri", uri))
	return nil
}

// checkFileTarget fails when uri is a root or an existing directory.
func (f *Filesystem) checkFileTarget(ctx context.Context, uri string) error {
	if keypath.IsRoot(uri) {
		return fmt.Errorf("%w: %s", ErrRootDirectory, uri)
	}
	existing, err := f.meta.Read(ctx, uri)
	switch {
	case err == nil && existing.IsDir:
		return fmt.Errorf("%w: %s", ErrIsDirectory, uri)
	case err != nil && !IsNotFound(err):
		return err
	}
	return nil
}

// awaitObject waits for key to become visible and heads it.
func (f *Filesystem) awaitObject(ctx context.Context, uri, key string) (*objectstore.ObjectInfo, error) {
	ok, err := f.waitKey(ctx, key, f.cfg.Wait)
	if err != nil {
		return nil, fmt.Errorf("bucketfs: waiting for %s: %w", uri, err)
	}
	if !ok {
		f.logger.Warn("object not visible after write",
			slog.String("uri", uri),
			slog.Duration("budget", f.cfg.Wait.Budget()))
		return nil, fmt.Errorf("%w: %s", ErrConsistencyTimeout, uri)
	}

	info, err := f.store.Head(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("bucketfs: reading %s: %w", uri, err)
	}
	return info, nil
}

// putOptions returns the upload defaults for uri.
func (f *Filesystem) putOptions(uri, key string) []objectstore.PutOption {
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	acl := objectstore.ACLPublicRead
	if scheme, _, _ := keypath.Split(uri); scheme == keypath.SchemePrivate {
		acl = objectstore.ACLPrivate
	}

	opts := []objectstore.PutOption{
		objectstore.WithContentType(contentType),
		objectstore.WithACL(acl),
	}
	if f.cfg.CacheControl != "" {
		opts = append(opts, objectstore.WithCacheControl(f.cfg.CacheControl))
	}
	if f.cfg.Encryption != "" {
		opts = append(opts, objectstore.WithEncryption(f.cfg.Encryption))
	}
	return opts
}
