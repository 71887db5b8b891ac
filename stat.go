package bucketfs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/grokify/bucketfs/keypath"
	"github.com/grokify/bucketfs/metacache"
	"github.com/grokify/bucketfs/metrics"
	"github.com/grokify/bucketfs/objectstore"
)

// POSIX file type bits and the permission bits reported by Stat.
const (
	ModeDir     uint32 = 0o040000
	ModeRegular uint32 = 0o100000
	ModePerm    uint32 = 0o777
)

// Resolve returns the metadata of uri.
//
// The scheme root is always a directory. Other URIs are answered by the
// metadata cache; with IgnoreCache set, anything that is not a cached
// directory is looked up live and a found object is written back to the
// cache. Live failures are logged and reported as ErrNotFound unless
// StrictErrors is set.
func (f *Filesystem) Resolve(ctx context.Context, uri string) (metacache.FileMetadata, error) {
	uri = keypath.Normalize(uri)
	if keypath.IsRoot(uri) {
		return metacache.FileMetadata{URI: uri, IsDir: true}, nil
	}
	if _, _, err := keypath.Split(uri); err != nil {
		return metacache.FileMetadata{}, err
	}

	m, err := f.meta.Read(ctx, uri)
	if err != nil && !IsNotFound(err) {
		return metacache.FileMetadata{}, err
	}
	if f.cfg.IgnoreCache && (err != nil || !m.IsDir) {
		return f.resolveLive(ctx, uri)
	}
	return m, err
}

// resolveLive heads the object behind uri and refreshes its cache row.
func (f *Filesystem) resolveLive(ctx context.Context, uri string) (metacache.FileMetadata, error) {
	key, err := f.translator.ObjectKey(uri, false)
	if err != nil {
		return metacache.FileMetadata{}, err
	}

	info, err := f.store.Head(ctx, key)
	if err != nil {
		if objectstore.IsNotFound(err) {
			metrics.RecordLiveHead("not_found")
			return metacache.FileMetadata{}, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		metrics.RecordLiveHead("error")
		f.logger.Warn("live head failed",
			slog.String("uri", uri),
			slog.String("key", key),
			slog.Any("error", err))
		if f.cfg.StrictErrors {
			return metacache.FileMetadata{}, fmt.Errorf("%w: %s: %w", ErrBackingStore, uri, err)
		}
		return metacache.FileMetadata{}, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	metrics.RecordLiveHead("found")

	m := metadataFromInfo(uri, info)
	if err := f.meta.Write(ctx, m); err != nil {
		return metacache.FileMetadata{}, err
	}
	return m, nil
}

// Exists reports whether uri resolves.
func (f *Filesystem) Exists(ctx context.Context, uri string) bool {
	_, err := f.Resolve(ctx, uri)
	if err != nil && !IsNotFound(err) {
		f.logger.Warn("existence check failed", slog.String("uri", uri), slog.Any("error", err))
	}
	return err == nil
}

// WaitUntilExists polls the object store until the object behind uri is
// visible. It gives up after policy.MaxAttempts checks spaced
// policy.Interval apart, or when ctx is done, and then returns false.
// A zero policy means 10 attempts one second apart.
func (f *Filesystem) WaitUntilExists(ctx context.Context, uri string, policy objectstore.PollPolicy) bool {
	key, err := f.translator.ObjectKey(uri, false)
	if err != nil {
		return false
	}
	ok, err := f.waitKey(ctx, key, policy)
	if err != nil {
		f.logger.Warn("wait until exists failed", slog.String("uri", uri), slog.Any("error", err))
	}
	return ok
}

func (f *Filesystem) waitKey(ctx context.Context, key string, policy objectstore.PollPolicy) (bool, error) {
	ok, err := f.store.WaitUntilExists(ctx, key, policy.Normalize())
	metrics.RecordWait(ok)
	return ok, err
}

// Stat is a POSIX-like stat result. FileInfo returns an fs.FileInfo view.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint64
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Blksize int64
	Blocks  int64

	name  string
	isDir bool
}

// Stat returns the POSIX-like stat of uri. Permission bits are always 0777.
func (f *Filesystem) Stat(ctx context.Context, uri string) (*Stat, error) {
	m, err := f.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	return NewStat(m), nil
}

// NewStat converts metadata into a Stat. Directories report size 0 and no
// times.
func NewStat(m metacache.FileMetadata) *Stat {
	s := &Stat{
		Nlink: 1,
		name:  keypath.Basename(m.URI),
		isDir: m.IsDir,
	}
	if m.IsDir {
		s.Mode = ModeDir | ModePerm
		return s
	}
	s.Mode = ModeRegular | ModePerm
	s.Size = m.Size
	s.Atime = m.Timestamp
	s.Mtime = m.Timestamp
	s.Ctime = m.Timestamp
	return s
}

// Name returns the base name of the entry.
func (s *Stat) Name() string { return s.name }

// FileMode returns the mode as an fs.FileMode.
func (s *Stat) FileMode() fs.FileMode {
	if s.isDir {
		return fs.ModeDir | fs.FileMode(ModePerm)
	}
	return fs.FileMode(ModePerm)
}

// ModTime returns Mtime.
func (s *Stat) ModTime() time.Time { return s.Mtime }

// IsDir reports whether the entry is a directory.
func (s *Stat) IsDir() bool { return s.isDir }

// FileInfo returns an fs.FileInfo view of s.
func (s *Stat) FileInfo() fs.FileInfo {
	return fileInfo{s}
}

// fileInfo adapts Stat, whose Mode and Size fields collide with the
// fs.FileInfo method names.
type fileInfo struct{ s *Stat }

func (fi fileInfo) Name() string       { return fi.s.name }
func (fi fileInfo) Size() int64        { return fi.s.Size }
func (fi fileInfo) Mode() fs.FileMode  { return fi.s.FileMode() }
func (fi fileInfo) ModTime() time.Time { return fi.s.Mtime }
func (fi fileInfo) IsDir() bool        { return fi.s.isDir }
func (fi fileInfo) Sys() any           { return fi.s }

// metadataFromInfo converts a live object into cache metadata.
func metadataFromInfo(uri string, info *objectstore.ObjectInfo) metacache.FileMetadata {
	version := info.VersionID
	if version == "null" {
		version = ""
	}
	ts := info.LastModified
	if ts.IsZero() {
		ts = time.Now()
	}
	return metacache.FileMetadata{
		URI:       uri,
		Size:      info.Size,
		Timestamp: ts.UTC().Truncate(time.Second),
		Version:   version,
	}
}

var _ fs.FileInfo = fileInfo{}
