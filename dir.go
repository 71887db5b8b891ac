package bucketfs

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/grokify/bucketfs/keypath"
	"github.com/grokify/bucketfs/metacache"
)

// Mkdir creates a directory entry at uri.
//
// Mkdir is idempotent for directories: it returns nil when a directory
// already exists and ErrNotDirectory when a file occupies uri. Missing
// ancestors are always created; with recursive set the parent chain is
// also walked explicitly.
func (f *Filesystem) Mkdir(ctx context.Context, uri string, recursive bool) error {
	uri = keypath.Normalize(uri)
	if keypath.IsRoot(uri) {
		return nil
	}

	existing, err := f.meta.Read(ctx, uri)
	switch {
	case err == nil && existing.IsDir:
		return nil
	case err == nil:
		return fmt.Errorf("%w: %s", ErrNotDirectory, uri)
	case !IsNotFound(err):
		return err
	}

	if err := f.meta.Write(ctx, metacache.Directory(uri)); err != nil {
		return err
	}
	f.logger.Debug("created directory", slog.String("uri", uri))

	if recursive {
		if parent := keypath.Dirname(uri); !keypath.IsRoot(parent) {
			return f.Mkdir(ctx, parent, true)
		}
	}
	return nil
}

// Rmdir removes the empty directory at uri.
//
// It returns ErrNotDirectory when uri is not a directory and
// ErrDirectoryNotEmpty when any entry lies below it. A sibling file that
// shares the directory name as a prefix ("foo/barbell.jpg" next to
// "foo/bar") does not make the directory non-empty.
func (f *Filesystem) Rmdir(ctx context.Context, uri string) error {
	uri = keypath.Normalize(uri)
	if keypath.IsRoot(uri) {
		return fmt.Errorf("%w: %s", ErrRootDirectory, uri)
	}

	m, err := f.meta.Read(ctx, uri)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return err
	}
	if !m.IsDir {
		return fmt.Errorf("%w: %s", ErrNotDirectory, uri)
	}

	// The emptiness check and the delete are one table operation
	if err := f.meta.DeleteEmpty(ctx, uri); err != nil {
		return err
	}
	f.logger.Debug("removed directory", slog.String("uri", uri))
	return nil
}

// DirIterator lists the direct children of a directory. Each range over
// Names or Entries runs a fresh query, so an iterator can be reused.
type DirIterator struct {
	ctx  context.Context
	meta *metacache.Store
	uri  string
}

// ReadDir returns an iterator over the children of the directory at uri.
func (f *Filesystem) ReadDir(ctx context.Context, uri string) (*DirIterator, error) {
	uri = keypath.Normalize(uri)
	if !keypath.IsRoot(uri) {
		m, err := f.Resolve(ctx, uri)
		if err != nil {
			return nil, err
		}
		if !m.IsDir {
			return nil, fmt.Errorf("%w: %s", ErrNotDirectory, uri)
		}
	}
	return &DirIterator{ctx: ctx, meta: f.meta, uri: uri}, nil
}

// URI returns the directory being listed.
func (d *DirIterator) URI() string {
	return d.uri
}

// Entries yields the metadata of every child.
func (d *DirIterator) Entries() iter.Seq2[metacache.FileMetadata, error] {
	return d.meta.Children(d.ctx, d.uri)
}

// Names yields the base name of every child.
func (d *DirIterator) Names() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for m, err := range d.Entries() {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(keypath.Basename(m.URI), nil) {
				return
			}
		}
	}
}

// All collects every child name.
func (d *DirIterator) All() ([]string, error) {
	var names []string
	for name, err := range d.Names() {
		if err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}
