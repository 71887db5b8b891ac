// Package memtable provides an in-memory metacache.Table.
//
// It is useful for tests, embedded use and as a reference for the
// semantics every durable table must follow.
package memtable

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/grokify/bucketfs/metacache"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memtable: table is closed")

// Table is an in-memory metacache.Table guarded by a RWMutex.
type Table struct {
	rows   map[string]metacache.FileMetadata
	closed bool
	mu     sync.RWMutex

	reads atomic.Int64

	// OnGet, when set, is called at the start of every Get. Tests use it
	// to slow reads down or inject failures.
	OnGet func(uri string) error
}

// New creates an empty Table.
func New() *Table {
	return &Table{rows: make(map[string]metacache.FileMetadata)}
}

// Reads returns the number of Get calls made so far.
func (t *Table) Reads() int64 {
	return t.reads.Load()
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get implements metacache.Table.
func (t *Table) Get(ctx context.Context, uri string) (metacache.FileMetadata, error) {
	t.reads.Add(1)
	if t.OnGet != nil {
		if err := t.OnGet(uri); err != nil {
			return metacache.FileMetadata{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return metacache.FileMetadata{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return metacache.FileMetadata{}, ErrClosed
	}
	m, ok := t.rows[uri]
	if !ok {
		return metacache.FileMetadata{}, metacache.ErrNotFound
	}
	return m, nil
}

// Upsert implements metacache.Table.
func (t *Table) Upsert(ctx context.Context, m metacache.FileMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	t.rows[m.URI] = m
	return nil
}

// Delete implements metacache.Table.
func (t *Table) Delete(ctx context.Context, uris ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	for _, uri := range uris {
		delete(t.rows, uri)
	}
	return nil
}

// Replace implements metacache.Table.
func (t *Table) Replace(ctx context.Context, oldURI string, m metacache.FileMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	delete(t.rows, oldURI)
	t.rows[m.URI] = m
	return nil
}

// DeleteEmpty implements metacache.Table.
func (t *Table) DeleteEmpty(ctx context.Context, uri, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if _, ok := t.rows[uri]; !ok {
		return metacache.ErrNotFound
	}
	if t.hasPrefix(prefix) {
		return metacache.ErrDirectoryNotEmpty
	}
	delete(t.rows, uri)
	return nil
}

// HasPrefix implements metacache.Table.
func (t *Table) HasPrefix(ctx context.Context, prefix string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return false, ErrClosed
	}
	return t.hasPrefix(prefix), nil
}

func (t *Table) hasPrefix(prefix string) bool {
	for uri := range t.rows {
		if strings.HasPrefix(uri, prefix) && uri != prefix {
			return true
		}
	}
	return false
}

// Children implements metacache.Table. Rows are yielded in URI order.
func (t *Table) Children(ctx context.Context, prefix string) iter.Seq2[metacache.FileMetadata, error] {
	return func(yield func(metacache.FileMetadata, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(metacache.FileMetadata{}, err)
			return
		}

		t.mu.RLock()
		if t.closed {
			t.mu.RUnlock()
			yield(metacache.FileMetadata{}, ErrClosed)
			return
		}
		var children []metacache.FileMetadata
		for uri, m := range t.rows {
			rest, ok := strings.CutPrefix(uri, prefix)
			if !ok || rest == "" || strings.Contains(rest, "/") {
				continue
			}
			children = append(children, m)
		}
		t.mu.RUnlock()

		sort.Slice(children, func(i, j int) bool {
			return children[i].URI < children[j].URI
		})
		for _, m := range children {
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Close implements metacache.Table.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	return nil
}

// Ensure Table implements metacache.Table
var _ metacache.Table = (*Table)(nil)
