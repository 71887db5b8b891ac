package bucketfs

import (
	"context"
	"errors"
	"io/fs"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/grokify/bucketfs/metacache"
	"github.com/grokify/bucketfs/metacache/memtable"
	"github.com/grokify/bucketfs/objectstore"
	"github.com/grokify/bucketfs/objectstore/memory"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Wait = objectstore.PollPolicy{MaxAttempts: 3, Interval: time.Millisecond}
	return cfg
}

func newTestFS(t *testing.T, cfg Config) (*Filesystem, *memory.Store, *memtable.Table) {
	t.Helper()
	store := memory.New("https://bucket.example.com")
	table := memtable.New()
	fsys, err := New(store, table, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = fsys.Close() })
	return fsys, store, table
}

func writeString(t *testing.T, fsys *Filesystem, uri, content string) metacache.FileMetadata {
	t.Helper()
	m, err := fsys.WriteFile(context.Background(), uri, strings.NewReader(content))
	if err != nil {
		t.Fatalf("WriteFile(%q) failed: %v", uri, err)
	}
	return m
}

func TestNewRequiresStoreAndTable(t *testing.T) {
	if _, err := New(nil, memtable.New(), DefaultConfig()); err == nil {
		t.Error("New(nil store) error = nil, want error")
	}
	if _, err := New(memory.New(""), nil, DefaultConfig()); err == nil {
		t.Error("New(nil table) error = nil, want error")
	}

	cfg := DefaultConfig()
	cfg.Encryption = "rot13"
	if _, err := New(memory.New(""), memtable.New(), cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(bad config) error = %v, want ErrInvalidConfig", err)
	}
}

func TestAncestorClosure(t *testing.T) {
	fsys, _, _ := newTestFS(t, testConfig())
	ctx := context.Background()

	writeString(t, fsys, "public://a/b/c/d.txt", "hello")

	for _, dir := range []string{"public://a/b/c", "public://a/b", "public://a"} {
		st, err := fsys.Stat(ctx, dir)
		if err != nil {
			t.Fatalf("Stat(%q) failed: %v", dir, err)
		}
		if !st.IsDir() {
			t.Errorf("Stat(%q).IsDir() = false, want true", dir)
		}
	}
}

func TestMkdirIdempotent(t *testing.T) {
	fsys, _, table := newTestFS(t, testConfig())
	ctx := context.Background()

	for range 2 {
		if err := fsys.Mkdir(ctx, "s3://photos/2024/", false); err != nil {
			t.Fatalf("Mkdir failed: %v", err)
		}
	}
	// photos/2024 and its backfilled parent
	if table.Len() != 2 {
		t.Errorf("table rows = %d, want 2", table.Len())
	}

	writeString(t, fsys, "s3://photos/a.jpg", "x")
	for range 2 {
		if err := fsys.Mkdir(ctx, "s3://photos/a.jpg", false); !IsNotDirectory(err) {
			t.Errorf("Mkdir(file) error = %v, want ErrNotDirectory", err)
		}
	}

	if err := fsys.Mkdir(ctx, "s3://", true); err != nil {
		t.Errorf("Mkdir(root) error = %v, want nil", err)
	}
}

func TestMkdirRecursive(t *testing.T) {
	fsys, _, _ := newTestFS(t, testConfig())
	ctx := context.Background()

	if err := fsys.Mkdir(ctx, "private://x/y/z", true); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	for _, uri := range []string{"private://x", "private://x/y", "private://x/y/z"} {
		if !fsys.Exists(ctx, uri) {
			t.Errorf("Exists(%q) = false, want true", uri)
		}
	}
}

func TestMkdirUnderFile(t *testing.T) {
	fsys, _, _ := newTestFS(t, testConfig())
	ctx := context.Background()

	writeString(t, fsys, "s3://report.pdf", "x")
	if err := fsys.Mkdir(ctx, "s3://report.pdf/sub", false); !IsNotDirectory(err) {
		t.Errorf("Mkdir under file error = %v, want ErrNotDirectory", err)
	}
}

func TestRmdir(t *testing.T) {
	fsys, _, _ := newTestFS(t, testConfig())
	ctx := context.Background()

	_ = fsys.Mkdir(ctx, "s3://foo/bar", false)
	writeString(t, fsys, "s3://foo/barbell.jpg", "x")

	// A sibling sharing the name as a prefix is not a descendant
	if err := fsys.Rmdir(ctx, "s3://foo/bar"); err != nil {
		t.Fatalf("Rmdir(foo/bar) error = %v, want nil", err)
	}
	if fsys.Exists(ctx, "s3://foo/bar") {
		t.Error("foo/bar still exists after Rmdir")
	}

	if err := fsys.Rmdir(ctx, "s3://foo"); !IsDirectoryNotEmpty(err) {
		t.Errorf("Rmdir(foo) error = %v, want ErrDirectoryNotEmpty", err)
	}
	if err := fsys.Rmdir(ctx, "s3://foo/barbell.jpg"); !IsNotDirectory(err) {
		t.Errorf("Rmdir(file) error = %v, want ErrNotDirectory", err)
	}
	if err := fsys.Rmdir(ctx, "s3://missing"); !IsNotFound(err) {
		t.Errorf("Rmdir(missing) error = %v, want ErrNotFound", err)
	}
	if err := fsys.Rmdir(ctx, "s3://"); !errors.Is(err, ErrRootDirectory) {
		t.Errorf("Rmdir(root) error = %v, want ErrRootDirectory", err)
	}
}

func TestReadDir(t *testing.T) {
	fsys, _, _ := newTestFS(t, testConfig())
	ctx := context.Background()

	writeString(t, fsys, "public://docs/a.txt", "a")
	writeString(t, fsys, "public://docs/b.txt", "b")
	writeString(t, fsys, "public://docs/sub/deep.txt", "c")
	writeString(t, fsys, "public://docsx.txt", "d")

	dir, err := fsys.ReadDir(ctx, "public://docs/")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}

	want := []string{"a.txt", "b.txt", "sub"}
	for pass := range 2 {
		got, err := dir.All()
		if err != nil {
			t.Fatalf("All failed: %v", err)
		}
		slices.Sort(got)
		if !slices.Equal(got, want) {
			t.Errorf("pass %d: names = %v, want %v", pass, got, want)
		}
	}

	root, err := fsys.ReadDir(ctx, "public://")
	if err != nil {
		t.Fatalf("ReadDir(root) failed: %v", err)
	}
	names, _ := root.All()
	slices.Sort(names)
	if !slices.Equal(names, []string{"docs", "docsx.txt"}) {
		t.Errorf("root names = %v", names)
	}

	if _, err := fsys.ReadDir(ctx, "public://docs/a.txt"); !IsNotDirectory(err) {
		t.Errorf("ReadDir(file) error = %v, want ErrNotDirectory", err)
	}
}

func TestStat(t *testing.T) {
	fsys, _, _ := newTestFS(t, testConfig())
	ctx := context.Background()

	m := writeString(t, fsys, "s3://d/f.bin", "12345")

	st, err := fsys.Stat(ctx, "s3://d/f.bin")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if st.Mode != ModeRegular|0o777 {
		t.Errorf("Mode = %o, want %o", st.Mode, ModeRegular|0o777)
	}
	if st.Size != 5 {
		t.Errorf("Size = %d, want 5", st.Size)
	}
	if !st.Mtime.Equal(m.Timestamp) || !st.Atime.Equal(m.Timestamp) || !st.Ctime.Equal(m.Timestamp) {
		t.Errorf("times = %v/%v/%v, want %v", st.Atime, st.Mtime, st.Ctime, m.Timestamp)
	}
	if st.Dev != 0 || st.Ino != 0 || st.Blocks != 0 {
		t.Errorf("Dev/Ino/Blocks = %d/%d/%d, want zero", st.Dev, st.Ino, st.Blocks)
	}

	fi := st.FileInfo()
	if fi.Name() != "f.bin" || fi.Size() != 5 || fi.IsDir() || fi.Mode() != fs.FileMode(0o777) {
		t.Errorf("FileInfo = %s %d %v %v", fi.Name(), fi.Size(), fi.IsDir(), fi.Mode())
	}

	dst, err := fsys.Stat(ctx, "s3://d")
	if err != nil {
		t.Fatalf("Stat(dir) failed: %v", err)
	}
	if dst.Mode != ModeDir|0o777 || dst.Size != 0 {
		t.Errorf("dir Mode = %o Size = %d, want %o 0", dst.Mode, dst.Size, ModeDir|0o777)
	}
	if !dst.FileInfo().Mode().IsDir() {
		t.Error("dir FileInfo().Mode().IsDir() = false")
	}

	rst, err := fsys.Stat(ctx, "s3://")
	if err != nil || !rst.IsDir() {
		t.Errorf("Stat(root) = %+v, %v, want directory", rst, err)
	}

	if _, err := fsys.Stat(ctx, "s3://nope"); !IsNotFound(err) {
		t.Errorf("Stat(missing) error = %v, want ErrNotFound", err)
	}
}

func TestResolveIgnoreCache(t *testing.T) {
	cfg := testConfig()
	cfg.IgnoreCache = true
	fsys, store, table := newTestFS(t, cfg)
	ctx := context.Background()

	// Uploaded behind the cache's back
	if _, err := store.Put(ctx, "s3fs-public/live.txt", strings.NewReader("abc")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	m, err := fsys.Resolve(ctx, "public://live.txt")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Size != 3 || m.Version != "1" {
		t.Errorf("Resolve = %+v, want size 3 version 1", m)
	}

	row, err := table.Get(ctx, "public://live.txt")
	if err != nil || row.Size != 3 {
		t.Errorf("cache row = %+v, %v, want written back", row, err)
	}

	// Directories never trigger a live lookup
	_ = fsys.Mkdir(ctx, "public://dir", false)
	before := store.HeadCalls()
	if !fsys.Exists(ctx, "public://dir") {
		t.Error("Exists(dir) = false")
	}
	if store.HeadCalls() != before {
		t.Error("directory lookup reached the object store")
	}
}

func TestResolveLiveErrors(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("lenient", func(t *testing.T) {
		cfg := testConfig()
		cfg.IgnoreCache = true
		fsys, store, _ := newTestFS(t, cfg)
		store.FailHead(boom)

		if _, err := fsys.Resolve(context.Background(), "s3://x"); !IsNotFound(err) {
			t.Errorf("Resolve error = %v, want ErrNotFound", err)
		}
	})

	t.Run("strict", func(t *testing.T) {
		cfg := testConfig()
		cfg.IgnoreCache = true
		cfg.StrictErrors = true
		fsys, store, _ := newTestFS(t, cfg)
		store.FailHead(boom)

		_, err := fsys.Resolve(context.Background(), "s3://x")
		if !errors.Is(err, ErrBackingStore) || !errors.Is(err, boom) {
			t.Errorf("Resolve error = %v, want ErrBackingStore wrapping %v", err, boom)
		}
	})
}

func TestWaitUntilExistsBudget(t *testing.T) {
	fsys, store, _ := newTestFS(t, testConfig())

	start := time.Now()
	ok := fsys.WaitUntilExists(context.Background(), "s3://never.txt",
		objectstore.PollPolicy{MaxAttempts: 4, Interval: 5 * time.Millisecond})
	if ok {
		t.Fatal("WaitUntilExists = true, want false")
	}
	if store.HeadCalls() != 4 {
		t.Errorf("HeadCalls = %d, want 4", store.HeadCalls())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("WaitUntilExists took %v", elapsed)
	}
}

func TestWaitUntilExistsCancelled(t *testing.T) {
	fsys, _, _ := newTestFS(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if fsys.WaitUntilExists(ctx, "s3://x", objectstore.DefaultPollPolicy()) {
		t.Error("WaitUntilExists on cancelled context = true")
	}
}

func TestWriteFileEventualConsistency(t *testing.T) {
	fsys, store, _ := newTestFS(t, testConfig())
	ctx := context.Background()

	store.VisibleAfter(2)
	m, err := fsys.WriteFile(ctx, "s3://slow.txt", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if m.Size != 4 {
		t.Errorf("Size = %d, want 4", m.Size)
	}

	store.VisibleAfter(10)
	_, err = fsys.WriteFile(ctx, "s3://never.txt", strings.NewReader("data"))
	if !IsConsistencyTimeout(err) {
		t.Errorf("WriteFile error = %v, want ErrConsistencyTimeout", err)
	}
	if _, err := fsys.Resolve(ctx, "s3://never.txt"); !IsNotFound(err) {
		t.Errorf("metadata recorded for invisible object: %v", err)
	}
}

func TestWriteFileOptions(t *testing.T) {
	cfg := testConfig()
	cfg.CacheControl = "public, max-age=300"
	fsys, store, _ := newTestFS(t, cfg)
	ctx := context.Background()

	writeString(t, fsys, "public://a.css", "body{}")
	if _, err := fsys.WriteFile(ctx, "private://b.pdf", strings.NewReader("%PDF"),
		objectstore.WithMetadata(map[string]string{"owner": "billing"})); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if got := store.Metadata("s3fs-private/b.pdf")["owner"]; got != "billing" {
		t.Errorf("Metadata[owner] = %q, want %q", got, "billing")
	}
	if got := store.ACL("s3fs-public/a.css"); got != objectstore.ACLPublicRead {
		t.Errorf("public ACL = %q, want %q", got, objectstore.ACLPublicRead)
	}
	if got := store.ACL("s3fs-private/b.pdf"); got != objectstore.ACLPrivate {
		t.Errorf("private ACL = %q, want %q", got, objectstore.ACLPrivate)
	}

	info, err := store.Head(ctx, "s3fs-public/a.css")
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if !strings.HasPrefix(info.ContentType, "text/css") {
		t.Errorf("ContentType = %q, want text/css", info.ContentType)
	}

	if _, err := fsys.WriteFile(ctx, "public://", strings.NewReader("x")); !errors.Is(err, ErrRootDirectory) {
		t.Errorf("WriteFile(root) error = %v, want ErrRootDirectory", err)
	}
	_ = fsys.Mkdir(ctx, "public://dir", false)
	if _, err := fsys.WriteFile(ctx, "public://dir", strings.NewReader("x")); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("WriteFile(dir) error = %v, want ErrIsDirectory", err)
	}
}

func TestRenameAndUnlink(t *testing.T) {
	fsys, store, _ := newTestFS(t, testConfig())
	ctx := context.Background()

	orig := writeString(t, fsys, "s3://in/a.txt", "abc")

	if err := fsys.Rename(ctx, "s3://in/a.txt", "s3://out/sub/a.txt"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if fsys.Exists(ctx, "s3://in/a.txt") {
		t.Error("source still exists after Rename")
	}
	if _, err := store.Head(ctx, "in/a.txt"); !objectstore.IsNotFound(err) {
		t.Errorf("source object error = %v, want ErrNotFound", err)
	}
	m, err := fsys.Resolve(ctx, "s3://out/sub/a.txt")
	if err != nil {
		t.Fatalf("Resolve(dst) failed: %v", err)
	}
	if m.Size != orig.Size || !m.Timestamp.Equal(orig.Timestamp) {
		t.Errorf("renamed metadata = %+v, want preserved from %+v", m, orig)
	}
	if !fsys.Exists(ctx, "s3://out/sub") {
		t.Error("destination parent missing")
	}

	if err := fsys.Rename(ctx, "s3://out", "s3://elsewhere"); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("Rename(dir) error = %v, want ErrIsDirectory", err)
	}

	if err := fsys.Unlink(ctx, "s3://out/sub/a.txt"); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if fsys.Exists(ctx, "s3://out/sub/a.txt") {
		t.Error("file still exists after Unlink")
	}
	if store.Count() != 0 {
		t.Errorf("store objects = %d, want 0", store.Count())
	}
	if err := fsys.Unlink(ctx, "s3://out/sub"); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("Unlink(dir) error = %v, want ErrIsDirectory", err)
	}
}

func TestRefreshCache(t *testing.T) {
	cfg := testConfig()
	cfg.RootFolder = "site"
	fsys, store, _ := newTestFS(t, cfg)
	ctx := context.Background()

	for _, key := range []string{
		"site/s3fs-public/img/a.jpg",
		"site/s3fs-private/docs/b.pdf",
		"site/raw/c.bin",
		"site/empty/",
		"outside/d.txt",
	} {
		if _, err := store.Put(ctx, key, strings.NewReader("x")); err != nil {
			t.Fatalf("Put(%q) failed: %v", key, err)
		}
	}

	n, err := fsys.RefreshCache(ctx)
	if err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}
	if n != 3 {
		t.Errorf("RefreshCache = %d, want 3", n)
	}

	for _, uri := range []string{"public://img/a.jpg", "public://img", "private://docs/b.pdf", "s3://raw/c.bin", "s3://empty"} {
		if !fsys.Exists(ctx, uri) {
			t.Errorf("Exists(%q) = false after refresh", uri)
		}
	}
	if st, _ := fsys.Stat(ctx, "s3://empty"); st == nil || !st.IsDir() {
		t.Error("folder marker did not become a directory")
	}
	if fsys.Exists(ctx, "s3://outside/d.txt") {
		t.Error("object outside root folder was recorded")
	}
}

func TestURL(t *testing.T) {
	cfg := testConfig()
	cfg.PresignPatterns = []string{"30|*.pdf"}
	cfg.ForceDownloadPatterns = []string{"*.pdf"}
	cfg.TorrentPatterns = []string{"*"}
	fsys, _, _ := newTestFS(t, cfg)
	ctx := context.Background()

	writeString(t, fsys, "s3://r/report.pdf", "x")
	writeString(t, fsys, "s3://r/pic.jpg", "x")

	link, err := fsys.URL(ctx, "s3://r/report.pdf", nil)
	if err != nil {
		t.Fatalf("URL failed: %v", err)
	}
	if !strings.Contains(link, "X-Amz-Expires=30") || !strings.Contains(link, "attachment") {
		t.Errorf("URL = %q, want presigned attachment", link)
	}
	if strings.Contains(link, "torrent") {
		t.Errorf("URL = %q carries torrent argument", link)
	}

	link, err = fsys.URL(ctx, "s3://r/pic.jpg", nil)
	if err != nil {
		t.Fatalf("URL failed: %v", err)
	}
	if link != "https://bucket.example.com/r/pic.jpg?v=1&torrent" {
		t.Errorf("URL = %q", link)
	}
}

func TestRefreshCachePrunesVanishedObjects(t *testing.T) {
	fsys, store, _ := newTestFS(t, testConfig())
	ctx := context.Background()

	writeString(t, fsys, "s3://gone/a.txt", "a")
	writeString(t, fsys, "s3://kept/b.txt", "b")
	_ = fsys.Mkdir(ctx, "s3://lonely", false)

	// Deleted behind the cache's back
	if err := store.Delete(ctx, "gone/a.txt"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	n, err := fsys.RefreshCache(ctx)
	if err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}
	if n != 1 {
		t.Errorf("RefreshCache = %d, want 1", n)
	}

	tests := []struct {
		uri  string
		want bool
	}{
		{"s3://gone/a.txt", false},
		{"s3://gone", false},
		{"s3://lonely", false},
		{"s3://kept/b.txt", true},
		{"s3://kept", true},
	}
	for _, tt := range tests {
		if got := fsys.Exists(ctx, tt.uri); got != tt.want {
			t.Errorf("Exists(%q) = %v, want %v", tt.uri, got, tt.want)
		}
	}
}

func TestRefreshCacheConflictingKeys(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshConcurrency = 1
	fsys, store, _ := newTestFS(t, cfg)
	ctx := context.Background()

	for _, key := range []string{"a", "a/b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x")); err != nil {
			t.Fatalf("Put(%q) failed: %v", key, err)
		}
	}

	n, err := fsys.RefreshCache(ctx)
	if err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}
	if n != 1 {
		t.Errorf("RefreshCache = %d, want 1", n)
	}
	if st, err := fsys.Stat(ctx, "s3://a"); err != nil || st.IsDir() {
		t.Errorf("Stat(s3://a) = %+v, %v, want file", st, err)
	}
	if fsys.Exists(ctx, "s3://a/b") {
		t.Error("entry recorded below a file")
	}
}
