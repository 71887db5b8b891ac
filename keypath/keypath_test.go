package keypath

import (
	"errors"
	"slices"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		uri        string
		wantScheme string
		wantPath   string
		wantErr    error
	}{
		{"s3://a/b.jpg", "s3", "a/b.jpg", nil},
		{"public:///a//b/", "public", "a/b", nil},
		{"private://", "private", "", nil},
		{"no-scheme/a", "", "", ErrMalformedURI},
		{"://a", "", "", ErrMalformedURI},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			scheme, p, err := Split(tt.uri)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Split(%q) error = %v, want %v", tt.uri, err, tt.wantErr)
			}
			if scheme != tt.wantScheme || p != tt.wantPath {
				t.Errorf("Split(%q) = %q, %q, want %q, %q", tt.uri, scheme, p, tt.wantScheme, tt.wantPath)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"s3://a/b", "s3://a/b"},
		{"s3:///a/b", "s3://a/b"},
		{"s3:////a//b///c", "s3://a/b/c"},
		{"s3://a/b/", "s3://a/b"},
		{"s3://", "s3://"},
		{"s3:///", "s3://"},
		{"a//b/", "a/b"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.uri); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, uri := range []string{"s3:///x//y/", "public://", "private://a/b.txt"} {
		once := Normalize(uri)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize(Normalize(%q)) = %q, want %q", uri, twice, once)
		}
	}
}

func TestDirname(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"s3://a/b/c.jpg", "s3://a/b"},
		{"s3://a", "s3://"},
		{"s3://", "s3://"},
		{"public://a/b/", "public://a"},
	}

	for _, tt := range tests {
		if got := Dirname(tt.uri); got != tt.want {
			t.Errorf("Dirname(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestBasenameAndJoin(t *testing.T) {
	if got := Basename("s3://a/b/c.jpg"); got != "c.jpg" {
		t.Errorf("Basename = %q, want %q", got, "c.jpg")
	}
	if got := Basename("s3://"); got != "" {
		t.Errorf("Basename(root) = %q, want empty", got)
	}
	if got := Join("s3://", "a"); got != "s3://a" {
		t.Errorf("Join(root) = %q, want %q", got, "s3://a")
	}
	if got := Join("s3://a/", "/b"); got != "s3://a/b" {
		t.Errorf("Join = %q, want %q", got, "s3://a/b")
	}
}

func TestAncestors(t *testing.T) {
	got := Ancestors("s3://a/b/c/d.jpg")
	want := []string{"s3://a/b/c", "s3://a/b", "s3://a"}
	if !slices.Equal(got, want) {
		t.Errorf("Ancestors = %v, want %v", got, want)
	}

	if got := Ancestors("s3://top.txt"); len(got) != 0 {
		t.Errorf("Ancestors(top-level) = %v, want none", got)
	}
	if got := Ancestors("s3://"); len(got) != 0 {
		t.Errorf("Ancestors(root) = %v, want none", got)
	}
}

func TestDirPrefix(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"s3://foo/bar", "s3://foo/bar/"},
		{"s3://foo/bar/", "s3://foo/bar/"},
		{"s3://", "s3://"},
	}

	for _, tt := range tests {
		if got := DirPrefix(tt.uri); got != tt.want {
			t.Errorf("DirPrefix(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestTranslatorObjectKey(t *testing.T) {
	tr := NewTranslator(Config{RootFolder: "site", Bucket: "files"})

	tests := []struct {
		name          string
		uri           string
		prependBucket bool
		want          string
	}{
		{"s3 scheme", "s3://a/b.jpg", false, "site/a/b.jpg"},
		{"public scheme", "public://a/b.jpg", false, "site/s3fs-public/a/b.jpg"},
		{"private scheme", "private://x.pdf", false, "site/s3fs-private/x.pdf"},
		{"unknown scheme", "temporary://t", false, "site/t"},
		{"bucket qualified", "public://a.css", true, "files/site/s3fs-public/a.css"},
		{"duplicate separators", "public:////a//b.jpg", false, "site/s3fs-public/a/b.jpg"},
		{"root", "public://", false, "site/s3fs-public"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.ObjectKey(tt.uri, tt.prependBucket)
			if err != nil {
				t.Fatalf("ObjectKey(%q) error = %v", tt.uri, err)
			}
			if got != tt.want {
				t.Errorf("ObjectKey(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}

	if _, err := tr.ObjectKey("bad", false); !errors.Is(err, ErrMalformedURI) {
		t.Errorf("ObjectKey(bad) error = %v, want ErrMalformedURI", err)
	}
}

func TestTranslatorSchemeKey(t *testing.T) {
	tr := NewTranslator(Config{PublicFolder: "pub", RootFolder: "root"})

	got, err := tr.SchemeKey("public://a/b.css")
	if err != nil {
		t.Fatalf("SchemeKey error = %v", err)
	}
	if got != "pub/a/b.css" {
		t.Errorf("SchemeKey = %q, want %q", got, "pub/a/b.css")
	}
	if q := tr.Qualify(got, false); q != "root/pub/a/b.css" {
		t.Errorf("Qualify = %q, want %q", q, "root/pub/a/b.css")
	}
}

func TestTranslatorURI(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		key    string
		want   string
		wantOK bool
	}{
		{"plain key", Config{}, "a/b.jpg", "s3://a/b.jpg", true},
		{"public folder", Config{}, "s3fs-public/a/b.jpg", "public://a/b.jpg", true},
		{"private folder", Config{}, "s3fs-private/x.pdf", "private://x.pdf", true},
		{"folder lookalike", Config{}, "s3fs-publicity/a", "s3://s3fs-publicity/a", true},
		{"inside root", Config{RootFolder: "site"}, "site/s3fs-public/a", "public://a", true},
		{"outside root", Config{RootFolder: "site"}, "other/a", "", false},
		{"directory marker", Config{}, "a/b/", "s3://a/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NewTranslator(tt.config).URI(tt.key)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("URI(%q) = %q, %v, want %q, %v", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTranslatorRoundTrip(t *testing.T) {
	tr := NewTranslator(Config{RootFolder: "site"})

	for _, uri := range []string{"s3://a/b.jpg", "public://styles/thumb/x.png", "private://doc.pdf"} {
		key, err := tr.ObjectKey(uri, false)
		if err != nil {
			t.Fatalf("ObjectKey(%q) error = %v", uri, err)
		}
		back, ok := tr.URI(key)
		if !ok || back != uri {
			t.Errorf("URI(ObjectKey(%q)) = %q, %v, want %q", uri, back, ok, uri)
		}
	}
}

func TestTranslatorListPrefix(t *testing.T) {
	if got := NewTranslator(Config{}).ListPrefix(); got != "" {
		t.Errorf("ListPrefix() = %q, want empty", got)
	}
	if got := NewTranslator(Config{RootFolder: "/site/"}).ListPrefix(); got != "site/" {
		t.Errorf("ListPrefix() = %q, want %q", got, "site/")
	}
}
