package urlpolicy

import (
	"testing"
	"time"
)

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		glob string
		key  string
		want bool
	}{
		{"*.pdf", "a.pdf", true},
		{"*.pdf", "docs/a.pdf", true},
		{"*.pdf", "a.pdf.txt", false},
		{"docs/*.pdf", "docs/a.pdf", true},
		{"docs/*.pdf", "docs/sub/a.pdf", false},
		{"docs/**", "docs/sub/a.pdf", true},
		{"docs/**/*.pdf", "docs/a.pdf", true},
		{"docs/**/*.pdf", "docs/x/y/a.pdf", true},
		{"s3fs-public/private-files/*", "s3fs-public/private-files/x.zip", true},
		{"file?.txt", "file1.txt", true},
		{"file?.txt", "file10.txt", false},
		{"[ab].jpg", "b.jpg", true},
		{"[!ab].jpg", "b.jpg", false},
		{"a+b(1).txt", "a+b(1).txt", true},
		{"videos/*", "other/videos/a.mp4", false},
	}

	for _, tc := range tests {
		p, err := CompilePattern(tc.glob)
		if err != nil {
			t.Fatalf("CompilePattern(%q) error = %v", tc.glob, err)
		}
		if got := p.Match(tc.key); got != tc.want {
			t.Errorf("%q.Match(%q) = %v, want %v", tc.glob, tc.key, got, tc.want)
		}
	}
}

func TestCompilePatternErrors(t *testing.T) {
	for _, glob := range []string{"", "  ", "[abc"} {
		if _, err := CompilePattern(glob); err == nil {
			t.Errorf("CompilePattern(%q) error = nil, want error", glob)
		}
	}
}

func TestPatternList(t *testing.T) {
	list, err := ParsePatterns([]string{"*.iso", "", "big/**"})
	if err != nil {
		t.Fatalf("ParsePatterns error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}

	tests := []struct {
		key  string
		want bool
	}{
		{"x/debian.iso", true},
		{"big/a/b.bin", true},
		{"small/a.bin", false},
	}
	for _, tc := range tests {
		if got := list.Match(tc.key); got != tc.want {
			t.Errorf("Match(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}

	var empty PatternList
	if empty.Match("anything") {
		t.Error("empty list matched")
	}
}

func TestParsePresignRule(t *testing.T) {
	tests := []struct {
		entry       string
		key         string
		wantTimeout time.Duration
		wantErr     bool
	}{
		{"*.pdf", "a.pdf", DefaultPresignTimeout, false},
		{"30|*.pdf", "a.pdf", 30 * time.Second, false},
		{" 600 |secret/**", "secret/a/b", 600 * time.Second, false},
		{"abc|*.pdf", "", 0, true},
		{"0|*.pdf", "", 0, true},
		{"30|", "", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.entry, func(t *testing.T) {
			rule, err := ParsePresignRule(tc.entry)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParsePresignRule(%q) error = %v, wantErr %v", tc.entry, err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if rule.Timeout != tc.wantTimeout {
				t.Errorf("Timeout = %v, want %v", rule.Timeout, tc.wantTimeout)
			}
			if !rule.Pattern.Match(tc.key) {
				t.Errorf("Pattern %q does not match %q", rule.Pattern, tc.key)
			}
		})
	}
}

func TestPresignRulesFirstMatchWins(t *testing.T) {
	rules, err := ParsePresignRules([]string{"10|reports/*.pdf", "*.pdf"})
	if err != nil {
		t.Fatalf("ParsePresignRules error = %v", err)
	}

	if d, ok := rules.Match("reports/q1.pdf"); !ok || d != 10*time.Second {
		t.Errorf("Match(reports/q1.pdf) = %v, %v, want 10s, true", d, ok)
	}
	if d, ok := rules.Match("other/q1.pdf"); !ok || d != DefaultPresignTimeout {
		t.Errorf("Match(other/q1.pdf) = %v, %v, want %v, true", d, ok, DefaultPresignTimeout)
	}
	if _, ok := rules.Match("a.txt"); ok {
		t.Error("Match(a.txt) = true, want false")
	}
}
