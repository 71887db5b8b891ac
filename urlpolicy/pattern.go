package urlpolicy

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultPresignTimeout applies to presign rules that carry no timeout.
const DefaultPresignTimeout = 60 * time.Second

// Pattern is a compiled, anchored glob over object keys.
//
// Syntax:
//
//	"*"      any run of characters except "/"
//	"**"     any run of characters including "/"
//	"?"      one character except "/"
//	"[...]"  character class, as in path.Match
//
// A pattern without "/" also matches the base name of a key, so "*.pdf"
// matches "docs/a.pdf".
type Pattern struct {
	glob     string
	re       *regexp.Regexp
	basename bool
}

// CompilePattern compiles a glob.
func CompilePattern(glob string) (*Pattern, error) {
	glob = strings.TrimSpace(glob)
	if glob == "" {
		return nil, fmt.Errorf("urlpolicy: empty pattern")
	}
	expr, err := globToRegexp(glob)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("urlpolicy: pattern %q: %w", glob, err)
	}
	return &Pattern{
		glob:     glob,
		re:       re,
		basename: !strings.Contains(glob, "/"),
	}, nil
}

// String returns the source glob.
func (p *Pattern) String() string {
	return p.glob
}

// Match reports whether key matches the pattern.
func (p *Pattern) Match(key string) bool {
	if p.re.MatchString(key) {
		return true
	}
	return p.basename && p.re.MatchString(path.Base(key))
}

// globToRegexp converts a glob into an anchored regular expression.
func globToRegexp(glob string) (string, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				i++
				// "**/" also matches zero directories
				if i+1 < len(glob) && glob[i+1] == '/' {
					i++
					b.WriteString("(?:.*/)?")
				} else {
					b.WriteString(".*")
				}
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				return "", fmt.Errorf("urlpolicy: pattern %q: unterminated character class", glob)
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return b.String(), nil
}

// PatternList is an ordered list of patterns. The zero value matches nothing.
type PatternList []*Pattern

// ParsePatterns compiles every glob; blank entries are skipped.
func ParsePatterns(globs []string) (PatternList, error) {
	var list PatternList
	for _, g := range globs {
		if strings.TrimSpace(g) == "" {
			continue
		}
		p, err := CompilePattern(g)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, nil
}

// Match reports whether any pattern matches key.
func (l PatternList) Match(key string) bool {
	for _, p := range l {
		if p.Match(key) {
			return true
		}
	}
	return false
}

// PresignRule marks matching keys for presigned URLs with a timeout.
type PresignRule struct {
	Pattern *Pattern
	Timeout time.Duration
}

// ParsePresignRule parses "[seconds|]glob". A missing timeout means
// DefaultPresignTimeout.
func ParsePresignRule(s string) (PresignRule, error) {
	timeout := DefaultPresignTimeout
	glob := s
	if before, after, ok := strings.Cut(s, "|"); ok {
		secs, err := strconv.Atoi(strings.TrimSpace(before))
		if err != nil || secs <= 0 {
			return PresignRule{}, fmt.Errorf("urlpolicy: presign rule %q: invalid timeout", s)
		}
		timeout = time.Duration(secs) * time.Second
		glob = after
	}
	p, err := CompilePattern(glob)
	if err != nil {
		return PresignRule{}, err
	}
	return PresignRule{Pattern: p, Timeout: timeout}, nil
}

// PresignRules is an ordered list of presign rules; the first match wins.
type PresignRules []PresignRule

// ParsePresignRules parses each entry with ParsePresignRule, skipping
// blank entries.
func ParsePresignRules(entries []string) (PresignRules, error) {
	var rules PresignRules
	for _, e := range entries {
		if strings.TrimSpace(e) == "" {
			continue
		}
		r, err := ParsePresignRule(e)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Match returns the timeout of the first rule matching key.
func (r PresignRules) Match(key string) (time.Duration, bool) {
	for _, rule := range r {
		if rule.Pattern.Match(key) {
			return rule.Timeout, true
		}
	}
	return 0, false
}
