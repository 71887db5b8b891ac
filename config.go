package bucketfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grokify/bucketfs/keypath"
	"github.com/grokify/bucketfs/metacache"
	"github.com/grokify/bucketfs/objectstore"
	"github.com/grokify/bucketfs/urlpolicy"
)

// Default configuration values.
const (
	DefaultTierSize           = 10000
	DefaultTierTTL            = time.Minute
	DefaultRefreshConcurrency = 8
)

// Config holds filesystem configuration. It is copied at construction and
// never mutated afterwards.
type Config struct {
	// Bucket is the bucket identifier, used for bucket-qualified keys.
	Bucket string

	// PublicFolder and PrivateFolder are the storage folders of the public
	// and private schemes.
	PublicFolder  string
	PrivateFolder string

	// RootFolder, when set, prefixes every object key.
	RootFolder string

	// IgnoreCache answers file lookups with a live head request instead of
	// the metadata cache. Directories are always answered from the cache.
	IgnoreCache bool

	// StrictErrors propagates live object-store failures wrapped in
	// ErrBackingStore instead of reporting them as not found.
	StrictErrors bool

	// Domain enables CDN mode with the given host (and optional path).
	Domain string

	// CDNInsecure builds CDN URLs with http.
	CDNInsecure bool

	// NoRewriteCSSJS disables proxy routes for public .css and .js files.
	NoRewriteCSSJS bool

	// PresignPatterns are "[seconds|]glob" entries.
	PresignPatterns []string

	// ForceDownloadPatterns and TorrentPatterns are glob entries.
	ForceDownloadPatterns []string
	TorrentPatterns       []string

	// CacheControl is sent with every upload.
	CacheControl string

	// Encryption is the server-side encryption algorithm ("AES256" or
	// "aws:kms"). Empty disables it.
	Encryption string

	// Wait bounds waiting for uploads to become visible.
	Wait objectstore.PollPolicy

	// TierSize and TierTTL size the in-process metadata tier.
	TierSize int
	TierTTL  time.Duration

	// LockWait bounds the single-flight wait on cache misses.
	LockWait time.Duration

	// RefreshConcurrency bounds the workers of RefreshCache.
	RefreshConcurrency int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PublicFolder:       keypath.DefaultPublicFolder,
		PrivateFolder:      keypath.DefaultPrivateFolder,
		Wait:               objectstore.DefaultPollPolicy(),
		TierSize:           DefaultTierSize,
		TierTTL:            DefaultTierTTL,
		LockWait:           metacache.DefaultLockWait,
		RefreshConcurrency: DefaultRefreshConcurrency,
	}
}

// ConfigFromMap creates a Config from a string map, starting from
// DefaultConfig.
// Supported keys:
//   - bucket, public_folder, private_folder, root_folder
//   - ignore_cache, strict_errors, cdn_insecure, no_rewrite_cssjs: "true" or "1"
//   - domain: CDN host
//   - presign_patterns, force_download_patterns, torrent_patterns:
//     entries separated by newlines or commas
//   - cache_control, encryption
//   - wait_attempts (integer), wait_interval (duration, e.g. "1s")
//   - tier_size (integer), tier_ttl, lock_wait (durations)
//   - refresh_concurrency (integer)
func ConfigFromMap(m map[string]string) (Config, error) {
	config := DefaultConfig()

	strs := map[string]*string{
		"bucket":         &config.Bucket,
		"public_folder":  &config.PublicFolder,
		"private_folder": &config.PrivateFolder,
		"root_folder":    &config.RootFolder,
		"domain":         &config.Domain,
		"cache_control":  &config.CacheControl,
		"encryption":     &config.Encryption,
	}
	for key, dst := range strs {
		if v, ok := m[key]; ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"ignore_cache":     &config.IgnoreCache,
		"strict_errors":    &config.StrictErrors,
		"cdn_insecure":     &config.CDNInsecure,
		"no_rewrite_cssjs": &config.NoRewriteCSSJS,
	}
	for key, dst := range bools {
		if v, ok := m[key]; ok {
			*dst = v == "true" || v == "1"
		}
	}

	lists := map[string]*[]string{
		"presign_patterns":        &config.PresignPatterns,
		"force_download_patterns": &config.ForceDownloadPatterns,
		"torrent_patterns":        &config.TorrentPatterns,
	}
	for key, dst := range lists {
		if v, ok := m[key]; ok {
			*dst = SplitPatterns(v)
		}
	}

	ints := map[string]*int{
		"wait_attempts":       &config.Wait.MaxAttempts,
		"tier_size":           &config.TierSize,
		"refresh_concurrency": &config.RefreshConcurrency,
	}
	for key, dst := range ints {
		if v, ok := m[key]; ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return config, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"wait_interval": &config.Wait.Interval,
		"tier_ttl":      &config.TierTTL,
		"lock_wait":     &config.LockWait,
	}
	for key, dst := range durations {
		if v, ok := m[key]; ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return config, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
			}
			*dst = d
		}
	}

	return config, nil
}

// ConfigFromEnv creates a Config from BUCKETFS_* environment variables.
// Each ConfigFromMap key is read from BUCKETFS_<KEY>, e.g.
// BUCKETFS_ROOT_FOLDER or BUCKETFS_PRESIGN_PATTERNS.
func ConfigFromEnv() (Config, error) {
	m := make(map[string]string)
	for _, key := range configKeys {
		if v, ok := os.LookupEnv("BUCKETFS_" + strings.ToUpper(key)); ok {
			m[key] = v
		}
	}
	return ConfigFromMap(m)
}

// configKeys lists every key understood by ConfigFromMap.
var configKeys = []string{
	"bucket", "public_folder", "private_folder", "root_folder",
	"ignore_cache", "strict_errors", "domain", "cdn_insecure", "no_rewrite_cssjs",
	"presign_patterns", "force_download_patterns", "torrent_patterns",
	"cache_control", "encryption",
	"wait_attempts", "wait_interval", "tier_size", "tier_ttl", "lock_wait",
	"refresh_concurrency",
}

// ConfigKeys returns the keys understood by ConfigFromMap.
func ConfigKeys() []string {
	return append([]string(nil), configKeys...)
}

// SplitPatterns splits a pattern list on newlines and commas, dropping
// blank entries.
func SplitPatterns(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == ','
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.PublicFolder != "" && c.PublicFolder == c.PrivateFolder {
		return fmt.Errorf("%w: public and private folders must differ", ErrInvalidConfig)
	}
	switch c.Encryption {
	case "", "AES256", "aws:kms":
	default:
		return fmt.Errorf("%w: unsupported encryption %q", ErrInvalidConfig, c.Encryption)
	}
	if c.Wait.MaxAttempts < 0 || c.Wait.Interval < 0 {
		return fmt.Errorf("%w: negative wait policy", ErrInvalidConfig)
	}
	if c.TierSize < 0 || c.RefreshConcurrency < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidConfig)
	}
	if _, err := c.policy(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// translator builds the path translator of c.
func (c Config) translator() *keypath.Translator {
	return keypath.NewTranslator(keypath.Config{
		PublicFolder:  c.PublicFolder,
		PrivateFolder: c.PrivateFolder,
		RootFolder:    c.RootFolder,
		Bucket:        c.Bucket,
	})
}

// policy compiles the URL policy of c.
func (c Config) policy() (urlpolicy.Config, error) {
	cfg := urlpolicy.DefaultConfig()
	cfg.NoRewriteCSSJS = c.NoRewriteCSSJS
	cfg.Domain = c.Domain
	cfg.CDNInsecure = c.CDNInsecure

	var err error
	if cfg.Presign, err = urlpolicy.ParsePresignRules(c.PresignPatterns); err != nil {
		return cfg, err
	}
	if cfg.ForceDownload, err = urlpolicy.ParsePatterns(c.ForceDownloadPatterns); err != nil {
		return cfg, err
	}
	if cfg.Torrent, err = urlpolicy.ParsePatterns(c.TorrentPatterns); err != nil {
		return cfg, err
	}
	return cfg, nil
}
