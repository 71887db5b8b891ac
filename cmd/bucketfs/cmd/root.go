package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grokify/bucketfs"
	"github.com/grokify/bucketfs/metacache"
	"github.com/grokify/bucketfs/metacache/memtable"
	"github.com/grokify/bucketfs/metacache/pgtable"
	"github.com/grokify/bucketfs/metrics"
	"github.com/grokify/bucketfs/objectstore"
	_ "github.com/grokify/bucketfs/objectstore/memory"
	_ "github.com/grokify/bucketfs/objectstore/minio"
	_ "github.com/grokify/bucketfs/objectstore/s3"
)

var rootCmd = &cobra.Command{
	Use:   "bucketfs",
	Short: "Filesystem view of an object storage bucket",
	Long: "CLI for inspecting and maintaining a bucketfs metadata cache and " +
		"the bucket behind it.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/bucketfs/config.yaml)")
	flags.String("store", "s3", "object store ("+strings.Join(objectstore.Stores(), ", ")+")")
	flags.String("dsn", "", "PostgreSQL DSN of the metadata table (default: in-memory)")
	flags.String("bucket", "", "bucket name")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	_ = viper.BindPFlag("store_type", flags.Lookup("store"))
	_ = viper.BindPFlag("dsn", flags.Lookup("dsn"))
	_ = viper.BindPFlag("bucket", flags.Lookup("bucket"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BUCKETFS")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bucketfs")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "bucketfs")
	}
	return ".bucketfs"
}

// setup configures logging and the optional metrics listener.
func setup(cmd *cobra.Command, args []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log_level"))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if addr := viper.GetString("metrics_addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		logger.Info("serving metrics", slog.String("addr", addr))
	}
	return nil
}

// filesystemConfig reads the filesystem settings from viper.
func filesystemConfig() (bucketfs.Config, error) {
	m := make(map[string]string)
	for _, key := range bucketfs.ConfigKeys() {
		if viper.IsSet(key) {
			m[key] = viper.GetString(key)
		}
	}
	return bucketfs.ConfigFromMap(m)
}

// openTable opens the PostgreSQL table named by the dsn setting, or an
// in-memory table when none is set.
func openTable(ctx context.Context) (metacache.Table, error) {
	dsn := viper.GetString("dsn")
	if dsn == "" {
		logger.Warn("no dsn configured, using an in-memory metadata table")
		return memtable.New(), nil
	}
	return pgtable.Open(ctx, dsn)
}

// openFilesystem builds the filesystem from the store, table and
// filesystem settings.
func openFilesystem(ctx context.Context) (*bucketfs.Filesystem, error) {
	cfg, err := filesystemConfig()
	if err != nil {
		return nil, err
	}

	storeConfig := viper.GetStringMapString("store")
	if _, ok := storeConfig["bucket"]; !ok && cfg.Bucket != "" {
		storeConfig["bucket"] = cfg.Bucket
	}
	store, err := objectstore.Open(viper.GetString("store_type"), storeConfig)
	if err != nil {
		return nil, err
	}

	table, err := openTable(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	fsys, err := bucketfs.New(store, table, cfg, bucketfs.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		_ = table.Close()
		return nil, err
	}
	return fsys, nil
}

// withFilesystem opens the filesystem, runs fn and closes it.
func withFilesystem(cmd *cobra.Command, fn func(context.Context, *bucketfs.Filesystem) error) (err error) {
	ctx := cmd.Context()
	fsys, err := openFilesystem(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := fsys.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, fsys)
}
