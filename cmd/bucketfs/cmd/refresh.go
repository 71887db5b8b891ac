package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grokify/bucketfs"
	"github.com/grokify/bucketfs/metacache/pgtable"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the metadata cache from the bucket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFilesystem(cmd, func(ctx context.Context, fsys *bucketfs.Filesystem) error {
			n, err := fsys.RefreshCache(ctx)
			fmt.Printf("recorded %d objects\n", n)
			return err
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the metadata table",
	Long:  "Create the metadata table and its prefix index in the PostgreSQL database named by --dsn.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		dsn := viper.GetString("dsn")
		if dsn == "" {
			return fmt.Errorf("migrate requires --dsn")
		}

		table, err := pgtable.Open(cmd.Context(), dsn)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := table.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()

		if err := table.CreateSchema(cmd.Context()); err != nil {
			return err
		}
		logger.Info("metadata table ready")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd, migrateCmd)
}
