package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/grokify/bucketfs"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <uri>...",
	Short: "Create directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parents, _ := cmd.Flags().GetBool("parents")
		return withFilesystem(cmd, func(ctx context.Context, fsys *bucketfs.Filesystem) error {
			for _, uri := range args {
				if err := fsys.Mkdir(ctx, uri, parents); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var rmdirCmd = &cobra.Command{
	Use:   "rmdir <uri>...",
	Short: "Remove empty directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFilesystem(cmd, func(ctx context.Context, fsys *bucketfs.Filesystem) error {
			for _, uri := range args {
				if err := fsys.Rmdir(ctx, uri); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func init() {
	mkdirCmd.Flags().BoolP("parents", "p", false, "create parent directories as needed")
	rootCmd.AddCommand(mkdirCmd, rmdirCmd)
}
