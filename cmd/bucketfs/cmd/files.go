package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grokify/bucketfs"
	"github.com/grokify/bucketfs/objectstore"
)

var putCmd = &cobra.Command{
	Use:   "put <local-file> <uri>",
	Short: "Upload a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFilesystem(cmd, func(ctx context.Context, fsys *bucketfs.Filesystem) (err error) {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			meta, _ := cmd.Flags().GetStringToString("meta")
			var opts []objectstore.PutOption
			if len(meta) > 0 {
				opts = append(opts, objectstore.WithMetadata(meta))
			}
			m, err := fsys.WriteFile(ctx, args[1], f, opts...)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%d\t%s\n", m.URI, m.Size, m.Version)
			return nil
		})
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <from> <to>",
	Short: "Rename a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFilesystem(cmd, func(ctx context.Context, fsys *bucketfs.Filesystem) error {
			return fsys.Rename(ctx, args[0], args[1])
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <uri>...",
	Short: "Delete files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFilesystem(cmd, func(ctx context.Context, fsys *bucketfs.Filesystem) error {
			for _, uri := range args {
				if err := fsys.Unlink(ctx, uri); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func init() {
	putCmd.Flags().StringToString("meta", nil, "user metadata stored with the object, as key=value")
	rootCmd.AddCommand(putCmd, mvCmd, rmCmd)
}
