package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grokify/bucketfs"
	"github.com/grokify/bucketfs/keypath"
)

var lsCmd = &cobra.Command{
	Use:   "ls <uri>",
	Short: "List directory entries",
	Long:  "List the direct children of a directory as recorded in the metadata cache.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		long, _ := cmd.Flags().GetBool("long")
		return withFilesystem(cmd, func(ctx context.Context, fsys *bucketfs.Filesystem) error {
			dir, err := fsys.ReadDir(ctx, args[0])
			if err != nil {
				return err
			}

			count := 0
			for m, err := range dir.Entries() {
				if err != nil {
					return err
				}
				name := keypath.Basename(m.URI)
				if m.IsDir {
					name += "/"
				}
				if long {
					fmt.Printf("%d\t%s\t%s\n", m.Size, formatTime(m.Timestamp), name)
				} else {
					fmt.Println(name)
				}
				count++
			}
			if count == 0 {
				fmt.Println("(empty)")
			}
			return nil
		})
	},
}

func init() {
	lsCmd.Flags().BoolP("long", "l", false, "show size and modification time")
	rootCmd.AddCommand(lsCmd)
}
