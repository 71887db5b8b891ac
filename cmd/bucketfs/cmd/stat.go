package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grokify/bucketfs"
)

var statCmd = &cobra.Command{
	Use:   "stat <uri>...",
	Short: "Show file status",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFilesystem(cmd, func(ctx context.Context, fsys *bucketfs.Filesystem) error {
			for _, uri := range args {
				st, err := fsys.Stat(ctx, uri)
				if err != nil {
					return err
				}
				kind := "file"
				if st.IsDir() {
					kind = "directory"
				}
				fmt.Printf("%s\t%s\t%o\t%d\t%s\n", uri, kind, st.Mode, st.Size, formatTime(st.Mtime))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
