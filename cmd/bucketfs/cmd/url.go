package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/grokify/bucketfs"
)

var urlCmd = &cobra.Command{
	Use:   "url <uri> [key=value...]",
	Short: "Print the external URL of a file",
	Long:  "Print the external URL of a file. Extra key=value arguments are appended as query arguments.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		custom := url.Values{}
		for _, arg := range args[1:] {
			q, err := url.ParseQuery(arg)
			if err != nil {
				return fmt.Errorf("invalid argument %q: %w", arg, err)
			}
			for k, vs := range q {
				for _, v := range vs {
					custom.Add(k, v)
				}
			}
		}

		return withFilesystem(cmd, func(ctx context.Context, fsys *bucketfs.Filesystem) error {
			link, err := fsys.URL(ctx, args[0], custom)
			if err != nil {
				return err
			}
			fmt.Println(link)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(urlCmd)
}
