package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grokify/bucketfs"
	"github.com/grokify/bucketfs/objectstore"
)

var waitCmd = &cobra.Command{
	Use:   "wait <uri>",
	Short: "Wait until an object is visible",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attempts, _ := cmd.Flags().GetInt("attempts")
		interval, _ := cmd.Flags().GetDuration("interval")
		policy := objectstore.PollPolicy{MaxAttempts: attempts, Interval: interval}

		return withFilesystem(cmd, func(ctx context.Context, fsys *bucketfs.Filesystem) error {
			if !fsys.WaitUntilExists(ctx, args[0], policy) {
				return fmt.Errorf("%s: not visible after %s", args[0], policy.Budget())
			}
			fmt.Println("ok")
			return nil
		})
	},
}

func init() {
	waitCmd.Flags().Int("attempts", objectstore.DefaultPollAttempts, "number of existence checks")
	waitCmd.Flags().Duration("interval", time.Second, "delay between checks")
	rootCmd.AddCommand(waitCmd)
}
