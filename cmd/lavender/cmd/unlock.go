package cmd

import (
	"fmt"
	"os"

	"github.com/aweris/lavender"
	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Remove a stale destination lock",
	Long:  "Remove the lock marker left behind by a publisher that did not exit cleanly.",
	Args:  cobra.NoArgs,
	RunE:  runUnlock,
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}

func runUnlock(cmd *cobra.Command, args []string) error {
	dest, err := destination()
	if err != nil {
		return err
	}

	owner, held, err := lavender.ReadLockOwner(dest)
	if err != nil {
		return err
	}
	if !held {
		fmt.Fprintln(os.Stderr, "Not locked.")
		return nil
	}

	if _, err := lavender.BreakLock(dest); err != nil {
		return fmt.Errorf("unlock failed: %w", err)
	}
	log.WithField("owner", owner).Warn("removed lock")
	return nil
}
