package cmd

import (
	"fmt"
	"os"

	"github.com/aweris/lavender"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check published files against the index",
	Long:  "Re-read every file listed in the destination index and compare its digest.",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	dest, err := destination()
	if err != nil {
		return err
	}

	problems, err := lavender.Verify(cmd.Context(), dest, commonOptions()...)
	if err != nil {
		return err
	}
	for _, p := range problems {
		fmt.Println(p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d problems found", len(problems))
	}

	fmt.Fprintln(os.Stderr, "OK")
	return nil
}
