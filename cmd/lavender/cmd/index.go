package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/aweris/lavender"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect the destination index",
}

var indexListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List index entries",
	Long:  "List all entries of the destination index, optionally filtered by original path prefix.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndexList,
}

var indexLookupCmd = &cobra.Command{
	Use:   "lookup <path>...",
	Short: "Print the published path of original paths",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndexLookup,
}

func init() {
	indexCmd.AddCommand(indexListCmd, indexLookupCmd)
	rootCmd.AddCommand(indexCmd)
}

func openIndex() (*lavender.Index, error) {
	dest, err := destination()
	if err != nil {
		return nil, err
	}
	return lavender.LoadIndexNode(dest.Join(lavender.IndexPath(viper.GetString("index_name"))))
}

func runIndexList(cmd *cobra.Command, args []string) error {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	idx, err := openIndex()
	if err != nil {
		return err
	}

	count := 0
	for l := range idx.Labels() {
		if !strings.HasPrefix(l.OriginalPath, prefix) {
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", l.OriginalPath, l.PublishedPath, l.Digest)
		count++
	}

	if count == 0 {
		fmt.Println("(no entries)")
	}
	return nil
}

func runIndexLookup(cmd *cobra.Command, args []string) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}

	missing := 0
	for _, p := range args {
		l, ok, err := idx.Lookup(strings.TrimPrefix(p, "/"))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "%s: not in index\n", p)
			missing++
			continue
		}
		fmt.Println(l.PublishedPath)
	}
	if missing > 0 {
		return fmt.Errorf("%w: %d of %d paths", lavender.ErrNotFound, missing, len(args))
	}
	return nil
}
