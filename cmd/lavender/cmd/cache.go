package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aweris/lavender"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage digest caches",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [module...]",
	Short: "Delete digest caches",
	Long:  "Delete the digest cache of the named modules, or of all modules when none are named.",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	dir := cacheDir()

	var files []string
	if len(args) == 0 {
		matches, err := filepath.Glob(filepath.Join(dir, "*.cache"))
		if err != nil {
			return err
		}
		files = matches
	}
	for _, m := range args {
		files = append(files, filepath.Join(dir, lavender.CacheFileName(m, viper.GetString("digest"))))
	}

	removed := 0
	for _, f := range files {
		err := os.Remove(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		removed++
	}

	fmt.Fprintf(os.Stderr, "Removed %d cache files.\n", removed)
	return nil
}

func cacheDir() string {
	dir := viper.GetString("cache_dir")
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return dir
}
