package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aweris/lavender"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var publishCmd = &cobra.Command{
	Use:   "publish [[name=]dir...]",
	Short: "Publish modules to the destination",
	Long: `Publish the configured modules, plus one fs module per directory argument,
to the destination. Resources are hashed, written under content-hashed names
and recorded in the destination index.`,
	RunE: runPublish,
}

func init() {
	f := publishCmd.Flags()
	f.String("owner", "", "lock owner token (default: user@host)")
	f.Duration("lock-wait", 0, "maximum time to wait for the destination lock")
	f.Bool("no-lock", false, "do not lock the destination")
	f.Bool("merge", false, "keep existing index entries for paths this run does not publish")
	f.Int("hash-length", 0, "hex digits of the digest embedded in file names")
	f.Int("concurrency", 0, "resources hashed in parallel")
	f.StringSlice("precompress", nil, "write precompressed siblings: gzip, zstd")

	viper.BindPFlag("owner", f.Lookup("owner"))
	viper.BindPFlag("lock_wait", f.Lookup("lock-wait"))
	viper.BindPFlag("no_lock", f.Lookup("no-lock"))
	viper.BindPFlag("merge", f.Lookup("merge"))
	viper.BindPFlag("hash_length", f.Lookup("hash-length"))
	viper.BindPFlag("concurrency", f.Lookup("concurrency"))
	viper.BindPFlag("precompress", f.Lookup("precompress"))

	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dest, err := destination()
	if err != nil {
		return err
	}

	var cfgs []lavender.ModuleConfig
	if err := viper.UnmarshalKey("modules", &cfgs); err != nil {
		return fmt.Errorf("modules config: %w", err)
	}
	for _, arg := range args {
		cfgs = append(cfgs, moduleArg(arg))
	}
	if len(cfgs) == 0 {
		return fmt.Errorf("nothing to publish: pass directories or configure modules")
	}

	modules, err := lavender.OpenModules(ctx, cfgs)
	if err != nil {
		return err
	}

	opts := append(commonOptions(),
		lavender.WithOwner(viper.GetString("owner")),
		lavender.WithLockWait(viper.GetDuration("lock_wait")),
		lavender.WithMergeIndex(viper.GetBool("merge")),
		lavender.WithHashLength(viper.GetInt("hash_length")),
		lavender.WithPrecompress(viper.GetStringSlice("precompress")...),
	)
	if viper.GetBool("no_lock") {
		opts = append(opts, lavender.WithoutLock())
	}

	stats, err := lavender.Publish(ctx, dest, modules, opts...)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Done. %d resources in %d modules: %d published, %d unchanged, %d hashed, %d cache hits\n",
		stats.Resources, stats.Modules, stats.Published, stats.Unchanged, stats.Hashed, stats.CacheHits)
	return nil
}

// moduleArg turns "name=dir" or "dir" into an fs module config.
func moduleArg(arg string) lavender.ModuleConfig {
	name, dir, ok := strings.Cut(arg, "=")
	if !ok {
		dir = arg
		name = filepath.Base(filepath.Clean(arg))
	}
	return lavender.ModuleConfig{Name: name, Type: lavender.ModuleFS, Path: dir}
}
