package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/aweris/lavender"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "lavender",
	Short: "Content-addressed static resource publisher",
	Long:  "Publish static resources under content-hashed names and maintain the index that maps original paths to them.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(logrus.DebugLevel)
		}
	},
	SilenceUsage: true,
}

var log = newLogger()

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/lavender/config.yaml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "digest cache directory (default: ~/.cache/lavender)")
	rootCmd.PersistentFlags().StringP("dest", "d", "", "destination directory")
	rootCmd.PersistentFlags().String("index-name", "", "index name below <dest>/indexes")
	rootCmd.PersistentFlags().String("digest", "", "digest algorithm: md5 or blake3")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")

	viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("dest", rootCmd.PersistentFlags().Lookup("dest"))
	viper.BindPFlag("index_name", rootCmd.PersistentFlags().Lookup("index-name"))
	viper.BindPFlag("digest", rootCmd.PersistentFlags().Lookup("digest"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LAVENDER")
	viper.AutomaticEnv()
	viper.SetDefault("cache_dir", lavender.DefaultCacheDir())
	viper.SetDefault("index_name", lavender.DefaultIndexName)
	viper.SetDefault("digest", lavender.DigestMD5)
	viper.SetDefault("lock_wait", lavender.DefaultLockWait)
	viper.SetDefault("hash_length", lavender.DefaultHashLength)
	viper.SetDefault("concurrency", lavender.DefaultConcurrency)

	if err := viper.ReadInConfig(); err == nil {
		log.WithField("config", viper.ConfigFileUsed()).Debug("loaded config")
	}
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.TimeOnly,
	})
	return l
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lavender")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "lavender")
	}
	return ".lavender"
}

func destination() (lavender.Node, error) {
	dir := viper.GetString("dest")
	if dir == "" {
		return nil, errNoDest
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "open", Path: dir, Err: errNotDir}
	}
	return lavender.LocalNode(dir), nil
}

// commonOptions are the options shared by every command touching a destination.
func commonOptions() []lavender.Option {
	return []lavender.Option{
		lavender.WithLogger(log),
		lavender.WithCacheDir(viper.GetString("cache_dir")),
		lavender.WithIndexName(viper.GetString("index_name")),
		lavender.WithDigest(viper.GetString("digest")),
		lavender.WithConcurrency(viper.GetInt("concurrency")),
	}
}
