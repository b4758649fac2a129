package lavender

import (
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults.
const (
	DefaultIndexName   = "lavender"
	DefaultHashLength  = 8
	DefaultLockWait    = 5 * time.Minute
	DefaultConcurrency = 4
)

// Options configures Publish and Verify.
type Options struct {
	CacheDir    string
	Owner       string
	LockWait    time.Duration
	NoLock      bool
	IndexName   string
	MergeIndex  bool
	HashLength  int
	Digest      string
	Concurrency int
	Precompress []string
	Logger      logrus.FieldLogger
	LockOptions []LockOption
}

// Option is a functional option for Publish and Verify.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		CacheDir:    DefaultCacheDir(),
		Owner:       DefaultOwner(),
		LockWait:    DefaultLockWait,
		IndexName:   DefaultIndexName,
		HashLength:  DefaultHashLength,
		Digest:      DigestMD5,
		Concurrency: DefaultConcurrency,
		Logger:      discardLogger(),
	}
}

func newOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCacheDir sets the directory holding the per-module digest caches.
func WithCacheDir(dir string) Option {
	return func(o *Options) { o.CacheDir = dir }
}

// WithOwner sets the token written into the lock marker.
func WithOwner(owner string) Option {
	return func(o *Options) {
		if owner != "" {
			o.Owner = owner
		}
	}
}

// WithLockWait bounds how long Publish waits for the destination lock.
func WithLockWait(d time.Duration) Option {
	return func(o *Options) { o.LockWait = max(d, 0) }
}

// WithoutLock skips the destination lock. Only safe for a destination with
// a single writer.
func WithoutLock() Option {
	return func(o *Options) { o.NoLock = true }
}

// WithIndexName selects the index file below the destination.
func WithIndexName(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.IndexName = name
		}
	}
}

// WithMergeIndex keeps the entries of the previous index instead of
// replacing it, for publishing a subset of modules.
func WithMergeIndex(merge bool) Option {
	return func(o *Options) { o.MergeIndex = merge }
}

// WithHashLength sets how many hex digits of the digest go into a
// published file name. Zero or less embeds the full digest.
func WithHashLength(n int) Option {
	return func(o *Options) { o.HashLength = n }
}

// WithDigest selects the digest algorithm ("md5" or "blake3").
func WithDigest(algo string) Option {
	return func(o *Options) {
		if algo != "" {
			o.Digest = algo
		}
	}
}

// WithConcurrency sets the number of resources hashed in parallel.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithPrecompress writes precompressed siblings ("gzip", "zstd") next to
// every published file.
func WithPrecompress(encodings ...string) Option {
	return func(o *Options) { o.Precompress = encodings }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Options) {
		if log != nil {
			o.Logger = log
		}
	}
}

// WithLockOptions passes options through to AcquireLock.
func WithLockOptions(opts ...LockOption) Option {
	return func(o *Options) { o.LockOptions = append(o.LockOptions, opts...) }
}

// IndexPath returns the location of a named index below a destination root.
func IndexPath(name string) string {
	return "indexes/" + name + ".idx"
}

// DefaultOwner returns "user@host" for the current process.
func DefaultOwner() string {
	name := "unknown"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return name + "@" + host
}

// DefaultCacheDir returns the digest cache directory used when none is configured.
func DefaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "lavender")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "lavender")
	}
	return ".lavender"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
