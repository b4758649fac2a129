package lavender

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/renameio"
)

// Cache file record layout: encode(path) SEP encode(revision) SEP hex(digest) LF.
const (
	cacheSep = "\t"
	cacheLF  = "\n"
)

var cacheEscaper = strings.NewReplacer(
	"%", "%25",
	cacheSep, "%09",
	"\n", "%0A",
	"\r", "%0D",
)

type cacheEntry struct {
	revision string
	digest   Digest
}

// DigestCache remembers the digest computed for a resource path at a given
// content revision, so unchanged resources are not read and hashed again.
// It is an accelerator only: deleting the file forces a full rehash.
//
// A DigestCache is not safe for concurrent use.
type DigestCache struct {
	path    string
	entries map[string]cacheEntry
}

// CacheOption configures LoadOrCreateCache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	algorithm string
}

// WithCacheAlgorithm selects the cache file of a digest algorithm.
func WithCacheAlgorithm(algo string) CacheOption {
	return func(o *cacheOptions) { o.algorithm = algo }
}

// CacheFileName returns the file name used for a module's cache.
func CacheFileName(module, algo string) string {
	name := strings.ReplaceAll(module, "/", "_")
	name = strings.ReplaceAll(name, ":", "_")
	if algo != "" && algo != DigestMD5 {
		name += "." + algo
	}
	return name + ".cache"
}

// NewDigestCache returns an empty cache persisted at path.
func NewDigestCache(path string) *DigestCache {
	return &DigestCache{path: path, entries: make(map[string]cacheEntry)}
}

// LoadOrCreateCache loads the cache of module below cacheRoot. A missing
// file yields an empty cache. A file with any malformed line fails with
// ErrCorrupt; no entries are dropped silently.
func LoadOrCreateCache(cacheRoot, module string, opts ...CacheOption) (*DigestCache, error) {
	var o cacheOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := NewDigestCache(filepath.Join(expandPath(cacheRoot), CacheFileName(module, o.algorithm)))

	f, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Text()
		if line == "" {
			continue
		}
		p, rev, digest, err := parseCacheLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrCorrupt, c.path, lineNo, err)
		}
		c.Add(p, rev, digest)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cache %s: %w", c.path, err)
	}
	return c, nil
}

func parseCacheLine(line string) (string, string, Digest, error) {
	fields := strings.Split(line, cacheSep)
	if len(fields) != 3 {
		return "", "", nil, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	p, err := decodeCacheField(fields[0])
	if err != nil {
		return "", "", nil, err
	}
	rev, err := decodeCacheField(fields[1])
	if err != nil {
		return "", "", nil, err
	}
	digest, err := ParseDigest(fields[2])
	if err != nil {
		return "", "", nil, err
	}
	return p, rev, digest, nil
}

func encodeCacheField(s string) string {
	return cacheEscaper.Replace(s)
}

func decodeCacheField(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated escape in %q", s)
		}
		switch s[i+1 : i+3] {
		case "25":
			b.WriteByte('%')
		case "09":
			b.WriteByte('\t')
		case "0A":
			b.WriteByte('\n')
		case "0D":
			b.WriteByte('\r')
		default:
			return "", fmt.Errorf("invalid escape %q in %q", s[i:i+3], s)
		}
		i += 2
	}
	return b.String(), nil
}

// Path returns the cache file location.
func (c *DigestCache) Path() string { return c.path }

func (c *DigestCache) Len() int { return len(c.entries) }

// Lookup returns the cached digest only when both path and revision match.
func (c *DigestCache) Lookup(path, revision string) (Digest, bool) {
	e, ok := c.entries[path]
	if !ok || e.revision != revision {
		return nil, false
	}
	return e.digest, true
}

// Add records the digest of path at revision, replacing any previous entry
// for path.
func (c *DigestCache) Add(path, revision string, digest Digest) {
	c.entries[path] = cacheEntry{revision: revision, digest: append(Digest(nil), digest...)}
}

// Remove drops the entry for path.
func (c *DigestCache) Remove(path string) {
	delete(c.entries, path)
}

// Prune drops every entry whose path keep rejects and returns how many
// entries were removed.
func (c *DigestCache) Prune(keep func(path string) bool) int {
	n := 0
	for p := range c.entries {
		if !keep(p) {
			delete(c.entries, p)
			n++
		}
	}
	return n
}

// Save writes all entries to a temporary file next to the cache file and
// renames it into place. Concurrent writers each leave a complete file;
// the last rename wins.
func (c *DigestCache) Save() error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	t, err := renameio.TempFile(dir, c.path)
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	defer t.Cleanup()

	w := bufio.NewWriter(t)
	for _, p := range slices.Sorted(maps.Keys(c.entries)) {
		e := c.entries[p]
		if _, err := w.WriteString(encodeCacheField(p) + cacheSep + encodeCacheField(e.revision) + cacheSep + e.digest.Hex() + cacheLF); err != nil {
			return fmt.Errorf("write cache: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}
