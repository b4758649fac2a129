package lavender

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "webapp.cache", CacheFileName("webapp", ""))
	assert.Equal(t, "webapp.cache", CacheFileName("webapp", DigestMD5))
	assert.Equal(t, "org_webapp_1.0.blake3.cache", CacheFileName("org/webapp:1.0", DigestBLAKE3))
}

func TestLoadOrCreateCacheMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := LoadOrCreateCache(dir, "webapp")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, filepath.Join(dir, "webapp.cache"), c.Path())

	_, err = os.Stat(c.Path())
	assert.ErrorIs(t, err, os.ErrNotExist, "loading does not create the file")
}

func TestCacheLookupRequiresRevision(t *testing.T) {
	t.Parallel()

	c := NewDigestCache(filepath.Join(t.TempDir(), "x.cache"))
	d := MD5([]byte("v1"))
	c.Add("a.js", "rev1", d)

	got, ok := c.Lookup("a.js", "rev1")
	require.True(t, ok)
	assert.Equal(t, d, got)

	_, ok = c.Lookup("a.js", "rev2")
	assert.False(t, ok)
	_, ok = c.Lookup("b.js", "rev1")
	assert.False(t, ok)

	c.Add("a.js", "rev2", MD5([]byte("v2")))
	assert.Equal(t, 1, c.Len(), "add replaces the entry for a path")
	_, ok = c.Lookup("a.js", "rev1")
	assert.False(t, ok)
}

func TestCacheSaveLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := LoadOrCreateCache(dir, "webapp")
	require.NoError(t, err)

	entries := map[string]string{
		"plain.js":           "1700000000-42",
		"with\ttab.css":      "rev\twith\ttabs",
		"with\nnewline.html": "rev\r\n",
		"100%.txt":           "%09literal",
		"space name.png":     "",
	}
	for p, rev := range entries {
		c.Add(p, rev, MD5([]byte(p)))
	}
	require.NoError(t, c.Save())

	loaded, err := LoadOrCreateCache(dir, "webapp")
	require.NoError(t, err)
	assert.Equal(t, len(entries), loaded.Len())
	for p, rev := range entries {
		got, ok := loaded.Lookup(p, rev)
		require.True(t, ok, "%q", p)
		assert.Equal(t, MD5([]byte(p)), got)
	}

	data, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	assert.Len(t, lines, len(entries), "one record per line")
	for _, line := range lines {
		assert.Len(t, strings.Split(line, "\t"), 3)
	}
	assert.Contains(t, string(data), "100%25.txt\t%2509literal\t")
}

func TestCacheSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := LoadOrCreateCache(dir, "webapp")
	require.NoError(t, err)
	c.Add("a.js", "r", MD5([]byte("a")))
	require.NoError(t, c.Save())
	c.Add("b.js", "r", MD5([]byte("b")))
	require.NoError(t, c.Save())

	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "webapp.cache", names[0].Name())
}

func TestCacheSaveCreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "cache")
	c, err := LoadOrCreateCache(dir, "webapp")
	require.NoError(t, err)
	c.Add("a.js", "r", MD5([]byte("a")))
	require.NoError(t, c.Save())
	assert.FileExists(t, filepath.Join(dir, "webapp.cache"))
}

func TestLoadCacheCorrupt(t *testing.T) {
	t.Parallel()

	good := "a.js\tr1\t" + MD5([]byte("a")).Hex()
	tests := map[string]string{
		"two fields":   "a.js\t" + MD5([]byte("a")).Hex(),
		"four fields":  "a.js\tr\tx\t" + MD5([]byte("a")).Hex(),
		"bad digest":   "a.js\tr1\tnothex",
		"empty digest": "a.js\tr1\t",
		"bad escape":   "a%zz.js\tr1\t" + MD5([]byte("a")).Hex(),
	}
	for name, bad := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			content := good + "\n" + bad + "\n"
			require.NoError(t, os.WriteFile(filepath.Join(dir, "webapp.cache"), []byte(content), 0o644))

			_, err := LoadOrCreateCache(dir, "webapp")
			require.ErrorIs(t, err, ErrCorrupt)
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestLoadCacheSkipsBlankLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "\na.js\tr1\t" + MD5([]byte("a")).Hex() + "\n\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "webapp.cache"), []byte(content), 0o644))

	c, err := LoadOrCreateCache(dir, "webapp")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestCachePrune(t *testing.T) {
	t.Parallel()

	c := NewDigestCache(filepath.Join(t.TempDir(), "x.cache"))
	for _, p := range []string{"a", "b", "c"} {
		c.Add(p, "r", MD5([]byte(p)))
	}
	c.Remove("c")
	n := c.Prune(func(p string) bool { return p == "a" })
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, c.Len())
	_, ok := c.Lookup("a", "r")
	assert.True(t, ok)
}

func TestCacheAlgorithmsAreSeparate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	md5Cache, err := LoadOrCreateCache(dir, "webapp")
	require.NoError(t, err)
	md5Cache.Add("a", "r", MD5([]byte("a")))
	require.NoError(t, md5Cache.Save())

	b3Cache, err := LoadOrCreateCache(dir, "webapp", WithCacheAlgorithm(DigestBLAKE3))
	require.NoError(t, err)
	assert.Equal(t, 0, b3Cache.Len())
	assert.Equal(t, filepath.Join(dir, "webapp.blake3.cache"), b3Cache.Path())
}
