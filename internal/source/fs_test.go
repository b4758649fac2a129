package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, m Module) map[string]Resource {
	t.Helper()
	out := make(map[string]Resource)
	for r, err := range m.Resources() {
		require.NoError(t, err)
		out[r.Path()] = r
	}
	return out
}

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for p, content := range files {
		require.NoError(t, afero.WriteFile(fsys, "/site/"+p, []byte(content), 0o644))
	}
	return fsys
}

func TestFSModuleResources(t *testing.T) {
	t.Parallel()

	fsys := memFS(t, map[string]string{
		"css/app.css": "body{}",
		"js/app.js":   "1",
		"index.html":  "<html>",
	})
	m := NewFSModule("site", fsys, "/site")
	assert.Equal(t, "site", m.Name())
	assert.True(t, m.Lavendelize())

	got := collect(t, m)
	require.Len(t, got, 3)

	r := got["css/app.css"]
	require.NotNil(t, r)
	data, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))
	assert.True(t, strings.HasSuffix(r.RevisionID(), "-6"), r.RevisionID())
}

func TestFSModuleRevisionTracksContent(t *testing.T) {
	t.Parallel()

	fsys := memFS(t, map[string]string{"a.js": "1"})
	m := NewFSModule("site", fsys, "/site")

	before := collect(t, m)["a.js"].RevisionID()
	assert.Equal(t, before, collect(t, m)["a.js"].RevisionID(), "stable without edits")

	require.NoError(t, afero.WriteFile(fsys, "/site/a.js", []byte("12"), 0o644))
	assert.NotEqual(t, before, collect(t, m)["a.js"].RevisionID())
}

func TestFSModuleRevisionSameSizeEdit(t *testing.T) {
	t.Parallel()

	fsys := memFS(t, map[string]string{"a.js": "1"})
	m := NewFSModule("site", fsys, "/site")
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, fsys.Chtimes("/site/a.js", stamp, stamp))
	before := collect(t, m)["a.js"].RevisionID()

	require.NoError(t, afero.WriteFile(fsys, "/site/a.js", []byte("2"), 0o644))
	require.NoError(t, fsys.Chtimes("/site/a.js", stamp, stamp))
	assert.Equal(t, before, collect(t, m)["a.js"].RevisionID(), "same size and mtime keep the revision")

	later := stamp.Add(time.Second)
	require.NoError(t, fsys.Chtimes("/site/a.js", later, later))
	assert.NotEqual(t, before, collect(t, m)["a.js"].RevisionID(), "a newer mtime changes it")
}

func TestFSModuleRootPrefixFilter(t *testing.T) {
	t.Parallel()

	fsys := memFS(t, map[string]string{
		"public/app.js":     "x",
		"public/app.js.map": "{}",
		"private/secret":    "s",
	})
	filter, err := NewFilter(nil, []string{"**.map"})
	require.NoError(t, err)
	m := NewFSModule("site", fsys, "/site", WithRoot("/public/"), WithPrefix("static/"), WithFilter(filter))

	got := collect(t, m)
	require.Len(t, got, 1)
	assert.Contains(t, got, "static/app.js")

	r, ok, err := m.Probe("static/app.js")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "static/app.js", r.Path())

	for _, p := range []string{"app.js", "static/app.js.map", "static/missing.js", "static/", "private/secret"} {
		_, ok, err := m.Probe(p)
		require.NoError(t, err)
		assert.False(t, ok, p)
	}
}

func TestFSModuleStopsEarly(t *testing.T) {
	t.Parallel()

	fsys := memFS(t, map[string]string{"a": "1", "b": "2", "c": "3"})
	m := NewFSModule("site", fsys, "/site")

	n := 0
	for _, err := range m.Resources() {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestFSModuleMissingDir(t *testing.T) {
	t.Parallel()

	m := NewFSModule("site", afero.NewMemMapFs(), "/nope")
	for _, err := range m.Resources() {
		assert.Error(t, err)
	}

	_, err := OpenFSModule("site", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte("a"), 0o644))

	off := false
	m, err := New(context.Background(), Config{Name: "site", Type: TypeFS, Path: dir, Lavendelize: &off})
	require.NoError(t, err)
	assert.Equal(t, "site", m.Name())
	l, ok := m.(Lavendelizer)
	require.True(t, ok)
	assert.False(t, l.Lavendelize())
	assert.Len(t, collect(t, m), 1)

	_, err = New(context.Background(), Config{Type: TypeFS, Path: dir})
	assert.Error(t, err, "name is required")

	_, err = New(context.Background(), Config{Name: "x", Type: "svn", Path: dir})
	assert.ErrorContains(t, err, "unknown type")

	_, err = New(context.Background(), Config{Name: "x", Path: dir, Includes: []string{"[a-"}})
	assert.Error(t, err)
}
