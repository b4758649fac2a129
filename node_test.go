package lavender

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeReadWrite(t *testing.T) {
	t.Parallel()

	for name, root := range map[string]Node{
		"mem":   MemNode(),
		"local": LocalNode(t.TempDir()),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			n := root.Join("css", "app.css")
			assert.Equal(t, "/css/app.css", n.Path())
			assert.Equal(t, "/css", n.Parent().Path())

			exists, err := n.Exists()
			require.NoError(t, err)
			assert.False(t, exists)

			_, err = n.ReadAll()
			assert.ErrorIs(t, err, fs.ErrNotExist)

			require.NoError(t, n.WriteString("a\r\nb\nc"))
			data, err := n.ReadAll()
			require.NoError(t, err)
			assert.Equal(t, "a\r\nb\nc", string(data))

			lines, err := n.ReadLines()
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, lines)

			require.NoError(t, n.DeleteFile())
			assert.ErrorIs(t, n.DeleteFile(), fs.ErrNotExist)
		})
	}
}

func TestNodeMkfileExclusive(t *testing.T) {
	t.Parallel()

	for name, root := range map[string]Node{
		"mem":   MemNode(),
		"local": LocalNode(t.TempDir()),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			n := root.Join("tmp", "marker")
			require.NoError(t, n.Mkfile())
			assert.ErrorIs(t, n.Mkfile(), fs.ErrExist)
		})
	}
}

func TestNodeMove(t *testing.T) {
	t.Parallel()

	root := MemNode()
	src := root.Join("a.txt")
	dst := root.Join("sub", "b.txt")
	require.NoError(t, src.WriteString("new"))
	require.NoError(t, dst.WriteString("old"))

	require.NoError(t, src.Move(dst))
	data, err := dst.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	exists, err := src.Exists()
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Error(t, root.Join("x").Move(MemNode().Join("x")), "moves stay inside one tree")
}

func TestWriteAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	root := LocalNode(dir)
	n := root.Join("js", "app.js")

	require.NoError(t, writeAtomic(n, []byte("v1")))
	require.NoError(t, writeAtomic(n, []byte("v2")))

	data, err := os.ReadFile(filepath.Join(dir, "js", "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "js"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files left behind")
	assert.Equal(t, filepath.Join(dir, "js", "app.js"), n.String())
}

func TestNewNodeOverAnyFs(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/docroot/index.html", []byte("<html>"), 0o644))

	root := NewNode(fsys, "docroot")
	data, err := root.Join("index.html").ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "<html>", string(data))
}
