package lavender

import (
	"bytes"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func label(original string, content string) Label {
	d := MD5([]byte(content))
	return NewLabel(original, Lavendelize(original, d, DefaultHashLength), d)
}

func TestIndexAdd(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	assert.False(t, idx.Dirty())

	added, err := idx.Add(label("css/app.css", "body{}"))
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, idx.Dirty())

	added, err = idx.Add(label("css/app.css", "body{}"))
	require.NoError(t, err)
	assert.False(t, added, "identical label is a no-op")
	assert.Equal(t, 1, idx.Len())
}

func TestIndexConflictLeavesIndexUnchanged(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	first := label("js/app.js", "v1")
	_, err := idx.Add(first)
	require.NoError(t, err)

	_, err = idx.Add(label("js/app.js", "v2"))
	require.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "js/app.js", conflict.OriginalPath)
	assert.Equal(t, first.value(), conflict.Existing)

	got, ok, err := idx.Lookup("js/app.js")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(first))
	assert.Equal(t, 1, idx.Len())
}

func TestIndexAddValidation(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	d := MD5([]byte("x"))
	for _, l := range []Label{
		NewLabel("", "a.css", d),
		NewLabel("/a.css", "a.css", d),
		NewLabel("a.css", "a.css/", d),
		NewLabel("a.css", "a:b.css", d),
		NewLabel("img/\xff.png", "img/\xff-1.png", d),
	} {
		_, err := idx.Add(l)
		assert.ErrorIs(t, err, ErrValidation, l.String())
	}
	assert.Equal(t, 0, idx.Len())
	assert.False(t, idx.Dirty())
}

func TestIndexLookupMissing(t *testing.T) {
	t.Parallel()

	_, ok, err := NewIndex().Lookup("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexSaveLoad(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	for _, l := range []Label{
		label("css/app.css", "body{}"),
		label("img/logo one.png", "png"),
		label("i18n/messages_ü.js", "{}"),
		label("a=b#c!d.txt", "odd"),
	} {
		_, err := idx.Add(l)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "#"), "timestamp header")
	assert.Contains(t, out, `css/app.css=css/app-`)
	assert.Contains(t, out, `img/logo\ one.png=`)
	assert.Contains(t, out, `messages_\u00FC.js`)
	assert.Contains(t, out, `a\=b\#c\!d.txt=`)

	loaded, err := LoadIndex(&buf)
	require.NoError(t, err)
	assert.True(t, idx.Equal(loaded))
	assert.False(t, loaded.Dirty())
}

func TestIndexSaveSorted(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	for _, p := range []string{"b.js", "a.js", "c/d.js"} {
		_, err := idx.Add(label(p, p))
		require.NoError(t, err)
	}
	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	var keys []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n")[1:] {
		k, _, _ := strings.Cut(line, "=")
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"a.js", "b.js", "c/d.js"}, keys)
}

func TestLoadIndexCorrupt(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"no delimiter": "a.css=a-1.css\n",
		"bad hex":      "a.css=a-1.css\\:zz\n",
		"bad escape":   "a.css=a\\u12\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadIndex(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestLoadIndexAcceptsUnescapedDelimiter(t *testing.T) {
	t.Parallel()

	idx, err := LoadIndex(strings.NewReader("# comment\na.css = a-0cc175b9.css:0cc175b9c0f1b6a831c399e269772661\n"))
	require.NoError(t, err)
	l, ok, err := idx.Lookup("a.css")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a-0cc175b9.css", l.PublishedPath)
}

func TestIndexLabelsSnapshot(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	for _, p := range []string{"b.js", "a.js"} {
		_, err := idx.Add(label(p, p))
		require.NoError(t, err)
	}

	var paths []string
	for l := range idx.Labels() {
		paths = append(paths, l.OriginalPath)
		// mutating during iteration must not affect the snapshot
		_, err := idx.Add(label("z"+l.OriginalPath, "x"))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a.js", "b.js"}, paths)
	assert.Equal(t, 4, idx.Len())
}

func TestIndexConcurrentAdd(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := idx.Add(label("shared.js", "same"))
			assert.NoError(t, err)
			_, err = idx.Add(label(string(rune('a'+i))+".js", "x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 17, idx.Len())
}

func TestIndexConcurrentEqual(t *testing.T) {
	t.Parallel()

	a, b := NewIndex(), NewIndex()
	var wg sync.WaitGroup
	for i := range 200 {
		name := string(rune('a'+i%26)) + ".js"
		wg.Add(4)
		go func() { defer wg.Done(); a.Equal(b) }()
		go func() { defer wg.Done(); b.Equal(a) }()
		go func() { defer wg.Done(); _, _ = a.Add(label(name, "x")) }()
		go func() { defer wg.Done(); _, _ = b.Add(label(name, "x")) }()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Equal and Add did not finish")
	}
	assert.True(t, a.Equal(b))
}

func TestIndexFileAndNode(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	_, err := idx.Add(label("css/app.css", "body{}"))
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "webapp.idx")
	require.NoError(t, idx.SaveFile(file))
	fromFile, err := LoadIndexFile(file)
	require.NoError(t, err)
	assert.True(t, idx.Equal(fromFile))

	root := MemNode()
	node := root.Join(IndexPath("webapp"))
	empty, err := LoadIndexNode(node)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	require.NoError(t, idx.SaveNode(node))
	assert.False(t, idx.Dirty())
	fromNode, err := LoadIndexNode(node)
	require.NoError(t, err)
	assert.True(t, idx.Equal(fromNode))

	labels := slices.Collect(fromNode.Labels())
	require.Len(t, labels, 1)
	assert.Equal(t, "css/app-", labels[0].PublishedPath[:len("css/app-")])
}
