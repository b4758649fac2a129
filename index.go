package lavender

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"maps"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aweris/lavender/internal/properties"
)

// timestampLayout matches the comment line written by the original
// properties writers so existing files keep their shape.
const timestampLayout = "Mon Jan 02 15:04:05 MST 2006"

// Index maps original resource paths to published paths and digests.
//
// Values are kept in their persisted form ("publishedPath:hexDigest"), so
// two indexes are equal exactly when their files would hold the same entries.
type Index struct {
	mu      sync.RWMutex
	entries map[string]string
	dirty   atomic.Bool
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]string)}
}

// Add records label. It returns false without error when the identical
// mapping is already present, which happens when two module scans discover
// the same shared resource. A different mapping for the same original path
// fails with a *ConflictError and leaves the index unchanged.
func (i *Index) Add(label Label) (bool, error) {
	if err := label.Validate(); err != nil {
		return false, err
	}
	next := label.value()

	i.mu.Lock()
	defer i.mu.Unlock()

	if prev, ok := i.entries[label.OriginalPath]; ok {
		if prev != next {
			return false, &ConflictError{OriginalPath: label.OriginalPath, Existing: prev, Incoming: next}
		}
		return false, nil
	}
	i.entries[label.OriginalPath] = next
	i.dirty.Store(true)
	return true, nil
}

// Lookup returns the label for originalPath.
func (i *Index) Lookup(originalPath string) (Label, bool, error) {
	i.mu.RLock()
	value, ok := i.entries[originalPath]
	i.mu.RUnlock()
	if !ok {
		return Label{}, false, nil
	}
	label, err := parseValue(originalPath, value)
	if err != nil {
		return Label{}, false, err
	}
	return label, true, nil
}

// Labels yields every entry once, ordered by original path. The sequence
// iterates over a snapshot taken when iteration starts, so the index may be
// modified while ranging over it.
func (i *Index) Labels() iter.Seq[Label] {
	return func(yield func(Label) bool) {
		i.mu.RLock()
		snapshot := maps.Clone(i.entries)
		i.mu.RUnlock()

		for _, key := range slices.Sorted(maps.Keys(snapshot)) {
			label, err := parseValue(key, snapshot[key])
			if err != nil {
				// entries are validated on Add and on load
				continue
			}
			if !yield(label) {
				return
			}
		}
	}
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Dirty reports whether entries were added since the index was created or loaded.
func (i *Index) Dirty() bool { return i.dirty.Load() }

// Equal compares the full contents of two indexes.
func (i *Index) Equal(other *Index) bool {
	if i == other {
		return true
	}
	if other == nil {
		return false
	}
	// one lock at a time, so a.Equal(b) and b.Equal(a) cannot deadlock
	other.mu.RLock()
	theirs := maps.Clone(other.entries)
	other.mu.RUnlock()

	i.mu.RLock()
	defer i.mu.RUnlock()
	return maps.Equal(i.entries, theirs)
}

// Save writes the index in properties format. w is not closed.
func (i *Index) Save(w io.Writer) error {
	i.mu.RLock()
	pairs := make([]properties.Pair, 0, len(i.entries))
	for _, key := range slices.Sorted(maps.Keys(i.entries)) {
		pairs = append(pairs, properties.Pair{Key: key, Value: i.entries[key]})
	}
	i.mu.RUnlock()

	if err := properties.Write(w, time.Now().Format(timestampLayout), pairs); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// SaveFile writes the index to a local file.
func (i *Index) SaveFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return i.Save(f)
}

// SaveNode writes the index to a destination node. The content goes to a
// temporary sibling first and is then moved over node.
func (i *Index) SaveNode(node Node) error {
	var buf bytes.Buffer
	if err := i.Save(&buf); err != nil {
		return err
	}
	if err := writeAtomic(node, buf.Bytes()); err != nil {
		return fmt.Errorf("save index %s: %w", node.Path(), err)
	}
	i.dirty.Store(false)
	return nil
}

// LoadIndex reads an index in properties format. Every value is validated;
// a value that is not "publishedPath:hexDigest" fails with ErrCorrupt.
func LoadIndex(r io.Reader) (*Index, error) {
	pairs, err := properties.Read(r)
	if err != nil {
		if errors.Is(err, properties.ErrMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	idx := NewIndex()
	for _, p := range pairs {
		if _, err := parseValue(p.Key, p.Value); err != nil {
			return nil, err
		}
		idx.entries[p.Key] = p.Value
	}
	return idx, nil
}

// LoadIndexFile reads an index from a local file.
func LoadIndexFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	return LoadIndex(f)
}

// LoadIndexNode reads the index stored at node. A missing node yields an
// empty index.
func LoadIndexNode(node Node) (*Index, error) {
	data, err := node.ReadAll()
	if errors.Is(err, fs.ErrNotExist) {
		return NewIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", node.Path(), err)
	}
	idx, err := LoadIndex(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", node.Path(), err)
	}
	return idx, nil
}
