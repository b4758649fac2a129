package source

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
)

// FSModule publishes the regular files of a directory tree.
//
// The revision of a file is derived from its modification time and size,
// which is enough to notice edits without reading content. An edit that
// keeps the size and lands within the file system's timestamp granularity
// keeps the old revision, so its cached digest is reused; touch the file
// or clear the digest cache after such an edit.
type FSModule struct {
	base
	fs  afero.Fs
	dir string
}

// NewFSModule returns a module over dir inside fsys.
func NewFSModule(name string, fsys afero.Fs, dir string, opts ...Option) *FSModule {
	return &FSModule{base: newBase(name, opts), fs: fsys, dir: dir}
}

// OpenFSModule returns a module over a local directory, which must exist.
func OpenFSModule(name, dir string, opts ...Option) (*FSModule, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("module %s: %s is not a directory", name, dir)
	}
	return NewFSModule(name, afero.NewOsFs(), dir, opts...), nil
}

var errStop = errors.New("stop")

func (m *FSModule) Resources() iter.Seq2[Resource, error] {
	return func(yield func(Resource, error) bool) {
		walkRoot := filepath.Join(m.dir, filepath.FromSlash(m.root))
		err := afero.Walk(m.fs, walkRoot, func(p string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(walkRoot, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if !m.accept(rel) {
				return nil
			}
			if !yield(m.newResource(rel, p, info), nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(nil, fmt.Errorf("module %s: %w", m.name, err))
		}
	}
}

func (m *FSModule) Probe(original string) (Resource, bool, error) {
	rel, ok := m.relPath(original)
	if !ok || !m.accept(rel) {
		return nil, false, nil
	}
	p := filepath.Join(m.dir, filepath.FromSlash(m.sourcePath(rel)))
	info, err := m.fs.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !info.Mode().IsRegular() {
		return nil, false, nil
	}
	return m.newResource(rel, p, info), true, nil
}

func (m *FSModule) newResource(rel, p string, info fs.FileInfo) Resource {
	return &resource{
		path:     m.originalPath(rel),
		revision: strconv.FormatInt(info.ModTime().UnixNano(), 36) + "-" + strconv.FormatInt(info.Size(), 10),
		read: func() ([]byte, error) {
			return afero.ReadFile(m.fs, p)
		},
	}
}
