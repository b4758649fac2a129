package source

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"iter"
	"maps"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"github.com/aweris/lavender/internal/remote"
)

const (
	whiteoutPrefix = ".wh."
	whiteoutOpaque = ".wh..wh..opq"
)

// ImageModule publishes the files of an OCI image, as seen after applying
// all layers. The revision of a file is the diff id of the layer that
// provides it.
type ImageModule struct {
	base
	img v1.Image

	once    sync.Once
	entries map[string]imageEntry
	err     error
}

type imageEntry struct {
	files  *layerFiles
	name   string // entry name inside the layer tar
	diffID string
}

// layerFiles holds the contents of the entries a layer provides to the
// resolved tree. They are read in one pass over the layer, on first use.
type layerFiles struct {
	layer v1.Layer
	names map[string]bool

	once  sync.Once
	files map[string][]byte
	err   error
}

func (l *layerFiles) read(name string) ([]byte, error) {
	l.once.Do(func() {
		l.files = make(map[string][]byte, len(l.names))
		l.err = walkLayer(l.layer, func(hdr *tar.Header, r io.Reader) (bool, error) {
			if _, done := l.files[hdr.Name]; done || !l.names[hdr.Name] {
				return true, nil
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return false, err
			}
			l.files[hdr.Name] = data
			return len(l.files) < len(l.names), nil
		})
	})
	if l.err != nil {
		return nil, l.err
	}
	data, ok := l.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
	}
	return slices.Clone(data), nil
}

// NewImageModule returns a module over img.
func NewImageModule(name string, img v1.Image, opts ...Option) *ImageModule {
	return &ImageModule{base: newBase(name, opts), img: img}
}

// OpenImageModule loads an image from a local tarball when ref names an
// existing file, otherwise from a registry.
func OpenImageModule(ctx context.Context, moduleName, ref string, fetch []remote.Option, opts ...Option) (*ImageModule, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		img, err := tarball.ImageFromPath(ref, nil)
		if err != nil {
			return nil, fmt.Errorf("module %s: load image %s: %w", moduleName, ref, err)
		}
		return NewImageModule(moduleName, img, opts...), nil
	}

	img, err := remote.Image(ctx, ref, fetch...)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", moduleName, err)
	}
	return NewImageModule(moduleName, img, opts...), nil
}

func (m *ImageModule) Resources() iter.Seq2[Resource, error] {
	return func(yield func(Resource, error) bool) {
		entries, err := m.resolve()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, p := range slices.Sorted(maps.Keys(entries)) {
			rel, ok := m.rootRel(p)
			if !ok || !m.accept(rel) {
				continue
			}
			if !yield(m.newResource(rel, entries[p]), nil) {
				return
			}
		}
	}
}

func (m *ImageModule) Probe(original string) (Resource, bool, error) {
	rel, ok := m.relPath(original)
	if !ok || !m.accept(rel) {
		return nil, false, nil
	}
	entries, err := m.resolve()
	if err != nil {
		return nil, false, err
	}
	e, ok := entries[m.sourcePath(rel)]
	if !ok {
		return nil, false, nil
	}
	return m.newResource(rel, e), true, nil
}

func (m *ImageModule) newResource(rel string, e imageEntry) Resource {
	return &resource{
		path:     m.originalPath(rel),
		revision: e.diffID,
		read: func() ([]byte, error) {
			return e.files.read(e.name)
		},
	}
}

// resolve walks the layers from the top down. The first layer providing a
// path wins; whiteouts hide paths of the layers below them.
func (m *ImageModule) resolve() (map[string]imageEntry, error) {
	m.once.Do(func() {
		m.entries, m.err = resolveLayers(m.img)
		if m.err != nil {
			m.err = fmt.Errorf("module %s: %w", m.name, m.err)
		}
	})
	return m.entries, m.err
}

func resolveLayers(img v1.Image) (map[string]imageEntry, error) {
	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("layers: %w", err)
	}

	entries := make(map[string]imageEntry)
	var hidden, opaque []string
	for i := len(layers) - 1; i >= 0; i-- {
		layer := layers[i]
		diffID, err := layer.DiffID()
		if err != nil {
			return nil, fmt.Errorf("diff id: %w", err)
		}

		files := &layerFiles{layer: layer, names: make(map[string]bool)}
		var layerHidden, layerOpaque []string
		err = walkLayer(layer, func(hdr *tar.Header, _ io.Reader) (bool, error) {
			p := cleanTarPath(hdr.Name)
			if p == "" {
				return true, nil
			}
			dir, file := path.Split(p)
			dir = strings.TrimSuffix(dir, "/")
			switch {
			case file == whiteoutOpaque:
				layerOpaque = append(layerOpaque, dir)
				return true, nil
			case strings.HasPrefix(file, whiteoutPrefix):
				layerHidden = append(layerHidden, path.Join(dir, strings.TrimPrefix(file, whiteoutPrefix)))
				return true, nil
			}
			if hdr.Typeflag != tar.TypeReg {
				return true, nil
			}
			if _, seen := entries[p]; seen || shadowed(p, hidden, opaque) {
				return true, nil
			}
			entries[p] = imageEntry{files: files, name: hdr.Name, diffID: diffID.String()}
			files.names[hdr.Name] = true
			return true, nil
		})
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", diffID, err)
		}
		hidden = append(hidden, layerHidden...)
		opaque = append(opaque, layerOpaque...)
	}
	return entries, nil
}

func shadowed(p string, hidden, opaque []string) bool {
	for _, h := range hidden {
		if p == h || strings.HasPrefix(p, h+"/") {
			return true
		}
	}
	for _, d := range opaque {
		if d == "" || strings.HasPrefix(p, d+"/") {
			return true
		}
	}
	return false
}

func cleanTarPath(name string) string {
	p := path.Clean("/" + name)
	return strings.TrimPrefix(p, "/")
}

// walkLayer calls fn for every tar entry of layer until fn returns false.
func walkLayer(layer v1.Layer, fn func(*tar.Header, io.Reader) (bool, error)) (err error) {
	rc, err := layer.Uncompressed()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		more, err := fn(hdr, tr)
		if err != nil || !more {
			return err
		}
	}
}
