package lavender

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// Node is an addressable file in a destination tree. Destinations are only
// reached through nodes, so the same publish logic works for local disks and
// any filesystem-like transport that afero can represent.
type Node interface {
	// Path is the slash separated path of the node inside its tree.
	Path() string
	Join(names ...string) Node
	Parent() Node

	Exists() (bool, error)
	// Mkfile atomically creates an empty file. It fails with an error
	// matching fs.ErrExist when the node already exists.
	Mkfile() error

	ReadAll() ([]byte, error)
	ReadLines() ([]string, error)
	WriteString(s string) error
	WriteBytes(data []byte) error
	DeleteFile() error
	// Move renames the node to dest, replacing dest if it exists.
	Move(dest Node) error

	String() string
}

type fsNode struct {
	fs   afero.Fs
	path string
}

// NewNode returns the node at p inside fsys.
func NewNode(fsys afero.Fs, p string) Node {
	return &fsNode{fs: fsys, path: path.Join("/", p)}
}

// LocalNode returns the root node of a directory on the local disk.
func LocalNode(dir string) Node {
	return NewNode(afero.NewBasePathFs(afero.NewOsFs(), dir), "/")
}

// MemNode returns the root of a fresh in-memory tree.
func MemNode() Node {
	return NewNode(afero.NewMemMapFs(), "/")
}

func (n *fsNode) Path() string { return n.path }

func (n *fsNode) Join(names ...string) Node {
	return &fsNode{fs: n.fs, path: path.Join(append([]string{n.path}, names...)...)}
}

func (n *fsNode) Parent() Node {
	return &fsNode{fs: n.fs, path: path.Dir(n.path)}
}

func (n *fsNode) Exists() (bool, error) {
	return afero.Exists(n.fs, n.path)
}

func (n *fsNode) Mkfile() error {
	if err := n.mkdirParent(); err != nil {
		return err
	}
	f, err := n.fs.OpenFile(n.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (n *fsNode) ReadAll() ([]byte, error) {
	return afero.ReadFile(n.fs, n.path)
}

func (n *fsNode) ReadLines() ([]string, error) {
	data, err := n.ReadAll()
	if err != nil {
		return nil, err
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	return lines, sc.Err()
}

func (n *fsNode) WriteString(s string) error {
	return n.WriteBytes([]byte(s))
}

func (n *fsNode) WriteBytes(data []byte) error {
	if err := n.mkdirParent(); err != nil {
		return err
	}
	return afero.WriteFile(n.fs, n.path, data, 0o644)
}

func (n *fsNode) DeleteFile() error {
	return n.fs.Remove(n.path)
}

func (n *fsNode) Move(dest Node) error {
	d, ok := dest.(*fsNode)
	if !ok || d.fs != n.fs {
		return fmt.Errorf("move %s: destination %s is in another tree", n, dest)
	}
	if err := d.mkdirParent(); err != nil {
		return err
	}
	return n.fs.Rename(n.path, d.path)
}

func (n *fsNode) String() string {
	if b, ok := n.fs.(*afero.BasePathFs); ok {
		if p, err := b.RealPath(n.path); err == nil {
			return p
		}
	}
	return n.path
}

func (n *fsNode) mkdirParent() error {
	dir := path.Dir(n.path)
	if dir == "/" {
		return nil
	}
	return n.fs.MkdirAll(dir, 0o755)
}

// writeAtomic writes data to a temporary sibling of node and moves it over
// node, so readers see either the old or the new content.
func writeAtomic(node Node, data []byte) error {
	tmp := node.Parent().Join(fmt.Sprintf(".%s.%x.tmp", path.Base(node.Path()), rand.Uint64()))
	if err := tmp.WriteBytes(data); err != nil {
		return err
	}
	if err := tmp.Move(node); err != nil {
		if derr := tmp.DeleteFile(); derr != nil && !errors.Is(derr, os.ErrNotExist) {
			return errors.Join(err, derr)
		}
		return err
	}
	return nil
}
