// Package source implements the modules resources are published from.
//
// A Module is a named, restartable sequence of Resources. Each variant reads
// a different kind of source:
//
//	fs     a directory tree (any afero filesystem)
//	git    the tree of a commit in a git repository
//	image  the flattened filesystem of an OCI image
//
// Variants are selected by Config.Type rather than by type hierarchy.
package source

import (
	"context"
	"fmt"
	"iter"
	"path"
	"strings"

	"github.com/aweris/lavender/internal/remote"
)

// Module types.
const (
	TypeFS    = "fs"
	TypeGit   = "git"
	TypeImage = "image"
)

// Resource is one publishable file.
type Resource interface {
	// Path is the original path, including the module prefix.
	Path() string
	// RevisionID identifies this exact content version without hashing it.
	RevisionID() string
	ReadAll() ([]byte, error)
}

// Module produces resources.
type Module interface {
	Name() string
	// Resources yields every resource once. Each call starts over.
	Resources() iter.Seq2[Resource, error]
	// Probe looks up a single resource by original path.
	Probe(path string) (Resource, bool, error)
}

// Lavendelizer is implemented by modules that can opt out of hash-named
// publishing. Modules without it are lavendelized.
type Lavendelizer interface {
	Lavendelize() bool
}

// Config is the tagged configuration of one module.
type Config struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
	// Path is the directory, repository or image tarball.
	Path string `mapstructure:"path"`
	// Ref is the git revision or the image reference.
	Ref string `mapstructure:"ref"`
	// Root selects a subdirectory of the source.
	Root string `mapstructure:"root"`
	// Prefix is prepended to every original path.
	Prefix      string   `mapstructure:"prefix"`
	Includes    []string `mapstructure:"includes"`
	Excludes    []string `mapstructure:"excludes"`
	Lavendelize *bool    `mapstructure:"lavendelize"`

	// Registry settings of image modules. Without credentials the docker
	// keychain is used.
	Platform string `mapstructure:"platform"`
	Insecure bool   `mapstructure:"insecure"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// New builds the module described by cfg.
func New(ctx context.Context, cfg Config) (Module, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("module without name")
	}
	filter, err := NewFilter(cfg.Includes, cfg.Excludes)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", cfg.Name, err)
	}
	opts := []Option{WithPrefix(cfg.Prefix), WithRoot(cfg.Root), WithFilter(filter)}
	if cfg.Lavendelize != nil {
		opts = append(opts, WithLavendelize(*cfg.Lavendelize))
	}

	switch cfg.Type {
	case TypeFS, "":
		return OpenFSModule(cfg.Name, cfg.Path, opts...)
	case TypeGit:
		return OpenGitModule(cfg.Name, cfg.Path, cfg.Ref, opts...)
	case TypeImage:
		ref := cfg.Ref
		if ref == "" {
			ref = cfg.Path
		}
		fetch := []remote.Option{remote.WithPlatform(cfg.Platform), remote.WithInsecure(cfg.Insecure)}
		if cfg.Username != "" || cfg.Password != "" {
			fetch = append(fetch, remote.WithAuth(remote.StaticAuthenticator{Username: cfg.Username, Password: cfg.Password}))
		}
		return OpenImageModule(ctx, cfg.Name, ref, fetch, opts...)
	default:
		return nil, fmt.Errorf("module %s: unknown type %q", cfg.Name, cfg.Type)
	}
}

// Option configures a module.
type Option func(*base)

// WithPrefix prepends prefix to every original path.
func WithPrefix(prefix string) Option {
	return func(b *base) { b.prefix = strings.Trim(prefix, "/") }
}

// WithRoot restricts the module to a subdirectory of its source.
func WithRoot(root string) Option {
	return func(b *base) { b.root = strings.Trim(root, "/") }
}

// WithFilter selects which files become resources.
func WithFilter(f *Filter) Option {
	return func(b *base) { b.filter = f }
}

// WithLavendelize controls whether resources get hash-named published paths.
func WithLavendelize(v bool) Option {
	return func(b *base) { b.lavendelize = v }
}

type base struct {
	name        string
	prefix      string
	root        string
	filter      *Filter
	lavendelize bool
}

func newBase(name string, opts []Option) base {
	b := base{name: name, lavendelize: true}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) Name() string      { return b.name }
func (b base) Lavendelize() bool { return b.lavendelize }

// originalPath maps a path relative to the module root to its original path.
func (b base) originalPath(rel string) string {
	if b.prefix == "" {
		return rel
	}
	return b.prefix + "/" + rel
}

// relPath is the inverse of originalPath.
func (b base) relPath(original string) (string, bool) {
	if b.prefix == "" {
		return original, original != ""
	}
	rel, ok := strings.CutPrefix(original, b.prefix+"/")
	return rel, ok && rel != ""
}

// sourcePath maps a path relative to the module root to a path in the source.
func (b base) sourcePath(rel string) string {
	if b.root == "" {
		return rel
	}
	return path.Join(b.root, rel)
}

// rootRel maps a source path to a module-relative path.
func (b base) rootRel(p string) (string, bool) {
	if b.root == "" {
		return p, p != ""
	}
	rel, ok := strings.CutPrefix(p, b.root+"/")
	return rel, ok && rel != ""
}

func (b base) accept(rel string) bool {
	return b.filter.Match(rel)
}

type resource struct {
	path     string
	revision string
	read     func() ([]byte, error)
}

func (r *resource) Path() string             { return r.path }
func (r *resource) RevisionID() string       { return r.revision }
func (r *resource) ReadAll() ([]byte, error) { return r.read() }
func (r *resource) String() string           { return r.path + "@" + r.revision }
