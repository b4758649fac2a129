package source

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// GitModule publishes the files of one commit. The revision of a file is
// its blob hash, so a file keeps its revision across commits that do not
// touch it.
type GitModule struct {
	base
	repo     *git.Repository
	revision string
}

// NewGitModule returns a module over the tree of revision in repo. An empty
// revision means HEAD.
func NewGitModule(name string, repo *git.Repository, revision string, opts ...Option) *GitModule {
	if revision == "" {
		revision = "HEAD"
	}
	return &GitModule{base: newBase(name, opts), repo: repo, revision: revision}
}

// OpenGitModule opens the repository at dir.
func OpenGitModule(name, dir, revision string, opts ...Option) (*GitModule, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("module %s: open repository %s: %w", name, dir, err)
	}
	return NewGitModule(name, repo, revision, opts...), nil
}

func (m *GitModule) tree() (*object.Tree, error) {
	hash, err := m.repo.ResolveRevision(plumbing.Revision(m.revision))
	if err != nil {
		return nil, fmt.Errorf("module %s: resolve %s: %w", m.name, m.revision, err)
	}
	commit, err := m.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("module %s: commit %s: %w", m.name, hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("module %s: tree of %s: %w", m.name, hash, err)
	}
	if m.root == "" {
		return tree, nil
	}
	sub, err := tree.Tree(m.root)
	if err != nil {
		return nil, fmt.Errorf("module %s: directory %s: %w", m.name, m.root, err)
	}
	return sub, nil
}

func (m *GitModule) Resources() iter.Seq2[Resource, error] {
	return func(yield func(Resource, error) bool) {
		tree, err := m.tree()
		if err != nil {
			yield(nil, err)
			return
		}
		err = tree.Files().ForEach(func(f *object.File) error {
			if !isRegular(f.Mode) || !m.accept(f.Name) {
				return nil
			}
			if !yield(m.newResource(f.Name, f), nil) {
				return storer.ErrStop
			}
			return nil
		})
		if err != nil {
			yield(nil, fmt.Errorf("module %s: %w", m.name, err))
		}
	}
}

func (m *GitModule) Probe(original string) (Resource, bool, error) {
	rel, ok := m.relPath(original)
	if !ok || !m.accept(rel) {
		return nil, false, nil
	}
	tree, err := m.tree()
	if err != nil {
		return nil, false, err
	}
	f, err := tree.File(rel)
	if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("module %s: %w", m.name, err)
	}
	if !isRegular(f.Mode) {
		return nil, false, nil
	}
	return m.newResource(rel, f), true, nil
}

func (m *GitModule) newResource(rel string, f *object.File) Resource {
	return &resource{
		path:     m.originalPath(rel),
		revision: f.Hash.String(),
		read: func() ([]byte, error) {
			r, err := f.Reader()
			if err != nil {
				return nil, err
			}
			defer r.Close()
			return io.ReadAll(r)
		},
	}
}

func isRegular(mode filemode.FileMode) bool {
	return mode == filemode.Regular || mode == filemode.Executable || mode == filemode.Deprecated
}
