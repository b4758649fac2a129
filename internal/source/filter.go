package source

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Filter selects module paths by include and exclude globs. Patterns use
// '/' as separator: "*" stays within one segment, "**" crosses segments.
type Filter struct {
	includes []glob.Glob
	excludes []glob.Glob
}

// NewFilter compiles the patterns. Without includes every path is included.
func NewFilter(includes, excludes []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range includes {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("include %q: %w", p, err)
		}
		f.includes = append(f.includes, g)
	}
	for _, p := range excludes {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude %q: %w", p, err)
		}
		f.excludes = append(f.excludes, g)
	}
	return f, nil
}

// Match reports whether p is selected. A nil filter selects everything.
func (f *Filter) Match(p string) bool {
	if f == nil {
		return true
	}
	for _, g := range f.excludes {
		if g.Match(p) {
			return false
		}
	}
	if len(f.includes) == 0 {
		return true
	}
	for _, g := range f.includes {
		if g.Match(p) {
			return true
		}
	}
	return false
}
