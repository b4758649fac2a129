package lavender

import (
	"context"

	"github.com/aweris/lavender/internal/source"
)

// Resource is one publishable file.
// Re-exported from internal/source for convenience.
type Resource = source.Resource

// Module is a named source of resources.
// Re-exported from internal/source for convenience.
type Module = source.Module

// ModuleConfig is the tagged configuration of one module.
type ModuleConfig = source.Config

// Module types.
const (
	ModuleFS    = source.TypeFS
	ModuleGit   = source.TypeGit
	ModuleImage = source.TypeImage
)

// OpenModule builds the module described by cfg.
func OpenModule(ctx context.Context, cfg ModuleConfig) (Module, error) {
	return source.New(ctx, cfg)
}

// OpenModules builds every configured module.
func OpenModules(ctx context.Context, cfgs []ModuleConfig) ([]Module, error) {
	modules := make([]Module, 0, len(cfgs))
	for _, cfg := range cfgs {
		m, err := source.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

func lavendelizes(m Module) bool {
	if l, ok := m.(source.Lavendelizer); ok {
		return l.Lavendelize()
	}
	return true
}
