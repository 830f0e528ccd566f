package app

import (
	"context"
	"fmt"

	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/internal/ctxlog"
	"github.com/vk/dynplug/internal/fsutil"
	"github.com/vk/dynplug/manifest"
	"github.com/vk/dynplug/version"
)

// Summary describes one library as found by Inspect.
type Summary struct {
	Path         string
	Name         string
	Version      version.Version
	Compat       version.Version
	Functions    []manifest.FunctionDescriptor
	Types        []manifest.TypeDescriptor
	Traits       []manifest.TraitDescriptor
	Dependencies []capability.Dependency
	// Err is set when the library could not be loaded or initialised.
	Err error
}

// Inspect loads each library in paths on its own, initialises it without
// limits, records what it declares and unloads it again. Without paths it
// inspects the builtins and every library in the configured plugin_dirs.
func (a *App) Inspect(ctx context.Context, paths ...string) ([]Summary, error) {
	ctx = a.Context(ctx)
	if len(paths) == 0 {
		found, err := fsutil.FindLibraries(a.config.Host.PluginDirs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plugin_dirs: %w", err)
		}
		paths = append(a.Builtins(), found...)
	}

	out := make([]Summary, 0, len(paths))
	for _, p := range paths {
		out = append(out, a.inspectOne(ctx, p))
	}
	return out, nil
}

func (a *App) inspectOne(ctx context.Context, path string) Summary {
	s := Summary{Path: path}
	h, err := a.loader.Load(ctx, path)
	if err != nil {
		s.Err = err
		return s
	}
	defer h.Close()

	s.Name, s.Version, s.Compat = h.Name(), h.Version(), h.Compat()
	deps, err := h.Init(ctx, nil)
	if err != nil {
		s.Err = err
		return s
	}
	s.Dependencies = deps
	s.Functions = h.Functions()
	s.Types = h.Types()
	s.Traits = h.Traits()
	ctxlog.FromContext(ctx).Debug("Inspected plugin.", "path", path, "functions", len(s.Functions))
	return s
}
