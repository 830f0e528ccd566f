package capability

import (
	"context"

	"github.com/vk/dynplug/manifest"
	"github.com/vk/dynplug/value"
)

// Base is a manifest-backed Capability for plugins to embed. Plugins
// declare functions on Manifest, dependencies on Deps, and read Limits
// inside their functions.
type Base struct {
	Manifest *manifest.Manifest
	Deps     DependencySet
	Limits   LimitSet
}

// NewBase returns a Base with an empty manifest.
func NewBase() *Base {
	return &Base{Manifest: manifest.New()}
}

// Init applies limits and returns the declared dependencies.
func (b *Base) Init(_ context.Context, limits []Limitation) ([]Dependency, error) {
	b.Limits.Apply(limits)
	return b.Deps.Declared(), nil
}

// UpdateLimitations folds further limitations into Limits.
func (b *Base) UpdateLimitations(limits []Limitation) error {
	b.Limits.Apply(limits)
	return nil
}

// Provide stores the provider in Deps.
func (b *Base) Provide(dep Dependency, p Provider) error {
	return b.Deps.Provide(dep, p)
}

// Deny records the denial in Deps.
func (b *Base) Deny(dep Dependency) error {
	return b.Deps.Deny(dep)
}

// Functions lists the manifest functions.
func (b *Base) Functions() []manifest.FunctionDescriptor {
	return b.Manifest.Functions()
}

// Types lists the manifest types.
func (b *Base) Types() []manifest.TypeDescriptor {
	return b.Manifest.Types()
}

// Traits lists the manifest traits.
func (b *Base) Traits() []manifest.TraitDescriptor {
	return b.Manifest.Traits()
}

// Call dispatches through the manifest.
func (b *Base) Call(ctx context.Context, id int, args []value.Value) (value.Value, error) {
	return b.Manifest.Call(ctx, id, args)
}

var (
	_ Capability   = (*Base)(nil)
	_ TraitDefiner = (*Base)(nil)
)
