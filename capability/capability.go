// Package capability defines the contract every plugin implements and the
// view a plugin gets of the other plugins it depends on.
//
// The lifecycle is two-phase. The host calls Init exactly once; Init
// returns the dependencies the plugin wants. The host then settles each of
// them with Provide or Deny, after which the plugin is active and may be
// called. A plugin whose dependency was denied keeps working in a degraded
// mode and fails the affected calls with plugerr.ErrDependencyDenied.
package capability

import (
	"context"

	"github.com/vk/dynplug/manifest"
	"github.com/vk/dynplug/value"
	"github.com/vk/dynplug/version"
)

// Capability is the interface every plugin implements.
type Capability interface {
	// Init prepares the plugin and returns the dependencies it requests.
	Init(ctx context.Context, limits []Limitation) ([]Dependency, error)
	// UpdateLimitations applies further limitations after Init.
	UpdateLimitations(limits []Limitation) error
	// Provide hands over a counted reference satisfying a declared
	// dependency. The plugin owns p and may Release it early.
	Provide(dep Dependency, p Provider) error
	// Deny reports that a declared dependency cannot be satisfied.
	Deny(dep Dependency) error

	// Functions lists the callable functions in registration order.
	Functions() []manifest.FunctionDescriptor
	// Types lists the non-primitive types the functions exchange.
	Types() []manifest.TypeDescriptor
	// Call invokes the function with the given id.
	Call(ctx context.Context, id int, args []value.Value) (value.Value, error)
}

// TraitDefiner is implemented by plugins that define traits other plugins
// can implement and request.
type TraitDefiner interface {
	Traits() []manifest.TraitDescriptor
}

// Provider is a counted reference to another loaded plugin. While it is
// unreleased, the plugin behind it and its library stay loaded.
type Provider interface {
	Name() string
	Version() version.Version
	Functions() []manifest.FunctionDescriptor
	Types() []manifest.TypeDescriptor
	Call(ctx context.Context, id int, args []value.Value) (value.Value, error)
	// Release drops the reference. It is safe to call more than once.
	Release()
}
