// Package abi defines the fixed surface a plugin library exports: one data
// symbol named PluginDeclaration holding a *Declaration. The declaration
// carries the version marker the loader checks before any plugin code
// runs, and a registration function that hands the plugin's Capability to
// a Registrar.
package abi

import (
	"fmt"
	"runtime"

	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/version"
)

// APIVersion is the version of this interface. Libraries built against a
// different APIVersion are refused.
const APIVersion = "0.3.0"

// DeclarationSymbol is the name of the exported declaration variable.
const DeclarationSymbol = "PluginDeclaration"

// ToolchainVersion identifies the Go toolchain the current binary was
// built with. Host and plugin must agree on it.
var ToolchainVersion = runtime.Version()

// Registrar receives the plugin's implementor during registration.
type Registrar interface {
	Register(c capability.Capability)
}

// RegistrarFunc adapts a function to a Registrar.
type RegistrarFunc func(c capability.Capability)

func (f RegistrarFunc) Register(c capability.Capability) { f(c) }

// Declaration is the value behind the exported symbol.
type Declaration struct {
	Toolchain string
	API       string
	Name      string
	Version   version.Version
	// Compat is the oldest version this plugin is still compatible with.
	Compat version.Version
	// Register must call r.Register exactly once.
	Register func(r Registrar)
}

// Option customises a Declaration built by Export.
type Option func(*Declaration)

// WithCompat sets the oldest compatible version.
func WithCompat(v version.Version) Option {
	return func(d *Declaration) { d.Compat = v }
}

// Export builds the declaration for a plugin. Each registration calls
// newFn, so loading one library twice yields independent implementors.
//
//	var PluginDeclaration = abi.Export("arith", version.MustParse("1.2"), arith.New)
func Export(name string, v version.Version, newFn func() capability.Capability, opts ...Option) *Declaration {
	d := &Declaration{
		Toolchain: ToolchainVersion,
		API:       APIVersion,
		Name:      name,
		Version:   v,
		Register: func(r Registrar) {
			r.Register(newFn())
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check compares the version marker of d with the running host. It reads
// data fields only and never calls into the plugin.
func Check(path string, d *Declaration) error {
	if d == nil {
		return plugerr.NewLoadError(path, "symbol %s is nil", DeclarationSymbol)
	}
	if d.API != APIVersion {
		return &plugerr.VersionMismatchError{Path: path, Field: "api", Want: APIVersion, Got: d.API}
	}
	if d.Toolchain != ToolchainVersion {
		return &plugerr.VersionMismatchError{Path: path, Field: "toolchain", Want: ToolchainVersion, Got: d.Toolchain}
	}
	if d.Name == "" {
		return plugerr.NewLoadError(path, "declaration has no name")
	}
	if d.Register == nil {
		return plugerr.NewLoadError(path, "declaration %q has no register function", d.Name)
	}
	return nil
}

func (d *Declaration) String() string {
	return fmt.Sprintf("%s %s (api %s, %s)", d.Name, d.Version, d.API, d.Toolchain)
}
