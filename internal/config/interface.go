package config

import (
	"context"

	"github.com/vk/dynplug/value"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given paths and translates it into
	// the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

// Converter is the bridge between textual arguments, as typed on a command
// line, and the Go types a plugin function declares.
type Converter interface {
	// ParseArgument parses src as a literal and converts it to t. An Any
	// slot receives the literal's natural Go type.
	ParseArgument(ctx context.Context, src string, t value.Type) (value.Value, error)

	// Render turns a call result into JSON.
	Render(ctx context.Context, v value.Value) ([]byte, error)
}
