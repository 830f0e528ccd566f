// Package config defines the format-agnostic configuration model for the
// plugin host, along with the core interfaces (Loader, Converter) for
// loading configuration and converting textual arguments into plugin
// values.
//
// The `config.Model` is the single source of truth for the `host`
// package. Concrete implementations of the interfaces, for HCL and TOML,
// are provided in separate packages.
package config
