// Package app contains the core application logic. It wires configuration,
// logging, the loader and the plugin host together, decoupled from any
// specific entrypoint like a CLI.
package app
