// Package cli builds the plugctl command tree. It parses flags, validates
// user input and maps failures to process exit codes, translating the
// command line into the application's configuration.
package cli
