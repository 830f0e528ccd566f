// Package plugerr defines the error taxonomy shared by every layer of the
// plugin ABI: loading, version negotiation, dispatch and inter-plugin wiring.
//
// Each failure class has a sentinel that callers match with errors.Is, and
// most classes also have a structured error type carrying the details
// (expected vs. actual type, offending function id, and so on).
package plugerr

import (
	"errors"
	"fmt"
)

// Sentinels for every failure class.
var (
	// ErrLoad reports an I/O or format failure locating or mapping a library.
	ErrLoad = errors.New("plugin load failed")
	// ErrVersionMismatch reports an ABI, API or toolchain incompatibility.
	ErrVersionMismatch = errors.New("plugin version mismatch")

	ErrUnknownFunctionID = errors.New("unknown function id")
	ErrArityMismatch     = errors.New("argument count mismatch")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrExecution         = errors.New("plugin execution failed")

	ErrUnknownDependency    = errors.New("unknown dependency")
	ErrDependencyDenied     = errors.New("dependency denied")
	ErrDependencyUnresolved = errors.New("dependency not resolved")
	ErrAlreadyResolved      = errors.New("dependency already resolved")

	ErrNotInitialized     = errors.New("plugin not initialized")
	ErrAlreadyInitialized = errors.New("plugin already initialized")
	ErrNotActive          = errors.New("plugin not active")
	ErrUnloaded           = errors.New("plugin unloaded")
	ErrNotImplemented     = errors.New("not implemented")
)

// LoadError wraps the underlying cause of a failed load attempt.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() []error { return []error{ErrLoad, e.Err} }

// NewLoadError builds a LoadError from a formatted cause.
func NewLoadError(path, format string, args ...any) *LoadError {
	return &LoadError{Path: path, Err: fmt.Errorf(format, args...)}
}

// VersionMismatchError names the marker field that differs.
type VersionMismatchError struct {
	Path  string
	Field string
	Want  string
	Got   string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("load %q: %s version mismatch: host expects %q, plugin has %q", e.Path, e.Field, e.Want, e.Got)
}

func (e *VersionMismatchError) Is(target error) bool { return target == ErrVersionMismatch }

// TypeMismatchError reports a failed downcast. Index is the argument slot,
// or -1 when the mismatch is not tied to an argument.
type TypeMismatchError struct {
	Expected string
	Actual   string
	Index    int
}

func (e *TypeMismatchError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("argument %d: type mismatch: expected %s, got %s", e.Index, e.Expected, e.Actual)
	}
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// UnknownFunctionIDError reports a call to an id absent from the manifest.
type UnknownFunctionIDError struct {
	ID int
}

func (e *UnknownFunctionIDError) Error() string {
	return fmt.Sprintf("function with id %d does not exist", e.ID)
}

func (e *UnknownFunctionIDError) Is(target error) bool { return target == ErrUnknownFunctionID }

// ArityMismatchError reports an argument vector of the wrong length.
type ArityMismatchError struct {
	Function string
	Want     int
	Got      int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("function %q expects %d arguments, got %d", e.Function, e.Want, e.Got)
}

func (e *ArityMismatchError) Is(target error) bool { return target == ErrArityMismatch }

// DependencyError reports an inter-plugin wiring failure for one name.
// Kind is one of ErrUnknownDependency, ErrDependencyDenied,
// ErrDependencyUnresolved or ErrAlreadyResolved.
type DependencyError struct {
	Name string
	Kind error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %q: %v", e.Name, e.Kind)
}

func (e *DependencyError) Unwrap() error { return e.Kind }

// ExecutionError carries a plugin-defined failure out of a call.
type ExecutionError struct {
	Function string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("function %q: %v", e.Function, e.Err)
}

func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.Err} }

// StateError reports a lifecycle method invoked in the wrong state.
type StateError struct {
	Plugin string
	State  string
	Kind   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("plugin %q (%s): %v", e.Plugin, e.State, e.Kind)
}

func (e *StateError) Unwrap() error { return e.Kind }
