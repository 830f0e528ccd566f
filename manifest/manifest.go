// Package manifest holds the directory of functions a plugin exposes and
// the non-primitive types they exchange.
//
// Functions are keyed by a numeric id chosen by the plugin author. The id is
// the only handle used at call time; names exist for discovery and error
// messages. Ids need not be dense. A Manifest also performs the call-time
// contract checks (unknown id, arity, argument types) before any plugin code
// runs.
//
// Functions, types and traits may be grouped into modules, named by a
// dot-separated path such as "fraction.ops". Modules only organise the
// directory; ids stay unique across the whole manifest.
package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
)

// Func is the type-erased body of a manifest function. It receives
// arguments already checked against the declared parameter types.
type Func func(ctx context.Context, args []value.Value) (value.Value, error)

// Entry is a function body together with its declared signature. Use the
// Fn0..Fn3 adapters to build one from an ordinary Go function.
type Entry struct {
	Params []value.Type
	Return value.Type
	Call   Func
}

// FunctionDescriptor describes one callable entry point.
type FunctionDescriptor struct {
	ID     int
	Name   string
	// Module is the dot-separated module path, empty at the root.
	Module string
	Params []value.Type
	Return value.Type
	// Dependencies names the inter-plugin dependencies this function needs.
	Dependencies []string
}

// String renders the signature, e.g. "add(int, int) int".
func (d FunctionDescriptor) String() string {
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s(%s) %s", d.Name, strings.Join(params, ", "), d.Return)
}

// TypeDescriptor describes a non-primitive type a plugin round-trips
// through the host.
type TypeDescriptor struct {
	ID     int
	Name   string
	Module string
	Type   value.Type
}

type function struct {
	desc FunctionDescriptor
	call Func
}

// Manifest is a plugin's function and type directory. It is built once
// during plugin construction and read-only afterwards, so concurrent calls
// need no locking.
type Manifest struct {
	funcs  []*function
	byID   map[int]int
	types  []TypeDescriptor
	tids   map[int]struct{}
	traits []TraitDescriptor
	trids  map[int]struct{}
}

// New creates an empty Manifest.
func New() *Manifest {
	return &Manifest{
		byID:  make(map[int]int),
		tids:  make(map[int]struct{}),
		trids: make(map[int]struct{}),
	}
}

// Define registers a function under id at the root. Defining an id twice, a
// negative id, or an entry without a body is a programming error and panics.
func (m *Manifest) Define(id int, name string, e Entry, deps ...string) {
	m.define("", id, name, e, deps)
}

func (m *Manifest) define(module string, id int, name string, e Entry, deps []string) {
	if id < 0 {
		panic(fmt.Sprintf("function '%s' has negative id %d", name, id))
	}
	if e.Call == nil {
		panic(fmt.Sprintf("function '%s' has no body", name))
	}
	if i, ok := m.byID[id]; ok {
		panic(fmt.Sprintf("function with id %d already defined as '%s'", id, m.funcs[i].desc.Name))
	}
	slog.Debug("Defining manifest function.", "id", id, "name", name, "module", module)
	m.byID[id] = len(m.funcs)
	m.funcs = append(m.funcs, &function{
		desc: FunctionDescriptor{
			ID:           id,
			Name:         name,
			Module:       module,
			Params:       append([]value.Type(nil), e.Params...),
			Return:       e.Return,
			Dependencies: append([]string(nil), deps...),
		},
		call: e.Call,
	})
}

// DefineType registers a non-primitive type under id at the root. Duplicate
// ids and the Any type panic.
func (m *Manifest) DefineType(id int, name string, t value.Type) {
	m.defineType("", id, name, t)
}

func (m *Manifest) defineType(module string, id int, name string, t value.Type) {
	if t.IsAny() {
		panic(fmt.Sprintf("type '%s' cannot be declared as any", name))
	}
	if _, exists := m.tids[id]; exists {
		panic(fmt.Sprintf("type with id %d already defined", id))
	}
	slog.Debug("Defining manifest type.", "id", id, "name", name, "type", t.String())
	m.tids[id] = struct{}{}
	m.types = append(m.types, TypeDescriptor{ID: id, Name: name, Module: module, Type: t})
}

// DefineTrait registers a trait at the root: a named set of method
// signatures that any plugin, this one included, may implement by exposing
// functions with the same names and signatures. Duplicate ids panic.
func (m *Manifest) DefineTrait(id int, name string, methods ...MethodDescriptor) {
	m.defineTrait("", id, name, methods)
}

func (m *Manifest) defineTrait(module string, id int, name string, methods []MethodDescriptor) {
	if _, exists := m.trids[id]; exists {
		panic(fmt.Sprintf("trait with id %d already defined", id))
	}
	slog.Debug("Defining manifest trait.", "id", id, "name", name, "methods", len(methods))
	m.trids[id] = struct{}{}
	m.traits = append(m.traits, TraitDescriptor{
		ID:      id,
		Name:    name,
		Module:  module,
		Methods: append([]MethodDescriptor(nil), methods...),
	})
}

// Module returns a definer placing entries under path.
func (m *Manifest) Module(path string) *Module {
	return &Module{m: m, path: path}
}

// Functions returns all descriptors in registration order.
func (m *Manifest) Functions() []FunctionDescriptor {
	out := make([]FunctionDescriptor, 0, len(m.funcs))
	for _, fn := range m.funcs {
		out = append(out, fn.desc)
	}
	return out
}

// Types returns all type descriptors in registration order.
func (m *Manifest) Types() []TypeDescriptor {
	return append([]TypeDescriptor(nil), m.types...)
}

// Traits returns all trait descriptors in registration order.
func (m *Manifest) Traits() []TraitDescriptor {
	return append([]TraitDescriptor(nil), m.traits...)
}

// Modules returns the root modules with their contents and submodules.
func (m *Manifest) Modules() []ModuleDescriptor {
	return NewIndex(m.Functions(), m.types, m.traits...).Modules()
}

// Function returns the descriptor for id.
func (m *Manifest) Function(id int) (FunctionDescriptor, error) {
	fn, err := m.lookup(id)
	if err != nil {
		return FunctionDescriptor{}, err
	}
	return fn.desc, nil
}

// Validate checks the manifest for consistency.
func (m *Manifest) Validate() error {
	return Validate(m.Functions(), m.types, m.traits...)
}

// Call dispatches to the function with the given id after checking the
// argument vector. Plugin failures and panics come back as
// *plugerr.ExecutionError.
func (m *Manifest) Call(ctx context.Context, id int, args []value.Value) (res value.Value, err error) {
	fn, err := m.lookup(id)
	if err != nil {
		return value.Value{}, err
	}
	if err := CheckArgs(fn.desc, args); err != nil {
		return value.Value{}, err
	}

	defer plugerr.Recover(&err, func(p error) error {
		res = value.Value{}
		return &plugerr.ExecutionError{Function: fn.desc.Name, Err: p}
	})

	res, err = fn.call(ctx, args)
	if err != nil {
		return value.Value{}, &plugerr.ExecutionError{Function: fn.desc.Name, Err: err}
	}
	if fn.desc.Return.Accepts(res) != nil {
		return value.Value{}, &plugerr.ExecutionError{
			Function: fn.desc.Name,
			Err:      fmt.Errorf("returned %s, declared %s", res.Type(), fn.desc.Return),
		}
	}
	return res, nil
}

func (m *Manifest) lookup(id int) (*function, error) {
	i, ok := m.byID[id]
	if !ok {
		return nil, &plugerr.UnknownFunctionIDError{ID: id}
	}
	return m.funcs[i], nil
}

// CheckArgs verifies arity and argument types against a descriptor.
func CheckArgs(desc FunctionDescriptor, args []value.Value) error {
	if len(args) != len(desc.Params) {
		return &plugerr.ArityMismatchError{Function: desc.Name, Want: len(desc.Params), Got: len(args)}
	}
	for i, p := range desc.Params {
		if err := p.Accepts(args[i]); err != nil {
			tm := err.(*plugerr.TypeMismatchError)
			tm.Index = i
			return tm
		}
	}
	return nil
}
