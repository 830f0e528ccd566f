package manifest

import (
	"fmt"

	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
)

var unitType = value.TypeOf[value.Unit]()

// Index is a read-only lookup structure over a plugin's reported function
// and type lists. Hosts build one after init so that queries by id, name or
// Go type do not need to go back to the plugin.
type Index struct {
	functions []FunctionDescriptor
	byID      map[int]int
	byName    map[string][]int

	types       []TypeDescriptor
	typesByID   map[int]int
	typesByName map[string][]int
	typesByType map[value.TypeID]int

	traits       []TraitDescriptor
	traitsByName map[string]int
}

// NewIndex builds an Index. Later duplicates of an id shadow earlier ones;
// use Validate to reject them.
func NewIndex(functions []FunctionDescriptor, types []TypeDescriptor, traits ...TraitDescriptor) *Index {
	ix := &Index{
		functions:   append([]FunctionDescriptor(nil), functions...),
		byID:        make(map[int]int, len(functions)),
		byName:      make(map[string][]int),
		types:       append([]TypeDescriptor(nil), types...),
		typesByID:   make(map[int]int, len(types)),
		typesByName: make(map[string][]int),
		typesByType: make(map[value.TypeID]int, len(types)),

		traits:       append([]TraitDescriptor(nil), traits...),
		traitsByName: make(map[string]int, len(traits)),
	}
	for i, fd := range ix.functions {
		ix.byID[fd.ID] = i
		ix.byName[fd.Name] = append(ix.byName[fd.Name], i)
	}
	for i, td := range ix.types {
		ix.typesByID[td.ID] = i
		ix.typesByName[td.Name] = append(ix.typesByName[td.Name], i)
		ix.typesByType[td.Type.ID()] = i
	}
	for i, tr := range ix.traits {
		ix.traitsByName[tr.QualifiedName()] = i
	}
	return ix
}

// Functions returns the function list in its reported order.
func (ix *Index) Functions() []FunctionDescriptor {
	return append([]FunctionDescriptor(nil), ix.functions...)
}

// Types returns the type list in its reported order.
func (ix *Index) Types() []TypeDescriptor {
	return append([]TypeDescriptor(nil), ix.types...)
}

// Function returns the descriptor with the given id.
func (ix *Index) Function(id int) (FunctionDescriptor, error) {
	i, ok := ix.byID[id]
	if !ok {
		return FunctionDescriptor{}, &plugerr.UnknownFunctionIDError{ID: id}
	}
	return ix.functions[i], nil
}

// FunctionsByName returns every descriptor registered under name.
func (ix *Index) FunctionsByName(name string) []FunctionDescriptor {
	var out []FunctionDescriptor
	for _, i := range ix.byName[name] {
		out = append(out, ix.functions[i])
	}
	return out
}

// Lookup resolves a name to exactly one descriptor.
func (ix *Index) Lookup(name string) (FunctionDescriptor, error) {
	switch ids := ix.byName[name]; len(ids) {
	case 0:
		return FunctionDescriptor{}, fmt.Errorf("function '%s' does not exist: %w", name, plugerr.ErrUnknownFunctionID)
	case 1:
		return ix.functions[ids[0]], nil
	default:
		return FunctionDescriptor{}, fmt.Errorf("function name '%s' is ambiguous (%d definitions), call it by id", name, len(ids))
	}
}

// Type returns the type descriptor with the given id.
func (ix *Index) Type(id int) (TypeDescriptor, bool) {
	i, ok := ix.typesByID[id]
	if !ok {
		return TypeDescriptor{}, false
	}
	return ix.types[i], true
}

// TypesByName returns every type descriptor registered under name.
func (ix *Index) TypesByName(name string) []TypeDescriptor {
	var out []TypeDescriptor
	for _, i := range ix.typesByName[name] {
		out = append(out, ix.types[i])
	}
	return out
}

// TypeOf returns the descriptor declaring the Go type t.
func (ix *Index) TypeOf(t value.Type) (TypeDescriptor, bool) {
	i, ok := ix.typesByType[t.ID()]
	if !ok {
		return TypeDescriptor{}, false
	}
	return ix.types[i], true
}

// Traits returns the trait list in its reported order.
func (ix *Index) Traits() []TraitDescriptor {
	return append([]TraitDescriptor(nil), ix.traits...)
}

// Trait returns the trait with the given qualified name.
func (ix *Index) Trait(name string) (TraitDescriptor, bool) {
	i, ok := ix.traitsByName[name]
	if !ok {
		return TraitDescriptor{}, false
	}
	return ix.traits[i], true
}

// Implements reports which functions of this index serve t.
func (ix *Index) Implements(t TraitDescriptor, methods ...string) (map[string]int, error) {
	return Implements(ix.functions, t, methods...)
}

// Modules returns the root modules with their contents and submodules.
func (ix *Index) Modules() []ModuleDescriptor {
	return buildModules(ix.functions, ix.types, ix.traits)
}
