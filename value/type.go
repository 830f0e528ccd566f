package value

import (
	"reflect"
	"strconv"

	"github.com/vk/dynplug/plugerr"
)

// TypeID is the stable textual identity of a Go type across the loading
// boundary. Named types are qualified by their full package path.
type TypeID string

// AnyID is the TypeID of the wildcard type.
const AnyID TypeID = "any"

// Type identifies the declared type of an argument or return slot.
// The zero Type is Any and accepts values of every runtime type.
type Type struct {
	rt reflect.Type
}

// Any accepts every runtime type.
var Any = Type{}

// TypeOf returns the Type of T.
func TypeOf[T any]() Type {
	return Type{rt: reflect.TypeFor[T]()}
}

// TypeFor wraps a reflect.Type. A nil rt yields Any.
func TypeFor(rt reflect.Type) Type {
	return Type{rt: rt}
}

// Reflect returns the underlying reflect.Type, nil for Any.
func (t Type) Reflect() reflect.Type { return t.rt }

// IsAny reports whether t is the wildcard type.
func (t Type) IsAny() bool { return t.rt == nil }

// ID returns the TypeID of t.
func (t Type) ID() TypeID {
	if t.rt == nil {
		return AnyID
	}
	return TypeID(typeName(t.rt))
}

func (t Type) String() string { return string(t.ID()) }

// Equal reports whether t and o denote the same type.
func (t Type) Equal(o Type) bool { return t.rt == o.rt }

// IsPrimitive reports whether t is a built-in type: a predeclared bool,
// numeric or string type, or an unnamed slice, array, map or pointer built
// only from such types. Any is not primitive.
func (t Type) IsPrimitive() bool {
	return t.rt != nil && isPrimitive(t.rt)
}

// Accepts checks that v may fill a slot of type t. The invalid Value fills
// no slot, not even Any.
func (t Type) Accepts(v Value) error {
	if !v.IsValid() || (t.rt != nil && v.rt != t.rt) {
		return &plugerr.TypeMismatchError{Expected: t.String(), Actual: v.typeName(), Index: -1}
	}
	return nil
}

func isPrimitive(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return rt.PkgPath() == ""
	case reflect.Slice, reflect.Array, reflect.Pointer:
		return rt.Name() == "" && isPrimitive(rt.Elem())
	case reflect.Map:
		return rt.Name() == "" && isPrimitive(rt.Key()) && isPrimitive(rt.Elem())
	}
	return false
}

func typeName(rt reflect.Type) string {
	if rt.Name() != "" {
		if rt.PkgPath() == "" {
			return rt.Name()
		}
		return rt.PkgPath() + "." + rt.Name()
	}
	switch rt.Kind() {
	case reflect.Pointer:
		return "*" + typeName(rt.Elem())
	case reflect.Slice:
		return "[]" + typeName(rt.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(rt.Len()) + "]" + typeName(rt.Elem())
	case reflect.Map:
		return "map[" + typeName(rt.Key()) + "]" + typeName(rt.Elem())
	}
	return rt.String()
}
