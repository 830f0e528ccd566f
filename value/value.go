// Package value implements the type-erased container exchanged between the
// host and plugins.
//
// A Value holds exactly one Go value together with its runtime type. The
// receiving side recovers the concrete value with Unwrap, which succeeds
// only on an exact type match; there is no numeric widening or structural
// conversion. Ownership of a wrapped value moves with the Value: arguments
// belong to the callee once passed, results belong to the caller.
package value

import (
	"fmt"
	"reflect"

	"github.com/vk/dynplug/plugerr"
)

// Value is a type-erased value. The zero Value is invalid and holds nothing.
type Value struct {
	rt reflect.Type
	v  any
}

// Unit is the result of functions without a meaningful return value.
type Unit struct{}

// Void is the wrapped Unit.
var Void = Wrap(Unit{})

// Wrap stores v. When T is an interface type, the dynamic type of v is
// recorded so the receiver can downcast to the concrete type.
func Wrap[T any](v T) Value {
	rt := reflect.TypeFor[T]()
	if rt.Kind() == reflect.Interface {
		return Of(v)
	}
	return Value{rt: rt, v: v}
}

// Of wraps a value whose static type is unknown. A nil interface yields the
// invalid Value.
func Of(v any) Value {
	if v == nil {
		return Value{}
	}
	return Value{rt: reflect.TypeOf(v), v: v}
}

// Unwrap returns the contained value if its runtime type is exactly T. For
// an interface T it succeeds when the held value implements T.
func Unwrap[T any](val Value) (T, error) {
	var zero T
	want := reflect.TypeFor[T]()
	if want.Kind() == reflect.Interface {
		if v, ok := val.v.(T); ok {
			return v, nil
		}
	} else if val.rt == want {
		return val.v.(T), nil
	}
	return zero, &plugerr.TypeMismatchError{
		Expected: typeName(want),
		Actual:   val.typeName(),
		Index:    -1,
	}
}

// MustUnwrap is like Unwrap but panics on mismatch.
func MustUnwrap[T any](val Value) T {
	v, err := Unwrap[T](val)
	if err != nil {
		panic(err)
	}
	return v
}

// IsValid reports whether val holds a value.
func (val Value) IsValid() bool { return val.rt != nil }

// Type returns the runtime type of the held value, Any for the invalid Value.
func (val Value) Type() Type { return Type{rt: val.rt} }

func (val Value) typeName() string {
	if val.rt == nil {
		return "<invalid>"
	}
	return typeName(val.rt)
}

// Interface returns the held value as an any.
func (val Value) Interface() any { return val.v }

func (val Value) String() string {
	if !val.IsValid() {
		return "<invalid>"
	}
	return fmt.Sprintf("%v (%s)", val.v, val.Type())
}
