package manifest

import (
	"context"
	"reflect"

	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
)

// Fn0 adapts a function without arguments.
func Fn0[R any](fn func(context.Context) (R, error)) Entry {
	return Entry{
		Return: slot[R](),
		Call: func(ctx context.Context, _ []value.Value) (value.Value, error) {
			r, err := fn(ctx)
			if err != nil {
				return value.Value{}, err
			}
			return value.Wrap(r), nil
		},
	}
}

// Fn1 adapts a function of one argument.
func Fn1[A, R any](fn func(context.Context, A) (R, error)) Entry {
	return Entry{
		Params: []value.Type{slot[A]()},
		Return: slot[R](),
		Call: func(ctx context.Context, args []value.Value) (value.Value, error) {
			a, err := arg[A](args, 0)
			if err != nil {
				return value.Value{}, err
			}
			r, err := fn(ctx, a)
			if err != nil {
				return value.Value{}, err
			}
			return value.Wrap(r), nil
		},
	}
}

// Fn2 adapts a function of two arguments.
func Fn2[A, B, R any](fn func(context.Context, A, B) (R, error)) Entry {
	return Entry{
		Params: []value.Type{slot[A](), slot[B]()},
		Return: slot[R](),
		Call: func(ctx context.Context, args []value.Value) (value.Value, error) {
			a, err := arg[A](args, 0)
			if err != nil {
				return value.Value{}, err
			}
			b, err := arg[B](args, 1)
			if err != nil {
				return value.Value{}, err
			}
			r, err := fn(ctx, a, b)
			if err != nil {
				return value.Value{}, err
			}
			return value.Wrap(r), nil
		},
	}
}

// Fn3 adapts a function of three arguments.
func Fn3[A, B, C, R any](fn func(context.Context, A, B, C) (R, error)) Entry {
	return Entry{
		Params: []value.Type{slot[A](), slot[B](), slot[C]()},
		Return: slot[R](),
		Call: func(ctx context.Context, args []value.Value) (value.Value, error) {
			a, err := arg[A](args, 0)
			if err != nil {
				return value.Value{}, err
			}
			b, err := arg[B](args, 1)
			if err != nil {
				return value.Value{}, err
			}
			c, err := arg[C](args, 2)
			if err != nil {
				return value.Value{}, err
			}
			r, err := fn(ctx, a, b, c)
			if err != nil {
				return value.Value{}, err
			}
			return value.Wrap(r), nil
		},
	}
}

// Raw declares a signature for an already type-erased body.
func Raw(params []value.Type, ret value.Type, fn Func) Entry {
	return Entry{Params: params, Return: ret, Call: fn}
}

// slot maps an interface type parameter to the Any slot, since a runtime
// value never has an interface type.
func slot[T any]() value.Type {
	rt := reflect.TypeFor[T]()
	if rt.Kind() == reflect.Interface {
		return value.Any
	}
	return value.TypeFor(rt)
}

func arg[T any](args []value.Value, i int) (T, error) {
	if reflect.TypeFor[T]().Kind() == reflect.Interface {
		v, ok := args[i].Interface().(T)
		if !ok {
			var zero T
			return zero, &plugerr.TypeMismatchError{
				Expected: reflect.TypeFor[T]().String(),
				Actual:   args[i].Type().String(),
				Index:    i,
			}
		}
		return v, nil
	}
	v, err := value.Unwrap[T](args[i])
	if tm, ok := err.(*plugerr.TypeMismatchError); ok {
		tm.Index = i
	}
	return v, err
}
