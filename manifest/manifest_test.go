package manifest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
	"pgregory.net/rapid"
)

type pair struct {
	A, B int
}

var errDivZero = errors.New("division by zero")

func newTestManifest(t *testing.T) (*Manifest, *int) {
	t.Helper()
	calls := new(int)
	m := New()
	m.DefineType(0, "pair", value.TypeOf[pair]())
	m.Define(0, "add", Fn2(func(_ context.Context, a, b int) (int, error) {
		*calls++
		return a + b, nil
	}))
	m.Define(1, "div", Fn2(func(_ context.Context, a, b int) (int, error) {
		*calls++
		if b == 0 {
			return 0, errDivZero
		}
		return a / b, nil
	}))
	m.Define(2, "swap", Fn1(func(_ context.Context, p pair) (pair, error) {
		*calls++
		return pair{A: p.B, B: p.A}, nil
	}))
	m.Define(4, "describe", Fn1(func(_ context.Context, v any) (string, error) {
		*calls++
		return fmt.Sprintf("%v", v), nil
	}))
	m.Define(5, "boom", Fn0(func(context.Context) (value.Unit, error) {
		*calls++
		panic("boom")
	}))
	return m, calls
}

func TestDefine(t *testing.T) {
	m, _ := newTestManifest(t)

	t.Run("functions keep registration order", func(t *testing.T) {
		var names []string
		for _, fd := range m.Functions() {
			names = append(names, fd.Name)
		}
		assert.Equal(t, []string{"add", "div", "swap", "describe", "boom"}, names)
	})

	t.Run("descriptors carry the declared signature", func(t *testing.T) {
		fd, err := m.Function(2)
		require.NoError(t, err)
		assert.Equal(t, "swap", fd.Name)
		assert.Equal(t, "swap(github.com/vk/dynplug/manifest.pair) github.com/vk/dynplug/manifest.pair", fd.String())

		fd, err = m.Function(4)
		require.NoError(t, err)
		assert.True(t, fd.Params[0].IsAny())
	})

	t.Run("duplicate id panics", func(t *testing.T) {
		assert.PanicsWithValue(t, "function with id 0 already defined as 'add'", func() {
			m.Define(0, "again", Fn0(func(context.Context) (int, error) { return 0, nil }))
		})
	})

	t.Run("negative id panics", func(t *testing.T) {
		assert.Panics(t, func() { m.Define(-1, "neg", Fn0(func(context.Context) (int, error) { return 0, nil })) })
	})

	t.Run("duplicate type id panics", func(t *testing.T) {
		assert.Panics(t, func() { m.DefineType(0, "again", value.TypeOf[pair]()) })
	})

	t.Run("any type cannot be declared", func(t *testing.T) {
		assert.Panics(t, func() { m.DefineType(9, "anything", value.Any) })
	})
}

func TestCall(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		m, _ := newTestManifest(t)
		res, err := m.Call(ctx, 0, []value.Value{value.Wrap(2), value.Wrap(3)})
		require.NoError(t, err)
		assert.Equal(t, 5, value.MustUnwrap[int](res))

		res, err = m.Call(ctx, 2, []value.Value{value.Wrap(pair{A: 1, B: 2})})
		require.NoError(t, err)
		assert.Equal(t, pair{A: 2, B: 1}, value.MustUnwrap[pair](res))
	})

	t.Run("any parameter accepts every type", func(t *testing.T) {
		m, _ := newTestManifest(t)
		res, err := m.Call(ctx, 4, []value.Value{value.Wrap(pair{A: 1})})
		require.NoError(t, err)
		assert.Equal(t, "{1 0}", value.MustUnwrap[string](res))
	})

	t.Run("type mismatch names the argument", func(t *testing.T) {
		m, calls := newTestManifest(t)
		_, err := m.Call(ctx, 0, []value.Value{value.Wrap(2), value.Wrap("3")})
		require.ErrorIs(t, err, plugerr.ErrTypeMismatch)
		var tm *plugerr.TypeMismatchError
		require.ErrorAs(t, err, &tm)
		assert.Equal(t, 1, tm.Index)
		assert.Equal(t, "int", tm.Expected)
		assert.Equal(t, "string", tm.Actual)
		assert.Zero(t, *calls)
	})

	t.Run("plugin error becomes execution error", func(t *testing.T) {
		m, _ := newTestManifest(t)
		_, err := m.Call(ctx, 1, []value.Value{value.Wrap(1), value.Wrap(0)})
		assert.ErrorIs(t, err, plugerr.ErrExecution)
		assert.ErrorIs(t, err, errDivZero)
		assert.False(t, plugerr.IsCallerError(err))
	})

	t.Run("panic becomes execution error", func(t *testing.T) {
		m, _ := newTestManifest(t)
		res, err := m.Call(ctx, 5, nil)
		assert.ErrorIs(t, err, plugerr.ErrExecution)
		assert.False(t, res.IsValid())
	})

	t.Run("wrong return type is execution error", func(t *testing.T) {
		m := New()
		m.Define(0, "liar", Raw(nil, value.TypeOf[int](), func(context.Context, []value.Value) (value.Value, error) {
			return value.Wrap("not an int"), nil
		}))
		_, err := m.Call(ctx, 0, nil)
		assert.ErrorIs(t, err, plugerr.ErrExecution)
		assert.NotErrorIs(t, err, plugerr.ErrTypeMismatch)
	})
}

func TestCallUnknownIDLeavesStateUnchanged(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m, calls := newTestManifest(t)
		before := m.Functions()

		id := rapid.OneOf(rapid.IntRange(-100, -1), rapid.Just(3), rapid.IntRange(6, 1000)).Draw(rt, "id")
		_, err := m.Call(context.Background(), id, []value.Value{value.Wrap(1)})
		if !errors.Is(err, plugerr.ErrUnknownFunctionID) {
			rt.Fatalf("id %d: expected unknown function id, got %v", id, err)
		}
		if *calls != 0 {
			rt.Fatalf("id %d: plugin code ran", id)
		}
		if diff := cmp.Diff(before, m.Functions(), cmp.Comparer(func(a, b value.Type) bool { return a.Equal(b) })); diff != "" {
			rt.Fatalf("manifest changed (-before +after):\n%s", diff)
		}
	})
}

func TestCallArityMismatch(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m, calls := newTestManifest(t)
		n := rapid.IntRange(0, 8).Filter(func(n int) bool { return n != 2 }).Draw(rt, "n")
		args := make([]value.Value, n)
		for i := range args {
			args[i] = value.Wrap(i)
		}
		_, err := m.Call(context.Background(), 0, args)
		var am *plugerr.ArityMismatchError
		if !errors.As(err, &am) || am.Want != 2 || am.Got != n {
			rt.Fatalf("%d args: expected arity mismatch, got %v", n, err)
		}
		if *calls != 0 {
			rt.Fatalf("plugin code ran")
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("consistent manifest passes", func(t *testing.T) {
		m, _ := newTestManifest(t)
		assert.NoError(t, m.Validate())
	})

	t.Run("undeclared types are reported together", func(t *testing.T) {
		m := New()
		m.Define(0, "mk", Fn1(func(_ context.Context, p pair) ([]pair, error) { return nil, nil }))
		err := m.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "manifest validation failed")
		assert.Contains(t, err.Error(), "function 'mk', parameter 0: type 'github.com/vk/dynplug/manifest.pair' is not in the type list")
		assert.Contains(t, err.Error(), "function 'mk', return: type '[]github.com/vk/dynplug/manifest.pair' is not in the type list")
	})

	t.Run("duplicate ids and empty names", func(t *testing.T) {
		fns := []FunctionDescriptor{
			{ID: 1, Name: "a", Return: value.TypeOf[int]()},
			{ID: 1, Name: "", Return: value.TypeOf[int]()},
		}
		types := []TypeDescriptor{
			{ID: 0, Name: "pair", Type: value.TypeOf[pair]()},
			{ID: 0, Name: "", Type: value.TypeOf[pair]()},
		}
		err := Validate(fns, types)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "function id 1 declared twice")
		assert.Contains(t, err.Error(), "function with id 1 has an empty name")
		assert.Contains(t, err.Error(), "type id 0 declared twice")
	})

	t.Run("unit return needs no declaration", func(t *testing.T) {
		m := New()
		m.Define(0, "noop", Fn0(func(context.Context) (value.Unit, error) { return value.Unit{}, nil }))
		assert.NoError(t, m.Validate())
	})
}

func TestIndex(t *testing.T) {
	m, _ := newTestManifest(t)
	m.Define(7, "add", Fn3(func(_ context.Context, a, b, c int) (int, error) { return a + b + c, nil }))
	ix := NewIndex(m.Functions(), m.Types())

	fd, err := ix.Function(1)
	require.NoError(t, err)
	assert.Equal(t, "div", fd.Name)

	_, err = ix.Function(3)
	assert.ErrorIs(t, err, plugerr.ErrUnknownFunctionID)

	assert.Len(t, ix.FunctionsByName("add"), 2)
	_, err = ix.Lookup("add")
	assert.ErrorContains(t, err, "ambiguous")
	_, err = ix.Lookup("nope")
	assert.ErrorContains(t, err, "does not exist")
	fd, err = ix.Lookup("swap")
	require.NoError(t, err)
	assert.Equal(t, 2, fd.ID)

	td, ok := ix.TypeOf(value.TypeOf[pair]())
	require.True(t, ok)
	assert.Equal(t, "pair", td.Name)
	_, ok = ix.Type(0)
	assert.True(t, ok)
	assert.Len(t, ix.TypesByName("pair"), 1)
}

func TestSparseIDs(t *testing.T) {
	m := New()
	add := Fn2(func(_ context.Context, a, b int) (int, error) { return a + b, nil })
	m.Define(50_000_000, "far", add)
	m.Define(3, "near", add)

	assert.Len(t, m.funcs, 2)
	res, err := m.Call(context.Background(), 50_000_000, []value.Value{value.Wrap(1), value.Wrap(2)})
	require.NoError(t, err)
	assert.Equal(t, 3, value.MustUnwrap[int](res))

	_, err = m.Call(context.Background(), 49_999_999, []value.Value{value.Wrap(1), value.Wrap(2)})
	assert.ErrorIs(t, err, plugerr.ErrUnknownFunctionID)

	assert.Equal(t, []string{"far", "near"}, []string{m.Functions()[0].Name, m.Functions()[1].Name})
	assert.PanicsWithValue(t, "function with id 50000000 already defined as 'far'", func() { m.Define(50_000_000, "again", add) })
}

func TestModules(t *testing.T) {
	m := New()
	noop := Fn0(func(context.Context) (int, error) { return 0, nil })
	m.Define(0, "version", noop)
	fraction := m.Module("fraction")
	fraction.DefineType(0, "pair", value.TypeOf[pair]())
	fraction.Define(1, "add", noop)
	ops := fraction.Module("ops")
	ops.Define(2, "mul", noop)
	fraction.Define(3, "sub", noop)
	m.Module("text").Define(4, "upper", noop)

	assert.Equal(t, "fraction.ops", ops.Path())
	fd, err := m.Function(2)
	require.NoError(t, err)
	assert.Equal(t, "fraction.ops", fd.Module)

	want := []ModuleDescriptor{
		{
			Name:      "fraction",
			Path:      "fraction",
			Functions: []int{1, 3},
			Types:     []int{0},
			Submodules: []ModuleDescriptor{
				{Name: "ops", Path: "fraction.ops", Functions: []int{2}},
			},
		},
		{Name: "text", Path: "text", Functions: []int{4}},
	}
	if diff := cmp.Diff(want, m.Modules()); diff != "" {
		t.Errorf("module tree mismatch (-want +got):\n%s", diff)
	}
	assert.NoError(t, m.Validate())

	t.Run("malformed paths are rejected", func(t *testing.T) {
		m := New()
		m.Module("a..b").Define(0, "f", noop)
		assert.ErrorContains(t, m.Validate(), `function 'f' has malformed module path "a..b"`)
	})
}

func TestTraits(t *testing.T) {
	intT := value.TypeOf[int]()
	adder := Method("add", intT, intT, intT)
	negator := Method("neg", intT, intT)

	t.Run("definition and lookup", func(t *testing.T) {
		m := New()
		m.Module("algebra").DefineTrait(0, "Group", adder, negator)
		require.NoError(t, m.Validate())

		ix := NewIndex(m.Functions(), m.Types(), m.Traits()...)
		tr, ok := ix.Trait("algebra.Group")
		require.True(t, ok)
		assert.Equal(t, "algebra.Group { add(int, int) int; neg(int) int }", tr.String())
		_, ok = ix.Trait("Group")
		assert.False(t, ok)
		assert.Equal(t, []int{0}, ix.Modules()[0].Traits)
	})

	t.Run("implementation is matched by signature", func(t *testing.T) {
		tr := TraitDescriptor{Name: "Group", Methods: []MethodDescriptor{adder, negator}}
		impl, _ := newTestManifest(t)
		impl.Define(9, "neg", Fn1(func(_ context.Context, a int) (int, error) { return -a, nil }))

		links, err := Implements(impl.Functions(), tr)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"add": 0, "neg": 9}, links)

		partial, _ := newTestManifest(t)
		_, err = Implements(partial.Functions(), tr)
		assert.ErrorIs(t, err, plugerr.ErrNotImplemented)
		links, err = Implements(partial.Functions(), tr, "add")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"add": 0}, links)

		_, err = Implements(partial.Functions(), tr, "mul")
		assert.ErrorContains(t, err, "has no method 'mul'")
	})

	t.Run("wrong signature does not implement", func(t *testing.T) {
		tr := TraitDescriptor{Name: "Neg", Methods: []MethodDescriptor{negator}}
		m := New()
		m.Define(0, "neg", Fn1(func(_ context.Context, a int64) (int64, error) { return -a, nil }))
		_, err := NewIndex(m.Functions(), nil).Implements(tr)
		assert.ErrorIs(t, err, plugerr.ErrNotImplemented)
	})

	t.Run("validation", func(t *testing.T) {
		m := New()
		m.DefineTrait(0, "Swap", Method("swap", value.TypeOf[pair](), value.TypeOf[pair]()), Method("swap", intT))
		err := m.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "trait 'Swap' declares method 'swap' twice")
		assert.Contains(t, err.Error(), "trait 'Swap', method 'swap', parameter 0: type 'github.com/vk/dynplug/manifest.pair' is not in the type list")
		assert.Panics(t, func() { m.DefineTrait(0, "Again") })
	})
}
