package arith

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/loader"
	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
	"pgregory.net/rapid"
)

func activate(t *testing.T, limits ...capability.Limitation) *loader.Handle {
	t.Helper()
	s := loader.NewStaticOpener()
	s.Add(Name, Declaration)
	h, err := loader.New(loader.WithOpener(s)).Load(context.Background(), loader.BuiltinPrefix+Name)
	require.NoError(t, err)
	t.Cleanup(h.Close)
	_, err = h.Init(context.Background(), limits)
	require.NoError(t, err)
	require.Equal(t, loader.StateActive, h.State())
	return h
}

func call[T any](t *testing.T, h *loader.Handle, id int, args ...any) (T, error) {
	t.Helper()
	vals := make([]value.Value, len(args))
	for i, a := range args {
		vals[i] = value.Of(a)
	}
	res, err := h.Call(context.Background(), id, vals)
	if err != nil {
		var zero T
		return zero, err
	}
	return value.Unwrap[T](res)
}

func TestManifest(t *testing.T) {
	h := activate(t)
	assert.Equal(t, Name, h.Name())
	assert.Equal(t, Version, h.Version())

	ix, err := h.Index()
	require.NoError(t, err)
	for name, id := range map[string]int{"add": AddID, "sum": SumID, "reduce": ReduceID, "mul": MulID, "div": DivID} {
		fd, err := ix.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, id, fd.ID)
	}
	td, ok := ix.TypeOf(value.TypeOf[Fraction]())
	require.True(t, ok)
	assert.Equal(t, "Fraction", td.Name)
	assert.Equal(t, FractionModule, td.Module)

	mods := ix.Modules()
	require.Len(t, mods, 1)
	assert.Equal(t, FractionModule, mods[0].Path)
	assert.Equal(t, []int{ReduceID, MulID, DivID}, mods[0].Functions)
	assert.Equal(t, []int{FractionTypeID}, mods[0].Types)
}

func TestFractions(t *testing.T) {
	h := activate(t)

	got, err := call[Fraction](t, h, ReduceID, Fraction{Num: 6, Den: -8})
	require.NoError(t, err)
	assert.Equal(t, Fraction{Num: -3, Den: 4}, got)

	got, err = call[Fraction](t, h, MulID, Fraction{Num: 2, Den: 3}, Fraction{Num: 3, Den: 4})
	require.NoError(t, err)
	assert.Equal(t, Fraction{Num: 1, Den: 2}, got)

	got, err = call[Fraction](t, h, DivID, Fraction{Num: 1, Den: 2}, Fraction{Num: 1, Den: 4})
	require.NoError(t, err)
	assert.Equal(t, Fraction{Num: 2, Den: 1}, got)

	_, err = call[Fraction](t, h, DivID, Fraction{Num: 1, Den: 2}, Fraction{Num: 0, Den: 4})
	assert.ErrorIs(t, err, plugerr.ErrExecution)
	assert.ErrorContains(t, err, "divide 1/2 by zero")

	_, err = call[Fraction](t, h, ReduceID, Fraction{Num: 1})
	assert.ErrorIs(t, err, errZeroDenominator)

	_, err = call[Fraction](t, h, ReduceID, 3)
	assert.ErrorIs(t, err, plugerr.ErrTypeMismatch)
}

func TestFractionOverflow(t *testing.T) {
	h := activate(t)

	for _, f := range []Fraction{
		{Num: math.MinInt64, Den: 1},
		{Num: 1, Den: math.MinInt64},
		{Num: math.MinInt64, Den: -1},
	} {
		_, err := call[Fraction](t, h, ReduceID, f)
		assert.ErrorIs(t, err, errOverflow, f.String())
	}

	_, err := call[Fraction](t, h, MulID, Fraction{Num: math.MaxInt64, Den: 1}, Fraction{Num: 2, Den: 1})
	assert.ErrorIs(t, err, errOverflow)
	_, err = call[Fraction](t, h, DivID, Fraction{Num: 1, Den: math.MaxInt64}, Fraction{Num: 1, Den: 3})
	assert.ErrorIs(t, err, errOverflow)

	got, err := call[Fraction](t, h, ReduceID, Fraction{Num: math.MaxInt64, Den: -math.MaxInt64})
	require.NoError(t, err)
	assert.Equal(t, Fraction{Num: -1, Den: 1}, got)
}

func TestReduceProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := Fraction{
			Num: rapid.Int64Range(-1<<20, 1<<20).Draw(t, "num"),
			Den: rapid.Int64Range(-1<<20, 1<<20).Filter(func(d int64) bool { return d != 0 }).Draw(t, "den"),
		}
		r, err := reduce(f)
		if err != nil {
			t.Fatalf("reduce(%s): %v", f, err)
		}
		if r.Den <= 0 {
			t.Fatalf("reduce(%s) = %s has a non-positive denominator", f, r)
		}
		if r.Num*f.Den != f.Num*r.Den {
			t.Fatalf("reduce(%s) = %s changed the value", f, r)
		}
		if g := gcd(abs(r.Num), r.Den); g != 1 {
			t.Fatalf("reduce(%s) = %s is not in lowest terms", f, r)
		}
	})
}

func TestSumHonoursMaxTerms(t *testing.T) {
	h := activate(t, capability.Limitation{Setting: MaxTermsSetting, Kind: capability.LimitTop, Limit: 3})

	got, err := call[int64](t, h, SumID, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)

	_, err = call[int64](t, h, SumID, []int64{1, 2, 3, 4})
	assert.ErrorContains(t, err, "max_terms = 4 is outside the allowed range")

	require.NoError(t, h.UpdateLimitations([]capability.Limitation{{Setting: MaxTermsSetting, Kind: capability.LimitReset}}))
	got, err = call[int64](t, h, SumID, []int64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)

	got, err = call[int64](t, h, AddID, int64(2), int64(40))
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}
