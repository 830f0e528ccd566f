// Package arith is a builtin plugin doing integer and fraction arithmetic.
// It declares the Fraction type and honours the "max_terms" limit.
package arith

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/internal/ctxlog"
	"github.com/vk/dynplug/manifest"
	"github.com/vk/dynplug/value"
	"github.com/vk/dynplug/version"
)

// Name is the declared plugin name.
const Name = "arith"

// Function ids.
const (
	AddID = iota
	SumID
	ReduceID
	MulID
	DivID
)

// FractionTypeID is the manifest id of Fraction.
const FractionTypeID = 0

// MaxTermsSetting bounds the number of terms Sum accepts.
const MaxTermsSetting = "max_terms"

var (
	// Version is the plugin version.
	Version = version.MustParse("1.2")
	// Compat is the oldest version this release still serves.
	Compat = version.MustParse("1.0")
)

// Declaration is exported by the shared-library build and added to the
// builtin table by the host.
var Declaration = abi.Export(Name, Version, New, abi.WithCompat(Compat))

// Fraction is a rational number. Results are always reduced with a
// positive denominator.
type Fraction struct {
	Num int64 `cty:"num"`
	Den int64 `cty:"den"`
}

func (f Fraction) String() string { return fmt.Sprintf("%d/%d", f.Num, f.Den) }

// FractionModule groups the fraction functions and type.
const FractionModule = "fraction"

var (
	errZeroDenominator = errors.New("zero denominator")
	errOverflow        = errors.New("fraction overflows int64")
)

type plugin struct {
	*capability.Base
}

// New returns a fresh arith plugin.
func New() capability.Capability {
	p := &plugin{Base: capability.NewBase()}
	p.Manifest.Define(AddID, "add", manifest.Fn2(add))
	p.Manifest.Define(SumID, "sum", manifest.Fn1(p.sum))

	frac := p.Manifest.Module(FractionModule)
	frac.DefineType(FractionTypeID, "Fraction", value.TypeOf[Fraction]())
	frac.Define(ReduceID, "reduce", manifest.Fn1(reduceFraction))
	frac.Define(MulID, "mul", manifest.Fn2(mul))
	frac.Define(DivID, "div", manifest.Fn2(div))
	return p
}

func add(_ context.Context, a, b int64) (int64, error) {
	return a + b, nil
}

func (p *plugin) sum(ctx context.Context, terms []int64) (int64, error) {
	if err := p.Limits.Check(MaxTermsSetting, int64(len(terms))); err != nil {
		return 0, err
	}
	ctxlog.FromContext(ctx).Debug("Summing terms.", "count", len(terms))
	var total int64
	for _, t := range terms {
		total += t
	}
	return total, nil
}

func reduceFraction(_ context.Context, f Fraction) (Fraction, error) {
	return reduce(f)
}

func mul(_ context.Context, a, b Fraction) (Fraction, error) {
	num, ok1 := mul64(a.Num, b.Num)
	den, ok2 := mul64(a.Den, b.Den)
	if !ok1 || !ok2 {
		return Fraction{}, fmt.Errorf("multiply %s by %s: %w", a, b, errOverflow)
	}
	return reduce(Fraction{Num: num, Den: den})
}

func div(_ context.Context, a, b Fraction) (Fraction, error) {
	if b.Num == 0 {
		return Fraction{}, fmt.Errorf("divide %s by zero", a)
	}
	num, ok1 := mul64(a.Num, b.Den)
	den, ok2 := mul64(a.Den, b.Num)
	if !ok1 || !ok2 {
		return Fraction{}, fmt.Errorf("divide %s by %s: %w", a, b, errOverflow)
	}
	return reduce(Fraction{Num: num, Den: den})
}

// reduce brings f to lowest terms with a positive denominator. A field of
// math.MinInt64 has no positive counterpart and is rejected.
func reduce(f Fraction) (Fraction, error) {
	if f.Den == 0 {
		return Fraction{}, errZeroDenominator
	}
	if f.Num == math.MinInt64 || f.Den == math.MinInt64 {
		return Fraction{}, fmt.Errorf("reduce %s: %w", f, errOverflow)
	}
	if f.Den < 0 {
		f.Num, f.Den = -f.Num, -f.Den
	}
	if g := gcd(abs(f.Num), f.Den); g > 1 {
		f.Num, f.Den = f.Num/g, f.Den/g
	}
	return f, nil
}

func mul64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) || c/b != a {
		return 0, false
	}
	return c, true
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// abs expects n > math.MinInt64.
func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
