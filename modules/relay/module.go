// Package relay is a builtin plugin that does its work through other
// plugins. It requires arith and can use print when the host provides it.
package relay

import (
	"context"
	"errors"

	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/manifest"
	"github.com/vk/dynplug/modules/arith"
	prnt "github.com/vk/dynplug/modules/print"
	"github.com/vk/dynplug/value"
	"github.com/vk/dynplug/version"
)

// Name is the declared plugin name.
const Name = "relay"

// Function ids.
const (
	TotalID = iota
	AverageID
	AnnounceID
)

// Version is the plugin version.
var Version = version.MustParse("0.3")

// Declaration is the builtin and shared-library export.
var Declaration = abi.Export(Name, Version, New)

// Dependencies requested from the host.
var (
	ArithDependency = capability.Dependency{
		Name:       arith.Name,
		MinVersion: version.MustParse("1.0"),
		Functions:  []string{"sum", "reduce"},
	}
	PrintDependency = capability.Dependency{
		Name:      prnt.Name,
		Functions: []string{"print"},
		Optional:  true,
	}
)

type plugin struct {
	*capability.Base
}

// New returns a relay plugin.
func New() capability.Capability {
	p := &plugin{Base: capability.NewBase()}
	p.Deps.Declare(ArithDependency, PrintDependency)
	p.Manifest.DefineType(0, "Fraction", value.TypeOf[arith.Fraction]())
	p.Manifest.Define(TotalID, "total", manifest.Fn1(p.total), arith.Name)
	p.Manifest.Define(AverageID, "average", manifest.Fn1(p.average), arith.Name)
	p.Manifest.Define(AnnounceID, "announce", manifest.Fn1(p.announce), prnt.Name)
	return p
}

func (p *plugin) total(ctx context.Context, terms []int64) (int64, error) {
	return p.sum(ctx, terms)
}

func (p *plugin) average(ctx context.Context, terms []int64) (arith.Fraction, error) {
	if len(terms) == 0 {
		return arith.Fraction{}, errors.New("average of no terms")
	}
	s, err := p.sum(ctx, terms)
	if err != nil {
		return arith.Fraction{}, err
	}
	return callAs[arith.Fraction](ctx, p, arith.Name, "reduce", value.Wrap(arith.Fraction{Num: s, Den: int64(len(terms))}))
}

func (p *plugin) sum(ctx context.Context, terms []int64) (int64, error) {
	return callAs[int64](ctx, p, arith.Name, "sum", value.Wrap(terms))
}

func (p *plugin) announce(ctx context.Context, msg string) (value.Unit, error) {
	return callAs[value.Unit](ctx, p, prnt.Name, "print", value.Wrap(map[string]string{"message": msg}))
}

func callAs[T any](ctx context.Context, p *plugin, dep, fn string, args ...value.Value) (T, error) {
	var zero T
	provider, err := p.Deps.Get(dep)
	if err != nil {
		return zero, err
	}
	res, err := capability.CallByName(ctx, provider, fn, args...)
	if err != nil {
		return zero, err
	}
	return value.Unwrap[T](res)
}
