package loader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/manifest"
	"github.com/vk/dynplug/value"
	"github.com/vk/dynplug/version"
)

const (
	greetID = iota
	countID
	panicID
)

type greeter struct {
	*capability.Base
	calls atomic.Int64
}

func newGreeter() capability.Capability {
	g := &greeter{Base: capability.NewBase()}
	g.Manifest.Define(greetID, "greet", manifest.Fn1(func(_ context.Context, name string) (string, error) {
		g.calls.Add(1)
		if name == "" {
			return "", errors.New("empty name")
		}
		return "hello, " + name, nil
	}))
	g.Manifest.Define(countID, "count", manifest.Fn0(func(context.Context) (int64, error) {
		return g.calls.Load(), nil
	}))
	g.Manifest.Define(panicID, "panic", manifest.Fn0(func(context.Context) (value.Unit, error) {
		panic("greeter exploded")
	}))
	return g
}

type relay struct {
	*capability.Base
}

func newRelay() capability.Capability {
	r := &relay{Base: capability.NewBase()}
	r.Deps.Declare(capability.Dependency{Name: "greeter", Functions: []string{"greet"}})
	r.Manifest.Define(0, "relay", manifest.Fn1(func(ctx context.Context, name string) (string, error) {
		p, err := r.Deps.Get("greeter")
		if err != nil {
			return "", err
		}
		res, err := capability.CallByName(ctx, p, "greet", value.Wrap(name))
		if err != nil {
			return "", err
		}
		return value.Unwrap[string](res)
	}), "greeter")
	return r
}

// rawPlugin is a hand-written implementor without Base.
type rawPlugin struct {
	ret value.Value
	fns []manifest.FunctionDescriptor
}

func (p *rawPlugin) Init(context.Context, []capability.Limitation) ([]capability.Dependency, error) {
	return nil, nil
}
func (p *rawPlugin) UpdateLimitations([]capability.Limitation) error           { return nil }
func (p *rawPlugin) Provide(capability.Dependency, capability.Provider) error { return nil }
func (p *rawPlugin) Deny(capability.Dependency) error                         { return nil }
func (p *rawPlugin) Functions() []manifest.FunctionDescriptor                 { return p.fns }
func (p *rawPlugin) Types() []manifest.TypeDescriptor                         { return nil }
func (p *rawPlugin) Call(context.Context, int, []value.Value) (value.Value, error) {
	return p.ret, nil
}

var (
	greeterVersion = version.MustParse("1.2")
	relayVersion   = version.MustParse("0.1")
)

func newTestOpener() *StaticOpener {
	s := NewStaticOpener()
	s.Add("greeter", abi.Export("greeter", greeterVersion, newGreeter, abi.WithCompat(version.MustParse("1.0"))))
	s.Add("relay", abi.Export("relay", relayVersion, newRelay))
	return s
}

func newTestLoader(t *testing.T, opts ...Option) (*Loader, *StaticOpener) {
	t.Helper()
	s := newTestOpener()
	return New(append([]Option{WithOpener(s)}, opts...)...), s
}

func mustLoad(t *testing.T, l *Loader, path string) *Handle {
	t.Helper()
	h, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load %s: %v", path, err)
	}
	return h
}

func mustActivate(t *testing.T, h *Handle) {
	t.Helper()
	if _, err := h.Init(context.Background(), nil); err != nil {
		t.Fatalf("init %s: %v", h.Name(), err)
	}
}
