// Package loader maps plugin libraries, negotiates their version and binds
// each registered implementor to the library that contains it.
//
// A Handle is the host's reference to one plugin. It forwards the
// capability.Capability methods to the implementor, enforces the lifecycle
// state machine and shares a reference-counted library with every other
// handle loaded from the same path. Refs obtained with Handle.Acquire let
// other plugins hold the plugin alive; the library is released exactly
// once, after the host closed every handle and every Ref was released.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/internal/ctxlog"
	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/version"
)

// Observer is notified of every handle state transition.
type Observer func(path string, s State)

// Loader opens libraries and produces handles. It is safe for concurrent
// use.
type Loader struct {
	opener    Opener
	reprovide bool
	observe   Observer

	mu   sync.Mutex
	libs map[string]*library
}

// Option configures a Loader.
type Option func(*Loader)

// WithOpener sets the library source. The default is a GoPluginOpener
// with build info checks enabled.
func WithOpener(o Opener) Option {
	return func(l *Loader) { l.opener = o }
}

// WithReprovide lets the host provide or deny an already settled
// dependency again. The replaced provider is released.
func WithReprovide(allow bool) Option {
	return func(l *Loader) { l.reprovide = allow }
}

// WithObserver installs a state transition callback.
func WithObserver(fn Observer) Option {
	return func(l *Loader) { l.observe = fn }
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		opener: GoPluginOpener{CheckBuildInfo: true},
		libs:   make(map[string]*library),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadedCount reports the libraries currently held.
func (l *Loader) LoadedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.libs)
}

// Load maps the library at path, checks its version marker and registers
// its implementor into a new Handle. On failure nothing stays mapped.
func (l *Loader) Load(ctx context.Context, path string) (*Handle, error) {
	h := newHandle(path, l.reprovide, ctxlog.FromContext(ctx).With("path", path), l.observe)
	lib, decl, err := l.load(ctx, path, h, h.setState)
	if err != nil {
		h.logger.Warn("Plugin load failed.", "error", err)
		return nil, err
	}
	h.bind(lib, decl)
	h.logger.Info("Plugin loaded.", "plugin", h.name, "version", h.version.String())
	return h, nil
}

// Lease keeps a library mapped for an implementor registered into a
// host-supplied Registrar.
type Lease struct {
	Name    string
	Version version.Version
	Compat  version.Version
	Path    string

	lib  *library
	once sync.Once
}

// Release drops the library reference. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.lib.release)
}

// LoadInto runs the load steps but hands the implementor to target. The
// implementor is valid until the returned Lease is released.
func (l *Loader) LoadInto(ctx context.Context, path string, target abi.Registrar) (*Lease, error) {
	lib, decl, err := l.load(ctx, path, target, nil)
	if err != nil {
		return nil, err
	}
	return &Lease{Name: decl.Name, Version: decl.Version, Compat: decl.Compat, Path: path, lib: lib}, nil
}

func (l *Loader) load(ctx context.Context, path string, target abi.Registrar, step func(State)) (*library, *abi.Declaration, error) {
	if step == nil {
		step = func(State) {}
	}
	lib, err := l.acquire(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	step(StateMapped)

	decl, err := declaration(path, lib.lib)
	if err == nil {
		err = abi.Check(path, decl)
	}
	if err != nil {
		lib.release()
		step(StateUnloaded)
		return nil, nil, err
	}
	step(StateVersionChecked)

	impl, err := register(path, decl)
	if err == nil {
		err = deliver(path, target, impl)
	}
	if err != nil {
		lib.release()
		step(StateUnloaded)
		return nil, nil, err
	}
	return lib, decl, nil
}

func (l *Loader) acquire(ctx context.Context, path string) (*library, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lib, ok := l.libs[path]; ok && lib.tryRetain() {
		return lib, nil
	}
	raw, err := l.opener.Open(ctx, path)
	if err != nil {
		if !errors.Is(err, plugerr.ErrLoad) && !errors.Is(err, plugerr.ErrVersionMismatch) {
			err = &plugerr.LoadError{Path: path, Err: err}
		}
		return nil, err
	}
	lib := newLibrary(path, raw, l.drop, ctxlog.FromContext(ctx))
	l.libs[path] = lib
	return lib, nil
}

func (l *Loader) drop(lib *library) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.libs[lib.path] == lib {
		delete(l.libs, lib.path)
	}
}

// register runs the plugin's registration function and collects the single
// implementor it must supply.
func register(path string, decl *abi.Declaration) (impl capability.Capability, err error) {
	defer plugerr.Recover(&err, func(p error) error {
		impl = nil
		return &plugerr.LoadError{Path: path, Err: fmt.Errorf("register: %w", p)}
	})

	var got []capability.Capability
	decl.Register(abi.RegistrarFunc(func(c capability.Capability) {
		got = append(got, c)
	}))
	switch {
	case len(got) == 0:
		return nil, plugerr.NewLoadError(path, "plugin %q did not register an implementor", decl.Name)
	case len(got) > 1:
		return nil, plugerr.NewLoadError(path, "plugin %q registered %d implementors", decl.Name, len(got))
	case got[0] == nil:
		return nil, plugerr.NewLoadError(path, "plugin %q registered a nil implementor", decl.Name)
	}
	return got[0], nil
}

func deliver(path string, target abi.Registrar, impl capability.Capability) (err error) {
	defer plugerr.Recover(&err, func(p error) error {
		return &plugerr.LoadError{Path: path, Err: fmt.Errorf("registrar: %w", p)}
	})
	target.Register(impl)
	return nil
}
