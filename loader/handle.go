package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/manifest"
	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
	"github.com/vk/dynplug/version"
)

type depSlot struct {
	dep      capability.Dependency
	settled  bool
	provider capability.Provider
	// parts holds the providers of a group's members by member name.
	parts map[string]capability.Provider
}

func (s *depSlot) drop() []capability.Provider {
	var held []capability.Provider
	if s.provider != nil {
		held = append(held, s.provider)
		s.provider = nil
	}
	for name, p := range s.parts {
		held = append(held, p)
		delete(s.parts, name)
	}
	return held
}

// Handle is the host's reference to one loaded plugin. It implements
// capability.Capability by forwarding to the plugin's implementor after
// checking the lifecycle state and the call contract. Lifecycle methods
// are serialised; Call is not.
type Handle struct {
	path      string
	name      string
	version   version.Version
	compat    version.Version
	lib       *library
	impl      capability.Capability
	reprovide bool
	logger    *slog.Logger
	observe   Observer

	state     atomic.Int32
	refs      atomic.Int32
	closed    atomic.Bool
	closeOnce sync.Once
	index     atomic.Pointer[manifest.Index]

	mu         sync.Mutex
	initCalled bool
	deps       map[string]*depSlot
	groupOf    map[string]string
	order      []string
	pending    int
}

func newHandle(path string, reprovide bool, logger *slog.Logger, observe Observer) *Handle {
	return &Handle{path: path, reprovide: reprovide, logger: logger, observe: observe}
}

func (h *Handle) bind(lib *library, decl *abi.Declaration) {
	h.lib = lib
	h.name = decl.Name
	h.version = decl.Version
	h.compat = decl.Compat
	h.logger = h.logger.With("plugin", decl.Name)
	h.refs.Store(1)
}

// Register stores the implementor. The loader calls it once during Load.
func (h *Handle) Register(c capability.Capability) {
	h.mu.Lock()
	if h.impl != nil {
		h.mu.Unlock()
		h.logger.Warn("Ignoring repeated registration.")
		return
	}
	h.impl = c
	h.mu.Unlock()
	h.setState(StateRegistered)
}

func (h *Handle) setState(s State) {
	from := State(h.state.Swap(int32(s)))
	h.logger.Debug("Plugin state changed.", "from", from.String(), "to", s.String())
	if h.observe != nil {
		h.observe(h.path, s)
	}
}

// Name returns the declared plugin name.
func (h *Handle) Name() string { return h.name }

// Version returns the declared plugin version.
func (h *Handle) Version() version.Version { return h.version }

// Compat returns the oldest version the plugin is compatible with.
func (h *Handle) Compat() version.Version { return h.compat }

// Path returns the path the plugin was loaded from.
func (h *Handle) Path() string { return h.path }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Refs reports the outstanding references: the host's own, until Close,
// plus every unreleased Ref.
func (h *Handle) Refs() int { return int(h.refs.Load()) }

// Closed reports whether the host closed this handle.
func (h *Handle) Closed() bool { return h.closed.Load() }

func (h *Handle) stateError(kind error) error {
	return &plugerr.StateError{Plugin: h.name, State: h.State().String(), Kind: kind}
}

// requireInitialized checks that Init succeeded and the handle is open.
func (h *Handle) requireInitialized() error {
	if h.closed.Load() {
		return h.stateError(plugerr.ErrUnloaded)
	}
	switch h.State() {
	case StateInitialized, StateActive:
		return nil
	case StateUnloading, StateUnloaded:
		return h.stateError(plugerr.ErrUnloaded)
	}
	return h.stateError(plugerr.ErrNotInitialized)
}

// Init calls the implementor's Init exactly once, caches its manifest and
// records the requested dependencies. A plugin that requests none becomes
// active immediately.
func (h *Handle) Init(ctx context.Context, limits []capability.Limitation) ([]capability.Dependency, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed.Load() {
		return nil, h.stateError(plugerr.ErrUnloaded)
	}
	if h.initCalled {
		return nil, h.stateError(plugerr.ErrAlreadyInitialized)
	}
	if h.State() != StateRegistered {
		return nil, h.stateError(plugerr.ErrNotInitialized)
	}
	h.initCalled = true

	deps, err := h.initImpl(ctx, limits)
	if err != nil {
		return nil, fmt.Errorf("init plugin %q: %w", h.name, err)
	}
	ix, err := h.readManifest()
	if err != nil {
		return nil, fmt.Errorf("init plugin %q: %w", h.name, err)
	}

	h.deps = make(map[string]*depSlot, len(deps))
	h.groupOf = make(map[string]string)
	h.order = h.order[:0]
	names := make(map[string]struct{})
	claim := func(name string) error {
		if _, dup := names[name]; dup {
			return fmt.Errorf("init plugin %q: dependency %q declared twice", h.name, name)
		}
		names[name] = struct{}{}
		return nil
	}
	for _, d := range deps {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("init plugin %q: %w", h.name, err)
		}
		if err := claim(d.Name); err != nil {
			return nil, err
		}
		slot := &depSlot{dep: d}
		if d.IsGroup() {
			slot.parts = make(map[string]capability.Provider, len(d.AllOf))
			for _, m := range d.AllOf {
				if err := claim(m.Name); err != nil {
					return nil, err
				}
				h.groupOf[m.Name] = d.Name
			}
		}
		h.deps[d.Name] = slot
		h.order = append(h.order, d.Name)
	}
	h.pending = len(deps)
	h.index.Store(ix)

	h.setState(StateInitialized)
	if h.pending == 0 {
		h.setState(StateActive)
	}
	return append([]capability.Dependency(nil), deps...), nil
}

func (h *Handle) initImpl(ctx context.Context, limits []capability.Limitation) (deps []capability.Dependency, err error) {
	defer plugerr.Recover(&err, func(p error) error {
		deps = nil
		return &plugerr.ExecutionError{Function: "Init", Err: p}
	})
	return h.impl.Init(ctx, limits)
}

func (h *Handle) readManifest() (ix *manifest.Index, err error) {
	defer plugerr.Recover(&err, func(p error) error {
		ix = nil
		return &plugerr.ExecutionError{Function: "Functions", Err: p}
	})
	fns, types := h.impl.Functions(), h.impl.Types()
	var traits []manifest.TraitDescriptor
	if td, ok := h.impl.(capability.TraitDefiner); ok {
		traits = td.Traits()
	}
	if err := manifest.Validate(fns, types, traits...); err != nil {
		return nil, err
	}
	return manifest.NewIndex(fns, types, traits...), nil
}

// Dependencies returns the dependencies requested by Init, in order.
func (h *Handle) Dependencies() []capability.Dependency {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]capability.Dependency, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.deps[name].dep)
	}
	return out
}

// Pending returns the dependencies not yet provided or denied. A group
// that is partly provided lists only its missing members.
func (h *Handle) Pending() []capability.Dependency {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []capability.Dependency
	for _, name := range h.order {
		s := h.deps[name]
		if s.settled {
			continue
		}
		d := s.dep
		if d.IsGroup() && len(s.parts) > 0 {
			missing := make([]capability.Dependency, 0, len(d.AllOf)-len(s.parts))
			for _, m := range d.AllOf {
				if _, ok := s.parts[m.Name]; !ok {
					missing = append(missing, m)
				}
			}
			d.AllOf = missing
		}
		out = append(out, d)
	}
	return out
}

// UpdateLimitations forwards new limitations to the implementor.
func (h *Handle) UpdateLimitations(limits []capability.Limitation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requireInitialized(); err != nil {
		return err
	}
	return h.forward("UpdateLimitations", func() error { return h.impl.UpdateLimitations(limits) })
}

// Provide hands p to the implementor for the dependency named dep.Name,
// a plain request or a member of a group. A group becomes settled once
// every member was provided. On success the handle keeps track of p and
// releases it when the plugin is torn down. On failure the caller still
// owns p.
func (h *Handle) Provide(dep capability.Dependency, p capability.Provider) error {
	old, err := h.settle("Provide", dep, p, func() error { return h.impl.Provide(dep, p) })
	for _, o := range old {
		if o != p {
			o.Release()
		}
	}
	return err
}

// Deny tells the implementor that dep cannot be satisfied. Denying a group
// member denies the whole group and releases its members' providers.
func (h *Handle) Deny(dep capability.Dependency) error {
	old, err := h.settle("Deny", dep, nil, func() error { return h.impl.Deny(dep) })
	for _, o := range old {
		o.Release()
	}
	return err
}

func (h *Handle) settle(method string, dep capability.Dependency, p capability.Provider, fn func() error) ([]capability.Provider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireInitialized(); err != nil {
		return nil, err
	}
	slotName, member := dep.Name, false
	if group, ok := h.groupOf[dep.Name]; ok {
		slotName, member = group, true
	}
	slot, ok := h.deps[slotName]
	if !ok {
		return nil, &plugerr.DependencyError{Name: dep.Name, Kind: plugerr.ErrUnknownDependency}
	}
	if p != nil && slot.dep.IsGroup() && !member {
		return nil, fmt.Errorf("dependency %q is a group: provide each member", dep.Name)
	}
	resolved := slot.settled
	if member && p != nil && !resolved {
		_, resolved = slot.parts[dep.Name]
	}
	if resolved && !h.reprovide {
		return nil, &plugerr.DependencyError{Name: dep.Name, Kind: plugerr.ErrAlreadyResolved}
	}
	if err := h.forward(method, fn); err != nil {
		return nil, err
	}

	var old []capability.Provider
	switch {
	case p == nil:
		old = slot.drop()
		h.logger.Warn("Dependency denied.", "dependency", slotName)
		h.markSettled(slot)
	case member:
		if prev, ok := slot.parts[dep.Name]; ok {
			old = append(old, prev)
		}
		slot.parts[dep.Name] = p
		h.logger.Debug("Dependency provided.", "dependency", dep.Name, "group", slotName, "provider", p.Name())
		if len(slot.parts) == len(slot.dep.AllOf) {
			h.markSettled(slot)
		}
	default:
		if slot.provider != nil {
			old = append(old, slot.provider)
		}
		slot.provider = p
		h.logger.Debug("Dependency provided.", "dependency", dep.Name, "provider", p.Name())
		h.markSettled(slot)
	}
	return old, nil
}

func (h *Handle) markSettled(slot *depSlot) {
	if slot.settled {
		return
	}
	slot.settled = true
	h.pending--
	if h.pending == 0 && h.State() == StateInitialized {
		h.setState(StateActive)
	}
}

func (h *Handle) forward(method string, fn func() error) (err error) {
	defer plugerr.Recover(&err, func(p error) error {
		return &plugerr.ExecutionError{Function: method, Err: p}
	})
	return fn()
}

// Functions returns the cached function list, or nil before Init and
// after Close.
func (h *Handle) Functions() []manifest.FunctionDescriptor {
	ix, err := h.Index()
	if err != nil {
		return nil
	}
	return ix.Functions()
}

// Types returns the cached type list, or nil before Init and after Close.
func (h *Handle) Types() []manifest.TypeDescriptor {
	ix, err := h.Index()
	if err != nil {
		return nil
	}
	return ix.Types()
}

// Traits returns the cached trait list, or nil before Init and after Close.
func (h *Handle) Traits() []manifest.TraitDescriptor {
	ix, err := h.Index()
	if err != nil {
		return nil
	}
	return ix.Traits()
}

// Index returns the manifest indexes cached at Init.
func (h *Handle) Index() (*manifest.Index, error) {
	if err := h.requireInitialized(); err != nil {
		return nil, err
	}
	return h.index.Load(), nil
}

// Call invokes the function with the given id. The handle checks the id,
// the arity and the argument types before the implementor runs, and the
// declared return type afterwards.
func (h *Handle) Call(ctx context.Context, id int, args []value.Value) (value.Value, error) {
	if h.closed.Load() {
		return value.Value{}, h.stateError(plugerr.ErrUnloaded)
	}
	return h.call(ctx, id, args)
}

func (h *Handle) call(ctx context.Context, id int, args []value.Value) (res value.Value, err error) {
	switch h.State() {
	case StateActive:
	case StateRegistered:
		return value.Value{}, h.stateError(plugerr.ErrNotInitialized)
	case StateInitialized:
		return value.Value{}, h.stateError(plugerr.ErrNotActive)
	default:
		return value.Value{}, h.stateError(plugerr.ErrUnloaded)
	}

	desc, err := h.index.Load().Function(id)
	if err != nil {
		return value.Value{}, err
	}
	if err := manifest.CheckArgs(desc, args); err != nil {
		return value.Value{}, err
	}

	defer plugerr.Recover(&err, func(p error) error {
		res = value.Value{}
		return &plugerr.ExecutionError{Function: desc.Name, Err: p}
	})
	res, err = h.impl.Call(ctx, id, args)
	if err != nil {
		return value.Value{}, err
	}
	if desc.Return.Accepts(res) != nil {
		return value.Value{}, &plugerr.ExecutionError{
			Function: desc.Name,
			Err:      fmt.Errorf("returned %s, declared %s", res.Type(), desc.Return),
		}
	}
	return res, nil
}

// Acquire returns a counted reference for handing to another plugin. It
// fails once the host closed the handle.
func (h *Handle) Acquire() (*Ref, error) {
	if h.closed.Load() || !h.tryRetain() {
		return nil, h.stateError(plugerr.ErrUnloaded)
	}
	return &Ref{h: h}, nil
}

func (h *Handle) tryRetain() bool {
	for {
		n := h.refs.Load()
		if n <= 0 {
			return false
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Close drops the host's reference. The plugin is torn down and its
// library released once no Ref remains. Later host-side calls fail with
// plugerr.ErrUnloaded. Close is idempotent.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.logger.Debug("Plugin handle closed.", "refs", h.refs.Load()-1)
		h.decRef()
	})
}

func (h *Handle) decRef() {
	n := h.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic(fmt.Sprintf("plugin %s released more times than acquired", h.name))
	}
	h.teardown()
}

func (h *Handle) teardown() {
	h.setState(StateUnloading)

	h.mu.Lock()
	var held []capability.Provider
	for _, name := range h.order {
		held = append(held, h.deps[name].drop()...)
	}
	h.mu.Unlock()

	for _, p := range held {
		p.Release()
	}
	h.lib.release()
	h.setState(StateUnloaded)
	h.logger.Info("Plugin unloaded.")
}

var (
	_ capability.Capability = (*Handle)(nil)
	_ abi.Registrar         = (*Handle)(nil)
)
