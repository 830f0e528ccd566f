// Package host manages a named set of plugins on top of the loader. It
// loads them from configuration, initialises them, settles their
// dependencies against one another and unloads them again.
//
// Dependency edges are tracked in a dag.Graph. The host refuses any edge
// that would close a cycle and denies the dependency instead, since a
// reference cycle would keep every library in it mapped forever.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/internal/config"
	"github.com/vk/dynplug/internal/ctxlog"
	"github.com/vk/dynplug/internal/dag"
	"github.com/vk/dynplug/loader"
	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
	"github.com/vk/dynplug/version"
)

// Host owns one handle per loaded plugin, keyed by declared name.
type Host struct {
	loader *loader.Loader
	strict bool

	mu      sync.Mutex
	plugins map[string]*entry
	graph   *dag.Graph
}

type entry struct {
	handle *loader.Handle
	limits []capability.Limitation
	// settled maps a dependency name to its provider's name. Denied
	// dependencies map to "".
	settled map[string]string
}

// Option configures a Host.
type Option func(*Host)

// WithStrictDependencies makes InitAll fail when a required dependency
// cannot be provided, instead of denying it.
func WithStrictDependencies(strict bool) Option {
	return func(h *Host) { h.strict = strict }
}

// New creates an empty host over l.
func New(l *loader.Loader, opts ...Option) *Host {
	h := &Host{
		loader:  l,
		plugins: make(map[string]*entry),
		graph:   dag.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load maps the library spec points at and registers its plugin under the
// declared name, which must equal spec.Name. When spec.MinVersion is set
// the plugin must be compatible with it. On error nothing is kept.
func (h *Host) Load(ctx context.Context, spec *config.PluginSpec) (*loader.Handle, error) {
	logger := ctxlog.FromContext(ctx).With("plugin", spec.Name)

	handle, err := h.loader.Load(ctx, spec.Path)
	if err != nil {
		return nil, fmt.Errorf("plugin '%s': %w", spec.Name, err)
	}
	if err := checkSpec(spec, handle); err != nil {
		handle.Close()
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := h.plugins[handle.Name()]; dup {
		handle.Close()
		return nil, fmt.Errorf("plugin '%s' is already loaded", spec.Name)
	}
	h.plugins[handle.Name()] = &entry{
		handle:  handle,
		limits:  slices.Clone(spec.Limits),
		settled: make(map[string]string),
	}
	h.graph.AddNode(handle.Name())
	logger.Debug("Plugin added to host.", "path", spec.Path, "version", handle.Version().String())
	return handle, nil
}

func checkSpec(spec *config.PluginSpec, handle *loader.Handle) error {
	if handle.Name() != spec.Name {
		return fmt.Errorf("plugin '%s': library %s declares plugin %q", spec.Name, spec.Path, handle.Name())
	}
	if !spec.MinVersion.IsZero() && !version.Satisfies(handle.Version(), handle.Compat(), spec.MinVersion) {
		return &plugerr.VersionMismatchError{
			Path:  spec.Path,
			Field: "version",
			Want:  spec.MinVersion.String(),
			Got:   fmt.Sprintf("%s (compatible from %s)", handle.Version(), handle.Compat()),
		}
	}
	return nil
}

// LoadAll loads every enabled plugin of m in order. It stops at the first
// failure; plugins loaded before it stay loaded.
func (h *Host) LoadAll(ctx context.Context, m *config.Model) error {
	for _, spec := range m.Enabled() {
		if _, err := h.Load(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// InitAll initialises every plugin still in the Registered state, then
// settles their dependencies in dependency order. A plugin whose Init
// fails is unloaded and reported; the others keep going.
func (h *Host) InitAll(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []error

	for _, name := range h.Names() {
		e, ok := h.entry(name)
		if !ok || e.handle.State() != loader.StateRegistered {
			continue
		}
		if _, err := e.handle.Init(ctx, e.limits); err != nil {
			logger.Error("Plugin failed to initialise.", "plugin", name, "error", err)
			h.remove(name)
			errs = append(errs, err)
		}
	}
	if err := h.resolve(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// assignment pairs a request handed to the consumer with the plugin that
// serves it. Group members get one assignment each.
type assignment struct {
	dep      capability.Dependency
	provider string
}

// resolve chooses providers for every pending dependency, records the
// edges, then hands the providers over with providers settled before
// their consumers.
func (h *Host) resolve(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	type decision struct {
		dep     capability.Dependency
		assigns []assignment
		reason  string
	}
	plan := make(map[string][]decision)

	for _, name := range h.Names() {
		e, ok := h.entry(name)
		if !ok {
			continue
		}
		for _, dep := range e.handle.Pending() {
			assigns, reason := h.choose(name, dep)
			for _, a := range assigns {
				if err := h.graph.AddEdge(a.provider, name); err != nil {
					return fmt.Errorf("plugin '%s': %w", name, err)
				}
			}
			plan[name] = append(plan[name], decision{dep: dep, assigns: assigns, reason: reason})
		}
	}

	order, err := h.graph.TopologicalSort()
	if err != nil {
		return fmt.Errorf("dependency graph: %w", err)
	}

	var errs []error
	for _, name := range order {
		e, ok := h.entry(name)
		if !ok {
			continue
		}
		for _, d := range plan[name] {
			if len(d.assigns) == 0 {
				if h.strict && !d.dep.Optional {
					errs = append(errs, fmt.Errorf("plugin '%s': %w (%s)", name,
						&plugerr.DependencyError{Name: d.dep.Name, Kind: plugerr.ErrDependencyUnresolved}, d.reason))
					continue
				}
				logger.Warn("Denying dependency.", "plugin", name, "dependency", d.dep.String(), "reason", d.reason)
				if err := h.deny(name, e, d.dep); err != nil {
					errs = append(errs, err)
				}
				continue
			}
			for _, a := range d.assigns {
				if err := h.provide(ctx, name, e, a.dep, a.provider); err != nil {
					errs = append(errs, err)
					if d.dep.IsGroup() {
						if err := h.deny(name, e, d.dep); err != nil {
							errs = append(errs, err)
						}
					}
					break
				}
			}
			h.dropUnusedEdges(name, d.assigns)
		}
	}
	return errors.Join(errs...)
}

func (h *Host) deny(name string, e *entry, dep capability.Dependency) error {
	if err := e.handle.Deny(dep); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range dep.AllOf {
		delete(e.settled, m.Name)
	}
	e.settled[dep.Name] = ""
	return nil
}

// dropUnusedEdges removes the edges of assigns that no settled dependency
// of consumer still relies on.
func (h *Host) dropUnusedEdges(consumer string, assigns []assignment) {
	for _, a := range assigns {
		if !h.usesProvider(consumer, a.provider) {
			h.graph.RemoveEdge(a.provider, consumer)
		}
	}
}

func (h *Host) usesProvider(consumer, provider string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.plugins[consumer]
	if !ok {
		return false
	}
	for _, p := range e.settled {
		if p == provider {
			return true
		}
	}
	return false
}

func (h *Host) provide(ctx context.Context, name string, e *entry, dep capability.Dependency, provider string) error {
	pe, ok := h.entry(provider)
	if !ok {
		return fmt.Errorf("plugin '%s': provider '%s' is gone", name, provider)
	}
	ref, err := pe.handle.Acquire()
	if err != nil {
		return fmt.Errorf("plugin '%s': %w", name, err)
	}
	if err := e.handle.Provide(dep, ref); err != nil {
		ref.Release()
		return err
	}
	h.record(name, dep.Name, provider)
	ctxlog.FromContext(ctx).Debug("Dependency provided.", "plugin", name, "dependency", dep.Name, "provider", provider)
	return nil
}

// choose assigns a provider to dep, one per member for a group, or returns
// the reason it cannot. A group is assigned only when every member can be.
func (h *Host) choose(consumer string, dep capability.Dependency) ([]assignment, string) {
	if !dep.IsGroup() {
		target, reason := h.pick(consumer, dep)
		if target == "" {
			return nil, reason
		}
		return []assignment{{dep: dep, provider: target}}, ""
	}
	assigns := make([]assignment, 0, len(dep.AllOf))
	for _, m := range dep.AllOf {
		target, reason := h.pick(consumer, m)
		if target == "" {
			return nil, fmt.Sprintf("member %s: %s", m.Name, reason)
		}
		assigns = append(assigns, assignment{dep: m, provider: target})
	}
	return assigns, ""
}

// pick returns the first candidate of dep that a loaded plugin can serve,
// or the reason none can.
func (h *Host) pick(consumer string, dep capability.Dependency) (string, string) {
	var reasons []string
	for _, c := range dep.Candidates() {
		if c.Trait != "" {
			target, err := h.implementor(consumer, c)
			if err != nil {
				reasons = append(reasons, fmt.Sprintf("%s:%s: %v", c.Target(), c.Trait, err))
				continue
			}
			return target, ""
		}
		if err := h.satisfies(consumer, c); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", c.Target(), err))
			continue
		}
		return c.Target(), ""
	}
	return "", strings.Join(reasons, "; ")
}

// usable returns the entry of name if it is initialised or active.
func (h *Host) usable(name string) (*entry, error) {
	e, ok := h.entry(name)
	if !ok {
		return nil, errors.New("not loaded")
	}
	switch e.handle.State() {
	case loader.StateInitialized, loader.StateActive:
		return e, nil
	}
	return nil, fmt.Errorf("provider is %s", e.handle.State())
}

func (h *Host) satisfies(consumer string, c capability.Dependency) error {
	target := c.Target()
	e, err := h.usable(target)
	if err != nil {
		return err
	}
	if !c.MinVersion.IsZero() && !version.Satisfies(e.handle.Version(), e.handle.Compat(), c.MinVersion) {
		return fmt.Errorf("version %s does not serve %s", e.handle.Version(), c.MinVersion)
	}
	if len(c.Functions) > 0 {
		ref, err := e.handle.Acquire()
		if err != nil {
			return err
		}
		defer ref.Release()
		if err := capability.Exposes(ref, c.Functions); err != nil {
			return err
		}
	}
	if h.graph.WouldCycle(target, consumer) {
		return errors.New("would close a dependency cycle")
	}
	return nil
}

// implementor finds a plugin implementing the trait c.Trait as defined by
// c.Target(), whose version c.MinVersion constrains. The defining plugin is
// tried first, then every other plugin by name. The consumer itself never
// serves its own request.
func (h *Host) implementor(consumer string, c capability.Dependency) (string, error) {
	definer := c.Target()
	de, err := h.usable(definer)
	if err != nil {
		return "", fmt.Errorf("definer %s", err)
	}
	if !c.MinVersion.IsZero() && !version.Satisfies(de.handle.Version(), de.handle.Compat(), c.MinVersion) {
		return "", fmt.Errorf("definer version %s does not serve %s", de.handle.Version(), c.MinVersion)
	}
	ix, err := de.handle.Index()
	if err != nil {
		return "", err
	}
	trait, ok := ix.Trait(c.Trait)
	if !ok {
		return "", fmt.Errorf("plugin '%s' defines no trait '%s'", definer, c.Trait)
	}

	candidates := []string{definer}
	for _, name := range h.Names() {
		if name != definer {
			candidates = append(candidates, name)
		}
	}
	var reasons []string
	for _, name := range candidates {
		if name == consumer {
			continue
		}
		e, err := h.usable(name)
		if err != nil {
			continue
		}
		cix, err := e.handle.Index()
		if err != nil {
			continue
		}
		if _, err := cix.Implements(trait, c.Functions...); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if h.graph.WouldCycle(name, consumer) {
			reasons = append(reasons, fmt.Sprintf("%s: would close a dependency cycle", name))
			continue
		}
		return name, nil
	}
	if len(reasons) == 0 {
		return "", fmt.Errorf("no implementor of '%s': %w", c.Trait, plugerr.ErrNotImplemented)
	}
	return "", fmt.Errorf("no implementor of '%s': %s", c.Trait, strings.Join(reasons, "; "))
}

func (h *Host) record(consumer, dep, provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.plugins[consumer]; ok {
		e.settled[dep] = provider
	}
}

func (h *Host) entry(name string) (*entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.plugins[name]
	return e, ok
}

// Get returns the handle of the plugin called name.
func (h *Host) Get(name string) (*loader.Handle, bool) {
	e, ok := h.entry(name)
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Names returns the loaded plugin names, sorted.
func (h *Host) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.plugins))
	for name := range h.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call looks function up by name on plugin and calls it.
func (h *Host) Call(ctx context.Context, plugin, function string, args ...value.Value) (value.Value, error) {
	e, ok := h.entry(plugin)
	if !ok {
		return value.Value{}, fmt.Errorf("plugin '%s' is not loaded", plugin)
	}
	ix, err := e.handle.Index()
	if err != nil {
		return value.Value{}, err
	}
	fd, err := ix.Lookup(function)
	if err != nil {
		return value.Value{}, fmt.Errorf("plugin '%s': %w", plugin, err)
	}
	return e.handle.Call(ctx, fd.ID, args)
}

// UpdateLimitations forwards limits to an initialised plugin.
func (h *Host) UpdateLimitations(name string, limits []capability.Limitation) error {
	e, ok := h.entry(name)
	if !ok {
		return fmt.Errorf("plugin '%s' is not loaded", name)
	}
	return e.handle.UpdateLimitations(limits)
}

// Unload closes the host's handle on name. Consumers holding a reference
// keep the library mapped until they release it.
func (h *Host) Unload(ctx context.Context, name string) error {
	if !h.remove(name) {
		return fmt.Errorf("plugin '%s' is not loaded", name)
	}
	ctxlog.FromContext(ctx).Debug("Plugin removed from host.", "plugin", name)
	return nil
}

func (h *Host) remove(name string) bool {
	h.mu.Lock()
	e, ok := h.plugins[name]
	if ok {
		delete(h.plugins, name)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}
	h.graph.RemoveNode(name)
	e.handle.Close()
	return true
}

// Shutdown unloads every plugin, consumers before their providers.
func (h *Host) Shutdown(ctx context.Context) {
	order, err := h.graph.TopologicalSort()
	if err != nil {
		order = h.Names()
	}
	slices.Reverse(order)
	for _, name := range order {
		h.remove(name)
	}
	ctxlog.FromContext(ctx).Info("Host shut down.", "unloaded", len(order))
}

// Info is a snapshot of one plugin.
type Info struct {
	Name    string
	Version version.Version
	Path    string
	State   loader.State
	Refs    int
	// Provided maps dependency names to provider plugins.
	Provided map[string]string
	// Denied lists denied dependency names, sorted.
	Denied []string
	// Pending lists dependencies still waiting to be settled.
	Pending []string
	// Dependents lists the plugins consuming this one, sorted.
	Dependents []string
}

// Plugins returns a snapshot of every loaded plugin, sorted by name.
func (h *Host) Plugins() []Info {
	var out []Info
	for _, name := range h.Names() {
		e, ok := h.entry(name)
		if !ok {
			continue
		}
		info := Info{
			Name:     name,
			Version:  e.handle.Version(),
			Path:     e.handle.Path(),
			State:    e.handle.State(),
			Refs:     e.handle.Refs(),
			Provided: make(map[string]string),
		}
		h.mu.Lock()
		for dep, provider := range e.settled {
			if provider == "" {
				info.Denied = append(info.Denied, dep)
			} else {
				info.Provided[dep] = provider
			}
		}
		h.mu.Unlock()
		sort.Strings(info.Denied)
		for _, d := range e.handle.Pending() {
			info.Pending = append(info.Pending, d.Name)
		}
		info.Dependents, _ = h.graph.Dependents(name)
		out = append(out, info)
	}
	return out
}

// LogValue lets an Info be logged as a group.
func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", i.Name),
		slog.String("version", i.Version.String()),
		slog.String("state", i.State.String()),
		slog.Int("refs", i.Refs),
	)
}
