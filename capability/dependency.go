package capability

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/version"
)

// Dependency is a named request for another plugin.
type Dependency struct {
	// Name labels the request and must be unique within one plugin.
	Name string
	// Plugin is the provider's declared name. Empty means Name. For a
	// trait request it names the plugin defining the trait.
	Plugin string
	// MinVersion is the version the provider must be compatible with.
	// The zero value accepts any version.
	MinVersion version.Version
	// Functions lists function names the provider must expose. For a
	// trait request it lists the trait methods needed; empty means all.
	Functions []string
	// Optional marks requests the plugin can do without.
	Optional bool
	// Trait requests any loaded plugin implementing the trait with this
	// qualified name instead of the plugin Target itself.
	Trait string
	// AnyOf lists alternatives; the first one that can be satisfied is
	// provided. When set, Plugin, MinVersion and Functions are ignored.
	AnyOf []Dependency
	// AllOf lists requests that must all be satisfied. Each member is
	// provided on its own under its own Name; the group is active once
	// every member is, and is denied as a whole.
	AllOf []Dependency
}

// Target returns the provider name requested.
func (d Dependency) Target() string {
	if d.Plugin != "" {
		return d.Plugin
	}
	return d.Name
}

// Candidates returns the alternatives to try, in order.
func (d Dependency) Candidates() []Dependency {
	if len(d.AnyOf) > 0 {
		return d.AnyOf
	}
	return []Dependency{d}
}

// IsGroup reports whether d is an all-of request.
func (d Dependency) IsGroup() bool { return len(d.AllOf) > 0 }

// Validate checks the shape of d. Alternatives and group members must be
// plain requests with distinct names.
func (d Dependency) Validate() error {
	if d.Name == "" {
		return errors.New("dependency without a name")
	}
	if len(d.AnyOf) > 0 && len(d.AllOf) > 0 {
		return fmt.Errorf("dependency %q sets both any-of and all-of", d.Name)
	}
	seen := make(map[string]struct{})
	for _, sub := range append(append([]Dependency(nil), d.AnyOf...), d.AllOf...) {
		if len(sub.AnyOf) > 0 || len(sub.AllOf) > 0 {
			return fmt.Errorf("dependency %q: nested groups are not supported", d.Name)
		}
		if d.IsGroup() {
			if sub.Name == "" || sub.Name == d.Name {
				return fmt.Errorf("dependency %q: every member needs its own name", d.Name)
			}
			if _, dup := seen[sub.Name]; dup {
				return fmt.Errorf("dependency %q: member %q listed twice", d.Name, sub.Name)
			}
			seen[sub.Name] = struct{}{}
		}
	}
	return nil
}

func (d Dependency) String() string {
	group := func(subs []Dependency, sep string) string {
		parts := make([]string, len(subs))
		for i, a := range subs {
			parts[i] = a.String()
		}
		return strings.Join(parts, sep)
	}
	switch {
	case len(d.AnyOf) > 0:
		return fmt.Sprintf("%s(any of %s)", d.Name, group(d.AnyOf, " | "))
	case len(d.AllOf) > 0:
		return fmt.Sprintf("%s(all of %s)", d.Name, group(d.AllOf, " & "))
	}
	s := d.Target()
	if d.Trait != "" {
		s += ":" + d.Trait
	}
	if !d.MinVersion.IsZero() {
		s += ">=" + d.MinVersion.String()
	}
	return s
}

type depState struct {
	dep      Dependency
	provider Provider
	parts    map[string]Provider
	denied   bool
}

func (st *depState) complete() bool {
	return len(st.parts) == len(st.dep.AllOf)
}

// DependencySet records the dependencies a plugin declared and how the host
// settled them. The zero value is ready to use and safe for concurrent use.
type DependencySet struct {
	mu       sync.RWMutex
	order    []string
	declared map[string]*depState
	groupOf  map[string]string
}

// Declare adds dependencies to be returned from Init. Redeclaring a name
// replaces the earlier request.
func (s *DependencySet) Declare(deps ...Dependency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.declared == nil {
		s.declared = make(map[string]*depState)
		s.groupOf = make(map[string]string)
	}
	for _, d := range deps {
		if _, ok := s.declared[d.Name]; !ok {
			s.order = append(s.order, d.Name)
		}
		st := &depState{dep: d}
		if d.IsGroup() {
			st.parts = make(map[string]Provider, len(d.AllOf))
			for _, m := range d.AllOf {
				s.groupOf[m.Name] = d.Name
			}
		}
		s.declared[d.Name] = st
	}
}

// Declared returns the declared dependencies in declaration order.
func (s *DependencySet) Declared() []Dependency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Dependency, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.declared[name].dep)
	}
	return out
}

// Provide stores p for the dependency named dep.Name, which may be a plain
// request or a member of a group. A provider stored earlier for the same
// name is released.
func (s *DependencySet) Provide(dep Dependency, p Provider) error {
	s.mu.Lock()
	var old Provider
	if group, ok := s.groupOf[dep.Name]; ok {
		st := s.declared[group]
		old = st.parts[dep.Name]
		st.parts[dep.Name], st.denied = p, false
	} else {
		st, ok := s.declared[dep.Name]
		if !ok {
			s.mu.Unlock()
			return &plugerr.DependencyError{Name: dep.Name, Kind: plugerr.ErrUnknownDependency}
		}
		if st.dep.IsGroup() {
			s.mu.Unlock()
			return fmt.Errorf("dependency %q is a group: provide each member", dep.Name)
		}
		old = st.provider
		st.provider, st.denied = p, false
	}
	s.mu.Unlock()

	if old != nil && old != p {
		old.Release()
	}
	return nil
}

// Deny marks the dependency as unavailable, releasing any stored provider.
// Denying a group member denies the whole group.
func (s *DependencySet) Deny(dep Dependency) error {
	s.mu.Lock()
	name := dep.Name
	if group, ok := s.groupOf[name]; ok {
		name = group
	}
	st, ok := s.declared[name]
	if !ok {
		s.mu.Unlock()
		return &plugerr.DependencyError{Name: dep.Name, Kind: plugerr.ErrUnknownDependency}
	}
	held := st.drop()
	st.denied = true
	s.mu.Unlock()

	for _, p := range held {
		p.Release()
	}
	return nil
}

func (st *depState) drop() []Provider {
	var held []Provider
	if st.provider != nil {
		held = append(held, st.provider)
		st.provider = nil
	}
	for name, p := range st.parts {
		held = append(held, p)
		delete(st.parts, name)
	}
	return held
}

// Get returns the provider for name, a plain request or a group member. It
// fails with ErrDependencyDenied after Deny, ErrDependencyUnresolved before
// the host settled the request and ErrUnknownDependency for undeclared
// names. Groups themselves hold no single provider; use All.
func (s *DependencySet) Get(name string) (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if group, ok := s.groupOf[name]; ok {
		st := s.declared[group]
		if st.denied {
			return nil, &plugerr.DependencyError{Name: name, Kind: plugerr.ErrDependencyDenied}
		}
		p, ok := st.parts[name]
		if !ok {
			return nil, &plugerr.DependencyError{Name: name, Kind: plugerr.ErrDependencyUnresolved}
		}
		return p, nil
	}
	st, ok := s.declared[name]
	switch {
	case !ok:
		return nil, &plugerr.DependencyError{Name: name, Kind: plugerr.ErrUnknownDependency}
	case st.denied:
		return nil, &plugerr.DependencyError{Name: name, Kind: plugerr.ErrDependencyDenied}
	case st.dep.IsGroup():
		return nil, fmt.Errorf("dependency %q is a group: use All", name)
	case st.provider == nil:
		return nil, &plugerr.DependencyError{Name: name, Kind: plugerr.ErrDependencyUnresolved}
	}
	return st.provider, nil
}

// All returns the providers behind name: one for a plain request, one per
// member in member order for a group. A group with a member missing is
// unresolved.
func (s *DependencySet) All(name string) ([]Provider, error) {
	s.mu.RLock()
	st, ok := s.declared[name]
	if !ok || !st.dep.IsGroup() {
		s.mu.RUnlock()
		p, err := s.Get(name)
		if err != nil {
			return nil, err
		}
		return []Provider{p}, nil
	}
	defer s.mu.RUnlock()
	if st.denied {
		return nil, &plugerr.DependencyError{Name: name, Kind: plugerr.ErrDependencyDenied}
	}
	if !st.complete() {
		return nil, &plugerr.DependencyError{Name: name, Kind: plugerr.ErrDependencyUnresolved}
	}
	out := make([]Provider, len(st.dep.AllOf))
	for i, m := range st.dep.AllOf {
		out[i] = st.parts[m.Name]
	}
	return out, nil
}

// ReleaseAll drops every stored provider.
func (s *DependencySet) ReleaseAll() {
	s.mu.Lock()
	var held []Provider
	for _, st := range s.declared {
		held = append(held, st.drop()...)
	}
	s.mu.Unlock()

	for _, p := range held {
		p.Release()
	}
}
