package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/version"
)

// Model is the unified, format-agnostic representation of the host
// configuration.
type Model struct {
	Host    HostSettings
	Plugins []*PluginSpec
}

// HostSettings are the `host` block options.
type HostSettings struct {
	// PluginDirs are searched for *.so libraries by `plugctl inspect`.
	PluginDirs []string
	// Reprovide lets a settled dependency be provided or denied again.
	Reprovide bool
	// StrictDependencies fails the load when a required dependency cannot
	// be provided instead of denying it.
	StrictDependencies bool
	// CheckBuildInfo inspects a library's toolchain before mapping it.
	CheckBuildInfo bool
	LogLevel       string
	LogFormat      string
}

// PluginSpec is one `plugin` block.
type PluginSpec struct {
	Name       string
	Path       string
	MinVersion version.Version
	Disabled   bool
	Limits     []capability.Limitation
}

// Default returns the settings used when no configuration is given.
func Default() *Model {
	return &Model{Host: HostSettings{CheckBuildInfo: true, LogLevel: "info", LogFormat: "text"}}
}

// Plugin returns the spec named name.
func (m *Model) Plugin(name string) (*PluginSpec, bool) {
	for _, p := range m.Plugins {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Enabled returns the plugins that are not disabled, in file order.
func (m *Model) Enabled() []*PluginSpec {
	var out []*PluginSpec
	for _, p := range m.Plugins {
		if !p.Disabled {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that plugin names are unique and every plugin has a
// path. All problems are reported together.
func (m *Model) Validate() error {
	var errs []string
	seen := make(map[string]struct{})
	for i, p := range m.Plugins {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("plugin #%d has no name", i+1))
			continue
		}
		if _, dup := seen[p.Name]; dup {
			errs = append(errs, fmt.Sprintf("plugin '%s' is declared more than once", p.Name))
		}
		seen[p.Name] = struct{}{}
		if p.Path == "" {
			errs = append(errs, fmt.Sprintf("plugin '%s' has no path", p.Name))
		}
		for _, l := range p.Limits {
			if l.Setting == "" {
				errs = append(errs, fmt.Sprintf("plugin '%s' has a limit without a setting", p.Name))
			}
		}
	}
	if len(errs) > 0 {
		return errors.New("config validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}

// ParseLimitKind maps the configuration keyword to a capability.LimitKind.
func ParseLimitKind(s string) (capability.LimitKind, error) {
	switch s {
	case "top":
		return capability.LimitTop, nil
	case "bottom":
		return capability.LimitBottom, nil
	case "reset":
		return capability.LimitReset, nil
	}
	return 0, fmt.Errorf("unknown limit kind %q (want top, bottom or reset)", s)
}

// LimitRule is the bounds one configuration block sets for a setting.
type LimitRule struct {
	Setting string
	Top     *int64
	Bottom  *int64
	Reset   bool
}

// Limitations expands r in application order: a reset comes before any
// bound given alongside it.
func (r LimitRule) Limitations() ([]capability.Limitation, error) {
	var out []capability.Limitation
	if r.Reset {
		out = append(out, capability.Limitation{Setting: r.Setting, Kind: capability.LimitReset})
	}
	if r.Bottom != nil {
		out = append(out, capability.Limitation{Setting: r.Setting, Kind: capability.LimitBottom, Limit: *r.Bottom})
	}
	if r.Top != nil {
		out = append(out, capability.Limitation{Setting: r.Setting, Kind: capability.LimitTop, Limit: *r.Top})
	}
	if r.Top != nil && r.Bottom != nil && *r.Bottom > *r.Top {
		return nil, fmt.Errorf("limit '%s': bottom %d is above top %d", r.Setting, *r.Bottom, *r.Top)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("limit '%s' sets none of top, bottom or reset", r.Setting)
	}
	return out, nil
}
