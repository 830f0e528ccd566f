// Package tomlconf loads the host configuration from TOML files.
//
//	[host]
//	plugin_dirs = ["./plugins"]
//	reprovide   = false
//
//	[[plugin]]
//	name        = "arith"
//	path        = "builtin:arith"
//	min_version = "1.0"
//
//	[[plugin.limit]]
//	setting = "max_terms"
//	top     = 16
package tomlconf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/vk/dynplug/internal/config"
	"github.com/vk/dynplug/internal/ctxlog"
	"github.com/vk/dynplug/version"
)

// Extension is the file suffix the loader picks up from directories.
const Extension = ".toml"

type fileConfig struct {
	Host    hostTable     `toml:"host"`
	Plugins []pluginTable `toml:"plugin"`
}

type hostTable struct {
	PluginDirs         []string `toml:"plugin_dirs"`
	Reprovide          bool     `toml:"reprovide"`
	StrictDependencies bool     `toml:"strict_dependencies"`
	CheckBuildInfo     bool     `toml:"check_build_info"`
	LogLevel           string   `toml:"log_level"`
	LogFormat          string   `toml:"log_format"`
}

type pluginTable struct {
	Name       string       `toml:"name"`
	Path       string       `toml:"path"`
	MinVersion string       `toml:"min_version"`
	Disabled   bool         `toml:"disabled"`
	Limits     []limitTable `toml:"limit"`
}

type limitTable struct {
	Setting string `toml:"setting"`
	Top     *int64 `toml:"top"`
	Bottom  *int64 `toml:"bottom"`
	Reset   bool   `toml:"reset"`
}

// Loader is the TOML implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new TOML configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load decodes every .toml file found under paths into one model. Unknown
// keys are an error. At most one file may carry a [host] table.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered TOML files.", "count", len(files))

	model := config.Default()
	hostFrom := ""
	for _, file := range files {
		var raw fileConfig
		meta, err := toml.DecodeFile(file, &raw)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", file, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("load config %s: unknown keys: %s", file, strings.Join(keys, ", "))
		}

		if meta.IsDefined("host") {
			if hostFrom != "" {
				return nil, fmt.Errorf("duplicate host table in %s, first defined in %s", file, hostFrom)
			}
			hostFrom = file
			overlayHost(meta, raw.Host, &model.Host)
		}
		for _, p := range raw.Plugins {
			spec, err := translatePlugin(p)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			model.Plugins = append(model.Plugins, spec)
		}
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("TOML loading complete.", "plugins", len(model.Plugins))
	return model, nil
}

func overlayHost(meta toml.MetaData, raw hostTable, dst *config.HostSettings) {
	if meta.IsDefined("host", "plugin_dirs") {
		dst.PluginDirs = raw.PluginDirs
	}
	if meta.IsDefined("host", "reprovide") {
		dst.Reprovide = raw.Reprovide
	}
	if meta.IsDefined("host", "strict_dependencies") {
		dst.StrictDependencies = raw.StrictDependencies
	}
	if meta.IsDefined("host", "check_build_info") {
		dst.CheckBuildInfo = raw.CheckBuildInfo
	}
	if meta.IsDefined("host", "log_level") {
		dst.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("host", "log_format") {
		dst.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
}

func translatePlugin(p pluginTable) (*config.PluginSpec, error) {
	spec := &config.PluginSpec{
		Name:     strings.TrimSpace(p.Name),
		Path:     strings.TrimSpace(p.Path),
		Disabled: p.Disabled,
	}
	if p.MinVersion != "" {
		v, err := version.Parse(p.MinVersion)
		if err != nil {
			return nil, fmt.Errorf("plugin '%s': invalid min_version: %w", spec.Name, err)
		}
		spec.MinVersion = v
	}
	for _, lt := range p.Limits {
		limits, err := config.LimitRule{
			Setting: lt.Setting,
			Top:     lt.Top,
			Bottom:  lt.Bottom,
			Reset:   lt.Reset,
		}.Limitations()
		if err != nil {
			return nil, fmt.Errorf("plugin '%s': %w", spec.Name, err)
		}
		spec.Limits = append(spec.Limits, limits...)
	}
	return spec, nil
}

// findFiles expands directories to the .toml files they contain, in
// lexical order. Missing paths are skipped.
func findFiles(paths []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(path, "*"+Extension))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}
