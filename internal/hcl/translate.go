// This file translates the HCL schema structs into the format-agnostic
// configuration model defined in the config package.

package hcl

import (
	"fmt"

	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/internal/config"
	"github.com/vk/dynplug/version"
)

// translateHost overlays the attributes present in b onto dst.
func translateHost(b *hostBlock, dst *config.HostSettings) {
	if b.PluginDirs != nil {
		dst.PluginDirs = append([]string(nil), b.PluginDirs...)
	}
	if b.Reprovide != nil {
		dst.Reprovide = *b.Reprovide
	}
	if b.StrictDependencies != nil {
		dst.StrictDependencies = *b.StrictDependencies
	}
	if b.CheckBuildInfo != nil {
		dst.CheckBuildInfo = *b.CheckBuildInfo
	}
	if b.LogLevel != nil {
		dst.LogLevel = *b.LogLevel
	}
	if b.LogFormat != nil {
		dst.LogFormat = *b.LogFormat
	}
}

// translatePlugin converts a plugin block into the agnostic model.
func translatePlugin(b *pluginBlock) (*config.PluginSpec, error) {
	spec := &config.PluginSpec{Name: b.Name, Path: b.Path}
	if b.MinVersion != nil {
		v, err := version.Parse(*b.MinVersion)
		if err != nil {
			return nil, fmt.Errorf("plugin '%s': invalid min_version: %w", b.Name, err)
		}
		spec.MinVersion = v
	}
	if b.Disabled != nil {
		spec.Disabled = *b.Disabled
	}
	for _, lb := range b.Limits {
		limits, err := translateLimit(lb)
		if err != nil {
			return nil, fmt.Errorf("plugin '%s': %w", b.Name, err)
		}
		spec.Limits = append(spec.Limits, limits...)
	}
	return spec, nil
}

func translateLimit(b *limitBlock) ([]capability.Limitation, error) {
	return config.LimitRule{
		Setting: b.Setting,
		Top:     b.Top,
		Bottom:  b.Bottom,
		Reset:   b.Reset != nil && *b.Reset,
	}.Limitations()
}
