package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Host    *hostBlock     `hcl:"host,block"`
	Plugins []*pluginBlock `hcl:"plugin,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

type hostBlock struct {
	PluginDirs         []string `hcl:"plugin_dirs,optional"`
	Reprovide          *bool    `hcl:"reprovide,optional"`
	StrictDependencies *bool    `hcl:"strict_dependencies,optional"`
	CheckBuildInfo     *bool    `hcl:"check_build_info,optional"`
	LogLevel           *string  `hcl:"log_level,optional"`
	LogFormat          *string  `hcl:"log_format,optional"`
}

type pluginBlock struct {
	Name       string        `hcl:"name,label"`
	Path       string        `hcl:"path"`
	MinVersion *string       `hcl:"min_version,optional"`
	Disabled   *bool         `hcl:"disabled,optional"`
	Limits     []*limitBlock `hcl:"limit,block"`
}

type limitBlock struct {
	Setting string `hcl:"setting,label"`
	Top     *int64 `hcl:"top,optional"`
	Bottom  *int64 `hcl:"bottom,optional"`
	Reset   *bool  `hcl:"reset,optional"`
}
