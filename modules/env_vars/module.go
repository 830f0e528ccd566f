// Package env_vars is a builtin plugin exposing the process environment.
package env_vars

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/manifest"
	"github.com/vk/dynplug/value"
	"github.com/vk/dynplug/version"
)

// Name is the declared plugin name.
const Name = "env"

// Function ids.
const (
	AllID = iota
	GetID
	KeysID
)

// OutputTypeID is the manifest id of Output.
const OutputTypeID = 0

// Version is the plugin version.
var Version = version.MustParse("1.0")

// Declaration is the builtin and shared-library export.
var Declaration = abi.Export(Name, Version, New)

// Output is the result of `all`.
type Output struct {
	All map[string]string `cty:"all"`
}

// New returns an env plugin.
func New() capability.Capability {
	b := capability.NewBase()
	b.Manifest.DefineType(OutputTypeID, "Output", value.TypeOf[Output]())
	b.Manifest.Define(AllID, "all", manifest.Fn0(func(context.Context) (Output, error) {
		return Output{All: environ()}, nil
	}))
	b.Manifest.Define(GetID, "get", manifest.Fn1(func(_ context.Context, key string) (string, error) {
		v, ok := os.LookupEnv(key)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", key)
		}
		return v, nil
	}))
	b.Manifest.Define(KeysID, "keys", manifest.Fn1(func(_ context.Context, prefix string) ([]string, error) {
		var keys []string
		for k := range environ() {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		return keys, nil
	}))
	return b
}

func environ() map[string]string {
	envMap := make(map[string]string)
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			envMap[k] = v
		}
	}
	return envMap
}
