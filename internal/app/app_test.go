package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dynplug/internal/hcl"
	"github.com/vk/dynplug/internal/tomlconf"
	"github.com/vk/dynplug/loader"
	"github.com/vk/dynplug/plugerr"
)

const hostHCL = `
host {
  plugin_dirs = ["./does-not-exist"]
  log_level   = "warn"
}

plugin "arith" {
  path        = "builtin:arith"
  min_version = "1.1"
  limit "max_terms" {
    top = 4
  }
}

plugin "relay" {
  path = "builtin:relay"
}

plugin "env" {
  path     = "builtin:env"
  disabled = true
}
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig(Config{Format: "yaml"})
	assert.ErrorContains(t, err, "unknown config format")
	_, err = NewConfig(Config{LogFormat: "xml"})
	assert.ErrorContains(t, err, "invalid log-format")
	_, err = NewConfig(Config{LogLevel: "loud"})
	assert.ErrorContains(t, err, "invalid log-level")

	cfg, err := NewConfig(Config{ConfigPaths: []string{"a.toml"}})
	require.NoError(t, err)
	assert.IsType(t, &tomlconf.Loader{}, cfg.ConfigLoader())

	cfg.Format = "hcl"
	assert.IsType(t, &hcl.Loader{}, cfg.ConfigLoader())
	assert.IsType(t, &hcl.Loader{}, (&Config{ConfigPaths: []string{t.TempDir(), "x.toml"}}).ConfigLoader())
}

func TestStartAndCall(t *testing.T) {
	ctx := context.Background()
	a, logs := SetupAppTest(t, &Config{ConfigPaths: []string{writeConfig(t, "host.hcl", hostHCL)}})
	require.NoError(t, a.Start(ctx))

	assert.Equal(t, []string{"arith", "relay"}, a.Host().Names())
	relay, ok := a.Host().Get("relay")
	require.True(t, ok)
	assert.Equal(t, loader.StateActive, relay.State(), "the optional print dependency is denied")

	out, err := a.Call(ctx, "relay", "average", []string{"[1, 2, 3, 4]"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"num": 5, "den": 2}`, string(out))

	out, err = a.Call(ctx, "arith", "div", []string{"{ num = 1, den = 2 }", "{ num = 3, den = 4 }"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"num": 2, "den": 3}`, string(out))

	_, err = a.Call(ctx, "arith", "sum", []string{"[1, 2, 3, 4, 5]"})
	assert.ErrorContains(t, err, "max_terms = 5")

	_, err = a.Call(ctx, "relay", "announce", []string{`"hi"`})
	assert.ErrorIs(t, err, plugerr.ErrDependencyDenied)

	_, err = a.Call(ctx, "arith", "add", []string{"1"})
	assert.ErrorIs(t, err, plugerr.ErrArityMismatch)

	_, err = a.Call(ctx, "arith", "add", []string{"1", `"x"`})
	assert.ErrorContains(t, err, "argument 2 of add(int64, int64) int64")

	_, err = a.Call(ctx, "env", "all", nil)
	assert.ErrorContains(t, err, "not loaded")

	assert.Contains(t, logs.String(), "Denying dependency.")
}

func TestStartFromTOML(t *testing.T) {
	ctx := context.Background()
	path := writeConfig(t, "host.toml", `
[host]
strict_dependencies = true

[[plugin]]
name = "relay"
path = "builtin:relay"
`)
	a, _ := SetupAppTest(t, &Config{ConfigPaths: []string{path}})
	assert.True(t, a.Model().Host.StrictDependencies)

	err := a.Start(ctx)
	assert.ErrorIs(t, err, plugerr.ErrDependencyUnresolved)
	assert.ErrorContains(t, err, "failed to initialise plugins")
}

func TestNewAppConfigError(t *testing.T) {
	path := writeConfig(t, "bad.hcl", `plugin "x" {`)
	cfg := &Config{ConfigPaths: []string{path}}
	_, err := NewApp(&SafeBuffer{}, cfg, cfg.ConfigLoader())
	assert.ErrorContains(t, err, "failed to load configuration")
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	a, _ := SetupAppTest(t, &Config{})

	summaries, err := a.Inspect(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, len(coreModules))

	byName := make(map[string]Summary)
	for _, s := range summaries {
		require.NoError(t, s.Err, s.Path)
		byName[s.Name] = s
	}
	assert.Equal(t, "builtin:arith", byName["arith"].Path)
	assert.Len(t, byName["arith"].Functions, 5)
	assert.Len(t, byName["arith"].Types, 1)
	assert.Len(t, byName["relay"].Dependencies, 2)
	assert.Zero(t, a.Loader().LoadedCount(), "inspection unloads every library")

	summaries, err = a.Inspect(ctx, "builtin:missing")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.ErrorIs(t, summaries[0].Err, plugerr.ErrLoad)
}
