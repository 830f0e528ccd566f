package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/value"
	"github.com/vk/dynplug/version"
)

func writeHCL(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("DYNPLUG_TEST_HOME", "/opt/plugins")
	dir := t.TempDir()
	writeHCL(t, dir, "host.hcl", `
host {
  plugin_dirs         = ["./plugins", "${env.DYNPLUG_TEST_HOME}"]
  reprovide           = true
  strict_dependencies = true
  log_level           = "debug"
}
`)
	writeHCL(t, dir, "plugins.hcl", `
plugin "arith" {
  path        = "builtin:arith"
  min_version = "1.0"
  limit "max_terms" {
    top    = 16
    bottom = 2
  }
}

plugin "relay" {
  path     = format("%s/relay.so", env.DYNPLUG_TEST_HOME)
  disabled = true
  limit "depth" {
    reset = true
  }
}
`)
	writeHCL(t, dir, "notes.txt", `not hcl`)

	m, err := NewLoader().Load(context.Background(), dir, filepath.Join(dir, "missing"))
	require.NoError(t, err)

	assert.Equal(t, []string{"./plugins", "/opt/plugins"}, m.Host.PluginDirs)
	assert.True(t, m.Host.Reprovide)
	assert.True(t, m.Host.StrictDependencies)
	assert.True(t, m.Host.CheckBuildInfo, "unset attributes keep their defaults")
	assert.Equal(t, "debug", m.Host.LogLevel)
	assert.Equal(t, "text", m.Host.LogFormat)

	require.Len(t, m.Plugins, 2)
	arith, ok := m.Plugin("arith")
	require.True(t, ok)
	assert.Equal(t, "builtin:arith", arith.Path)
	assert.Equal(t, version.New(1, 0, 0, 0), arith.MinVersion)
	assert.Equal(t, []capability.Limitation{
		{Setting: "max_terms", Kind: capability.LimitBottom, Limit: 2},
		{Setting: "max_terms", Kind: capability.LimitTop, Limit: 16},
	}, arith.Limits)

	relay, ok := m.Plugin("relay")
	require.True(t, ok)
	assert.Equal(t, "/opt/plugins/relay.so", relay.Path)
	assert.True(t, relay.Disabled)
	assert.Equal(t, []capability.Limitation{{Setting: "depth", Kind: capability.LimitReset}}, relay.Limits)
	assert.Len(t, m.Enabled(), 1)
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "syntax error",
			files:   map[string]string{"a.hcl": `plugin "x" {`},
			wantErr: "failed to parse HCL file",
		},
		{
			name:    "missing path",
			files:   map[string]string{"a.hcl": `plugin "x" {}`},
			wantErr: "failed to decode HCL file",
		},
		{
			name:    "bad version",
			files:   map[string]string{"a.hcl": `plugin "x" { path = "x.so" min_version = "one" }`},
			wantErr: "invalid min_version",
		},
		{
			name: "two host blocks",
			files: map[string]string{
				"a.hcl": `host { reprovide = true }`,
				"b.hcl": `host { reprovide = false }`,
			},
			wantErr: "duplicate host block",
		},
		{
			name:    "duplicate plugin",
			files:   map[string]string{"a.hcl": `plugin "x" { path = "a.so" } plugin "x" { path = "b.so" }`},
			wantErr: "declared more than once",
		},
		{
			name:    "inverted limit",
			files:   map[string]string{"a.hcl": `plugin "x" { path = "a.so" limit "n" { top = 1 bottom = 5 } }`},
			wantErr: "bottom 5 is above top 1",
		},
		{
			name:    "empty limit",
			files:   map[string]string{"a.hcl": `plugin "x" { path = "a.so" limit "n" {} }`},
			wantErr: "sets none of top, bottom or reset",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tc.files {
				writeHCL(t, dir, name, content)
			}
			_, err := NewLoader().Load(context.Background(), dir)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

type fraction struct {
	Num int64 `cty:"num"`
	Den int64 `cty:"den"`
}

type plain struct {
	Label string
}

func TestParseArgument(t *testing.T) {
	c := NewConverter()
	ctx := context.Background()

	testCases := []struct {
		name string
		src  string
		typ  value.Type
		want any
	}{
		{name: "int", src: "42", typ: value.TypeOf[int](), want: 42},
		{name: "int64 from expression", src: "6 * 7", typ: value.TypeOf[int64](), want: int64(42)},
		{name: "float", src: "1.5", typ: value.TypeOf[float64](), want: 1.5},
		{name: "string", src: `"hi"`, typ: value.TypeOf[string](), want: "hi"},
		{name: "number to string", src: "12", typ: value.TypeOf[string](), want: "12"},
		{name: "bool", src: "true", typ: value.TypeOf[bool](), want: true},
		{name: "slice", src: "[1, 2, 3]", typ: value.TypeOf[[]int](), want: []int{1, 2, 3}},
		{name: "map", src: `{ a = 1 }`, typ: value.TypeOf[map[string]int](), want: map[string]int{"a": 1}},
		{name: "struct", src: `{ num = 1, den = 3 }`, typ: value.TypeOf[fraction](), want: fraction{Num: 1, Den: 3}},
		{name: "any int", src: "7", typ: value.Any, want: 7},
		{name: "any float", src: "0.25", typ: value.Any, want: 0.25},
		{name: "any list", src: `["a", 1]`, typ: value.Any, want: []any{"a", 1}},
		{name: "any object", src: `{ x = true }`, typ: value.Any, want: map[string]any{"x": true}},
		{name: "function", src: `upper("abc")`, typ: value.TypeOf[string](), want: "ABC"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := c.ParseArgument(ctx, tc.src, tc.typ)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v.Interface())
			if !tc.typ.IsAny() {
				assert.True(t, v.Type().Equal(tc.typ))
			}
		})
	}

	t.Run("errors", func(t *testing.T) {
		_, err := c.ParseArgument(ctx, "[1,", value.TypeOf[int]())
		assert.ErrorContains(t, err, "failed to parse argument")
		_, err = c.ParseArgument(ctx, "nope", value.TypeOf[int]())
		assert.ErrorContains(t, err, "failed to evaluate argument")
		_, err = c.ParseArgument(ctx, `"abc"`, value.TypeOf[int]())
		assert.ErrorContains(t, err, "cannot convert")
		_, err = c.ParseArgument(ctx, "null", value.Any)
		assert.ErrorContains(t, err, "null is not a valid argument")
	})
}

func TestRender(t *testing.T) {
	c := NewConverter()
	ctx := context.Background()

	testCases := []struct {
		name string
		in   value.Value
		want string
	}{
		{name: "int", in: value.Wrap(42), want: `42`},
		{name: "string", in: value.Wrap("hi"), want: `"hi"`},
		{name: "tagged struct", in: value.Wrap(fraction{Num: 1, Den: 2}), want: `{"den":2,"num":1}`},
		{name: "untagged struct", in: value.Wrap(plain{Label: "x"}), want: `{"Label":"x"}`},
		{name: "unit", in: value.Void, want: `null`},
		{name: "invalid", in: value.Value{}, want: `null`},
		{name: "any slice", in: value.Wrap([]any{"a", 1}), want: `["a",1]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := c.Render(ctx, tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(out))
		})
	}
}
