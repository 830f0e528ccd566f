// Package print is a builtin plugin that writes key/value maps as sorted
// `key = "value"` lines.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/internal/ctxlog"
	"github.com/vk/dynplug/manifest"
	"github.com/vk/dynplug/value"
	"github.com/vk/dynplug/version"
)

// Name is the declared plugin name.
const Name = "print"

// Function ids.
const (
	PrintID = iota
	FormatID
)

// Version is the plugin version.
var Version = version.MustParse("1.0")

// Declaration writes to standard output.
var Declaration = abi.Export(Name, Version, New)

// New returns a print plugin writing to standard output.
func New() capability.Capability {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter returns a print plugin writing to w.
func NewWithWriter(w io.Writer) capability.Capability {
	b := capability.NewBase()
	b.Manifest.Define(PrintID, "print", manifest.Fn1(func(ctx context.Context, in map[string]string) (value.Unit, error) {
		ctxlog.FromContext(ctx).Info("Printing input")
		_, err := io.WriteString(w, format(in))
		return value.Unit{}, err
	}))
	b.Manifest.Define(FormatID, "format", manifest.Fn1(func(_ context.Context, in map[string]string) (string, error) {
		return format(in), nil
	}))
	return b
}

func format(in map[string]string) string {
	if in == nil {
		return "      (null)\n"
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "      %s = %q\n", k, in[k])
	}
	return sb.String()
}
