//go:build (linux || darwin || freebsd) && cgo

package loader

import (
	"context"
	"plugin"

	"github.com/vk/dynplug/internal/ctxlog"
	"github.com/vk/dynplug/plugerr"
)

// GoPluginOpener maps shared objects built with -buildmode=plugin.
type GoPluginOpener struct {
	// CheckBuildInfo inspects the file's embedded build info before
	// mapping it, so a foreign toolchain is refused before the plugin's
	// package initialisers run.
	CheckBuildInfo bool
}

func (o GoPluginOpener) Open(ctx context.Context, path string) (Library, error) {
	if o.CheckBuildInfo {
		if err := CheckBuildInfo(path); err != nil {
			return nil, err
		}
	}
	ctxlog.FromContext(ctx).Debug("Mapping plugin file.", "path", path)
	p, err := plugin.Open(path)
	if err != nil {
		return nil, &plugerr.LoadError{Path: path, Err: err}
	}
	return goPlugin{p: p}, nil
}

type goPlugin struct {
	p *plugin.Plugin
}

func (g goPlugin) Lookup(symbol string) (any, error) {
	return g.p.Lookup(symbol)
}

// Close is a no-op: the Go runtime never unmaps a plugin. The loader still
// stops handing out references once the count reaches zero.
func (goPlugin) Close() error { return nil }
