//go:build !((linux || darwin || freebsd) && cgo)

package loader

import (
	"context"
	"runtime"

	"github.com/vk/dynplug/plugerr"
)

// GoPluginOpener maps shared objects built with -buildmode=plugin. This
// platform or build has no plugin support, so every Open fails.
type GoPluginOpener struct {
	CheckBuildInfo bool
}

func (GoPluginOpener) Open(_ context.Context, path string) (Library, error) {
	return nil, plugerr.NewLoadError(path, "go plugins are not supported on %s/%s without cgo", runtime.GOOS, runtime.GOARCH)
}
