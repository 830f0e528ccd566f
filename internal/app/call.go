package app

import (
	"context"
	"fmt"

	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
)

// Call converts the textual arguments to the parameter types of
// plugin.function, calls it and renders the result as JSON. The plugin
// must have been started.
func (a *App) Call(ctx context.Context, plugin, function string, rawArgs []string) ([]byte, error) {
	ctx = a.Context(ctx)
	h, ok := a.host.Get(plugin)
	if !ok {
		return nil, fmt.Errorf("plugin '%s' is not loaded", plugin)
	}
	ix, err := h.Index()
	if err != nil {
		return nil, err
	}
	fd, err := ix.Lookup(function)
	if err != nil {
		return nil, fmt.Errorf("plugin '%s': %w", plugin, err)
	}
	if len(rawArgs) != len(fd.Params) {
		return nil, &plugerr.ArityMismatchError{Function: fd.Name, Want: len(fd.Params), Got: len(rawArgs)}
	}

	args := make([]value.Value, len(rawArgs))
	for i, raw := range rawArgs {
		v, err := a.converter.ParseArgument(ctx, raw, fd.Params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i+1, fd, err)
		}
		args[i] = v
	}

	res, err := a.host.Call(ctx, plugin, function, args...)
	if err != nil {
		return nil, err
	}
	return a.converter.Render(ctx, res)
}
