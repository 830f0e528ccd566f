package loader

import (
	"context"
	"sync/atomic"

	"github.com/vk/dynplug/capability"
	"github.com/vk/dynplug/manifest"
	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
	"github.com/vk/dynplug/version"
)

// Ref is a counted reference to a Handle, handed to other plugins as a
// capability.Provider. It keeps the plugin callable after the host closed
// its own handle, until Release.
type Ref struct {
	h        *Handle
	released atomic.Bool
}

func (r *Ref) Name() string { return r.h.name }

func (r *Ref) Version() version.Version { return r.h.version }

// Compat returns the oldest version the referenced plugin is compatible with.
func (r *Ref) Compat() version.Version { return r.h.compat }

func (r *Ref) Functions() []manifest.FunctionDescriptor {
	if ix := r.index(); ix != nil {
		return ix.Functions()
	}
	return nil
}

func (r *Ref) Types() []manifest.TypeDescriptor {
	if ix := r.index(); ix != nil {
		return ix.Types()
	}
	return nil
}

func (r *Ref) index() *manifest.Index {
	if r.released.Load() {
		return nil
	}
	return r.h.index.Load()
}

func (r *Ref) Call(ctx context.Context, id int, args []value.Value) (value.Value, error) {
	if r.released.Load() {
		return value.Value{}, r.h.stateError(plugerr.ErrUnloaded)
	}
	return r.h.call(ctx, id, args)
}

// Release drops the reference. Only the first call has an effect.
func (r *Ref) Release() {
	if r.released.CompareAndSwap(false, true) {
		r.h.decRef()
	}
}

var _ capability.Provider = (*Ref)(nil)
