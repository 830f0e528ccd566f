package capability

import (
	"context"
	"fmt"

	"github.com/vk/dynplug/manifest"
	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
)

// Lookup finds the function called name in p's manifest. Names that are
// missing or defined more than once fail.
func Lookup(p Provider, name string) (manifest.FunctionDescriptor, error) {
	var found []manifest.FunctionDescriptor
	for _, fd := range p.Functions() {
		if fd.Name == name {
			found = append(found, fd)
		}
	}
	switch len(found) {
	case 0:
		return manifest.FunctionDescriptor{}, fmt.Errorf("plugin %q has no function %q: %w", p.Name(), name, plugerr.ErrUnknownFunctionID)
	case 1:
		return found[0], nil
	}
	return manifest.FunctionDescriptor{}, fmt.Errorf("plugin %q defines function %q %d times", p.Name(), name, len(found))
}

// CallByName looks a function up by name and calls it on p.
func CallByName(ctx context.Context, p Provider, name string, args ...value.Value) (value.Value, error) {
	fd, err := Lookup(p, name)
	if err != nil {
		return value.Value{}, err
	}
	return p.Call(ctx, fd.ID, args)
}

// Exposes reports whether p defines every function in names.
func Exposes(p Provider, names []string) error {
	for _, n := range names {
		if _, err := Lookup(p, n); err != nil {
			return err
		}
	}
	return nil
}
