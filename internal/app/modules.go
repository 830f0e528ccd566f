package app

import (
	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/loader"
	"github.com/vk/dynplug/modules/arith"
	"github.com/vk/dynplug/modules/env_vars"
	"github.com/vk/dynplug/modules/print"
	"github.com/vk/dynplug/modules/relay"
)

// coreModules is the definitive list of plugins compiled into the binary.
// Each is reachable as "builtin:<name>".
var coreModules = []*abi.Declaration{
	arith.Declaration,
	env_vars.Declaration,
	print.Declaration,
	relay.Declaration,
}

// newBuiltins returns a static library table holding decls, or
// coreModules when none are given.
func newBuiltins(decls ...*abi.Declaration) *loader.StaticOpener {
	if len(decls) == 0 {
		decls = coreModules
	}
	s := loader.NewStaticOpener()
	for _, d := range decls {
		s.Add(d.Name, d)
	}
	return s
}
