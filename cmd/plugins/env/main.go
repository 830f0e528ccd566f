// Command env builds the env plugin as a shared library:
//
//	go build -buildmode=plugin -o env.so ./cmd/plugins/env
package main

import "github.com/vk/dynplug/modules/env_vars"

// PluginDeclaration is the symbol the loader looks up.
var PluginDeclaration = env_vars.Declaration

func main() {}
