// Command arith builds the arith plugin as a shared library:
//
//	go build -buildmode=plugin -o arith.so ./cmd/plugins/arith
package main

import "github.com/vk/dynplug/modules/arith"

// PluginDeclaration is the symbol the loader looks up.
var PluginDeclaration = arith.Declaration

func main() {}
