// Command print builds the print plugin as a shared library:
//
//	go build -buildmode=plugin -o print.so ./cmd/plugins/print
package main

import "github.com/vk/dynplug/modules/print"

// PluginDeclaration is the symbol the loader looks up.
var PluginDeclaration = print.Declaration

func main() {}
