// Command relay builds the relay plugin as a shared library:
//
//	go build -buildmode=plugin -o relay.so ./cmd/plugins/relay
package main

import "github.com/vk/dynplug/modules/relay"

// PluginDeclaration is the symbol the loader looks up.
var PluginDeclaration = relay.Declaration

func main() {}
