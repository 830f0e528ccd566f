package manifest

import (
	"strings"

	"github.com/vk/dynplug/value"
)

// Module defines functions, types and traits under a module path.
type Module struct {
	m    *Manifest
	path string
}

// Path returns the dot-separated module path.
func (mod *Module) Path() string { return mod.path }

// Module returns the submodule name of mod.
func (mod *Module) Module(name string) *Module {
	return &Module{m: mod.m, path: joinPath(mod.path, name)}
}

// Define registers a function in mod. See Manifest.Define.
func (mod *Module) Define(id int, name string, e Entry, deps ...string) {
	mod.m.define(mod.path, id, name, e, deps)
}

// DefineType registers a type in mod. See Manifest.DefineType.
func (mod *Module) DefineType(id int, name string, t value.Type) {
	mod.m.defineType(mod.path, id, name, t)
}

// DefineTrait registers a trait in mod. See Manifest.DefineTrait.
func (mod *Module) DefineTrait(id int, name string, methods ...MethodDescriptor) {
	mod.m.defineTrait(mod.path, id, name, methods)
}

// ModuleDescriptor is one node of a plugin's module tree. Entries are
// listed by id in registration order.
type ModuleDescriptor struct {
	Name       string
	Path       string
	Functions  []int
	Types      []int
	Traits     []int
	Submodules []ModuleDescriptor
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// validModulePath reports whether path is empty or made of non-empty
// dot-separated segments.
func validModulePath(path string) bool {
	if path == "" {
		return true
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}

type moduleNode struct {
	desc     ModuleDescriptor
	children []*moduleNode
	byName   map[string]*moduleNode
}

func (n *moduleNode) child(name string) *moduleNode {
	if c, ok := n.byName[name]; ok {
		return c
	}
	c := &moduleNode{
		desc:   ModuleDescriptor{Name: name, Path: joinPath(n.desc.Path, name)},
		byName: make(map[string]*moduleNode),
	}
	n.byName[name] = c
	n.children = append(n.children, c)
	return c
}

func (n *moduleNode) find(path string) *moduleNode {
	cur := n
	for _, seg := range strings.Split(path, ".") {
		cur = cur.child(seg)
	}
	return cur
}

func (n *moduleNode) freeze() []ModuleDescriptor {
	if len(n.children) == 0 {
		return nil
	}
	out := make([]ModuleDescriptor, len(n.children))
	for i, c := range n.children {
		out[i] = c.desc
		out[i].Submodules = c.freeze()
	}
	return out
}

// buildModules groups entries by module path. Entries at the root belong
// to no module.
func buildModules(functions []FunctionDescriptor, types []TypeDescriptor, traits []TraitDescriptor) []ModuleDescriptor {
	root := &moduleNode{byName: make(map[string]*moduleNode)}
	for _, fd := range functions {
		if fd.Module != "" {
			n := root.find(fd.Module)
			n.desc.Functions = append(n.desc.Functions, fd.ID)
		}
	}
	for _, td := range types {
		if td.Module != "" {
			n := root.find(td.Module)
			n.desc.Types = append(n.desc.Types, td.ID)
		}
	}
	for _, tr := range traits {
		if tr.Module != "" {
			n := root.find(tr.Module)
			n.desc.Traits = append(n.desc.Traits, tr.ID)
		}
	}
	return root.freeze()
}
