package manifest

import (
	"fmt"
	"strings"

	"github.com/vk/dynplug/plugerr"
	"github.com/vk/dynplug/value"
)

// MethodDescriptor is one signature of a trait.
type MethodDescriptor struct {
	Name   string
	Params []value.Type
	Return value.Type
}

// Method describes a trait method taking params and returning ret.
func Method(name string, ret value.Type, params ...value.Type) MethodDescriptor {
	return MethodDescriptor{Name: name, Params: params, Return: ret}
}

func (md MethodDescriptor) String() string {
	return FunctionDescriptor{Name: md.Name, Params: md.Params, Return: md.Return}.String()
}

func (md MethodDescriptor) matches(fd FunctionDescriptor) bool {
	if fd.Name != md.Name || len(fd.Params) != len(md.Params) || !fd.Return.Equal(md.Return) {
		return false
	}
	for i, p := range md.Params {
		if !fd.Params[i].Equal(p) {
			return false
		}
	}
	return true
}

// TraitDescriptor describes a trait a plugin defines.
type TraitDescriptor struct {
	ID      int
	Name    string
	Module  string
	Methods []MethodDescriptor
}

// QualifiedName is the module path and name joined by a dot, the name
// dependency requests use.
func (t TraitDescriptor) QualifiedName() string {
	return joinPath(t.Module, t.Name)
}

func (t TraitDescriptor) String() string {
	methods := make([]string, len(t.Methods))
	for i, md := range t.Methods {
		methods[i] = md.String()
	}
	return fmt.Sprintf("%s { %s }", t.QualifiedName(), strings.Join(methods, "; "))
}

// Implements matches the methods of t against functions and returns the
// function id serving each method. Only the named methods are required;
// none means all of them. A missing method fails with
// plugerr.ErrNotImplemented.
func Implements(functions []FunctionDescriptor, t TraitDescriptor, methods ...string) (map[string]int, error) {
	required := t.Methods
	if len(methods) > 0 {
		required = make([]MethodDescriptor, 0, len(methods))
		for _, name := range methods {
			md, ok := t.method(name)
			if !ok {
				return nil, fmt.Errorf("trait '%s' has no method '%s'", t.QualifiedName(), name)
			}
			required = append(required, md)
		}
	}

	links := make(map[string]int, len(required))
	for _, md := range required {
		found := false
		for _, fd := range functions {
			if md.matches(fd) {
				links[md.Name] = fd.ID
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("trait '%s', method %s: %w", t.QualifiedName(), md, plugerr.ErrNotImplemented)
		}
	}
	return links, nil
}

func (t TraitDescriptor) method(name string) (MethodDescriptor, bool) {
	for _, md := range t.Methods {
		if md.Name == name {
			return md, true
		}
	}
	return MethodDescriptor{}, false
}
