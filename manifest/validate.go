package manifest

import (
	"fmt"
	"strings"

	"github.com/vk/dynplug/value"
)

// Validate performs a parity check between the declared functions and the
// declared types: every non-primitive type used in a function or trait
// signature must appear in the type list. It also rejects duplicate or
// negative function ids, duplicate type and trait ids, empty names and
// malformed module paths. All problems are reported together.
func Validate(functions []FunctionDescriptor, types []TypeDescriptor, traits ...TraitDescriptor) error {
	var errs []string
	checkModule := func(kind, name, module string) {
		if !validModulePath(module) {
			errs = append(errs, fmt.Sprintf("%s '%s' has malformed module path %q", kind, name, module))
		}
	}

	declared := make(map[string]struct{}, len(types))
	typeIDs := make(map[int]string, len(types))
	for _, td := range types {
		if td.Name == "" {
			errs = append(errs, fmt.Sprintf("type with id %d has an empty name", td.ID))
		}
		if prev, ok := typeIDs[td.ID]; ok {
			errs = append(errs, fmt.Sprintf("type id %d declared twice ('%s' and '%s')", td.ID, prev, td.Name))
		}
		typeIDs[td.ID] = td.Name
		declared[td.Type.String()] = struct{}{}
		checkModule("type", td.Name, td.Module)
	}
	checkType := func(where string, t value.Type) {
		if t.IsAny() || t.IsPrimitive() || t.Equal(unitType) {
			return
		}
		if _, ok := declared[t.String()]; !ok {
			errs = append(errs, fmt.Sprintf("%s: type '%s' is not in the type list", where, t))
		}
	}

	fnIDs := make(map[int]string, len(functions))
	for _, fd := range functions {
		if fd.ID < 0 {
			errs = append(errs, fmt.Sprintf("function '%s' has negative id %d", fd.Name, fd.ID))
		}
		if fd.Name == "" {
			errs = append(errs, fmt.Sprintf("function with id %d has an empty name", fd.ID))
		}
		if prev, ok := fnIDs[fd.ID]; ok {
			errs = append(errs, fmt.Sprintf("function id %d declared twice ('%s' and '%s')", fd.ID, prev, fd.Name))
		}
		fnIDs[fd.ID] = fd.Name
		checkModule("function", fd.Name, fd.Module)

		for i, p := range fd.Params {
			checkType(fmt.Sprintf("function '%s', parameter %d", fd.Name, i), p)
		}
		checkType(fmt.Sprintf("function '%s', return", fd.Name), fd.Return)
	}

	traitIDs := make(map[int]string, len(traits))
	traitNames := make(map[string]struct{}, len(traits))
	for _, tr := range traits {
		if tr.Name == "" {
			errs = append(errs, fmt.Sprintf("trait with id %d has an empty name", tr.ID))
		}
		if prev, ok := traitIDs[tr.ID]; ok {
			errs = append(errs, fmt.Sprintf("trait id %d declared twice ('%s' and '%s')", tr.ID, prev, tr.Name))
		}
		traitIDs[tr.ID] = tr.Name
		if _, ok := traitNames[tr.QualifiedName()]; ok {
			errs = append(errs, fmt.Sprintf("trait '%s' declared twice", tr.QualifiedName()))
		}
		traitNames[tr.QualifiedName()] = struct{}{}
		checkModule("trait", tr.Name, tr.Module)

		methods := make(map[string]struct{}, len(tr.Methods))
		for _, md := range tr.Methods {
			if md.Name == "" {
				errs = append(errs, fmt.Sprintf("trait '%s' has a method with an empty name", tr.Name))
			}
			if _, ok := methods[md.Name]; ok {
				errs = append(errs, fmt.Sprintf("trait '%s' declares method '%s' twice", tr.Name, md.Name))
			}
			methods[md.Name] = struct{}{}
			for i, p := range md.Params {
				checkType(fmt.Sprintf("trait '%s', method '%s', parameter %d", tr.Name, md.Name, i), p)
			}
			checkType(fmt.Sprintf("trait '%s', method '%s', return", tr.Name, md.Name), md.Return)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("manifest validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
