package hcl

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/dynplug/internal/ctxlog"
	"github.com/vk/dynplug/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Converter is the HCL-specific implementation of the config.Converter
// interface. Arguments are HCL literal expressions: `3`, `"text"`,
// `[1, 2]`, `{ num = 1, den = 2 }`.
type Converter struct {
	evalCtx *hcl.EvalContext
}

// NewConverter creates a new HCL converter.
func NewConverter() *Converter {
	return &Converter{evalCtx: newEvalContext()}
}

// ParseArgument evaluates src and binds the result to a new value of t.
func (c *Converter) ParseArgument(ctx context.Context, src string, t value.Type) (value.Value, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "<argument>", hcl.InitialPos)
	if diags.HasErrors() {
		return value.Value{}, fmt.Errorf("failed to parse argument %q: %w", src, diags)
	}
	val, diags := expr.Value(c.evalCtx)
	if diags.HasErrors() {
		return value.Value{}, fmt.Errorf("failed to evaluate argument %q: %w", src, diags)
	}

	if t.IsAny() {
		native, err := toNative(val)
		if err != nil {
			return value.Value{}, fmt.Errorf("argument %q: %w", src, err)
		}
		return value.Of(native), nil
	}

	target := reflect.New(t.Reflect())
	if err := c.decode(ctx, val, target.Interface()); err != nil {
		return value.Value{}, fmt.Errorf("argument %q: %w", src, err)
	}
	return value.Of(target.Elem().Interface()), nil
}

// decode handles the conversion and decoding of a cty.Value into a Go pointer.
func (c *Converter) decode(ctx context.Context, val cty.Value, goVal any) error {
	logger := ctxlog.FromContext(ctx)
	valPtr := reflect.ValueOf(goVal)
	if valPtr.Kind() != reflect.Ptr {
		return fmt.Errorf("target for decoding must be a pointer, got %T", goVal)
	}

	impliedType, err := gocty.ImpliedType(valPtr.Elem().Interface())
	if err != nil {
		logger.Debug("Could not imply cty.Type from Go type, attempting direct decoding.", "go_type", valPtr.Elem().Type().String(), "error", err)
		return gocty.FromCtyValue(val, goVal)
	}

	logger.Debug("Preparing to decode value.",
		"source_type", val.Type().FriendlyName(),
		"target_type", impliedType.FriendlyName(),
	)

	convertedVal, err := convert.Convert(val, impliedType)
	if err != nil {
		return fmt.Errorf("cannot convert %s to required type %s: %w", val.Type().FriendlyName(), impliedType.FriendlyName(), err)
	}
	return gocty.FromCtyValue(convertedVal, goVal)
}

// toNative maps a cty value onto the plain Go type a caller would expect
// for an untyped argument.
func toNative(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, fmt.Errorf("null is not a valid argument")
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			n, err := toNative(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			n, err := toNative(ev)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported argument type %s", ty.FriendlyName())
}

// Render marshals a call result as JSON. Values cty can describe go
// through ctyjson; everything else falls back to encoding/json.
func (c *Converter) Render(ctx context.Context, v value.Value) ([]byte, error) {
	if !v.IsValid() || v.Type().Equal(value.TypeOf[value.Unit]()) {
		return []byte("null"), nil
	}
	rt := v.Type().Reflect()
	if rt.Kind() == reflect.Struct && !hasCtyTags(rt) {
		return json.Marshal(v.Interface())
	}
	val, err := c.ToCtyValue(v.Interface())
	if err != nil {
		ctxlog.FromContext(ctx).Debug("Rendering result without cty.", "type", v.Type().String(), "error", err)
		return json.Marshal(v.Interface())
	}
	return ctyjson.Marshal(val, val.Type())
}

func hasCtyTags(rt reflect.Type) bool {
	for i := range rt.NumField() {
		if _, ok := rt.Field(i).Tag.Lookup("cty"); ok {
			return true
		}
	}
	return false
}

// ToCtyValue converts a native Go value into its corresponding cty.Value.
func (c *Converter) ToCtyValue(v any) (cty.Value, error) {
	if v == nil {
		return cty.NilVal, nil
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty.Type: %w", err)
	}
	return gocty.ToCtyValue(v, ty)
}
