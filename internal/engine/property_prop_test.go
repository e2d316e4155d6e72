package engine

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"itemcore/pkg/schema"
)

func TestPropertyResolutionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	finite := gen.Float64().SuchThat(func(f float64) bool {
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})

	properties.Property("set then read round-trips finite numbers", prop.ForAll(
		func(f float64) bool {
			rt := mustRuntime(t, singleDefRoot([]schema.PropertyDefinition{
				{ID: "p", Type: schema.TypeNumber, Nullable: true},
			}, nil))
			p := mustProperty(t, mustDefinition(t, rt, productPath), "p")
			slot := schema.NewSlotKey("1", "0")
			if err := p.SetCurrentValue(slot, f, nil); err != nil {
				return false
			}
			got, ok := p.Value(slot).(float64)
			return ok && got == f && p.ValidateLocal(slot, got).Valid()
		},
		finite,
	))

	properties.Property("enforcement wins over any user input", prop.ForAll(
		func(input string) bool {
			rt := mustRuntime(t, singleDefRoot([]schema.PropertyDefinition{
				{ID: "p", Type: schema.TypeString, Nullable: true, Enforced: &schema.ExactValue{Value: "pinned"}},
			}, nil))
			p := mustProperty(t, mustDefinition(t, rt, productPath), "p")
			slot := schema.NewSlotKey("1", "0")
			if err := p.SetCurrentValue(slot, input, nil); err != nil {
				return false
			}
			return p.Value(slot) == "pinned"
		},
		gen.AnyString(),
	))

	properties.Property("flatten then apply reproduces the resolved value", prop.ForAll(
		func(title string) bool {
			rt := mustRuntime(t, singleDefRoot([]schema.PropertyDefinition{
				{ID: "title", Type: schema.TypeString, Nullable: true},
			}, nil))
			def := mustDefinition(t, rt, productPath)
			p := mustProperty(t, def, "title")
			src := schema.NewSlotKey("1", "0")
			dst := schema.NewSlotKey("2", "0")
			if err := p.SetCurrentValue(src, title, nil); err != nil {
				return false
			}
			srcValue := def.Value(src, ValueOptions{})
			def.ApplyValue(dst, srcValue.Flatten(), ApplyOptions{})
			return looseEqual(p.Value(dst), p.Value(src))
		},
		gen.AnyString(),
	))

	properties.Property("slot state never leaks across slots", prop.ForAll(
		func(a, b string, value string) bool {
			if a == b {
				return true
			}
			rt := mustRuntime(t, singleDefRoot([]schema.PropertyDefinition{
				{ID: "p", Type: schema.TypeString, Nullable: true},
			}, nil))
			p := mustProperty(t, mustDefinition(t, rt, productPath), "p")
			if err := p.SetCurrentValue(schema.NewSlotKey(a, "0"), value, nil); err != nil {
				return false
			}
			return p.Value(schema.NewSlotKey(b, "0")) == nil && !p.Modified(schema.NewSlotKey(b, "0"))
		},
		gen.Identifier(), gen.Identifier(), gen.AlphaString(),
	))

	properties.TestingRun(t)
}
