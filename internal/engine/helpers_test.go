package engine

import (
	"testing"

	"itemcore/pkg/schema"
)

func fptr(f float64) *float64 { return &f }
func iptr(i int) *int         { return &i }

func mustRuntime(t *testing.T, root *schema.Root, opts ...Option) *Runtime {
	t.Helper()
	rt, err := NewRuntime(root, opts...)
	if err != nil {
		t.Fatalf("compile runtime: %v", err)
	}
	return rt
}

func mustDefinition(t *testing.T, rt *Runtime, path string) *ItemDefinition {
	t.Helper()
	def, ok := rt.ItemDefinition(path)
	if !ok {
		t.Fatalf("item definition %s not found", path)
	}
	return def
}

func mustProperty(t *testing.T, d *ItemDefinition, id string) *Property {
	t.Helper()
	p, ok := d.Property(id)
	if !ok {
		t.Fatalf("property %s not found on %s", id, d.QualifiedPath())
	}
	return p
}

// singleDefRoot wraps properties and items into a one-definition module tree.
func singleDefRoot(properties []schema.PropertyDefinition, items []schema.Item, extra ...schema.ItemDefinition) *schema.Root {
	children := append([]schema.ItemDefinition{{
		Name:       "product",
		Properties: properties,
		Items:      items,
	}}, extra...)
	return &schema.Root{Modules: []schema.Module{{
		Name:     "catalog",
		Children: children,
	}}}
}

const productPath = "mod.catalog/idef.product"

func equalsRule(property string, value any) *schema.RuleSet {
	return &schema.RuleSet{
		Property:   property,
		Comparator: schema.CompEquals,
		Value:      schema.ConditionValue{Kind: schema.KindExact, Exact: value},
	}
}
