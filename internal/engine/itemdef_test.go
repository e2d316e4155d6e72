package engine

import (
	"testing"

	"itemcore/pkg/schema"
)

// catalogRoot builds a module with an extension property, a product definition
// embedding a warranty item (with a sink-in) and the warranty sibling.
func catalogRoot() *schema.Root {
	return &schema.Root{Modules: []schema.Module{{
		Name: "catalog",
		Extensions: []schema.PropertyDefinition{
			{ID: "archived", Type: schema.TypeBoolean, Nullable: true},
		},
		Children: []schema.ItemDefinition{
			{
				Name: "product",
				Properties: []schema.PropertyDefinition{
					{ID: "title", Type: schema.TypeString, Nullable: true},
					{ID: "price", Type: schema.TypeNumber, Nullable: true},
				},
				Items: []schema.Item{{
					ID:             "warranty",
					Definition:     "warranty",
					CanUserExclude: true,
					SinkIn:         []string{"price"},
				}},
			},
			warrantyDef(),
		},
	}}}
}

func TestDefinitionValueSnapshot(t *testing.T) {
	rt := mustRuntime(t, catalogRoot())
	def := mustDefinition(t, rt, productPath)
	slot := schema.NewSlotKey("1", "0")

	title := mustProperty(t, def, "title")
	if err := title.SetCurrentValue(slot, "Lamp", nil); err != nil {
		t.Fatalf("set title: %v", err)
	}

	v := def.Value(slot, ValueOptions{})
	if v.Path != productPath || v.ModuleName != "catalog" || v.Name != "product" {
		t.Fatalf("snapshot header = %+v", v)
	}
	// Extensions sweep first, then local properties.
	if len(v.Properties) != 3 || v.Properties[0].ID != "archived" {
		t.Fatalf("properties = %+v", v.Properties)
	}
	pv, ok := v.Property("title")
	if !ok || pv.Value != "Lamp" || !pv.Modified || !pv.ManuallySet {
		t.Fatalf("title snapshot = %+v", pv)
	}

	iv, ok := v.Item("warranty")
	if !ok {
		t.Fatal("warranty item missing from snapshot")
	}
	if iv.Exclusion != schema.ExclusionIncluded || iv.Value == nil {
		t.Fatalf("item snapshot = %+v", iv)
	}
	// The inner slice carries no module extensions but surfaces the sink-in.
	if _, ok := iv.Value.Property("archived"); ok {
		t.Fatal("inner snapshot must not repeat module extensions")
	}
	if _, ok := iv.Value.Property("months"); !ok {
		t.Fatal("inner property missing")
	}
	if _, ok := iv.Value.Property("price"); !ok {
		t.Fatal("sink-in property must surface inside the item")
	}
}

func TestExcludedItemSnapshotHasNoValue(t *testing.T) {
	rt := mustRuntime(t, catalogRoot())
	def := mustDefinition(t, rt, productPath)
	warranty, _ := def.Item("warranty")
	slot := schema.NewSlotKey("1", "0")

	if err := warranty.SetExclusionState(slot, schema.ExclusionExcluded); err != nil {
		t.Fatalf("exclude: %v", err)
	}
	dv := def.Value(slot, ValueOptions{})
	iv, _ := dv.Item("warranty")
	if iv.Exclusion != schema.ExclusionExcluded || iv.Value != nil {
		t.Fatalf("excluded item snapshot = %+v", iv)
	}
}

func TestValueOptions(t *testing.T) {
	rt := mustRuntime(t, catalogRoot())
	def := mustDefinition(t, rt, productPath)
	slot := schema.NewSlotKey("1", "0")

	v := def.Value(slot, ValueOptions{OnlyProperties: []string{"title"}, ExcludeItems: true})
	if len(v.Properties) != 1 || v.Properties[0].ID != "title" {
		t.Fatalf("restricted sweep = %+v", v.Properties)
	}
	if len(v.Items) != 0 {
		t.Fatal("item sweep must be skipped")
	}

	v = def.Value(slot, ValueOptions{ExcludeExtensions: true, ExcludeItems: true})
	for _, pv := range v.Properties {
		if pv.ID == "archived" {
			t.Fatal("extension must be excluded")
		}
	}
}

func TestFlattenApplyRoundTrip(t *testing.T) {
	rt := mustRuntime(t, catalogRoot())
	def := mustDefinition(t, rt, productPath)
	src := schema.NewSlotKey("1", "0")
	dst := schema.NewSlotKey("2", "0")

	title := mustProperty(t, def, "title")
	warranty, _ := def.Item("warranty")
	months := mustProperty(t, warranty.Inner(), "months")
	if err := title.SetCurrentValue(src, "Lamp", nil); err != nil {
		t.Fatalf("set title: %v", err)
	}
	if err := months.SetCurrentValue(src, 24, nil); err != nil {
		t.Fatalf("set months: %v", err)
	}
	if err := warranty.SetExclusionState(src, schema.ExclusionIncluded); err != nil {
		t.Fatalf("include: %v", err)
	}

	srcValue := def.Value(src, ValueOptions{})
	flat := srcValue.Flatten()
	if got := flat["title"]; got != "Lamp" {
		t.Fatalf("flat title = %v", got)
	}
	if got := flat[schema.ItemExclusionKey("warranty")]; got != string(schema.ExclusionIncluded) {
		t.Fatalf("flat exclusion = %v", got)
	}
	nested, ok := flat[schema.ItemValueKey("warranty")].(map[string]any)
	if !ok || !looseEqual(nested["months"], 24) {
		t.Fatalf("flat nested item = %v", flat[schema.ItemValueKey("warranty")])
	}

	def.ApplyValue(dst, flat, ApplyOptions{})
	if got := title.Value(dst); got != "Lamp" {
		t.Fatalf("applied title = %v", got)
	}
	if got := months.Value(dst); !looseEqual(got, 24) {
		t.Fatalf("applied months = %v", got)
	}
	if got := warranty.Exclusion(dst); got != schema.ExclusionIncluded {
		t.Fatalf("applied exclusion = %s", got)
	}
	if !def.HasAppliedValue(dst) {
		t.Fatal("apply must set the applied flag")
	}
}

func TestApplyValueWritesMissingKeysAsNil(t *testing.T) {
	rt := mustRuntime(t, catalogRoot())
	def := mustDefinition(t, rt, productPath)
	slot := schema.NewSlotKey("1", "0")
	title := mustProperty(t, def, "title")

	if err := title.SetCurrentValue(slot, "Lamp", nil); err != nil {
		t.Fatalf("set title: %v", err)
	}
	// A document without the key still sweeps the property to nil.
	def.ApplyValue(slot, map[string]any{"price": 9.5}, ApplyOptions{})
	if got := title.Value(slot); got != nil {
		t.Fatalf("missing key must apply nil, got %v", got)
	}
}

func TestApplyValueRejectsCorruptExclusionState(t *testing.T) {
	root := singleDefRoot(nil, []schema.Item{{
		ID:             "warranty",
		Definition:     "warranty",
		CanUserExclude: true,
		Ternary:        true,
	}}, warrantyDef())
	rt := mustRuntime(t, root)
	def := mustDefinition(t, rt, productPath)
	warranty, _ := def.Item("warranty")
	slot := schema.NewSlotKey("1", "0")

	if err := warranty.SetExclusionState(slot, schema.ExclusionExcluded); err != nil {
		t.Fatalf("exclude: %v", err)
	}
	def.ApplyValue(slot, map[string]any{schema.ItemExclusionKey("warranty"): "BOGUS"}, ApplyOptions{})
	if warranty.ExclusionModified(slot) {
		t.Fatal("corrupt state must reset the modified flag")
	}
	if got := warranty.Exclusion(slot); got != schema.ExclusionAny {
		t.Fatalf("exclusion after corrupt apply = %s, want %s", got, schema.ExclusionAny)
	}

	// Known states still travel through a document.
	def.ApplyValue(slot, map[string]any{schema.ItemExclusionKey("warranty"): string(schema.ExclusionExcluded)}, ApplyOptions{})
	if got := warranty.Exclusion(slot); got != schema.ExclusionExcluded {
		t.Fatalf("exclusion after valid apply = %s, want %s", got, schema.ExclusionExcluded)
	}
}

func TestItemOverrides(t *testing.T) {
	root := singleDefRoot(
		nil,
		[]schema.Item{
			{ID: "warranty", Definition: "warranty", EnforcedProperties: map[string]any{"months": 12}},
			{ID: "gift", Definition: "warranty", PredefinedProperties: map[string]any{"months": 6}},
		},
		warrantyDef(),
	)
	rt := mustRuntime(t, root)
	def := mustDefinition(t, rt, productPath)
	slot := schema.NewSlotKey("1", "0")

	warranty, _ := def.Item("warranty")
	enforced := mustProperty(t, warranty.Inner(), "months")
	if !enforced.Enforced(slot) || !looseEqual(enforced.Value(slot), 12) {
		t.Fatalf("enforced months = %v", enforced.Value(slot))
	}

	gift, _ := def.Item("gift")
	predefined := mustProperty(t, gift.Inner(), "months")
	if !looseEqual(predefined.Value(slot), 6) || !predefined.DefaultDerived(slot) {
		t.Fatalf("predefined months = %v", predefined.Value(slot))
	}
	if err := predefined.SetCurrentValue(slot, 3, nil); err != nil {
		t.Fatalf("set months: %v", err)
	}
	if !looseEqual(predefined.Value(slot), 3) {
		t.Fatal("predefined values must stay user-editable")
	}
}

func TestListen(t *testing.T) {
	rt := mustRuntime(t, catalogRoot())
	def := mustDefinition(t, rt, productPath)
	slot := schema.NewSlotKey("1", "0")

	fired := 0
	remove := def.Listen(slot, func() { fired++ })
	def.ApplyValue(slot, map[string]any{}, ApplyOptions{})
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	remove()
	def.ApplyValue(slot, map[string]any{}, ApplyOptions{})
	if fired != 1 {
		t.Fatalf("removed listener must not fire, fired = %d", fired)
	}
}

func TestDefinitionCleanValue(t *testing.T) {
	rt := mustRuntime(t, catalogRoot())
	def := mustDefinition(t, rt, productPath)
	slot := schema.NewSlotKey("1", "0")
	title := mustProperty(t, def, "title")

	def.ApplyValue(slot, map[string]any{"title": "Lamp"}, ApplyOptions{})
	def.CleanValue(slot)
	if def.HasAppliedValue(slot) {
		t.Fatal("clean must drop the applied flag")
	}
	if got := title.Value(slot); got != nil {
		t.Fatalf("clean must purge property state, got %v", got)
	}
}

func TestNewInstanceDetachesState(t *testing.T) {
	rt := mustRuntime(t, catalogRoot())
	def := mustDefinition(t, rt, productPath)
	inst, err := def.NewInstance()
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	if inst.QualifiedPath() == def.QualifiedPath() {
		t.Fatal("instance must register under its own path")
	}
	slot := schema.NewSlotKey("1", "0")
	if err := mustProperty(t, def, "title").SetCurrentValue(slot, "Lamp", nil); err != nil {
		t.Fatalf("set title: %v", err)
	}
	if got := mustProperty(t, inst, "title").Value(slot); got != nil {
		t.Fatalf("instance state must be disjoint, got %v", got)
	}
}
