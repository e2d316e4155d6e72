package schema

import "testing"

func TestQualifiedPathJoining(t *testing.T) {
	mod := JoinModulePath("", "catalog")
	if mod != "mod.catalog" {
		t.Fatalf("module path = %q", mod)
	}
	def := JoinItemDefinitionPath(mod, "product")
	if def != "mod.catalog/idef.product" {
		t.Fatalf("definition path = %q", def)
	}
	if got := JoinPropertyPath(def, "title"); got != "mod.catalog/idef.product/prop.title" {
		t.Fatalf("property path = %q", got)
	}
	if got := JoinItemPath(def, "warranty"); got != "mod.catalog/idef.product/item.warranty" {
		t.Fatalf("item path = %q", got)
	}
}

func TestSegmentPrefixesPreventCollision(t *testing.T) {
	// A module and an item definition sharing a name must not produce the
	// same qualified path.
	if JoinModulePath("", "x") == JoinItemDefinitionPath("", "x") {
		t.Fatalf("module and definition paths collide")
	}
}

func TestItemKeys(t *testing.T) {
	if got := ItemValueKey("warranty"); got != "item_warranty" {
		t.Fatalf("value key = %q", got)
	}
	if got := ItemExclusionKey("warranty"); got != "item_warranty_exclusion_state" {
		t.Fatalf("exclusion key = %q", got)
	}
	if !IsItemKey("item_warranty") || IsItemKey("warranty") {
		t.Fatalf("item key detection wrong")
	}
}

func TestSlotKey(t *testing.T) {
	slot := NewSlotKey("42", "7")
	if slot.String() != "42.7" {
		t.Fatalf("string form = %q", slot.String())
	}
	if slot.IsNew() {
		t.Fatalf("slot with id should not be new")
	}
	if !(SlotKey{}).IsNew() {
		t.Fatalf("zero slot should be new")
	}
	// Distinct slots must stay distinct as map keys even when versions shift
	// segments around.
	a := NewSlotKey("1", "23")
	b := NewSlotKey("12", "3")
	m := map[SlotKey]bool{a: true}
	if m[b] {
		t.Fatalf("slot keys collide")
	}
}
