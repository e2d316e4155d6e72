package engine

import (
	"context"
	"errors"
	"testing"

	"itemcore/pkg/schema"
)

func TestIndexCheckCachesCompletedResults(t *testing.T) {
	root := singleDefRoot([]schema.PropertyDefinition{
		{ID: "sku", Type: schema.TypeString, Nullable: true, Unique: true},
	}, nil)
	rec := NewExpvarMetricsRecorder("")
	rt := mustRuntime(t, root, WithMetrics(rec))
	sku := mustProperty(t, mustDefinition(t, rt, productPath), "sku")
	slot := schema.NewSlotKey("1", "0")

	calls := 0
	rt.SetIndexChecker(func(_ context.Context, _ *Property, value any, _ schema.SlotKey) (bool, error) {
		calls++
		return value != "taken", nil
	})

	ctx := context.Background()
	if reason := sku.ValidateExternal(ctx, slot, "free"); !reason.Valid() {
		t.Fatalf("free value: got %q", reason)
	}
	if calls != 1 {
		t.Fatalf("checker calls = %d, want 1", calls)
	}
	if reason := sku.ValidateExternal(ctx, slot, "free"); !reason.Valid() {
		t.Fatalf("cached free value: got %q", reason)
	}
	if calls != 1 {
		t.Fatalf("repeat check must hit the cache, calls = %d", calls)
	}

	if reason := sku.ValidateExternal(ctx, slot, "taken"); reason != schema.ReasonNotUnique {
		t.Fatalf("taken value: got %q, want %q", reason, schema.ReasonNotUnique)
	}
	if calls != 2 {
		t.Fatalf("new value must re-run the checker, calls = %d", calls)
	}

	// The cached negative result surfaces through the local pipeline too.
	if reason := sku.ValidateLocal(slot, "taken"); reason != schema.ReasonNotUnique {
		t.Fatalf("local consult of cached invalid: got %q", reason)
	}
	// A value the cache is not keyed on passes locally without a check.
	if reason := sku.ValidateLocal(slot, "other"); !reason.Valid() {
		t.Fatalf("uncached value must pass locally, got %q", reason)
	}

	snap := rec.Snapshot()
	if got := snap.Outcomes["index"]["cache_hit"]; got != 1 {
		t.Fatalf("cache_hit count = %d, want 1", got)
	}
	if got := snap.Outcomes["index"]["valid"]; got != 1 {
		t.Fatalf("valid count = %d, want 1", got)
	}
	if got := snap.Outcomes["index"]["invalid"]; got != 1 {
		t.Fatalf("invalid count = %d, want 1", got)
	}
}

func TestIndexCheckFailsOpen(t *testing.T) {
	root := singleDefRoot([]schema.PropertyDefinition{
		{ID: "sku", Type: schema.TypeString, Nullable: true, Unique: true},
	}, nil)
	rec := NewExpvarMetricsRecorder("")
	rt := mustRuntime(t, root, WithMetrics(rec))
	sku := mustProperty(t, mustDefinition(t, rt, productPath), "sku")
	slot := schema.NewSlotKey("1", "0")

	calls := 0
	rt.SetIndexChecker(func(context.Context, *Property, any, schema.SlotKey) (bool, error) {
		calls++
		return false, errors.New("backend unreachable")
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if reason := sku.ValidateExternal(ctx, slot, "anything"); !reason.Valid() {
			t.Fatalf("unreachable backend must pass the value through, got %q", reason)
		}
	}
	// Failed checks are never cached; each attempt reaches the checker again.
	if calls != 2 {
		t.Fatalf("checker calls = %d, want 2", calls)
	}
	if got := rec.Snapshot().Outcomes["index"]["fail_open"]; got != 2 {
		t.Fatalf("fail_open count = %d, want 2", got)
	}
}

func TestAutocompleteFilterChangeBustsCache(t *testing.T) {
	root := singleDefRoot([]schema.PropertyDefinition{
		{ID: "country", Type: schema.TypeString, Nullable: true},
		{
			ID: "city", Type: schema.TypeString, Nullable: true,
			Autocomplete: &schema.AutocompleteConfig{
				Source:   "cities",
				Enforced: true,
				Filters:  []string{"country"},
			},
		},
	}, nil)
	rt := mustRuntime(t, root)
	def := mustDefinition(t, rt, productPath)
	country := mustProperty(t, def, "country")
	city := mustProperty(t, def, "city")
	slot := schema.NewSlotKey("1", "0")

	calls := 0
	var seenFilters map[string]any
	rt.SetAutocompleteChecker(func(_ context.Context, _ *Property, _ any, filters map[string]any, _ schema.SlotKey) (bool, error) {
		calls++
		seenFilters = filters
		return true, nil
	})

	ctx := context.Background()
	if reason := city.ValidateExternal(ctx, slot, "paris"); !reason.Valid() {
		t.Fatalf("got %q", reason)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if reason := city.ValidateExternal(ctx, slot, "paris"); !reason.Valid() {
		t.Fatalf("got %q", reason)
	}
	if calls != 1 {
		t.Fatalf("same value and filters must hit the cache, calls = %d", calls)
	}

	if err := country.SetCurrentValue(slot, "FR", nil); err != nil {
		t.Fatalf("set country: %v", err)
	}
	if reason := city.ValidateExternal(ctx, slot, "paris"); !reason.Valid() {
		t.Fatalf("got %q", reason)
	}
	if calls != 2 {
		t.Fatalf("filter change must force a fresh check, calls = %d", calls)
	}
	if !looseEqual(seenFilters["country"], "FR") {
		t.Fatalf("filters = %v, want country FR", seenFilters)
	}
}

func TestAutocompleteEnforcedRejection(t *testing.T) {
	root := singleDefRoot([]schema.PropertyDefinition{
		{
			ID: "city", Type: schema.TypeString, Nullable: true,
			Autocomplete: &schema.AutocompleteConfig{Source: "cities", Enforced: true},
		},
	}, nil)
	rt := mustRuntime(t, root)
	city := mustProperty(t, mustDefinition(t, rt, productPath), "city")
	slot := schema.NewSlotKey("1", "0")

	rt.SetAutocompleteChecker(func(context.Context, *Property, any, map[string]any, schema.SlotKey) (bool, error) {
		return false, nil
	})

	ctx := context.Background()
	if reason := city.ValidateExternal(ctx, slot, "atlantis"); reason != schema.ReasonInvalidValue {
		t.Fatalf("got %q, want %q", reason, schema.ReasonInvalidValue)
	}
	if reason := city.ValidateLocal(slot, "atlantis"); reason != schema.ReasonInvalidValue {
		t.Fatalf("cached rejection must surface locally, got %q", reason)
	}
}

func TestAutocompleteUnenforcedSkipsChecker(t *testing.T) {
	root := singleDefRoot([]schema.PropertyDefinition{
		{
			ID: "city", Type: schema.TypeString, Nullable: true,
			Autocomplete: &schema.AutocompleteConfig{Source: "cities"},
		},
	}, nil)
	rt := mustRuntime(t, root)
	city := mustProperty(t, mustDefinition(t, rt, productPath), "city")
	slot := schema.NewSlotKey("1", "0")

	rt.SetAutocompleteChecker(func(context.Context, *Property, any, map[string]any, schema.SlotKey) (bool, error) {
		t.Fatal("checker must not run for an unenforced source")
		return false, nil
	})

	if reason := city.ValidateExternal(context.Background(), slot, "anywhere"); !reason.Valid() {
		t.Fatalf("got %q", reason)
	}
}

func TestValidateExternalSkipsChecksForNil(t *testing.T) {
	root := singleDefRoot([]schema.PropertyDefinition{
		{ID: "sku", Type: schema.TypeString, Nullable: true, Unique: true},
	}, nil)
	rt := mustRuntime(t, root)
	sku := mustProperty(t, mustDefinition(t, rt, productPath), "sku")
	slot := schema.NewSlotKey("1", "0")

	rt.SetIndexChecker(func(context.Context, *Property, any, schema.SlotKey) (bool, error) {
		t.Fatal("checker must not run for nil values")
		return false, nil
	})

	if reason := sku.ValidateExternal(context.Background(), slot, nil); !reason.Valid() {
		t.Fatalf("got %q", reason)
	}
}
