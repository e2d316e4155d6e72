package engine

import (
	"context"

	"itemcore/pkg/schema"
)

// IndexChecker answers whether a value is free of unique-index collisions.
// Implementations perform the network round trip; the engine caches completed
// results per slot and value.
type IndexChecker func(ctx context.Context, p *Property, value any, slot schema.SlotKey) (bool, error)

// AutocompleteChecker answers whether a value is a legal member of the
// property's autocomplete source under the given filter values.
type AutocompleteChecker func(ctx context.Context, p *Property, value any, filters map[string]any, slot schema.SlotKey) (bool, error)

// passIndexChecker is the default: every value passes.
func passIndexChecker(context.Context, *Property, any, schema.SlotKey) (bool, error) {
	return true, nil
}

// passAutocompleteChecker is the default: every value passes.
func passAutocompleteChecker(context.Context, *Property, any, map[string]any, schema.SlotKey) (bool, error) {
	return true, nil
}

// External check instrumentation labels.
const (
	checkKindIndex        = "index"
	checkKindAutocomplete = "autocomplete"

	outcomeCacheHit = "cache_hit"
	outcomeValid    = "valid"
	outcomeInvalid  = "invalid"
	outcomeFailOpen = "fail_open"
)
