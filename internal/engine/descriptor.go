// Package engine implements the itemcore state engine: per-slot property and
// item state, layered value resolution (enforced, default, hidden), rule-based
// and externally checked validation, and structural snapshots of item
// definitions. Synchronous resolution never suspends; only external checks
// take a context.
package engine

import (
	"fmt"
	"sort"

	"itemcore/pkg/schema"
)

// Descriptor is the per-type behavior table entry consumed read-only by the
// property engine.
type Descriptor struct {
	Type schema.PropertyType
	// JSONType is the wire-level type values must decode to: "boolean",
	// "number", "string", "object" or "array".
	JSONType string
	// NullableSentinel, when non-nil, is the empty-like value normalized to
	// nil before storage so optional fields default uniformly to nil.
	NullableSentinel any

	Searchable           bool
	AllowsMinMax         bool
	AllowsLength         bool
	AllowsDecimalCount   bool
	SupportsIndex        bool
	SupportsAutocomplete bool

	// Validate is the subtype-aware type hook, run after the JSON-type and
	// structural checks pass. A nil hook accepts every well-typed value.
	Validate func(value any, subtype string) schema.InvalidReason
	// ValidateStructure checks composite value shape (field presence and
	// bounds) before Validate runs. Only set for composite types.
	ValidateStructure func(value any, maxFileSize int64) schema.InvalidReason
}

// DescriptorRegistry holds the closed set of property types known to a
// runtime. Registration happens up front; lookups afterwards are read-only.
type DescriptorRegistry struct {
	descriptors map[schema.PropertyType]Descriptor
}

// NewDescriptorRegistry constructs an empty registry.
func NewDescriptorRegistry() *DescriptorRegistry {
	return &DescriptorRegistry{descriptors: make(map[schema.PropertyType]Descriptor)}
}

// NewDefaultDescriptorRegistry builds a registry with the built-in type set.
func NewDefaultDescriptorRegistry() *DescriptorRegistry {
	r := NewDescriptorRegistry()
	for _, d := range builtinDescriptors() {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a descriptor. Duplicate type names are rejected.
func (r *DescriptorRegistry) Register(d Descriptor) error {
	if d.Type == "" {
		return fmt.Errorf("descriptor without a type name")
	}
	if d.JSONType == "" {
		return fmt.Errorf("descriptor %s without a json type", d.Type)
	}
	if _, exists := r.descriptors[d.Type]; exists {
		return fmt.Errorf("descriptor %s already registered", d.Type)
	}
	r.descriptors[d.Type] = d
	return nil
}

// Descriptor returns the behavior table entry for a type.
func (r *DescriptorRegistry) Descriptor(t schema.PropertyType) (Descriptor, bool) {
	d, ok := r.descriptors[t]
	return d, ok
}

// Types returns the registered type names, sorted.
func (r *DescriptorRegistry) Types() []schema.PropertyType {
	out := make([]schema.PropertyType, 0, len(r.descriptors))
	for t := range r.descriptors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// jsonTypeOf maps a decoded Go value onto the wire-level type vocabulary.
// nil maps to the empty string; callers handle nil before consulting this.
func jsonTypeOf(value any) string {
	switch value.(type) {
	case nil:
		return ""
	case bool:
		return "boolean"
	case int, int64, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
