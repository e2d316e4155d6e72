package schema

import (
	"fmt"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Comparator names a binary comparison applied between a property's current
// value and a condition value.
type Comparator string

// Supported comparators.
const (
	CompEquals         Comparator = "equals"
	CompNotEquals      Comparator = "not-equals"
	CompGreaterThan    Comparator = "greater-than"
	CompLessThan       Comparator = "less-than"
	CompGreaterOrEqual Comparator = "greater-or-equal"
	CompLessOrEqual    Comparator = "less-or-equal"
	CompIncludes       Comparator = "includes"
)

// Gate joins a rule set to its chained condition.
type Gate string

// Supported gates.
const (
	GateAnd Gate = "and"
	GateOr  Gate = "or"
	GateXor Gate = "xor"
)

// ConditionValueKind discriminates the two condition value shapes.
type ConditionValueKind int

const (
	// KindExact compares against a literal declared in the schema.
	KindExact ConditionValueKind = iota
	// KindReferred compares against another property's current value,
	// resolved per slot at evaluation time.
	KindReferred
)

// ConditionValue is the tagged union a condition compares against: either a
// literal or a reference to a sibling property. The shape is decided once at
// schema load, never re-inspected per evaluation.
type ConditionValue struct {
	Kind     ConditionValueKind
	Exact    any
	Property string
}

type conditionValueWire struct {
	ExactValue *any    `yaml:"exactValue" json:"exactValue"`
	Property   *string `yaml:"property" json:"property"`
}

func (cv *ConditionValue) fromWire(w conditionValueWire) error {
	switch {
	case w.Property != nil && w.ExactValue != nil:
		return fmt.Errorf("condition value declares both exactValue and property")
	case w.Property != nil:
		cv.Kind = KindReferred
		cv.Property = *w.Property
	case w.ExactValue != nil:
		cv.Kind = KindExact
		cv.Exact = *w.ExactValue
	default:
		return fmt.Errorf("condition value declares neither exactValue nor property")
	}
	return nil
}

// UnmarshalYAML decides the union shape at load time.
func (cv *ConditionValue) UnmarshalYAML(node *yaml.Node) error {
	var w conditionValueWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	return cv.fromWire(w)
}

// UnmarshalJSON decides the union shape at load time.
func (cv *ConditionValue) UnmarshalJSON(data []byte) error {
	var w conditionValueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return cv.fromWire(w)
}

// MarshalYAML renders the wire shape back out.
func (cv ConditionValue) MarshalYAML() (any, error) {
	if cv.Kind == KindReferred {
		return map[string]any{"property": cv.Property}, nil
	}
	return map[string]any{"exactValue": cv.Exact}, nil
}

// MarshalJSON renders the wire shape back out.
func (cv ConditionValue) MarshalJSON() ([]byte, error) {
	if cv.Kind == KindReferred {
		return json.Marshal(map[string]any{"property": cv.Property})
	}
	return json.Marshal(map[string]any{"exactValue": cv.Exact})
}

// RuleSet declares one boolean condition over a property's current value,
// optionally chained to a further condition through a gate. Conditions may
// reference other properties; schemas that declare circular references are
// the author's responsibility and will recurse without bound.
type RuleSet struct {
	Property   string         `yaml:"property" json:"property"`
	Comparator Comparator     `yaml:"comparator" json:"comparator"`
	Value      ConditionValue `yaml:"value" json:"value"`

	Gate      Gate     `yaml:"gate,omitempty" json:"gate,omitempty"`
	Condition *RuleSet `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// ValidComparator reports whether c is part of the closed comparator set.
func ValidComparator(c Comparator) bool {
	switch c {
	case CompEquals, CompNotEquals, CompGreaterThan, CompLessThan,
		CompGreaterOrEqual, CompLessOrEqual, CompIncludes:
		return true
	}
	return false
}

// ValidGate reports whether g is part of the closed gate set.
func ValidGate(g Gate) bool {
	switch g {
	case GateAnd, GateOr, GateXor:
		return true
	}
	return false
}
