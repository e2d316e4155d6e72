package engine

import (
	"fmt"
	"reflect"
	"strings"

	"itemcore/pkg/schema"
)

// Condition is a compiled conditional rule set bound to live property
// engines. Compilation resolves every property reference once; evaluation is
// synchronous and never suspends, so rendering paths may call it per frame.
//
// Cycle safety is the schema author's responsibility: a condition that reads
// a property whose own resolution evaluates the same condition recurses
// without bound.
type Condition struct {
	property   *Property
	comparator schema.Comparator

	exact    any
	referred *Property

	gate schema.Gate
	next *Condition
}

// compileCondition resolves a raw rule set against a property scope.
func compileCondition(rs *schema.RuleSet, lookup func(id string) (*Property, bool)) (*Condition, error) {
	if rs == nil {
		return nil, nil
	}
	prop, ok := lookup(rs.Property)
	if !ok {
		return nil, schema.ErrNotFound{Kind: "condition property", Name: rs.Property}
	}
	if !schema.ValidComparator(rs.Comparator) {
		return nil, fmt.Errorf("unknown comparator %q", rs.Comparator)
	}
	c := &Condition{property: prop, comparator: rs.Comparator}
	switch rs.Value.Kind {
	case schema.KindExact:
		c.exact = rs.Value.Exact
	case schema.KindReferred:
		ref, ok := lookup(rs.Value.Property)
		if !ok {
			return nil, schema.ErrNotFound{Kind: "condition value property", Name: rs.Value.Property}
		}
		c.referred = ref
	}
	if rs.Condition != nil {
		if !schema.ValidGate(rs.Gate) {
			return nil, fmt.Errorf("chained condition without a valid gate")
		}
		next, err := compileCondition(rs.Condition, lookup)
		if err != nil {
			return nil, err
		}
		c.gate = rs.Gate
		c.next = next
	}
	return c, nil
}

// Evaluate resolves the chain left to right for the given slot. And/or gates
// short-circuit; xor always evaluates both sides.
func (c *Condition) Evaluate(slot schema.SlotKey) bool {
	self := c.evaluateSelf(slot)
	if c.next == nil {
		return self
	}
	switch c.gate {
	case schema.GateAnd:
		return self && c.next.Evaluate(slot)
	case schema.GateOr:
		return self || c.next.Evaluate(slot)
	default: // xor
		return self != c.next.Evaluate(slot)
	}
}

func (c *Condition) evaluateSelf(slot schema.SlotKey) bool {
	left := c.property.Value(slot)
	var right any
	if c.referred != nil {
		right = c.referred.Value(slot)
	} else {
		right = c.exact
	}
	return compare(c.comparator, left, right)
}

func compare(comparator schema.Comparator, left, right any) bool {
	switch comparator {
	case schema.CompEquals:
		return looseEqual(left, right)
	case schema.CompNotEquals:
		return !looseEqual(left, right)
	case schema.CompIncludes:
		return includes(left, right)
	}

	// Ordering comparators: numbers compare numerically, strings lexically,
	// everything else never orders.
	if lf, ok := asFloat(left); ok {
		rf, ok := asFloat(right)
		if !ok {
			return false
		}
		return orderedFloat(comparator, lf, rf)
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return orderedString(comparator, ls, rs)
	}
	return false
}

func orderedFloat(comparator schema.Comparator, l, r float64) bool {
	switch comparator {
	case schema.CompGreaterThan:
		return l > r
	case schema.CompLessThan:
		return l < r
	case schema.CompGreaterOrEqual:
		return l >= r
	case schema.CompLessOrEqual:
		return l <= r
	}
	return false
}

func orderedString(comparator schema.Comparator, l, r string) bool {
	switch comparator {
	case schema.CompGreaterThan:
		return l > r
	case schema.CompLessThan:
		return l < r
	case schema.CompGreaterOrEqual:
		return l >= r
	case schema.CompLessOrEqual:
		return l <= r
	}
	return false
}

// looseEqual is deep equality with numeric widening, so a document-decoded
// float64 2 equals a schema-declared int 2.
func looseEqual(left, right any) bool {
	if lf, ok := asFloat(left); ok {
		if rf, ok := asFloat(right); ok {
			return lf == rf
		}
		return false
	}
	return reflect.DeepEqual(left, right)
}

func includes(left, right any) bool {
	switch l := left.(type) {
	case []any:
		for _, entry := range l {
			if looseEqual(entry, right) {
				return true
			}
		}
		return false
	case string:
		r, ok := right.(string)
		return ok && strings.Contains(l, r)
	default:
		return false
	}
}
