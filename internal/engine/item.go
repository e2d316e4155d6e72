package engine

import (
	"fmt"

	"itemcore/pkg/schema"
)

type itemState struct {
	exclusion schema.ExclusionState
	modified  bool
}

// Item wraps an embedded use of another item definition inside a parent,
// adding an exclusion state and enforced/predefined overrides over a
// detached inner instance. Its conditions evaluate against the parent's
// property scope.
type Item struct {
	rt     *Runtime
	parent *ItemDefinition
	def    *schema.Item
	path   string

	inner *ItemDefinition

	excludedIf        *Condition
	canUserExcludeIf  *Condition
	defaultExcludedIf *Condition

	sinkIn []*Property

	states map[schema.SlotKey]*itemState
}

// Definition returns the immutable declarative data.
func (it *Item) Definition() *schema.Item { return it.def }

// ID returns the declared item id.
func (it *Item) ID() string { return it.def.ID }

// QualifiedPath returns the stable collision-free identifier for the item.
func (it *Item) QualifiedPath() string { return it.path }

// Inner returns the owned detached instance of the referenced definition.
func (it *Item) Inner() *ItemDefinition { return it.inner }

// SinkInProperties returns the parent properties whose values surface inside
// this item's snapshot.
func (it *Item) SinkInProperties() []*Property {
	out := make([]*Property, len(it.sinkIn))
	copy(out, it.sinkIn)
	return out
}

// userCanExclude mirrors the permission half of exclusion resolution.
func (it *Item) userCanExclude(slot schema.SlotKey) bool {
	if it.def.CanUserExclude {
		return true
	}
	return it.canUserExcludeIf != nil && it.canUserExcludeIf.Evaluate(slot)
}

// forceExcluded reports a non-overridable exclusion.
func (it *Item) forceExcluded(slot schema.SlotKey) bool {
	return it.excludedIf != nil && it.excludedIf.Evaluate(slot)
}

// Exclusion resolves the slot's effective exclusion state.
func (it *Item) Exclusion(slot schema.SlotKey) schema.ExclusionState {
	if it.forceExcluded(slot) {
		return schema.ExclusionExcluded
	}
	if it.userCanExclude(slot) {
		st := it.states[slot]
		if st == nil || !st.modified {
			if it.def.DefaultExcluded || (it.defaultExcludedIf != nil && it.defaultExcludedIf.Evaluate(slot)) {
				return schema.ExclusionExcluded
			}
			if it.def.Ternary {
				return schema.ExclusionAny
			}
			return schema.ExclusionIncluded
		}
		if !it.def.Ternary && (st.exclusion == schema.ExclusionAny || st.exclusion == "") {
			return schema.ExclusionIncluded
		}
		return st.exclusion
	}
	if it.def.Ternary {
		return schema.ExclusionAny
	}
	return schema.ExclusionIncluded
}

// CanExclusionBeSet reports whether a user toggle is currently allowed.
func (it *Item) CanExclusionBeSet(slot schema.SlotKey) bool {
	if it.forceExcluded(slot) {
		return false
	}
	return it.userCanExclude(slot)
}

// SetExclusionState records a user exclusion toggle. ANY is only accepted
// for ternary items.
func (it *Item) SetExclusionState(slot schema.SlotKey, state schema.ExclusionState) error {
	switch state {
	case schema.ExclusionIncluded, schema.ExclusionExcluded:
	case schema.ExclusionAny:
		if !it.def.Ternary {
			return fmt.Errorf("item %s is not ternary; exclusion %s not settable", it.path, state)
		}
	default:
		return fmt.Errorf("unknown exclusion state %q", state)
	}
	st, ok := it.states[slot]
	if !ok {
		st = &itemState{}
		it.states[slot] = st
	}
	st.exclusion = state
	st.modified = true
	return nil
}

// ExclusionModified reports whether the slot's exclusion was ever toggled.
func (it *Item) ExclusionModified(slot schema.SlotKey) bool {
	st := it.states[slot]
	return st != nil && st.modified
}

// ClearExclusionState drops the slot's toggle, reverting to defaults.
func (it *Item) ClearExclusionState(slot schema.SlotKey) {
	delete(it.states, slot)
}

// CleanValue purges the slot's exclusion state and the inner instance's
// entire slot state.
func (it *Item) CleanValue(slot schema.SlotKey) {
	delete(it.states, slot)
	it.inner.CleanValue(slot)
}
