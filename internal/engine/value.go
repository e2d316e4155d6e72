package engine

import "itemcore/pkg/schema"

// PropertyValue is one property's slice of a structural snapshot.
type PropertyValue struct {
	ID            string               `json:"id"`
	Value         any                  `json:"value"`
	Applied       any                  `json:"applied"`
	Valid         bool                 `json:"valid"`
	InvalidReason schema.InvalidReason `json:"invalidReason,omitempty"`
	Enforced      bool                 `json:"enforced"`
	Default       bool                 `json:"default"`
	Hidden        bool                 `json:"hidden"`
	Modified      bool                 `json:"modified"`
	ManuallySet   bool                 `json:"manuallySet"`
	InternalValue any                  `json:"-"`
}

// ItemValue is one embedded item's slice of a structural snapshot. Value is
// nil when the item resolves excluded.
type ItemValue struct {
	ID                string                `json:"id"`
	Exclusion         schema.ExclusionState `json:"exclusion"`
	ExclusionModified bool                  `json:"exclusionModified"`
	CanExclusionBeSet bool                  `json:"canExclusionBeSet"`
	Value             *DefinitionValue      `json:"value,omitempty"`
}

// DefinitionValue is the tree-shaped snapshot of an item definition for one
// slot. Its shape mirrors the declared schema tree: properties and items
// nest recursively, regardless of which properties were included in the read.
type DefinitionValue struct {
	ModuleName string          `json:"moduleName"`
	Path       string          `json:"path"`
	Name       string          `json:"name"`
	Properties []PropertyValue `json:"properties"`
	Items      []ItemValue     `json:"items"`
}

// Property returns the snapshot entry for a property id.
func (v *DefinitionValue) Property(id string) (PropertyValue, bool) {
	for _, pv := range v.Properties {
		if pv.ID == id {
			return pv, true
		}
	}
	return PropertyValue{}, false
}

// Item returns the snapshot entry for an item id.
func (v *DefinitionValue) Item(id string) (ItemValue, bool) {
	for _, iv := range v.Items {
		if iv.ID == id {
			return iv, true
		}
	}
	return ItemValue{}, false
}

// Flatten renders the snapshot into the flat key space ApplyValue consumes:
// properties under their ids, items under their value and exclusion keys.
func (v *DefinitionValue) Flatten() map[string]any {
	flat := make(map[string]any, len(v.Properties)+2*len(v.Items))
	for _, pv := range v.Properties {
		flat[pv.ID] = pv.Value
	}
	for _, iv := range v.Items {
		flat[schema.ItemExclusionKey(iv.ID)] = string(iv.Exclusion)
		if iv.Value != nil {
			flat[schema.ItemValueKey(iv.ID)] = iv.Value.Flatten()
		} else {
			flat[schema.ItemValueKey(iv.ID)] = nil
		}
	}
	return flat
}
