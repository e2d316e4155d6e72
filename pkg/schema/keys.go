package schema

import "strings"

// Qualified path segments join with this separator. Identifiers are validated
// at load to exclude it, keeping paths collision-free across nesting levels.
const pathSeparator = "/"

// Segment kind prefixes keep a module named like an item definition from
// colliding in a joined path.
const (
	segModule   = "mod."
	segItemDef  = "idef."
	segItem     = "item."
	segProperty = "prop."
)

// JoinModulePath appends a module segment to a qualified path.
func JoinModulePath(parent, name string) string {
	return join(parent, segModule+name)
}

// JoinItemDefinitionPath appends an item definition segment.
func JoinItemDefinitionPath(parent, name string) string {
	return join(parent, segItemDef+name)
}

// JoinItemPath appends an embedded item segment.
func JoinItemPath(parent, id string) string {
	return join(parent, segItem+id)
}

// JoinPropertyPath appends a property segment.
func JoinPropertyPath(parent, id string) string {
	return join(parent, segProperty+id)
}

// JoinImportPath appends the segment under which an imported definition's
// detached instance lives.
func JoinImportPath(parent, name string) string {
	return join(parent, "import."+name)
}

// JoinInstancePath appends the segment under which an ad-hoc detached
// instance lives, keyed by a caller-supplied unique token.
func JoinInstancePath(parent, token string) string {
	return join(parent, "inst."+token)
}

func join(parent, segment string) string {
	if parent == "" {
		return segment
	}
	return parent + pathSeparator + segment
}

// Flat value documents key properties by their plain id and items by the
// derived keys below; an item's exclusion state travels under its own key,
// separate from the item's nested value.

// ItemValueKey is the flat-document key carrying an embedded item's value.
func ItemValueKey(id string) string {
	return "item_" + id
}

// ItemExclusionKey is the flat-document key carrying an item's exclusion state.
func ItemExclusionKey(id string) string {
	return "item_" + id + "_exclusion_state"
}

// IsItemKey reports whether a flat-document key addresses an item rather than
// a property.
func IsItemKey(key string) bool {
	return strings.HasPrefix(key, "item_")
}
