package schema

// PropertyType identifies the behavior table entry a property resolves
// against in the engine's descriptor registry.
type PropertyType string

// Built-in property types shipped with the engine.
const (
	TypeBoolean  PropertyType = "boolean"
	TypeInteger  PropertyType = "integer"
	TypeNumber   PropertyType = "number"
	TypeCurrency PropertyType = "currency"
	TypeYear     PropertyType = "year"
	TypeString   PropertyType = "string"
	TypeText     PropertyType = "text"
	TypeFiles    PropertyType = "files"
)

// Known subtypes for string and text properties.
const (
	SubtypeEmail      = "email"
	SubtypeIdentifier = "identifier"
	SubtypeRich       = "rich"
)

// Action identifies an operation checked against role access lists.
type Action string

// Role-checked actions.
const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Sentinel role tokens recognized by access checks.
const (
	// RoleAnyone grants access unconditionally, including to guests.
	RoleAnyone = "&ANYONE"
	// RoleOwner grants access only when the requesting user owns the slot.
	RoleOwner = "&OWNER"
	// RoleGuest is the role carried by unauthenticated requesters.
	RoleGuest = "&GUEST"
)

// UnspecifiedOwner is passed as the owner id when ownership of a slot is not
// known. It is distinct from any real user id so that a guest can never
// spuriously match as owner.
const UnspecifiedOwner int64 = -1

// ExclusionState is the three-state inclusion model for embedded items.
type ExclusionState string

// Exclusion states. ExclusionAny only occurs for ternary items, where
// "don't care" must stay distinguishable from included/excluded.
const (
	ExclusionIncluded ExclusionState = "INCLUDED"
	ExclusionExcluded ExclusionState = "EXCLUDED"
	ExclusionAny      ExclusionState = "ANY"
)

// SlotKey addresses one concrete instance a definition is bound to: a stored
// row's id and version, or the zero value for a not-yet-persisted entity.
// Missing versions are the empty string, never a distinct null, so that two
// slots can never collide through key formatting.
type SlotKey struct {
	ID      string
	Version string
}

// NewSlotKey builds a slot key from an id and version.
func NewSlotKey(id, version string) SlotKey {
	return SlotKey{ID: id, Version: version}
}

// String renders the composite wire form id + "." + version. It is for
// display and storage payloads only; map lookups key on the struct itself.
func (k SlotKey) String() string {
	return k.ID + "." + k.Version
}

// IsNew reports whether the slot addresses a not-yet-persisted entity.
func (k SlotKey) IsNew() bool {
	return k.ID == ""
}
