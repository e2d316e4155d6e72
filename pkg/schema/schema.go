// Package schema defines the declarative model consumed by the itemcore
// engine: modules, item definitions, property definitions, embedded items and
// the conditional rule sets that gate their behavior. Types in this package
// are pure data; all slot-addressed runtime state lives in the engine.
package schema

import (
	"fmt"
	"regexp"
)

// Root is the top of a parsed schema document tree.
type Root struct {
	Modules []Module `yaml:"modules" json:"modules"`
}

// Module groups item definitions and contributes extension properties that
// every child item definition inherits.
type Module struct {
	Name string `yaml:"name" json:"name"`
	// Extensions are module-level properties mirrored into every child item
	// definition without being separately declared there.
	Extensions []PropertyDefinition `yaml:"extensions,omitempty" json:"extensions,omitempty"`
	Children   []ItemDefinition     `yaml:"children,omitempty" json:"children,omitempty"`
	Modules    []Module             `yaml:"modules,omitempty" json:"modules,omitempty"`
}

// ItemDefinition declares a single entity shape: its locally declared
// properties, embedded items, nested child definitions and role access lists.
type ItemDefinition struct {
	Name       string               `yaml:"name" json:"name"`
	Properties []PropertyDefinition `yaml:"properties,omitempty" json:"properties,omitempty"`
	Items      []Item               `yaml:"items,omitempty" json:"items,omitempty"`
	Children   []ItemDefinition     `yaml:"children,omitempty" json:"children,omitempty"`
	// Imports name sibling definitions whose detached instances this
	// definition exposes alongside its own children.
	Imports []string `yaml:"imports,omitempty" json:"imports,omitempty"`

	ReadRoles   []string `yaml:"readRoles,omitempty" json:"readRoles,omitempty"`
	CreateRoles []string `yaml:"createRoles,omitempty" json:"createRoles,omitempty"`
	EditRoles   []string `yaml:"editRoles,omitempty" json:"editRoles,omitempty"`
	DeleteRoles []string `yaml:"deleteRoles,omitempty" json:"deleteRoles,omitempty"`
}

// Item embeds another item definition inside a parent definition, optionally
// forcing or pre-seeding property values and controlling exclusion.
type Item struct {
	ID string `yaml:"id" json:"id"`
	// Definition names the referenced item definition, resolved among the
	// parent's children, imports and siblings.
	Definition string `yaml:"definition" json:"definition"`

	// EnforcedProperties force inner property values (read-only for users).
	EnforcedProperties map[string]any `yaml:"enforcedProperties,omitempty" json:"enforcedProperties,omitempty"`
	// PredefinedProperties seed inner property defaults.
	PredefinedProperties map[string]any `yaml:"predefinedProperties,omitempty" json:"predefinedProperties,omitempty"`
	// SinkIn lists parent property ids whose values surface inside this
	// item's snapshot instead of being declared on the inner definition.
	SinkIn []string `yaml:"sinkIn,omitempty" json:"sinkIn,omitempty"`

	ExcludedIf        *RuleSet `yaml:"excludedIf,omitempty" json:"excludedIf,omitempty"`
	CanUserExclude    bool     `yaml:"canUserExclude,omitempty" json:"canUserExclude,omitempty"`
	CanUserExcludeIf  *RuleSet `yaml:"canUserExcludeIf,omitempty" json:"canUserExcludeIf,omitempty"`
	DefaultExcluded   bool     `yaml:"defaultExcluded,omitempty" json:"defaultExcluded,omitempty"`
	DefaultExcludedIf *RuleSet `yaml:"defaultExcludedIf,omitempty" json:"defaultExcludedIf,omitempty"`
	// Ternary switches exclusion to the three-state model where "don't care"
	// is distinguishable from included/excluded.
	Ternary bool `yaml:"ternary,omitempty" json:"ternary,omitempty"`
}

// ExactValue wraps a literal so that declaring an explicit null stays
// distinguishable from omitting the clause altogether.
type ExactValue struct {
	Value any `yaml:"value" json:"value"`
}

// ValueRule pairs a candidate value with the condition under which it applies.
type ValueRule struct {
	Value any      `yaml:"value" json:"value"`
	If    *RuleSet `yaml:"if" json:"if"`
}

// InvalidRule pairs a schema-author error message with its trigger condition.
type InvalidRule struct {
	Error string   `yaml:"error" json:"error"`
	If    *RuleSet `yaml:"if" json:"if"`
}

// AutocompleteConfig declares an externally checked autocomplete source.
type AutocompleteConfig struct {
	Source string `yaml:"source" json:"source"`
	// Enforced makes a value invalid unless the external source confirms it.
	Enforced bool `yaml:"enforced,omitempty" json:"enforced,omitempty"`
	// Filters name sibling properties whose current values parameterize the
	// check; they take part in the per-slot result cache key.
	Filters []string `yaml:"filters,omitempty" json:"filters,omitempty"`
}

// PropertyDefinition declares one property of an item definition.
type PropertyDefinition struct {
	ID      string       `yaml:"id" json:"id"`
	Type    PropertyType `yaml:"type" json:"type"`
	Subtype string       `yaml:"subtype,omitempty" json:"subtype,omitempty"`

	Nullable     bool `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	NullIfHidden bool `yaml:"nullIfHidden,omitempty" json:"nullIfHidden,omitempty"`

	Hidden           bool     `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	HiddenIfEnforced bool     `yaml:"hiddenIfEnforced,omitempty" json:"hiddenIfEnforced,omitempty"`
	HiddenIf         *RuleSet `yaml:"hiddenIf,omitempty" json:"hiddenIf,omitempty"`

	Default        *ExactValue `yaml:"default,omitempty" json:"default,omitempty"`
	DefaultIf      []ValueRule `yaml:"defaultIf,omitempty" json:"defaultIf,omitempty"`
	Enforced       *ExactValue `yaml:"enforced,omitempty" json:"enforced,omitempty"`
	EnforcedValues []ValueRule `yaml:"enforcedValues,omitempty" json:"enforcedValues,omitempty"`

	InvalidIf []InvalidRule `yaml:"invalidIf,omitempty" json:"invalidIf,omitempty"`

	// Values restricts the property to an allow-list.
	Values []any `yaml:"values,omitempty" json:"values,omitempty"`

	Min             *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max             *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	MinLength       *int     `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength       *int     `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`
	MinDecimalCount *int     `yaml:"minDecimalCount,omitempty" json:"minDecimalCount,omitempty"`
	MaxDecimalCount *int     `yaml:"maxDecimalCount,omitempty" json:"maxDecimalCount,omitempty"`
	// MaxFileSize bounds each file payload of a files property, in bytes.
	MaxFileSize *int64 `yaml:"maxFileSize,omitempty" json:"maxFileSize,omitempty"`

	// Unique requires an index check against the backend.
	Unique       bool                `yaml:"unique,omitempty" json:"unique,omitempty"`
	Autocomplete *AutocompleteConfig `yaml:"autocomplete,omitempty" json:"autocomplete,omitempty"`

	ReadRoles []string `yaml:"readRoles,omitempty" json:"readRoles,omitempty"`
	EditRoles []string `yaml:"editRoles,omitempty" json:"editRoles,omitempty"`
}

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidIdentifier reports whether a declared name is usable as a qualified
// path segment.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// FindChild returns the child item definition with the given name.
func (d *ItemDefinition) FindChild(name string) (*ItemDefinition, bool) {
	for i := range d.Children {
		if d.Children[i].Name == name {
			return &d.Children[i], true
		}
	}
	return nil, false
}

// FindProperty returns the locally declared property with the given id.
func (d *ItemDefinition) FindProperty(id string) (*PropertyDefinition, bool) {
	for i := range d.Properties {
		if d.Properties[i].ID == id {
			return &d.Properties[i], true
		}
	}
	return nil, false
}

// FindModule returns the direct child module with the given name.
func (r *Root) FindModule(name string) (*Module, bool) {
	for i := range r.Modules {
		if r.Modules[i].Name == name {
			return &r.Modules[i], true
		}
	}
	return nil, false
}

// FindChild returns the child item definition with the given name.
func (m *Module) FindChild(name string) (*ItemDefinition, bool) {
	for i := range m.Children {
		if m.Children[i].Name == name {
			return &m.Children[i], true
		}
	}
	return nil, false
}

func (m *Module) String() string {
	return fmt.Sprintf("module %s (%d children)", m.Name, len(m.Children))
}
