package engine

import (
	"context"
	"time"

	"itemcore/pkg/schema"
)

// ValueSource is the layered-override variant type: a literal, or a reference
// to another live property whose current value is read at resolution time.
// References are qualified-path lookups through the runtime's instance
// registry, never raw pointer aliases.
type ValueSource struct {
	literal any
	ref     string
	isRef   bool
}

// LiteralSource wraps a literal override value.
func LiteralSource(value any) ValueSource {
	return ValueSource{literal: value}
}

// ReferenceSource wraps a qualified property path whose current value is
// dereferenced on every resolution. Mutations of the referenced property are
// immediately visible to every dependent.
func ReferenceSource(qualifiedPath string) ValueSource {
	return ValueSource{ref: qualifiedPath, isRef: true}
}

func (s ValueSource) resolve(rt *Runtime, slot schema.SlotKey) any {
	if !s.isRef {
		return s.literal
	}
	target, ok := rt.Property(s.ref)
	if !ok {
		return nil
	}
	return target.Value(slot)
}

type compiledValueRule struct {
	value any
	cond  *Condition
}

type compiledInvalidRule struct {
	message string
	cond    *Condition
}

// checkRecord caches one completed external check outcome for a slot. The
// value (and autocomplete filters) act as the cache key: a stale in-flight
// result keyed by an old value simply never matches again.
type checkRecord struct {
	value   any
	filters map[string]any
	valid   bool
}

func (r *checkRecord) matches(value any, filters map[string]any) bool {
	if r == nil || !looseEqual(r.value, value) {
		return false
	}
	if len(r.filters) != len(filters) {
		return false
	}
	for k, v := range filters {
		if !looseEqual(r.filters[k], v) {
			return false
		}
	}
	return true
}

// propertyState is the per-slot mutable state of one property. Entries are
// created lazily on first write and must be purged with CleanValue; nothing
// reclaims them implicitly.
type propertyState struct {
	current          any
	applied          any
	superEnforced    any
	hasSuperEnforced bool
	modified         bool
	manuallySet      bool
	internal         any

	indexCheck        *checkRecord
	autocompleteCheck *checkRecord
}

// Property is the state engine for a single declared property across many
// slots. Rule compilation is shared by all slots; state is slot-keyed.
type Property struct {
	rt          *Runtime
	parent      *ItemDefinition
	def         *schema.PropertyDefinition
	desc        Descriptor
	path        string
	isExtension bool

	hiddenIf       *Condition
	defaultIf      []compiledValueRule
	enforcedValues []compiledValueRule
	invalidIf      []compiledInvalidRule

	staticDefault  *any
	staticEnforced *any

	autocompleteFilters []*Property

	globalSuperEnforced *ValueSource
	globalSuperDefault  *ValueSource

	states map[schema.SlotKey]*propertyState
}

// Definition returns the immutable declarative data.
func (p *Property) Definition() *schema.PropertyDefinition { return p.def }

// ID returns the declared property id.
func (p *Property) ID() string { return p.def.ID }

// QualifiedPath returns the stable collision-free identifier collaborators
// use as a cache and storage key.
func (p *Property) QualifiedPath() string { return p.path }

// IsExtension reports whether the property is a module-level extension
// mirrored into the owning item definition.
func (p *Property) IsExtension() bool { return p.isExtension }

// Descriptor returns the behavior table entry for the property's type.
func (p *Property) Descriptor() Descriptor { return p.desc }

func (p *Property) state(slot schema.SlotKey) *propertyState {
	return p.states[slot]
}

func (p *Property) ensureState(slot schema.SlotKey) *propertyState {
	st, ok := p.states[slot]
	if !ok {
		st = &propertyState{}
		p.states[slot] = st
	}
	return st
}

// normalize substitutes the type's empty-like sentinel with nil so optional
// fields default uniformly to nil rather than empty values.
func (p *Property) normalize(value any) any {
	if p.desc.NullableSentinel != nil && looseEqual(value, p.desc.NullableSentinel) {
		return nil
	}
	return value
}

// checkAssignment performs the best-effort type-shape assertion applied by
// every setter: nil always passes, gross JSON-type mismatches fail fast with
// a precondition error, and every correctly-typed value is accepted even if
// it would not validate.
func (p *Property) checkAssignment(value any) (any, error) {
	value = p.normalize(value)
	if value == nil {
		return nil, nil
	}
	if got := jsonTypeOf(value); got != p.desc.JSONType {
		return nil, &schema.PreconditionError{Property: p.path, Expected: p.desc.JSONType, Got: value}
	}
	return value, nil
}

// EnforcedValue resolves the layered enforcement chain, first match wins:
// global super-enforced, per-slot super-enforced, static enforced, first
// matching enforcedValues rule.
func (p *Property) EnforcedValue(slot schema.SlotKey) (any, bool) {
	if p.globalSuperEnforced != nil {
		return p.globalSuperEnforced.resolve(p.rt, slot), true
	}
	if st := p.state(slot); st != nil && st.hasSuperEnforced {
		return st.superEnforced, true
	}
	if p.staticEnforced != nil {
		return *p.staticEnforced, true
	}
	for _, rule := range p.enforcedValues {
		if rule.cond.Evaluate(slot) {
			return rule.value, true
		}
	}
	return nil, false
}

// Enforced reports whether the property is currently enforced for the slot.
func (p *Property) Enforced(slot schema.SlotKey) bool {
	_, ok := p.EnforcedValue(slot)
	return ok
}

// Hidden resolves visibility: statically hidden, hidden because enforced, or
// hidden by condition. Left-to-right short-circuit.
func (p *Property) Hidden(slot schema.SlotKey) bool {
	if p.def.Hidden {
		return true
	}
	if p.def.HiddenIfEnforced && p.Enforced(slot) {
		return true
	}
	return p.hiddenIf != nil && p.hiddenIf.Evaluate(slot)
}

// Value resolves the effective current value for a slot. The result is nil
// or a concrete value, never a missing-key sentinel. It never suspends.
func (p *Property) Value(slot schema.SlotKey) any {
	if v, ok := p.EnforcedValue(slot); ok {
		return v
	}
	if p.def.NullIfHidden && p.Hidden(slot) {
		return nil
	}
	st := p.state(slot)
	if st == nil || !st.modified {
		return p.defaultValue(slot)
	}
	return st.current
}

func (p *Property) defaultValue(slot schema.SlotKey) any {
	if p.globalSuperDefault != nil {
		return p.globalSuperDefault.resolve(p.rt, slot)
	}
	if p.staticDefault != nil {
		return *p.staticDefault
	}
	for _, rule := range p.defaultIf {
		if rule.cond.Evaluate(slot) {
			return rule.value
		}
	}
	return nil
}

// DefaultDerived reports whether the slot's effective value comes from
// default resolution rather than user input or enforcement.
func (p *Property) DefaultDerived(slot schema.SlotKey) bool {
	if p.Enforced(slot) {
		return false
	}
	st := p.state(slot)
	return st == nil || !st.modified
}

// SetCurrentValue records direct user input for the slot, together with an
// opaque UI-only internal value.
func (p *Property) SetCurrentValue(slot schema.SlotKey, value, internal any) error {
	value, err := p.checkAssignment(value)
	if err != nil {
		return err
	}
	st := p.ensureState(slot)
	st.current = value
	st.internal = internal
	st.modified = true
	st.manuallySet = true
	return nil
}

// ApplyValue records a value loaded from storage or the network rather than
// user input. The applied baseline is updated unconditionally; current state
// handling depends on suppression:
//
// With suppressIfManuallyDiffers set and the slot manually edited, an
// incoming value equal to the edit downgrades the manual flag (the load was
// redundant), while a differing value leaves current state untouched so the
// user's edit survives a concurrent update. Without suppression the load
// overwrites current, internal and both flags.
func (p *Property) ApplyValue(slot schema.SlotKey, value any, modified, suppressIfManuallyDiffers bool) {
	st := p.ensureState(slot)
	if suppressIfManuallyDiffers && st.manuallySet {
		if looseEqual(st.current, value) {
			st.modified = modified
			st.manuallySet = false
		}
	} else {
		st.current = value
		st.internal = nil
		st.modified = modified
		st.manuallySet = false
	}
	st.applied = value
}

// AppliedValue returns the last applied (storage-confirmed) value, the
// baseline used for diffing edits at submit time.
func (p *Property) AppliedValue(slot schema.SlotKey) any {
	if st := p.state(slot); st != nil {
		return st.applied
	}
	return nil
}

// InternalValue returns the opaque UI-only cache for the slot.
func (p *Property) InternalValue(slot schema.SlotKey) any {
	if st := p.state(slot); st != nil {
		return st.internal
	}
	return nil
}

// Modified reports whether the slot's value was ever modified.
func (p *Property) Modified(slot schema.SlotKey) bool {
	st := p.state(slot)
	return st != nil && st.modified
}

// ManuallySet reports whether the slot's value came from direct user input.
func (p *Property) ManuallySet(slot schema.SlotKey) bool {
	st := p.state(slot)
	return st != nil && st.manuallySet
}

// Restore reverts the slot's current value to the applied baseline.
func (p *Property) Restore(slot schema.SlotKey) {
	st := p.state(slot)
	if st == nil {
		return
	}
	st.current = st.applied
	st.internal = nil
	st.modified = true
	st.manuallySet = false
}

// SetSuperEnforced applies a per-slot enforcement above schema-declared
// enforcement but below the global override.
func (p *Property) SetSuperEnforced(slot schema.SlotKey, value any) error {
	value, err := p.checkAssignment(value)
	if err != nil {
		return err
	}
	st := p.ensureState(slot)
	st.superEnforced = value
	st.hasSuperEnforced = true
	return nil
}

// ClearSuperEnforced removes the per-slot enforcement.
func (p *Property) ClearSuperEnforced(slot schema.SlotKey) {
	if st := p.state(slot); st != nil {
		st.superEnforced = nil
		st.hasSuperEnforced = false
	}
}

// SetGlobalSuperEnforced applies the process-wide enforcement override that
// precedes all per-slot state. Literal sources are normalized and
// type-asserted; reference sources resolve dynamically per slot.
func (p *Property) SetGlobalSuperEnforced(source ValueSource) error {
	if !source.isRef {
		value, err := p.checkAssignment(source.literal)
		if err != nil {
			return err
		}
		source.literal = value
	}
	p.globalSuperEnforced = &source
	return nil
}

// ClearGlobalSuperEnforced removes the global enforcement override.
func (p *Property) ClearGlobalSuperEnforced() {
	p.globalSuperEnforced = nil
}

// SetGlobalSuperDefault applies the process-wide default override, taking
// precedence over the schema-declared default and defaultIf rules.
func (p *Property) SetGlobalSuperDefault(source ValueSource) error {
	if !source.isRef {
		value, err := p.checkAssignment(source.literal)
		if err != nil {
			return err
		}
		source.literal = value
	}
	p.globalSuperDefault = &source
	return nil
}

// ClearGlobalSuperDefault removes the global default override.
func (p *Property) ClearGlobalSuperDefault() {
	p.globalSuperDefault = nil
}

// CleanValue purges every piece of per-slot state for the slot, including
// external check caches. Resolution afterwards starts from schema defaults.
func (p *Property) CleanValue(slot schema.SlotKey) {
	delete(p.states, slot)
}

// maxFileSize returns the per-file payload bound for files properties.
func (p *Property) maxFileSize() int64 {
	if p.def.MaxFileSize != nil {
		return *p.def.MaxFileSize
	}
	return DefaultMaxFileSize
}

// minDecimalCount returns the effective lower decimal bound. Currency always
// reports none; the backing schema data is deliberately ignored for it.
func (p *Property) minDecimalCount() *int {
	if p.def.Type == schema.TypeCurrency {
		return nil
	}
	return p.def.MinDecimalCount
}

// comparableNumber extracts the numeric magnitude bounds compare against.
func (p *Property) comparableNumber(value any) (float64, bool) {
	if p.def.Type == schema.TypeCurrency {
		m, ok := value.(map[string]any)
		if !ok {
			return 0, false
		}
		return asFloat(m["value"])
	}
	return asFloat(value)
}

// effectiveLength measures a value the way length bounds see it: rich text
// by its tag-stripped text content, everything else by rune count.
func (p *Property) effectiveLength(value any) (int, bool) {
	s, ok := value.(string)
	if !ok {
		return 0, false
	}
	if p.def.Subtype == schema.SubtypeRich {
		return textContentLength(s), true
	}
	return len([]rune(s)), true
}

func (p *Property) rawLength(value any) (int, bool) {
	s, ok := value.(string)
	if !ok {
		return 0, false
	}
	return len([]rune(s)), true
}

// ValidateLocal validates a value for a slot without any network suspension:
// the full local pipeline plus consultation of cached external check results.
// A cache miss on an externally checked constraint is treated as valid; the
// optimistic reading is deliberate.
func (p *Property) ValidateLocal(slot schema.SlotKey, value any) schema.InvalidReason {
	return p.validate(slot, value)
}

// ValidateExternal runs the full pipeline and, when the local stages pass,
// performs the pluggable index and autocomplete checks, populating the
// per-slot caches with completed results. Checkers that fail to reach their
// backend pass the value through; offline use never blocks on validation.
func (p *Property) ValidateExternal(ctx context.Context, slot schema.SlotKey, value any) schema.InvalidReason {
	if reason := p.validate(slot, value); !reason.Valid() {
		return reason
	}
	if value == nil {
		return schema.ReasonValid
	}
	if reason := p.runIndexCheck(ctx, slot, value); !reason.Valid() {
		return reason
	}
	return p.runAutocompleteCheck(ctx, slot, value)
}

// validate is the shared synchronous pipeline, first failure wins.
func (p *Property) validate(slot schema.SlotKey, value any) schema.InvalidReason {
	// Fields hidden out of relevance resolve to nil and are exempt from
	// validation entirely.
	if p.def.NullIfHidden && p.Hidden(slot) {
		return schema.ReasonValid
	}
	if value == nil {
		if p.def.Nullable {
			return schema.ReasonValid
		}
		return schema.ReasonNotNullable
	}
	if len(p.def.Values) > 0 && !p.valueInAllowList(value) {
		return schema.ReasonInvalidValue
	}
	if jsonTypeOf(value) != p.desc.JSONType {
		return schema.ReasonInvalidValue
	}
	if p.desc.ValidateStructure != nil {
		if reason := p.desc.ValidateStructure(value, p.maxFileSize()); !reason.Valid() {
			return reason
		}
	}
	if p.desc.Validate != nil {
		if reason := p.desc.Validate(value, p.def.Subtype); !reason.Valid() {
			return reason
		}
	}
	if reason := p.validateBounds(value); !reason.Valid() {
		return reason
	}
	if reason := p.consultCheckCaches(slot, value); !reason.Valid() {
		return reason
	}
	for _, rule := range p.invalidIf {
		if rule.cond.Evaluate(slot) {
			return schema.InvalidReason(rule.message)
		}
	}
	return schema.ReasonValid
}

func (p *Property) valueInAllowList(value any) bool {
	for _, allowed := range p.def.Values {
		if looseEqual(value, allowed) {
			return true
		}
	}
	return false
}

// validateBounds applies the numeric and length bounds in their fixed order:
// min, max, raw minLength, decimal count (max then min), then the
// content-aware length bound (max then min).
func (p *Property) validateBounds(value any) schema.InvalidReason {
	if p.desc.AllowsMinMax {
		if num, ok := p.comparableNumber(value); ok {
			if p.def.Min != nil && num < *p.def.Min {
				return schema.ReasonTooSmall
			}
			if p.def.Max != nil && num > *p.def.Max {
				return schema.ReasonTooLarge
			}
		}
	}
	if p.desc.AllowsLength && p.def.MinLength != nil {
		if length, ok := p.rawLength(value); ok && length < *p.def.MinLength {
			return schema.ReasonTooSmall
		}
	}
	if p.desc.AllowsDecimalCount {
		if num, ok := p.comparableNumber(value); ok {
			decimals := decimalCount(num)
			if p.def.MaxDecimalCount != nil && decimals > *p.def.MaxDecimalCount {
				return schema.ReasonTooManyDecimals
			}
			if minDecimals := p.minDecimalCount(); minDecimals != nil && decimals < *minDecimals {
				return schema.ReasonTooFewDecimals
			}
		}
	}
	if p.desc.AllowsLength {
		if length, ok := p.effectiveLength(value); ok {
			if p.def.MaxLength != nil && length > *p.def.MaxLength {
				return schema.ReasonTooLarge
			}
			if p.def.MinLength != nil && length < *p.def.MinLength {
				return schema.ReasonTooSmall
			}
		}
	}
	return schema.ReasonValid
}

// consultCheckCaches surfaces cached invalid outcomes of the externally
// checked constraints when the cached key still matches the value exactly.
func (p *Property) consultCheckCaches(slot schema.SlotKey, value any) schema.InvalidReason {
	st := p.state(slot)
	if st == nil {
		return schema.ReasonValid
	}
	if p.requiresIndexCheck() && st.indexCheck.matches(value, nil) && !st.indexCheck.valid {
		return schema.ReasonNotUnique
	}
	if p.requiresAutocompleteCheck() && st.autocompleteCheck.matches(value, p.autocompleteFilterValues(slot)) && !st.autocompleteCheck.valid {
		return schema.ReasonInvalidValue
	}
	return schema.ReasonValid
}

func (p *Property) requiresIndexCheck() bool {
	return p.def.Unique && p.desc.SupportsIndex
}

func (p *Property) requiresAutocompleteCheck() bool {
	return p.def.Autocomplete != nil && p.def.Autocomplete.Enforced && p.desc.SupportsAutocomplete
}

// autocompleteFilterValues snapshots the current values of the filter
// properties; they take part in the cache key so that a filter change forces
// a fresh check.
func (p *Property) autocompleteFilterValues(slot schema.SlotKey) map[string]any {
	if len(p.autocompleteFilters) == 0 {
		return nil
	}
	filters := make(map[string]any, len(p.autocompleteFilters))
	for _, filter := range p.autocompleteFilters {
		filters[filter.ID()] = filter.Value(slot)
	}
	return filters
}

func (p *Property) runIndexCheck(ctx context.Context, slot schema.SlotKey, value any) schema.InvalidReason {
	if !p.requiresIndexCheck() {
		return schema.ReasonValid
	}
	st := p.ensureState(slot)
	if st.indexCheck.matches(value, nil) {
		p.rt.observeCheck(checkKindIndex, outcomeCacheHit, 0)
		if st.indexCheck.valid {
			return schema.ReasonValid
		}
		return schema.ReasonNotUnique
	}
	start := time.Now()
	ok, err := p.rt.indexChecker(ctx, p, value, slot)
	if err != nil {
		p.rt.observeCheck(checkKindIndex, outcomeFailOpen, time.Since(start))
		return schema.ReasonValid
	}
	st.indexCheck = &checkRecord{value: value, valid: ok}
	if !ok {
		p.rt.observeCheck(checkKindIndex, outcomeInvalid, time.Since(start))
		return schema.ReasonNotUnique
	}
	p.rt.observeCheck(checkKindIndex, outcomeValid, time.Since(start))
	return schema.ReasonValid
}

func (p *Property) runAutocompleteCheck(ctx context.Context, slot schema.SlotKey, value any) schema.InvalidReason {
	if !p.requiresAutocompleteCheck() {
		return schema.ReasonValid
	}
	st := p.ensureState(slot)
	filters := p.autocompleteFilterValues(slot)
	if st.autocompleteCheck.matches(value, filters) {
		p.rt.observeCheck(checkKindAutocomplete, outcomeCacheHit, 0)
		if st.autocompleteCheck.valid {
			return schema.ReasonValid
		}
		return schema.ReasonInvalidValue
	}
	start := time.Now()
	ok, err := p.rt.autocompleteChecker(ctx, p, value, filters, slot)
	if err != nil {
		p.rt.observeCheck(checkKindAutocomplete, outcomeFailOpen, time.Since(start))
		return schema.ReasonValid
	}
	st.autocompleteCheck = &checkRecord{value: value, filters: filters, valid: ok}
	if !ok {
		p.rt.observeCheck(checkKindAutocomplete, outcomeInvalid, time.Since(start))
		return schema.ReasonInvalidValue
	}
	p.rt.observeCheck(checkKindAutocomplete, outcomeValid, time.Since(start))
	return schema.ReasonValid
}
