package engine

import (
	"context"

	"itemcore/pkg/schema"
)

type itemDefState struct {
	hasApplied bool
	listeners  map[int]func()
	nextListen int
}

// ItemDefinition aggregates property engines and embedded items into one
// entity, exposing tree-shaped snapshots, flat value application and role
// access checks.
type ItemDefinition struct {
	rt         *Runtime
	def        *schema.ItemDefinition
	moduleName string
	path       string

	extensions []*Property
	properties []*Property
	items      []*Item
	children   []*ItemDefinition
	imported   []*ItemDefinition

	states map[schema.SlotKey]*itemDefState
}

// Definition returns the immutable declarative data.
func (d *ItemDefinition) Definition() *schema.ItemDefinition { return d.def }

// Name returns the declared definition name.
func (d *ItemDefinition) Name() string { return d.def.Name }

// ModuleName returns the owning module's name.
func (d *ItemDefinition) ModuleName() string { return d.moduleName }

// QualifiedPath returns the stable collision-free identifier collaborators
// use as a cache and storage key.
func (d *ItemDefinition) QualifiedPath() string { return d.path }

// Properties returns the locally declared property engines.
func (d *ItemDefinition) Properties() []*Property {
	out := make([]*Property, len(d.properties))
	copy(out, d.properties)
	return out
}

// Extensions returns the module extension property engines.
func (d *ItemDefinition) Extensions() []*Property {
	out := make([]*Property, len(d.extensions))
	copy(out, d.extensions)
	return out
}

// Items returns the embedded item engines.
func (d *ItemDefinition) Items() []*Item {
	out := make([]*Item, len(d.items))
	copy(out, d.items)
	return out
}

// Children returns the nested child definitions.
func (d *ItemDefinition) Children() []*ItemDefinition {
	out := make([]*ItemDefinition, len(d.children))
	copy(out, d.children)
	return out
}

// Imported returns the detached instances of imported definitions.
func (d *ItemDefinition) Imported() []*ItemDefinition {
	out := make([]*ItemDefinition, len(d.imported))
	copy(out, d.imported)
	return out
}

// Property looks up a property engine by id among local declarations first,
// then module extensions.
func (d *ItemDefinition) Property(id string) (*Property, bool) {
	for _, p := range d.properties {
		if p.ID() == id {
			return p, true
		}
	}
	for _, p := range d.extensions {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// Item looks up an embedded item engine by id.
func (d *ItemDefinition) Item(id string) (*Item, bool) {
	for _, it := range d.items {
		if it.ID() == id {
			return it, true
		}
	}
	return nil, false
}

// Child looks up a nested child definition by name.
func (d *ItemDefinition) Child(name string) (*ItemDefinition, bool) {
	for _, c := range d.children {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// ValueOptions restricts a snapshot read.
type ValueOptions struct {
	// OnlyProperties limits the property sweep to the listed ids.
	OnlyProperties []string
	// ExcludeItems skips the item sweep entirely.
	ExcludeItems bool
	// ExcludeExtensions skips module extension properties.
	ExcludeExtensions bool
}

func (o ValueOptions) wantsProperty(id string) bool {
	if len(o.OnlyProperties) == 0 {
		return true
	}
	for _, want := range o.OnlyProperties {
		if want == id {
			return true
		}
	}
	return false
}

// Value produces the synchronous structural snapshot for a slot. Validation
// uses the local pipeline only; external check results come from caches.
func (d *ItemDefinition) Value(slot schema.SlotKey, opts ValueOptions) DefinitionValue {
	return d.value(nil, slot, opts, false)
}

// ValueExternal produces the same structural shape as Value but awaits the
// external checks for every swept property.
func (d *ItemDefinition) ValueExternal(ctx context.Context, slot schema.SlotKey, opts ValueOptions) DefinitionValue {
	return d.value(ctx, slot, opts, true)
}

func (d *ItemDefinition) value(ctx context.Context, slot schema.SlotKey, opts ValueOptions, external bool) DefinitionValue {
	out := DefinitionValue{
		ModuleName: d.moduleName,
		Path:       d.path,
		Name:       d.def.Name,
	}
	sweep := d.properties
	if !opts.ExcludeExtensions {
		sweep = append(d.Extensions(), d.properties...)
	}
	for _, p := range sweep {
		if !opts.wantsProperty(p.ID()) {
			continue
		}
		out.Properties = append(out.Properties, d.propertySnapshot(ctx, p, slot, external))
	}
	if !opts.ExcludeItems {
		for _, it := range d.items {
			out.Items = append(out.Items, d.itemSnapshot(ctx, it, slot, external))
		}
	}
	return out
}

func (d *ItemDefinition) propertySnapshot(ctx context.Context, p *Property, slot schema.SlotKey, external bool) PropertyValue {
	value := p.Value(slot)
	var reason schema.InvalidReason
	if external {
		reason = p.ValidateExternal(ctx, slot, value)
	} else {
		reason = p.ValidateLocal(slot, value)
	}
	return PropertyValue{
		ID:            p.ID(),
		Value:         value,
		Applied:       p.AppliedValue(slot),
		Valid:         reason.Valid(),
		InvalidReason: reason,
		Enforced:      p.Enforced(slot),
		Default:       p.DefaultDerived(slot),
		Hidden:        p.Hidden(slot),
		Modified:      p.Modified(slot),
		ManuallySet:   p.ManuallySet(slot),
		InternalValue: p.InternalValue(slot),
	}
}

func (d *ItemDefinition) itemSnapshot(ctx context.Context, it *Item, slot schema.SlotKey, external bool) ItemValue {
	out := ItemValue{
		ID:                it.ID(),
		Exclusion:         it.Exclusion(slot),
		ExclusionModified: it.ExclusionModified(slot),
		CanExclusionBeSet: it.CanExclusionBeSet(slot),
	}
	if out.Exclusion == schema.ExclusionExcluded {
		return out
	}
	inner := it.inner.value(ctx, slot, ValueOptions{ExcludeExtensions: true}, external)
	// Sink-in properties read from the parent's engines but surface inside
	// the item's slice of the tree.
	for _, p := range it.sinkIn {
		inner.Properties = append(inner.Properties, d.propertySnapshot(ctx, p, slot, external))
	}
	out.Value = &inner
	return out
}

// ApplyOptions controls flat value application.
type ApplyOptions struct {
	// ExcludeExtensions leaves module extension properties untouched.
	ExcludeExtensions bool
	// SuppressIfManuallySet preserves in-flight user edits that differ from
	// the incoming value.
	SuppressIfManuallySet bool
}

// ApplyValue loads an externally sourced flat value document into the slot.
// Every swept property is written: keys missing from the document apply an
// explicit nil, never a skipped entry. Item exclusion states travel under
// their own keys, separate from the nested item values.
func (d *ItemDefinition) ApplyValue(slot schema.SlotKey, flat map[string]any, opts ApplyOptions) {
	sweep := d.properties
	if !opts.ExcludeExtensions {
		sweep = append(d.Extensions(), d.properties...)
	}
	for _, p := range sweep {
		value := flat[p.ID()]
		p.ApplyValue(slot, value, true, opts.SuppressIfManuallySet)
	}
	for _, it := range d.items {
		raw, _ := flat[schema.ItemExclusionKey(it.ID())].(string)
		switch state := schema.ExclusionState(raw); state {
		case schema.ExclusionIncluded, schema.ExclusionExcluded, schema.ExclusionAny:
			st, okState := it.states[slot]
			if !okState {
				st = &itemState{}
				it.states[slot] = st
			}
			st.exclusion = state
			st.modified = true
		default:
			// Absent or corrupt states reset to the schema-derived default.
			it.ClearExclusionState(slot)
		}
		nested, _ := flat[schema.ItemValueKey(it.ID())].(map[string]any)
		if nested == nil {
			nested = map[string]any{}
		}
		it.inner.ApplyValue(slot, nested, ApplyOptions{ExcludeExtensions: true, SuppressIfManuallySet: opts.SuppressIfManuallySet})
	}
	st := d.ensureState(slot)
	st.hasApplied = true
	d.notify(slot)
}

// HasAppliedValue reports whether any externally sourced value was ever
// applied to the slot.
func (d *ItemDefinition) HasAppliedValue(slot schema.SlotKey) bool {
	st := d.states[slot]
	return st != nil && st.hasApplied
}

// CleanValue purges all slot state from properties, extensions and items,
// drops the applied flag and notifies listeners before removing them.
func (d *ItemDefinition) CleanValue(slot schema.SlotKey) {
	for _, p := range d.extensions {
		p.CleanValue(slot)
	}
	for _, p := range d.properties {
		p.CleanValue(slot)
	}
	for _, it := range d.items {
		it.CleanValue(slot)
	}
	d.notify(slot)
	delete(d.states, slot)
}

// Listen registers a structural change listener for a slot and returns its
// remove function.
func (d *ItemDefinition) Listen(slot schema.SlotKey, fn func()) func() {
	st := d.ensureState(slot)
	if st.listeners == nil {
		st.listeners = make(map[int]func())
	}
	id := st.nextListen
	st.nextListen++
	st.listeners[id] = fn
	return func() {
		if cur := d.states[slot]; cur != nil {
			delete(cur.listeners, id)
		}
	}
}

func (d *ItemDefinition) notify(slot schema.SlotKey) {
	st := d.states[slot]
	if st == nil {
		return
	}
	for _, fn := range st.listeners {
		fn()
	}
}

func (d *ItemDefinition) ensureState(slot schema.SlotKey) *itemDefState {
	st, ok := d.states[slot]
	if !ok {
		st = &itemDefState{}
		d.states[slot] = st
	}
	return st
}
