package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"itemcore/pkg/schema"
)

// Runtime is a compiled schema tree: every module, item definition, item and
// property bound into live engines, plus the instance registry value-source
// references resolve through. Compilation happens once; afterwards the
// runtime is read-mostly, with all mutation confined to slot-keyed state.
type Runtime struct {
	descriptors *DescriptorRegistry
	root        *schema.Root
	modules     []*Module

	properties map[string]*Property
	itemDefs   map[string]*ItemDefinition

	indexChecker        IndexChecker
	autocompleteChecker AutocompleteChecker
	metrics             MetricsRecorder
	logger              *slog.Logger
}

// Module is a compiled module node.
type Module struct {
	rt   *Runtime
	def  *schema.Module
	path string

	children []*ItemDefinition
	modules  []*Module
}

// Option configures a runtime under construction.
type Option func(*Runtime)

// WithDescriptorRegistry swaps the type descriptor registry.
func WithDescriptorRegistry(r *DescriptorRegistry) Option {
	return func(rt *Runtime) { rt.descriptors = r }
}

// WithMetrics installs a metrics recorder for external check activity.
func WithMetrics(m MetricsRecorder) Option {
	return func(rt *Runtime) { rt.metrics = m }
}

// WithLogger installs a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) { rt.logger = l }
}

// WithIndexChecker installs the unique-index checker.
func WithIndexChecker(c IndexChecker) Option {
	return func(rt *Runtime) { rt.indexChecker = c }
}

// WithAutocompleteChecker installs the autocomplete checker.
func WithAutocompleteChecker(c AutocompleteChecker) Option {
	return func(rt *Runtime) { rt.autocompleteChecker = c }
}

// NewRuntime validates and compiles a schema tree.
func NewRuntime(root *schema.Root, opts ...Option) (*Runtime, error) {
	if problems := root.Validate(); len(problems) > 0 {
		lines := make([]string, len(problems))
		for i, p := range problems {
			lines[i] = p.String()
		}
		return nil, fmt.Errorf("schema has %d declaration problems: %s", len(problems), strings.Join(lines, "; "))
	}
	rt := &Runtime{
		descriptors:         NewDefaultDescriptorRegistry(),
		root:                root,
		properties:          make(map[string]*Property),
		itemDefs:            make(map[string]*ItemDefinition),
		indexChecker:        passIndexChecker,
		autocompleteChecker: passAutocompleteChecker,
		metrics:             noopMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.logger == nil {
		rt.logger = slog.Default()
	}
	for i := range root.Modules {
		mod, err := rt.compileModule(&root.Modules[i], "")
		if err != nil {
			return nil, err
		}
		rt.modules = append(rt.modules, mod)
	}
	rt.logger.Debug("schema compiled",
		slog.Int("modules", len(rt.modules)),
		slog.Int("itemDefinitions", len(rt.itemDefs)),
		slog.Int("properties", len(rt.properties)))
	return rt, nil
}

// SetIndexChecker swaps the unique-index checker, e.g. for tests.
func (rt *Runtime) SetIndexChecker(c IndexChecker) {
	if c == nil {
		c = passIndexChecker
	}
	rt.indexChecker = c
}

// SetAutocompleteChecker swaps the autocomplete checker.
func (rt *Runtime) SetAutocompleteChecker(c AutocompleteChecker) {
	if c == nil {
		c = passAutocompleteChecker
	}
	rt.autocompleteChecker = c
}

// Modules returns the compiled top-level modules.
func (rt *Runtime) Modules() []*Module {
	out := make([]*Module, len(rt.modules))
	copy(out, rt.modules)
	return out
}

// Module returns a top-level module by name.
func (rt *Runtime) Module(name string) (*Module, bool) {
	for _, m := range rt.modules {
		if m.def.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Property resolves a property engine from the instance registry by its
// qualified path.
func (rt *Runtime) Property(qualifiedPath string) (*Property, bool) {
	p, ok := rt.properties[qualifiedPath]
	return p, ok
}

// ItemDefinition resolves a compiled item definition by its qualified path.
func (rt *Runtime) ItemDefinition(qualifiedPath string) (*ItemDefinition, bool) {
	d, ok := rt.itemDefs[qualifiedPath]
	return d, ok
}

func (rt *Runtime) observeCheck(kind, outcome string, duration time.Duration) {
	rt.metrics.ObserveExternalCheck(kind, outcome, duration)
}

// Name returns the module's declared name.
func (m *Module) Name() string { return m.def.Name }

// QualifiedPath returns the module's qualified path.
func (m *Module) QualifiedPath() string { return m.path }

// Children returns the module's compiled item definitions.
func (m *Module) Children() []*ItemDefinition {
	out := make([]*ItemDefinition, len(m.children))
	copy(out, m.children)
	return out
}

// Child returns a compiled child item definition by name.
func (m *Module) Child(name string) (*ItemDefinition, bool) {
	for _, c := range m.children {
		if c.def.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Modules returns the compiled submodules.
func (m *Module) Modules() []*Module {
	out := make([]*Module, len(m.modules))
	copy(out, m.modules)
	return out
}

func (rt *Runtime) compileModule(def *schema.Module, parentPath string) (*Module, error) {
	path := schema.JoinModulePath(parentPath, def.Name)
	m := &Module{rt: rt, def: def, path: path}
	for i := range def.Children {
		child, err := rt.compileItemDefinition(&def.Children[i], def, def.Name, path)
		if err != nil {
			return nil, err
		}
		m.children = append(m.children, child)
	}
	for i := range def.Modules {
		sub, err := rt.compileModule(&def.Modules[i], path)
		if err != nil {
			return nil, err
		}
		m.modules = append(m.modules, sub)
	}
	return m, nil
}

// compileItemDefinition builds one live instance of a definition under the
// given parent path. Items and imports get their own detached instances, so
// a raw definition may compile many times with disjoint state.
func (rt *Runtime) compileItemDefinition(def *schema.ItemDefinition, mod *schema.Module, moduleName, parentPath string) (*ItemDefinition, error) {
	path := schema.JoinItemDefinitionPath(parentPath, def.Name)
	d := &ItemDefinition{
		rt:         rt,
		def:        def,
		moduleName: moduleName,
		path:       path,
		states:     make(map[schema.SlotKey]*itemDefState),
	}

	// Phase one: construct property shells so rule compilation can resolve
	// sibling references in either direction.
	for i := range mod.Extensions {
		p, err := rt.newProperty(d, &mod.Extensions[i], true)
		if err != nil {
			return nil, err
		}
		d.extensions = append(d.extensions, p)
	}
	for i := range def.Properties {
		p, err := rt.newProperty(d, &def.Properties[i], false)
		if err != nil {
			return nil, err
		}
		d.properties = append(d.properties, p)
	}

	lookup := func(id string) (*Property, bool) { return d.Property(id) }
	for _, p := range append(d.Extensions(), d.properties...) {
		if err := rt.compilePropertyRules(p, lookup); err != nil {
			return nil, err
		}
	}

	for i := range def.Items {
		it, err := rt.compileItem(d, &def.Items[i], mod, moduleName, lookup)
		if err != nil {
			return nil, err
		}
		d.items = append(d.items, it)
	}
	for i := range def.Children {
		child, err := rt.compileItemDefinition(&def.Children[i], mod, moduleName, path)
		if err != nil {
			return nil, err
		}
		d.children = append(d.children, child)
	}
	for _, name := range def.Imports {
		src, ok := mod.FindChild(name)
		if !ok {
			return nil, schema.ErrNotFound{Kind: "imported definition", Name: name}
		}
		imported, err := rt.compileItemDefinition(src, mod, moduleName, schema.JoinImportPath(path, name))
		if err != nil {
			return nil, err
		}
		d.imported = append(d.imported, imported)
	}

	rt.itemDefs[path] = d
	return d, nil
}

func (rt *Runtime) newProperty(parent *ItemDefinition, def *schema.PropertyDefinition, isExtension bool) (*Property, error) {
	desc, ok := rt.descriptors.Descriptor(def.Type)
	if !ok {
		return nil, fmt.Errorf("property %s: unknown type %s", schema.JoinPropertyPath(parent.path, def.ID), def.Type)
	}
	p := &Property{
		rt:          rt,
		parent:      parent,
		def:         def,
		desc:        desc,
		path:        schema.JoinPropertyPath(parent.path, def.ID),
		isExtension: isExtension,
		states:      make(map[schema.SlotKey]*propertyState),
	}
	if def.Default != nil {
		value, err := p.checkAssignment(def.Default.Value)
		if err != nil {
			return nil, fmt.Errorf("property %s: default: %w", p.path, err)
		}
		p.staticDefault = &value
	}
	if def.Enforced != nil {
		value, err := p.checkAssignment(def.Enforced.Value)
		if err != nil {
			return nil, fmt.Errorf("property %s: enforced: %w", p.path, err)
		}
		p.staticEnforced = &value
	}
	rt.properties[p.path] = p
	return p, nil
}

func (rt *Runtime) compilePropertyRules(p *Property, lookup func(id string) (*Property, bool)) error {
	wrap := func(clause string, err error) error {
		return fmt.Errorf("property %s: %s: %w", p.path, clause, err)
	}
	var err error
	if p.hiddenIf, err = compileCondition(p.def.HiddenIf, lookup); err != nil {
		return wrap("hiddenIf", err)
	}
	for i, rule := range p.def.DefaultIf {
		cond, err := compileCondition(rule.If, lookup)
		if err != nil {
			return wrap(fmt.Sprintf("defaultIf[%d]", i), err)
		}
		value, aerr := p.checkAssignment(rule.Value)
		if aerr != nil {
			return wrap(fmt.Sprintf("defaultIf[%d]", i), aerr)
		}
		p.defaultIf = append(p.defaultIf, compiledValueRule{value: value, cond: cond})
	}
	for i, rule := range p.def.EnforcedValues {
		cond, err := compileCondition(rule.If, lookup)
		if err != nil {
			return wrap(fmt.Sprintf("enforcedValues[%d]", i), err)
		}
		value, aerr := p.checkAssignment(rule.Value)
		if aerr != nil {
			return wrap(fmt.Sprintf("enforcedValues[%d]", i), aerr)
		}
		p.enforcedValues = append(p.enforcedValues, compiledValueRule{value: value, cond: cond})
	}
	for i, rule := range p.def.InvalidIf {
		cond, err := compileCondition(rule.If, lookup)
		if err != nil {
			return wrap(fmt.Sprintf("invalidIf[%d]", i), err)
		}
		p.invalidIf = append(p.invalidIf, compiledInvalidRule{message: rule.Error, cond: cond})
	}
	if p.def.Autocomplete != nil {
		for _, filter := range p.def.Autocomplete.Filters {
			target, ok := lookup(filter)
			if !ok {
				return wrap("autocomplete", schema.ErrNotFound{Kind: "filter property", Name: filter})
			}
			p.autocompleteFilters = append(p.autocompleteFilters, target)
		}
	}
	return nil
}

func (rt *Runtime) compileItem(parent *ItemDefinition, def *schema.Item, mod *schema.Module, moduleName string, lookup func(id string) (*Property, bool)) (*Item, error) {
	path := schema.JoinItemPath(parent.path, def.ID)
	innerDef, ok := def.ResolveDefinition(parent.def, mod)
	if !ok {
		return nil, schema.ErrNotFound{Kind: "item definition", Name: def.Definition}
	}
	inner, err := rt.compileItemDefinition(innerDef, mod, moduleName, path)
	if err != nil {
		return nil, err
	}
	it := &Item{
		rt:     rt,
		parent: parent,
		def:    def,
		path:   path,
		inner:  inner,
		states: make(map[schema.SlotKey]*itemState),
	}
	for id, value := range def.EnforcedProperties {
		p, ok := inner.Property(id)
		if !ok {
			return nil, schema.ErrNotFound{Kind: "enforced property", Name: id}
		}
		if err := p.SetGlobalSuperEnforced(LiteralSource(value)); err != nil {
			return nil, fmt.Errorf("item %s: enforced property %s: %w", path, id, err)
		}
	}
	for id, value := range def.PredefinedProperties {
		p, ok := inner.Property(id)
		if !ok {
			return nil, schema.ErrNotFound{Kind: "predefined property", Name: id}
		}
		if err := p.SetGlobalSuperDefault(LiteralSource(value)); err != nil {
			return nil, fmt.Errorf("item %s: predefined property %s: %w", path, id, err)
		}
	}
	wrap := func(clause string, err error) error {
		return fmt.Errorf("item %s: %s: %w", path, clause, err)
	}
	if it.excludedIf, err = compileCondition(def.ExcludedIf, lookup); err != nil {
		return nil, wrap("excludedIf", err)
	}
	if it.canUserExcludeIf, err = compileCondition(def.CanUserExcludeIf, lookup); err != nil {
		return nil, wrap("canUserExcludeIf", err)
	}
	if it.defaultExcludedIf, err = compileCondition(def.DefaultExcludedIf, lookup); err != nil {
		return nil, wrap("defaultExcludedIf", err)
	}
	for _, sink := range def.SinkIn {
		p, ok := lookup(sink)
		if !ok {
			return nil, wrap("sinkIn", schema.ErrNotFound{Kind: "property", Name: sink})
		}
		it.sinkIn = append(it.sinkIn, p)
	}
	return it, nil
}

// NewInstance compiles a fresh detached instance of the definition with its
// own disjoint slot state, registered under a unique instance path. Rule
// semantics are identical; only state is detached.
func (d *ItemDefinition) NewInstance() (*ItemDefinition, error) {
	mod := d.rt.moduleDefFor(d)
	if mod == nil {
		return nil, schema.ErrNotFound{Kind: "module for definition", Name: d.path}
	}
	return d.rt.compileItemDefinition(d.def, mod, d.moduleName, schema.JoinInstancePath(d.path, uuid.NewString()))
}

// moduleDefFor walks the raw tree to find the module a compiled definition
// belongs to, matching by module name.
func (rt *Runtime) moduleDefFor(d *ItemDefinition) *schema.Module {
	var find func(mods []schema.Module) *schema.Module
	find = func(mods []schema.Module) *schema.Module {
		for i := range mods {
			if mods[i].Name == d.moduleName {
				return &mods[i]
			}
			if sub := find(mods[i].Modules); sub != nil {
				return sub
			}
		}
		return nil
	}
	return find(rt.root.Modules)
}
