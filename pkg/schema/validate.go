package schema

import "fmt"

// Problem is a single declaration defect found during schema validation,
// located by the qualified path of the offending node.
type Problem struct {
	Path    string
	Message string
}

func (p Problem) String() string {
	return p.Path + ": " + p.Message
}

// Validate performs declaration-time structural validation of a schema tree.
// Type-aware checks (descriptor existence, enforced values failing their own
// type) happen later, at engine compile. A nil return means structurally sound.
func (r *Root) Validate() []Problem {
	var problems []Problem
	seen := map[string]bool{}
	for i := range r.Modules {
		m := &r.Modules[i]
		if seen[m.Name] {
			problems = append(problems, Problem{Path: JoinModulePath("", m.Name), Message: "duplicate module name"})
		}
		seen[m.Name] = true
		problems = append(problems, m.validate("")...)
	}
	return problems
}

func (m *Module) validate(parent string) []Problem {
	path := JoinModulePath(parent, m.Name)
	var problems []Problem
	if !ValidIdentifier(m.Name) {
		problems = append(problems, Problem{Path: path, Message: "invalid module name"})
	}
	for i := range m.Extensions {
		problems = append(problems, m.Extensions[i].validate(path, propertyScope(m.Extensions, nil))...)
	}
	seen := map[string]bool{}
	for i := range m.Children {
		child := &m.Children[i]
		if seen[child.Name] {
			problems = append(problems, Problem{Path: JoinItemDefinitionPath(path, child.Name), Message: "duplicate item definition name"})
		}
		seen[child.Name] = true
		problems = append(problems, child.validate(path, m)...)
	}
	for i := range m.Modules {
		sub := &m.Modules[i]
		if seen[sub.Name] {
			problems = append(problems, Problem{Path: JoinModulePath(path, sub.Name), Message: "module name collides with sibling"})
		}
		seen[sub.Name] = true
		problems = append(problems, sub.validate(path)...)
	}
	return problems
}

func (d *ItemDefinition) validate(parent string, mod *Module) []Problem {
	path := JoinItemDefinitionPath(parent, d.Name)
	var problems []Problem
	if !ValidIdentifier(d.Name) {
		problems = append(problems, Problem{Path: path, Message: "invalid item definition name"})
	}

	scope := propertyScope(mod.Extensions, d.Properties)
	seen := map[string]bool{}
	for i := range d.Properties {
		p := &d.Properties[i]
		if seen[p.ID] {
			problems = append(problems, Problem{Path: JoinPropertyPath(path, p.ID), Message: "duplicate property id"})
		}
		seen[p.ID] = true
		problems = append(problems, p.validate(path, scope)...)
	}

	seenItems := map[string]bool{}
	for i := range d.Items {
		item := &d.Items[i]
		itemPath := JoinItemPath(path, item.ID)
		if seenItems[item.ID] {
			problems = append(problems, Problem{Path: itemPath, Message: "duplicate item id"})
		}
		seenItems[item.ID] = true
		problems = append(problems, item.validate(itemPath, d, mod, scope)...)
	}

	for i := range d.Children {
		problems = append(problems, d.Children[i].validate(path, mod)...)
	}
	for _, imp := range d.Imports {
		if _, ok := mod.FindChild(imp); !ok {
			problems = append(problems, Problem{Path: path, Message: fmt.Sprintf("import %s does not resolve within module %s", imp, mod.Name)})
		}
	}
	return problems
}

func (item *Item) validate(path string, parent *ItemDefinition, mod *Module, scope map[string]bool) []Problem {
	var problems []Problem
	if !ValidIdentifier(item.ID) {
		problems = append(problems, Problem{Path: path, Message: "invalid item id"})
	}
	inner := item.resolveDefinition(parent, mod)
	if inner == nil {
		problems = append(problems, Problem{Path: path, Message: fmt.Sprintf("definition %s does not resolve", item.Definition)})
	} else {
		for id := range item.EnforcedProperties {
			if _, ok := inner.FindProperty(id); !ok {
				problems = append(problems, Problem{Path: path, Message: fmt.Sprintf("enforced property %s not declared by %s", id, inner.Name)})
			}
		}
		for id := range item.PredefinedProperties {
			if _, ok := inner.FindProperty(id); !ok {
				problems = append(problems, Problem{Path: path, Message: fmt.Sprintf("predefined property %s not declared by %s", id, inner.Name)})
			}
		}
	}
	for _, sink := range item.SinkIn {
		if !scope[sink] {
			problems = append(problems, Problem{Path: path, Message: fmt.Sprintf("sink-in property %s not declared by parent", sink)})
		}
	}
	clauses := []struct {
		name string
		rs   *RuleSet
	}{
		{"excludedIf", item.ExcludedIf},
		{"canUserExcludeIf", item.CanUserExcludeIf},
		{"defaultExcludedIf", item.DefaultExcludedIf},
	}
	for _, clause := range clauses {
		problems = append(problems, validateRuleSet(clause.rs, path, clause.name, scope)...)
	}
	return problems
}

// resolveDefinition looks up the referenced inner definition among the
// parent's children first, then the module's children.
func (item *Item) resolveDefinition(parent *ItemDefinition, mod *Module) *ItemDefinition {
	if inner, ok := parent.FindChild(item.Definition); ok {
		return inner
	}
	if inner, ok := mod.FindChild(item.Definition); ok {
		return inner
	}
	return nil
}

// ResolveDefinition is the exported lookup used by the engine compiler; same
// search order as validation.
func (item *Item) ResolveDefinition(parent *ItemDefinition, mod *Module) (*ItemDefinition, bool) {
	inner := item.resolveDefinition(parent, mod)
	return inner, inner != nil
}

func (p *PropertyDefinition) validate(parent string, scope map[string]bool) []Problem {
	path := JoinPropertyPath(parent, p.ID)
	var problems []Problem
	if !ValidIdentifier(p.ID) {
		problems = append(problems, Problem{Path: path, Message: "invalid property id"})
	}
	if p.Type == "" {
		problems = append(problems, Problem{Path: path, Message: "missing type"})
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		problems = append(problems, Problem{Path: path, Message: "min exceeds max"})
	}
	if p.MinLength != nil && p.MaxLength != nil && *p.MinLength > *p.MaxLength {
		problems = append(problems, Problem{Path: path, Message: "minLength exceeds maxLength"})
	}
	if p.MinDecimalCount != nil && p.MaxDecimalCount != nil && *p.MinDecimalCount > *p.MaxDecimalCount {
		problems = append(problems, Problem{Path: path, Message: "minDecimalCount exceeds maxDecimalCount"})
	}
	if p.Autocomplete != nil {
		if p.Autocomplete.Source == "" {
			problems = append(problems, Problem{Path: path, Message: "autocomplete without a source"})
		}
		for _, filter := range p.Autocomplete.Filters {
			if !scope[filter] {
				problems = append(problems, Problem{Path: path, Message: fmt.Sprintf("autocomplete filter %s not declared in scope", filter)})
			}
		}
	}
	problems = append(problems, validateRuleSet(p.HiddenIf, path, "hiddenIf", scope)...)
	for i, rule := range p.DefaultIf {
		problems = append(problems, validateRuleSet(rule.If, path, fmt.Sprintf("defaultIf[%d]", i), scope)...)
	}
	for i, rule := range p.EnforcedValues {
		problems = append(problems, validateRuleSet(rule.If, path, fmt.Sprintf("enforcedValues[%d]", i), scope)...)
	}
	for i, rule := range p.InvalidIf {
		if rule.Error == "" {
			problems = append(problems, Problem{Path: path, Message: fmt.Sprintf("invalidIf[%d] without an error message", i)})
		}
		problems = append(problems, validateRuleSet(rule.If, path, fmt.Sprintf("invalidIf[%d]", i), scope)...)
	}
	return problems
}

func validateRuleSet(rs *RuleSet, path, clause string, scope map[string]bool) []Problem {
	if rs == nil {
		return nil
	}
	var problems []Problem
	if rs.Property == "" {
		problems = append(problems, Problem{Path: path, Message: clause + " condition without a property"})
	} else if !scope[rs.Property] {
		problems = append(problems, Problem{Path: path, Message: fmt.Sprintf("%s condition references undeclared property %s", clause, rs.Property)})
	}
	if !ValidComparator(rs.Comparator) {
		problems = append(problems, Problem{Path: path, Message: fmt.Sprintf("%s condition uses unknown comparator %q", clause, rs.Comparator)})
	}
	if rs.Value.Kind == KindReferred && !scope[rs.Value.Property] {
		problems = append(problems, Problem{Path: path, Message: fmt.Sprintf("%s condition value references undeclared property %s", clause, rs.Value.Property)})
	}
	if rs.Condition != nil {
		if !ValidGate(rs.Gate) {
			problems = append(problems, Problem{Path: path, Message: fmt.Sprintf("%s condition chains without a valid gate", clause)})
		}
		problems = append(problems, validateRuleSet(rs.Condition, path, clause, scope)...)
	} else if rs.Gate != "" {
		problems = append(problems, Problem{Path: path, Message: clause + " condition declares a gate without a chained condition"})
	}
	return problems
}

func propertyScope(extensions, properties []PropertyDefinition) map[string]bool {
	scope := make(map[string]bool, len(extensions)+len(properties))
	for i := range extensions {
		scope[extensions[i].ID] = true
	}
	for i := range properties {
		scope[properties[i].ID] = true
	}
	return scope
}
