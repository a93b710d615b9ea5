package schema

import (
	"fmt"
	"sort"
)

// EntityTypes returns the declared entity type names, sorted.
func (s *Schema) EntityTypes() []string {
	names := make([]string, 0, len(s.Entities))
	for name := range s.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasEntityType reports whether the type is declared under entities.
func (s *Schema) HasEntityType(name string) bool {
	_, ok := s.Entities[name]
	return ok
}

// TypeDef resolves a type by name, looking in entities first and then in
// activities, with superclass properties merged in. Subtype properties win
// on name collision; superclass properties keep their relative order ahead
// of subtype-only properties.
func (s *Schema) TypeDef(name string) (TypeDef, error) {
	def, ok := s.Entities[name]
	if !ok {
		if def, ok = s.Activities[name]; !ok {
			return TypeDef{}, fmt.Errorf("type %q not defined in schema", name)
		}
	}
	if def.Superclass == "" {
		return def, nil
	}

	parent, err := s.TypeDef(def.Superclass)
	if err != nil {
		return TypeDef{}, fmt.Errorf("type %q: %w", name, err)
	}

	merged := Properties{byName: make(map[string]Property, parent.Properties.Len()+def.Properties.Len())}
	for _, n := range parent.Properties.Names() {
		prop, _ := parent.Properties.Get(n)
		if override, ok := def.Properties.Get(n); ok {
			prop = override
		}
		merged.order = append(merged.order, n)
		merged.byName[n] = prop
	}
	for _, n := range def.Properties.Names() {
		if merged.Has(n) {
			continue
		}
		prop, _ := def.Properties.Get(n)
		merged.order = append(merged.order, n)
		merged.byName[n] = prop
	}
	return TypeDef{Properties: merged}, nil
}

// InstanceOf reports whether type name a is b or inherits from b through the
// superclass chain.
func (s *Schema) InstanceOf(a, b string) bool {
	for a != "" {
		if a == b {
			return true
		}
		def, ok := s.Entities[a]
		if !ok {
			if def, ok = s.Activities[a]; !ok {
				return false
			}
		}
		a = def.Superclass
	}
	return false
}

// TriggerNames collects every trigger name bound anywhere in the schema,
// keyed by phase attribute. Used at startup to verify registry completeness.
func (s *Schema) TriggerNames() map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]bool)
	add := func(phase, name string) {
		if name == "" {
			return
		}
		key := phase + "/" + name
		if seen[key] {
			return
		}
		seen[key] = true
		out[phase] = append(out[phase], name)
	}
	collect := func(defs map[string]TypeDef) {
		for _, def := range defs {
			for _, n := range def.Properties.Names() {
				prop, _ := def.Properties.Get(n)
				add("before_create_trigger", prop.BeforeCreateTrigger)
				add("before_update_trigger", prop.BeforeUpdateTrigger)
				add("after_create_trigger", prop.AfterCreateTrigger)
				add("after_update_trigger", prop.AfterUpdateTrigger)
				add("on_read_trigger", prop.OnReadTrigger)
			}
		}
	}
	collect(s.Entities)
	collect(s.Activities)
	for phase := range out {
		sort.Strings(out[phase])
	}
	return out
}

// ValidatorNames collects every property-level validator name in the schema.
func (s *Schema) ValidatorNames() []string {
	seen := make(map[string]bool)
	var names []string
	collect := func(defs map[string]TypeDef) {
		for _, def := range defs {
			for _, n := range def.Properties.Names() {
				prop, _ := def.Properties.Get(n)
				for _, v := range prop.Validators {
					if !seen[v] {
						seen[v] = true
						names = append(names, v)
					}
				}
			}
		}
	}
	collect(s.Entities)
	collect(s.Activities)
	sort.Strings(names)
	return names
}
