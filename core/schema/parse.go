package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile parses and validates a provenance schema from a YAML file.
func ParseFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return s, nil
}

// Parse parses and validates a provenance schema from YAML bytes.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

var validTypes = map[PropertyType]bool{
	TypeString:     true,
	TypeInteger:    true,
	TypeBoolean:    true,
	TypeList:       true,
	TypeJSONString: true,
}

// Validate checks structural soundness of a schema: known property types,
// enum value sets only on strings, resolvable superclasses, no property both
// generated and required on create.
func Validate(s *Schema) error {
	var errs []string

	if len(s.Entities) == 0 {
		errs = append(errs, "schema declares no entity types")
	}

	check := func(typeName string, def TypeDef) {
		if def.Superclass != "" {
			if _, err := s.TypeDef(def.Superclass); err != nil {
				errs = append(errs, fmt.Sprintf("%s: unknown superclass %q", typeName, def.Superclass))
			}
		}
		if def.Properties.Len() == 0 && def.Superclass == "" {
			errs = append(errs, fmt.Sprintf("%s: no properties declared", typeName))
		}
		for _, name := range def.Properties.Names() {
			prop, _ := def.Properties.Get(name)
			if !validTypes[prop.Type] {
				errs = append(errs, fmt.Sprintf("%s.%s: unknown property type %q", typeName, name, prop.Type))
			}
			if len(prop.Values) > 0 && prop.Type != TypeString {
				errs = append(errs, fmt.Sprintf("%s.%s: enum values require type string, got %q", typeName, name, prop.Type))
			}
			if prop.Generated && prop.RequiredOnCreate {
				errs = append(errs, fmt.Sprintf("%s.%s: generated property cannot be required_on_create", typeName, name))
			}
			if prop.Transient && prop.Immutable {
				errs = append(errs, fmt.Sprintf("%s.%s: transient property cannot be immutable", typeName, name))
			}
		}
	}
	for name, def := range s.Entities {
		check(name, def)
	}
	for name, def := range s.Activities {
		check(name, def)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid schema:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
