// Package schema defines the declarative provenance schema. One YAML document
// describes every entity type, its properties, and the trigger bindings that
// derive property values at write and read time.
package schema

import "gopkg.in/yaml.v3"

// Schema is the root of a parsed provenance schema document.
type Schema struct {
	// Entities holds the client-facing entity types (Source, Sample,
	// Dataset, Collection, Upload).
	Entities map[string]TypeDef `yaml:"entities"`

	// Activities holds the Activity node type written per create to record
	// provenance. Never client-creatable.
	Activities map[string]TypeDef `yaml:"activities"`
}

// TypeDef describes one entity (or activity) type.
type TypeDef struct {
	// Superclass names another type whose properties this type inherits.
	Superclass string `yaml:"superclass,omitempty"`

	// Properties in declaration order. Order matters: triggers run in this
	// order, so a trigger may observe values computed by earlier triggers.
	Properties Properties `yaml:"properties"`
}

// PropertyType is the declared JSON shape of a property value.
type PropertyType string

const (
	TypeString     PropertyType = "string"
	TypeInteger    PropertyType = "integer"
	TypeBoolean    PropertyType = "boolean"
	TypeList       PropertyType = "list"
	TypeJSONString PropertyType = "json_string"
)

// Property describes one schema property.
type Property struct {
	Type PropertyType `yaml:"type"`

	// Generated properties are system-populated; clients may not supply
	// them on create.
	Generated bool `yaml:"generated,omitempty"`

	// Immutable properties are rejected on update regardless of privilege.
	Immutable bool `yaml:"immutable,omitempty"`

	// Transient properties are never persisted to the graph; they exist
	// only as trigger input/output during a request.
	Transient bool `yaml:"transient,omitempty"`

	// RequiredOnCreate marks a property that must be present and non-empty
	// in a create request.
	RequiredOnCreate bool `yaml:"required_on_create,omitempty"`

	// AutoUpdate forces the before-update trigger to run on every update
	// even when the property is absent from the request.
	AutoUpdate bool `yaml:"auto_update,omitempty"`

	// Public properties appear in public-level responses. Everything else
	// requires consortium access.
	Public bool `yaml:"public,omitempty"`

	// Exposed=false hides a stored property from all responses
	// (write-only). Defaults to true.
	Exposed *bool `yaml:"exposed,omitempty"`

	// Values is the enum value set for string properties.
	Values []string `yaml:"values,omitempty"`

	// Validators name property-level validators run before writes.
	Validators []string `yaml:"validators,omitempty"`

	// Trigger bindings by phase. Names resolve against the trigger
	// registry, which is checked for completeness at startup.
	BeforeCreateTrigger string `yaml:"before_create_trigger,omitempty"`
	BeforeUpdateTrigger string `yaml:"before_update_trigger,omitempty"`
	AfterCreateTrigger  string `yaml:"after_create_trigger,omitempty"`
	AfterUpdateTrigger  string `yaml:"after_update_trigger,omitempty"`
	OnReadTrigger       string `yaml:"on_read_trigger,omitempty"`

	Description string `yaml:"description,omitempty"`
}

// IsExposed reports whether the property may appear in responses.
func (p Property) IsExposed() bool {
	return p.Exposed == nil || *p.Exposed
}

// Properties is an ordered property collection. YAML mappings decode into it
// preserving document order.
type Properties struct {
	order  []string
	byName map[string]Property
}

// UnmarshalYAML decodes a YAML mapping keeping key order.
func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return &yaml.TypeError{Errors: []string{"properties must be a mapping"}}
	}
	p.order = make([]string, 0, len(node.Content)/2)
	p.byName = make(map[string]Property, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return err
		}
		var prop Property
		if err := node.Content[i+1].Decode(&prop); err != nil {
			return err
		}
		p.order = append(p.order, name)
		p.byName[name] = prop
	}
	return nil
}

// Names returns property names in declaration order.
func (p Properties) Names() []string {
	return p.order
}

// Get returns the named property.
func (p Properties) Get(name string) (Property, bool) {
	prop, ok := p.byName[name]
	return prop, ok
}

// Has reports whether the property is declared.
func (p Properties) Has(name string) bool {
	_, ok := p.byName[name]
	return ok
}

// Len returns the number of declared properties.
func (p Properties) Len() int {
	return len(p.order)
}

// FromPairs builds an ordered property collection; test helper and fallback
// for programmatic schema construction.
func FromPairs(pairs ...Pair) Properties {
	p := Properties{byName: make(map[string]Property, len(pairs))}
	for _, pair := range pairs {
		p.order = append(p.order, pair.Name)
		p.byName[pair.Name] = pair.Property
	}
	return p
}

// Pair is a named property used by FromPairs.
type Pair struct {
	Name     string
	Property Property
}
