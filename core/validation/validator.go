// Package validation checks request bodies against the provenance schema.
// Validation is total: every violation found in one pass is reported, so
// clients get complete feedback. Validators have no side effects.
package validation

import (
	"fmt"
	"strings"

	"github.com/sennetconsortium/entity-api/core/schema"
)

// RuleError is a single validation failure.
type RuleError struct {
	Property string `json:"property"`
	Rule     string `json:"rule"`
	Value    any    `json:"value,omitempty"`
	Message  string `json:"message"`
}

func (e RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Property, e.Message)
}

// Result accumulates all validation errors for a request.
type Result struct {
	Valid  bool        `json:"valid"`
	Errors []RuleError `json:"errors,omitempty"`
}

// Add records a validation error.
func (r *Result) Add(property, rule string, value any, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, RuleError{Property: property, Rule: rule, Value: value, Message: message})
}

// Error returns the combined message, empty when valid.
func (r Result) Error() string {
	if r.Valid {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Check is a property-level validator named in the schema. existing is the
// stored record (empty on create) so checks can validate transitions.
type Check func(prop string, value any, existing map[string]any) error

// Validator validates request bodies against the schema.
type Validator struct {
	schema *schema.Schema
	checks map[string]Check
}

// New creates a validator over the parsed schema.
func New(s *schema.Schema) *Validator {
	return &Validator{schema: s, checks: make(map[string]Check)}
}

// RegisterCheck adds a named property-level check.
func (v *Validator) RegisterCheck(name string, fn Check) error {
	if name == "" || fn == nil {
		return fmt.Errorf("invalid check registration %q", name)
	}
	if _, exists := v.checks[name]; exists {
		return fmt.Errorf("check %q already registered", name)
	}
	v.checks[name] = fn
	return nil
}

// CheckCompleteness verifies every validator the schema names is registered.
// Called at startup, mirroring the trigger registry check.
func (v *Validator) CheckCompleteness() error {
	var missing []string
	for _, name := range v.schema.ValidatorNames() {
		if _, ok := v.checks[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema names unregistered validators: %v", missing)
	}
	return nil
}

// ValidateCreate validates a create request body.
func (v *Validator) ValidateCreate(entityType string, data map[string]any) Result {
	result := Result{Valid: true}

	def, err := v.schema.TypeDef(entityType)
	if err != nil {
		result.Add("entity_type", "unknown_type", entityType, fmt.Sprintf("unknown entity type %q", entityType))
		return result
	}

	v.rejectUnknown(&result, def, data)

	for name, value := range data {
		prop, ok := def.Properties.Get(name)
		if !ok {
			continue
		}
		if prop.Generated {
			result.Add(name, "generated", nil, "auto generated properties are not allowed in request")
			continue
		}
		// Empty required values are reported by the required pass below;
		// running the type/enum checks on them would double-report.
		if prop.RequiredOnCreate && isEmpty(value) {
			continue
		}
		v.checkValue(&result, name, prop, value, nil)
	}

	// Required properties, skipping trigger-populated ones.
	for _, name := range def.Properties.Names() {
		prop, _ := def.Properties.Get(name)
		if !prop.RequiredOnCreate || prop.BeforeCreateTrigger != "" {
			continue
		}
		value, present := data[name]
		if !present {
			result.Add(name, "required", nil, "property is required on create")
			continue
		}
		if isEmpty(value) {
			result.Add(name, "required", value, "required property has an empty value")
		}
	}

	return result
}

// ValidateUpdate validates an update request body against the stored record.
func (v *Validator) ValidateUpdate(entityType string, data, existing map[string]any) Result {
	result := Result{Valid: true}

	def, err := v.schema.TypeDef(entityType)
	if err != nil {
		result.Add("entity_type", "unknown_type", entityType, fmt.Sprintf("unknown entity type %q", entityType))
		return result
	}

	v.rejectUnknown(&result, def, data)

	for name, value := range data {
		prop, ok := def.Properties.Get(name)
		if !ok {
			continue
		}
		// Immutable beats generated in the report: clients most often echo
		// back a previously read document.
		if prop.Immutable {
			result.Add(name, "immutable", nil, "immutable properties are not allowed in request")
			continue
		}
		if prop.Generated && prop.BeforeUpdateTrigger == "" && prop.OnReadTrigger != "" {
			result.Add(name, "generated", nil, "read-only derived properties are not allowed in request")
			continue
		}
		v.checkValue(&result, name, prop, value, existing)
	}

	return result
}

func (v *Validator) rejectUnknown(result *Result, def schema.TypeDef, data map[string]any) {
	for name := range data {
		if !def.Properties.Has(name) {
			result.Add(name, "unknown_property", name, "property is not defined in schema")
		}
	}
}

// checkValue runs the type check, enum check, then named checks.
func (v *Validator) checkValue(result *Result, name string, prop schema.Property, value any, existing map[string]any) {
	if value == nil {
		return
	}
	if msg := typeMismatch(prop.Type, value); msg != "" {
		result.Add(name, "type", value, msg)
		return
	}
	if len(prop.Values) > 0 {
		str, _ := value.(string)
		if !containsFold(prop.Values, str) {
			result.Add(name, "enum", value, fmt.Sprintf("must be one of: %s", strings.Join(prop.Values, ", ")))
			return
		}
	}
	for _, checkName := range prop.Validators {
		fn, ok := v.checks[checkName]
		if !ok {
			// CheckCompleteness makes this unreachable in a wired service.
			result.Add(name, checkName, nil, fmt.Sprintf("validator %q not registered", checkName))
			continue
		}
		if err := fn(name, value, existing); err != nil {
			result.Add(name, checkName, value, err.Error())
		}
	}
}

// typeMismatch checks a decoded JSON value against the declared type.
// Returns an empty string when the value conforms.
func typeMismatch(t schema.PropertyType, value any) string {
	switch t {
	case schema.TypeString:
		if _, ok := value.(string); !ok {
			return "must be a string"
		}
	case schema.TypeInteger:
		switch n := value.(type) {
		case int, int32, int64:
		case float64:
			if n != float64(int64(n)) {
				return "must be an integer"
			}
		default:
			return "must be an integer"
		}
	case schema.TypeBoolean:
		if _, ok := value.(bool); !ok {
			return "must be a boolean"
		}
	case schema.TypeList:
		if _, ok := value.([]any); !ok {
			return "must be a list"
		}
	case schema.TypeJSONString:
		if _, ok := value.(map[string]any); !ok {
			return "must be a json object"
		}
	}
	return ""
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
