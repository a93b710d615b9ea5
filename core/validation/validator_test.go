package validation_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sennetconsortium/entity-api/core/schema"
	"github.com/sennetconsortium/entity-api/core/validation"
)

const testSchema = `
entities:
  Source:
    properties:
      uuid:
        type: string
        generated: true
        immutable: true
        before_create_trigger: set_uuid
      source_type:
        type: string
        required_on_create: true
        values: [Human, Mouse]
      lab_source_id:
        type: string
      protocol_url:
        type: string
        validators: [validate_url]
      sample_count:
        type: integer
      active:
        type: boolean
      tags:
        type: list
        validators: [validate_no_duplicates_in_list]
      metadata:
        type: json_string
      group_uuid:
        type: string
        generated: true
        before_create_trigger: set_group_uuid
      display_subtype:
        type: string
        generated: true
        on_read_trigger: get_display_subtype
  Dataset:
    properties:
      uuid:
        type: string
        generated: true
        immutable: true
        before_create_trigger: set_uuid
      status:
        type: string
        generated: true
        before_create_trigger: set_dataset_status_new
        before_update_trigger: update_status
        validators: [validate_dataset_status_value]
      direct_ancestor_uuids:
        type: list
        required_on_create: true
`

func newValidator(t *testing.T) *validation.Validator {
	t.Helper()
	s, err := schema.Parse([]byte(testSchema))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	v := validation.New(s)
	for name, fn := range validation.DefaultChecks() {
		if err := v.RegisterCheck(name, fn); err != nil {
			t.Fatalf("RegisterCheck(%s) error = %v", name, err)
		}
	}
	return v
}

func ruleFor(result validation.Result, property string) string {
	for _, e := range result.Errors {
		if e.Property == property {
			return e.Rule
		}
	}
	return ""
}

func TestValidateCreate_Valid(t *testing.T) {
	v := newValidator(t)

	result := v.ValidateCreate("Source", map[string]any{
		"source_type":   "Human",
		"lab_source_id": "lab-001",
		"sample_count":  float64(3),
		"active":        true,
		"tags":          []any{"a", "b"},
		"metadata":      map[string]any{"assay": "RNAseq"},
	})
	if !result.Valid {
		t.Errorf("ValidateCreate() errors = %v, want valid", result.Errors)
	}
}

func TestValidateCreate_CollectsAllViolations(t *testing.T) {
	v := newValidator(t)

	result := v.ValidateCreate("Source", map[string]any{
		"uuid":         "client-supplied",
		"source_type":  "Alien",
		"sample_count": "three",
		"bogus":        1,
	})
	if result.Valid {
		t.Fatal("ValidateCreate() = valid, want violations")
	}
	if got := ruleFor(result, "uuid"); got != "generated" {
		t.Errorf("uuid rule = %q, want generated", got)
	}
	if got := ruleFor(result, "source_type"); got != "enum" {
		t.Errorf("source_type rule = %q, want enum", got)
	}
	if got := ruleFor(result, "sample_count"); got != "type" {
		t.Errorf("sample_count rule = %q, want type", got)
	}
	if got := ruleFor(result, "bogus"); got != "unknown_property" {
		t.Errorf("bogus rule = %q, want unknown_property", got)
	}
	if len(result.Errors) != 4 {
		t.Errorf("len(Errors) = %d, want 4: %v", len(result.Errors), result.Errors)
	}
}

func TestValidateCreate_Required(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"missing", map[string]any{}, "required"},
		{"empty string", map[string]any{"source_type": "  "}, "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateCreate("Source", tt.data)
			if got := ruleFor(result, "source_type"); got != tt.want {
				t.Errorf("source_type rule = %q, want %q (errors %v)", got, tt.want, result.Errors)
			}
			// An empty required value is one violation; the enum and type
			// checks must not pile on.
			count := 0
			for _, e := range result.Errors {
				if e.Property == "source_type" {
					count++
				}
			}
			if count != 1 {
				t.Errorf("source_type violations = %d, want 1: %v", count, result.Errors)
			}
		})
	}

	// Required list property.
	result := v.ValidateCreate("Dataset", map[string]any{"direct_ancestor_uuids": []any{}})
	if got := ruleFor(result, "direct_ancestor_uuids"); got != "required" {
		t.Errorf("direct_ancestor_uuids rule = %q, want required", got)
	}
}

func TestValidateCreate_UnknownType(t *testing.T) {
	v := newValidator(t)
	result := v.ValidateCreate("Publication", map[string]any{})
	if result.Valid || ruleFor(result, "entity_type") != "unknown_type" {
		t.Errorf("result = %+v, want unknown_type violation", result)
	}
}

func TestValidateCreate_EnumCaseInsensitive(t *testing.T) {
	v := newValidator(t)
	result := v.ValidateCreate("Source", map[string]any{"source_type": "human"})
	if !result.Valid {
		t.Errorf("enum match should be case insensitive, errors = %v", result.Errors)
	}
}

func TestValidateUpdate_Immutable(t *testing.T) {
	v := newValidator(t)

	result := v.ValidateUpdate("Source", map[string]any{"uuid": "abc"}, map[string]any{"uuid": "abc"})
	if got := ruleFor(result, "uuid"); got != "immutable" {
		t.Errorf("uuid rule = %q, want immutable", got)
	}
}

func TestValidateUpdate_ReadOnlyDerived(t *testing.T) {
	v := newValidator(t)

	result := v.ValidateUpdate("Source", map[string]any{"display_subtype": "x"}, map[string]any{})
	if got := ruleFor(result, "display_subtype"); got != "generated" {
		t.Errorf("display_subtype rule = %q, want generated", got)
	}

	// Generated with an update trigger stays writable: the trigger
	// normalizes whatever the client sends.
	result = v.ValidateUpdate("Dataset", map[string]any{"status": "QA"}, map[string]any{"status": "New"})
	if !result.Valid {
		t.Errorf("status update errors = %v, want valid", result.Errors)
	}
}

func TestValidateUpdate_PublishedStatusFrozen(t *testing.T) {
	v := newValidator(t)

	result := v.ValidateUpdate("Dataset", map[string]any{"status": "QA"}, map[string]any{"status": "Published"})
	if got := ruleFor(result, "status"); got != "validate_dataset_status_value" {
		t.Errorf("status rule = %q, want validate_dataset_status_value (errors %v)", got, result.Errors)
	}
}

func TestChecks(t *testing.T) {
	checks := validation.DefaultChecks()

	tests := []struct {
		check   string
		value   any
		wantErr bool
	}{
		{"validate_url", "https://dx.doi.org/10.1000/1", false},
		{"validate_url", "not a url", true},
		{"validate_url", 42, true},
		{"validate_no_duplicates_in_list", []any{"a", "b"}, false},
		{"validate_no_duplicates_in_list", []any{"a", "a"}, true},
		{"validate_positive_int", float64(5), false},
		{"validate_positive_int", float64(0), true},
		{"validate_positive_int", float64(2.5), true},
		{"validate_upload_status_value", "Valid", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.check, tt.value), func(t *testing.T) {
			err := checks[tt.check]("p", tt.value, map[string]any{})
			if (err != nil) != tt.wantErr {
				t.Errorf("%s(%v) error = %v, wantErr %v", tt.check, tt.value, err, tt.wantErr)
			}
		})
	}

	err := checks["validate_upload_status_value"]("status", "Valid", map[string]any{"status": "Reorganized"})
	if err == nil {
		t.Error("reorganized upload status change expected error")
	}
}

func TestResult_Error(t *testing.T) {
	var r validation.Result
	r.Valid = true
	if r.Error() != "" {
		t.Errorf("valid result Error() = %q, want empty", r.Error())
	}
	r.Add("status", "enum", "Bad", "must be one of: New, QA")
	r.Add("uuid", "immutable", nil, "immutable properties are not allowed in request")
	msg := r.Error()
	if !strings.Contains(msg, "status:") || !strings.Contains(msg, "uuid:") {
		t.Errorf("Error() = %q, want both violations", msg)
	}
}

func TestCheckCompleteness(t *testing.T) {
	s, err := schema.Parse([]byte(testSchema))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	v := validation.New(s)
	if err := v.CheckCompleteness(); err == nil {
		t.Error("CheckCompleteness() with empty registry expected error")
	}
	for name, fn := range validation.DefaultChecks() {
		v.RegisterCheck(name, fn)
	}
	if err := v.CheckCompleteness(); err != nil {
		t.Errorf("CheckCompleteness() error = %v", err)
	}
}
