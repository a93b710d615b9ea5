package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sennetconsortium/entity-api/domain/entity"
)

// DefaultChecks returns the standard property-level validators named by the
// provenance schema. Bootstrap registers them before CheckCompleteness.
func DefaultChecks() map[string]Check {
	return map[string]Check{
		"validate_url":                   validateURL,
		"validate_no_duplicates_in_list": validateNoDuplicatesInList,
		"validate_positive_int":          validatePositiveInt,
		"validate_dataset_status_value":  validateDatasetStatusValue,
		"validate_upload_status_value":   validateUploadStatusValue,
	}
}

func validateURL(_ string, value any, _ map[string]any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a string url")
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid url %q", s)
	}
	return nil
}

func validateNoDuplicatesInList(_ string, value any, _ map[string]any) error {
	list, ok := value.([]any)
	if !ok {
		return fmt.Errorf("must be a list")
	}
	seen := make(map[any]bool, len(list))
	for _, item := range list {
		key := fmt.Sprintf("%v", item)
		if seen[key] {
			return fmt.Errorf("duplicate value %v in list", item)
		}
		seen[key] = true
	}
	return nil
}

func validatePositiveInt(_ string, value any, _ map[string]any) error {
	switch n := value.(type) {
	case int:
		if n > 0 {
			return nil
		}
	case int64:
		if n > 0 {
			return nil
		}
	case float64:
		if n > 0 && n == float64(int64(n)) {
			return nil
		}
	}
	return fmt.Errorf("must be a positive integer")
}

// validateDatasetStatusValue guards status transitions. A published dataset
// is final through this API; retraction is a separate privileged flow.
func validateDatasetStatusValue(_ string, value any, existing map[string]any) error {
	next, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a string")
	}
	current, _ := existing["status"].(string)
	if strings.EqualFold(current, entity.StatusPublished) && !strings.EqualFold(next, entity.StatusPublished) {
		return fmt.Errorf("status of a published dataset cannot be changed")
	}
	return nil
}

func validateUploadStatusValue(_ string, value any, existing map[string]any) error {
	next, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a string")
	}
	current, _ := existing["status"].(string)
	if strings.EqualFold(current, entity.StatusReorganized) && !strings.EqualFold(next, entity.StatusReorganized) {
		return fmt.Errorf("status of a reorganized upload cannot be changed")
	}
	return nil
}
