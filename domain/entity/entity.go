// Package entity provides value types and shared vocabulary for provenance
// entities. An entity is a node in the Neo4j provenance graph; Activity nodes
// record how entities were generated from their ancestors.
package entity

import (
	"fmt"
	"strings"
)

// Type is a normalized entity type tag.
type Type string

const (
	TypeSource     Type = "Source"
	TypeSample     Type = "Sample"
	TypeDataset    Type = "Dataset"
	TypeCollection Type = "Collection"
	TypeUpload     Type = "Upload"

	// TypeActivity is not a client-creatable entity; one Activity node is
	// written per create to record provenance.
	TypeActivity Type = "Activity"
)

// Types lists the client-facing entity types in canonical order.
func Types() []Type {
	return []Type{TypeSource, TypeSample, TypeDataset, TypeCollection, TypeUpload}
}

// AccessLevel is the visibility tier gating entities and properties.
type AccessLevel string

const (
	AccessLevelPublic     AccessLevel = "public"
	AccessLevelConsortium AccessLevel = "consortium"
	AccessLevelProtected  AccessLevel = "protected"
)

// AccessLevels lists the visibility tiers from least to most privileged.
func AccessLevels() []AccessLevel {
	return []AccessLevel{AccessLevelPublic, AccessLevelConsortium, AccessLevelProtected}
}

// Allows reports whether a caller holding level l may see data gated at
// level other. protected > consortium > public.
func (l AccessLevel) Allows(other AccessLevel) bool {
	return l.rank() >= other.rank()
}

func (l AccessLevel) rank() int {
	switch l {
	case AccessLevelProtected:
		return 2
	case AccessLevelConsortium:
		return 1
	default:
		return 0
	}
}

// Dataset status values. Transitions are validated by the status validator,
// not here.
const (
	StatusNew        = "New"
	StatusProcessing = "Processing"
	StatusQA         = "QA"
	StatusPublished  = "Published"
	StatusError      = "Error"
	StatusHold       = "Hold"
	StatusInvalid    = "Invalid"
	StatusSubmitted  = "Submitted"
	StatusIncomplete = "Incomplete"

	// Upload-only statuses.
	StatusValid       = "Valid"
	StatusReorganized = "Reorganized"
)

// NormalizeType maps a case-insensitive entity type string to its canonical
// form, e.g. "dataset" -> "Dataset".
func NormalizeType(s string) (Type, error) {
	for _, t := range append(Types(), TypeActivity) {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// NormalizeStatus canonicalizes a status string, e.g. "published" ->
// "Published", "qa" -> "QA". Unknown values pass through title-cased so the
// enum validator reports them against the schema's value set.
func NormalizeStatus(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	known := []string{
		StatusNew, StatusProcessing, StatusQA, StatusPublished, StatusError,
		StatusHold, StatusInvalid, StatusSubmitted, StatusIncomplete,
		StatusValid, StatusReorganized,
	}
	for _, k := range known {
		if strings.EqualFold(s, k) {
			return k
		}
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// NormalizeAccessLevel lowercases and validates an access level string.
func NormalizeAccessLevel(s string) (AccessLevel, error) {
	switch AccessLevel(strings.ToLower(strings.TrimSpace(s))) {
	case AccessLevelPublic:
		return AccessLevelPublic, nil
	case AccessLevelConsortium:
		return AccessLevelConsortium, nil
	case AccessLevelProtected:
		return AccessLevelProtected, nil
	}
	return "", fmt.Errorf("unknown data access level %q", s)
}
