package app

import (
	"errors"

	"github.com/sennetconsortium/entity-api/core/validation"
)

// Sentinel errors the web layer maps to HTTP status codes. Group resolution
// failures are client-correctable (400); authorization failures are 403.
var (
	// ErrUnsupportedType means the requested entity type is not in the schema
	// or is not creatable through the API.
	ErrUnsupportedType = errors.New("unsupported entity type")

	// ErrForbidden means the caller lacks the access level or group
	// membership the operation requires.
	ErrForbidden = errors.New("access denied")

	// ErrNoProviderGroup means the caller belongs to no data provider group,
	// so group_uuid cannot be inferred and must be given explicitly.
	ErrNoProviderGroup = errors.New("user belongs to no data provider group; specify group_uuid explicitly")

	// ErrMultipleProviderGroups means the caller belongs to more than one
	// data provider group and omitted group_uuid.
	ErrMultipleProviderGroups = errors.New("user belongs to multiple data provider groups; specify group_uuid explicitly")

	// ErrUnknownGroup means the supplied group_uuid is not a data provider
	// group the caller is a member of.
	ErrUnknownGroup = errors.New("specified group_uuid is not a data provider group of the user")
)

// ValidationError carries the full accumulated rule failures for a rejected
// create or update body.
type ValidationError struct {
	Result validation.Result
}

func (e *ValidationError) Error() string { return e.Result.Error() }

// Violations returns the individual rule failures for response rendering.
func (e *ValidationError) Violations() []validation.RuleError { return e.Result.Errors }
