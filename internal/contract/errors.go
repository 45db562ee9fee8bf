package contract

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the persistence layer and listing engine. The
// handler maps them onto the API error envelope; nothing in this package
// performs HTTP concerns.
var (
	// ErrNotFound covers both unknown ids and documents of a foreign type.
	ErrNotFound = errors.New("contract not found")
	// ErrArchived marks tombstoned legacy documents (HTTP 410).
	ErrArchived = errors.New("contract archived")
	// ErrConflict is a compare-and-swap failure; callers retry the whole
	// load-validate-save sequence with a fresh load.
	ErrConflict = errors.New("contract revision conflict")
	// ErrOffsetInvalid is a stale or unparseable change-feed cursor.
	ErrOffsetInvalid = errors.New("offset expired/invalid")
	// ErrForbidden is an owner-token (or role) mismatch.
	ErrForbidden = errors.New("forbidden")
)

// FieldError is one entry of the API error envelope.
type FieldError struct {
	Location    string `json:"location"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ValidationError carries per-field schema/validation messages (HTTP 422).
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Name, fe.Description))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-field validation error.
func NewValidationError(location, name, description string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Location: location, Name: name, Description: description}}}
}

// OperationError is a status-guard rejection with a user-facing reason
// (HTTP 403). The guard never mutates state before returning one.
type OperationError struct {
	Reason string
}

func (e *OperationError) Error() string { return e.Reason }

// UnsupportedTypeError signals an unregistered contractType discriminator
// (HTTP 415).
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("contractType %s not implemented", e.Type)
}
