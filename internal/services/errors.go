package services

import (
	"errors"
	"fmt"
)

// Read-side "no data" conditions are never errors: analytics and forecasting
// return zero-filled payloads instead. The error taxonomy below covers the
// cases that do surface to callers.
var (
	// ErrTestNotFound means the test key or id does not exist.
	ErrTestNotFound = errors.New("ab test not found")

	// ErrPolicyViolation means a lifecycle or immutability rule was broken,
	// e.g. a backward status transition.
	ErrPolicyViolation = errors.New("policy violation")
)

// ValidationError rejects a malformed event at the ingestion boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is an ingestion validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
