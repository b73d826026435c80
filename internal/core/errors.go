package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrAttemptsExceeded is terminal for an identity until its failures are reset
	// externally. The message is shown to callers as-is.
	ErrAttemptsExceeded = errors.New("A sales person will contact you") //nolint:staticcheck // user-facing message

	// ErrCreditRejected matches every RejectedError.
	ErrCreditRejected = errors.New("the credit line could not be approved")

	// ErrNotAdmitted is returned by the boundary when the throttle refuses a caller.
	ErrNotAdmitted = errors.New("too many requests")
)

// ValidationError reports malformed or missing input. It never counts against
// the failure budget.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RejectedError reports a valid request whose amount is not affordable.
type RejectedError struct {
	Requested   decimal.Decimal
	Recommended decimal.Decimal
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: requested %s exceeds recommended %s",
		ErrCreditRejected.Error(), e.Requested.String(), e.Recommended.String())
}

// Is lets errors.Is(err, ErrCreditRejected) match.
func (e *RejectedError) Is(target error) bool {
	return target == ErrCreditRejected
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
