package school

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalid is the cause of every ValidationError.
var ErrInvalid = errors.New("invalid input")

// FieldError is used to indicate an error with a specific field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports input rejected before any write was attempted.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

// NewValidationError builds a ValidationError from field errors.
func NewValidationError(flds ...FieldError) error {
	return &ValidationError{Err: ErrInvalid, Fields: flds}
}

// Required reports a missing required field.
func Required(field string) error {
	return NewValidationError(FieldError{Field: field, Error: field + " is a required field"})
}

func (err ValidationError) Error() string {
	if len(err.Fields) == 0 {
		return err.Err.Error()
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		msgs = append(msgs, f.Error)
	}
	return err.Err.Error() + ": " + strings.Join(msgs, "; ")
}

func (err ValidationError) Unwrap() error { return err.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
