package config

import (
	"fmt"
	"strings"
)

// ValidationError describes a rejected setting or document.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors. Loading never
// fails on them; they are reported as warnings.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Fields lists the fields that were rejected.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}

// TypeError creates a validation error for a value of the wrong type.
func TypeError(field, expected string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("expected type %s", expected),
	}
}
