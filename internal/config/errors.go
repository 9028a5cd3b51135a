package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedValue marks a raw value that could not be coerced to its
	// field's type.
	ErrMalformedValue = errors.New("malformed value")

	// ErrValidation marks a value that parsed but broke a field rule.
	ErrValidation = errors.New("validation failed")

	// ErrEnvFile marks a located .env file that exists but cannot be read.
	ErrEnvFile = errors.New("unreadable env file")
)

// FieldError names the offending environment key and the rule it broke.
// Err is ErrMalformedValue or ErrValidation.
type FieldError struct {
	Field  string
	Rule   string
	Detail string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("config %s: %v (%s)", e.Field, e.Err, e.Rule)
	}
	return fmt.Sprintf("config %s: %v (%s): %s", e.Field, e.Err, e.Rule, e.Detail)
}

func (e *FieldError) Unwrap() error { return e.Err }
