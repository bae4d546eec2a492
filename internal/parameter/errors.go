package parameter

import "errors"

var (
	// ErrParameterNotFound is returned when a fully-qualified name addresses a
	// segment that does not exist in the variables, the parameters or the
	// domain.
	ErrParameterNotFound = errors.New("parameter not found")

	// ErrTypeMismatch is returned when a resolved value cannot be used as the
	// type the caller asked for.
	ErrTypeMismatch = errors.New("parameter type mismatch")

	// ErrInvalidName is returned for names without a known "$..." root.
	ErrInvalidName = errors.New("invalid parameter name")
)
