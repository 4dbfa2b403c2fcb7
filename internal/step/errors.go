package step

import "errors"

var (
	// ErrDuplicateStep is returned when a name is registered twice.
	ErrDuplicateStep = errors.New("step already registered")

	// ErrNameMismatch is returned when a descriptor and its implementation
	// carry different names.
	ErrNameMismatch = errors.New("descriptor name does not match step name")

	// ErrNoImplementation is returned when a configured descriptor names a
	// step sitescope does not provide.
	ErrNoImplementation = errors.New("no implementation for step")
)
