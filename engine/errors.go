package engine

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported          = errors.New("unsupported ROM file")
	ErrInvalidPreset        = errors.New("invalid preset selection")
	ErrConfigurationMissing = errors.New("preset file not found")
	ErrTransformationFailed = errors.New("randomization failed")
	ErrOutputNotFound       = errors.New("file not found")
)

// TransformationError reports a failed randomizer run along with what the
// randomizer printed about it.
type TransformationError struct {
	ExitCode int
	Details  string
	wrapped  error
}

func (e *TransformationError) Unwrap() []error {
	if e.wrapped == nil {
		return []error{ErrTransformationFailed}
	}
	return []error{ErrTransformationFailed, e.wrapped}
}

func (e *TransformationError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%v: %v", ErrTransformationFailed, e.wrapped)
	}
	return fmt.Sprintf("%v: exit code %d", ErrTransformationFailed, e.ExitCode)
}
