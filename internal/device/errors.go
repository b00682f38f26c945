package device

import (
	"errors"
)

// Normalized radio errors. Callers wrap these with fmt.Errorf("...: %w") and
// match them with errors.Is.
var (
	ErrInvalidParameter = errors.New("INVALID_PARAMETER")
	ErrInvalidState     = errors.New("INVALID_STATE")
	ErrOutOfRange       = errors.New("OUT_OF_RANGE")
	ErrDeviceFailure    = errors.New("DEVICE_FAILURE")
	ErrBufferTooSmall   = errors.New("BUFFER_TOO_SMALL")
)

// Code returns the wire code for err, or "INTERNAL" when err does not wrap
// one of the normalized errors. A nil error maps to "".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidParameter):
		return ErrInvalidParameter.Error()
	case errors.Is(err, ErrInvalidState):
		return ErrInvalidState.Error()
	case errors.Is(err, ErrOutOfRange):
		return ErrOutOfRange.Error()
	case errors.Is(err, ErrDeviceFailure):
		return ErrDeviceFailure.Error()
	case errors.Is(err, ErrBufferTooSmall):
		return ErrBufferTooSmall.Error()
	default:
		return "INTERNAL"
	}
}
