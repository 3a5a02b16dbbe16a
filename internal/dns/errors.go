package dns

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNetwork    = errors.New("network failure")
	ErrProvider   = errors.New("provider error")
	ErrResolution = errors.New("resolution failed")
)

// ValidationError reports malformed input detected before any I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NetworkError reports a transport-level failure reaching the provider.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.Err }

// ProviderError is returned when the provider answers with a status >= 300.
// Body is the raw response body as received.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// ResolutionError reports a lookup that failed or produced no usable answer.
type ResolutionError struct {
	Name   string
	Server string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolve %s @%s: %s", e.Name, e.Server, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

func (e *ResolutionError) Unwrap() error { return e.Err }
