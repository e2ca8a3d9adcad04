package domain

import (
	"context"
	"errors"
	"fmt"
)

// ConfigError reports invalid or missing construction parameters. It is
// returned by constructors, never by calls.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// ValidationError reports malformed call arguments. It is always returned
// before any network I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// BackendError reports a transport failure, a non-2xx response or an
// unparseable response shape. Detail carries the backend's raw error body
// when one was available.
type BackendError struct {
	Provider   string
	StatusCode int
	Detail     string
	Err        error
}

func (e *BackendError) Error() string {
	msg := "backend error"
	if e.Provider != "" {
		msg = e.Provider + " backend error"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying later: a timeout,
// a rate-limit rejection, a server-side error or a transport failure.
func (e *BackendError) Transient() bool {
	if e.StatusCode == 0 {
		return e.Err != nil
	}
	return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode/100 == 5
}

// IsTransient reports whether err wraps a transient BackendError.
func IsTransient(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Transient()
}

// ErrorKind is the coarse classification carried by failed results, metric
// labels and API error codes.
type ErrorKind string

const (
	ErrorKindConfig     ErrorKind = "config"
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindBackend    ErrorKind = "backend"
	ErrorKindCancelled  ErrorKind = "cancelled"
	ErrorKindUnknown    ErrorKind = "unknown"
)

// KindOf classifies err. Cancellation wins over everything else.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindCancelled
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ErrorKindConfig
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return ErrorKindValidation
	}
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return ErrorKindBackend
	}
	return ErrorKindUnknown
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
