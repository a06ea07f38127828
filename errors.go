package caseflow

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the fatal failure modes of the runtime. Transport
// failures have a kind too, but they are absorbed by the dispatcher's
// retry-then-fallback policy and never terminate a run.
type ErrorKind string

const (
	// ErrInvalidRequest marks a malformed or incomplete request. Fatal,
	// detected before any stage runs.
	ErrInvalidRequest ErrorKind = "InvalidRequest"

	// ErrConfig marks a capability registry inconsistency. Fatal, detected
	// at registry-build time, never per-request.
	ErrConfig ErrorKind = "ConfigError"

	// ErrMissingInput marks an unmet stage precondition. Fatal for the
	// current run; the partial state is still returned.
	ErrMissingInput ErrorKind = "MissingInput"

	// ErrProviderTransport marks a timeout or connection failure. Recovered
	// locally via retry then fallback.
	ErrProviderTransport ErrorKind = "ProviderTransportFailure"

	// ErrProviderApplication marks an explicit application-level rejection
	// by a provider. Surfaced immediately, never retried.
	ErrProviderApplication ErrorKind = "ProviderApplicationError"

	// ErrRunCancelled marks an external cancellation between stages.
	ErrRunCancelled ErrorKind = "RunCancelled"
)

// RunError is a typed runtime error carrying its kind so the orchestrator
// can map it onto a terminal status without string matching.
type RunError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *RunError) Unwrap() error { return e.Err }

// KindOf extracts the error kind from err, unwrapping as needed. Unknown
// errors map to ErrProviderApplication only if nothing better is known;
// callers that need a default should check the second return value.
func KindOf(err error) (ErrorKind, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

func newError(kind ErrorKind, format string, args ...interface{}) *RunError {
	return &RunError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error, format string, args ...interface{}) *RunError {
	return &RunError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}
