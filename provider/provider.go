// Package provider defines the capability-provider contract the workflow
// runtime dispatches against, and shared types for its implementations.
//
// A provider exposes named abilities invocable with a payload plus the
// current state snapshot, and a liveness query. The runtime depends on
// nothing else; COMMON and ATLAS are two concrete implementations in the
// subpackages, and httpapi can expose or consume any Provider over HTTP.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Status is the result of a provider liveness query.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Provider is the polymorphic contract over the two external capability
// collaborators. Implementations must be safe for concurrent use: one
// provider instance is shared by all concurrent runs.
type Provider interface {
	// Name returns the provider identity used in routing and logs.
	Name() string

	// Invoke performs one ability call. payload carries per-binding call
	// arguments; state is a read-only snapshot of the run's state. The
	// returned map holds the output fields to merge.
	//
	// A returned *ApplicationError means the provider logically rejected
	// the call; any other error is treated as a transport failure.
	Invoke(ctx context.Context, ability string, payload map[string]any, state map[string]any) (map[string]any, error)

	// Health reports provider liveness. It is queried out-of-band, never
	// on the dispatch hot path.
	Health(ctx context.Context) Status
}

// ApplicationError marks an explicit application-level rejection of an
// ability call. The dispatcher surfaces it immediately without retrying,
// since retrying a logically-rejected call cannot help.
type ApplicationError struct {
	Ability string
	Reason  string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("ability %s rejected: %s", e.Ability, e.Reason)
}

// NewApplicationError builds an application-level rejection.
func NewApplicationError(ability, format string, args ...interface{}) *ApplicationError {
	return &ApplicationError{Ability: ability, Reason: fmt.Sprintf(format, args...)}
}

// IsApplication reports whether err is an application-level rejection.
func IsApplication(err error) bool {
	var ae *ApplicationError
	return errors.As(err, &ae)
}
