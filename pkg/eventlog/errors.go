package eventlog

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

var (
	// ErrUnknownEntityKind is returned when no resolver is registered for a kind.
	ErrUnknownEntityKind = errors.New("eventlog: unknown entity kind")
	// ErrMissingPropertyKey is returned when mutating a property that was never contributed.
	ErrMissingPropertyKey = errors.New("eventlog: missing property key")
	// ErrScopeFinalized is returned when contributing to a scope after Finalize.
	ErrScopeFinalized = errors.New("eventlog: scope already finalized")
	// ErrUntrackedActor is returned when an event is requested for an actor whose role is not tracked.
	ErrUntrackedActor = errors.New("eventlog: actor role is not tracked")
	// ErrEmptyKey is returned when building a reference without a key.
	ErrEmptyKey = errors.New("eventlog: entity reference key must not be empty")
	// ErrNilEvent is returned when a repository is asked to store nothing.
	ErrNilEvent = errors.New("eventlog: event cannot be nil")
	// ErrEventNotFound is returned by lookups that match no stored event.
	ErrEventNotFound = errors.New("eventlog: event not found")
)

// ConfigurationError reports a wiring mistake discovered at resolution time,
// such as a reference whose kind has no registered resolver.
type ConfigurationError struct {
	Kind EntityKind
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("eventlog: configuration error for kind %q: %v", e.Kind, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// PersistError wraps a storage failure. It is never retried here.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("eventlog: persist %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistError{Op: op, Err: err}
}

// GRPCCode classifies eventlog errors for the gRPC error handler.
func GRPCCode(err error) (codes.Code, bool) {
	var cfgErr *ConfigurationError
	var pErr *PersistError
	switch {
	case errors.As(err, &cfgErr):
		return codes.Internal, true
	case errors.Is(err, ErrMissingPropertyKey), errors.Is(err, ErrScopeFinalized):
		return codes.FailedPrecondition, true
	case errors.Is(err, ErrUntrackedActor):
		return codes.PermissionDenied, true
	case errors.Is(err, ErrEventNotFound):
		return codes.NotFound, true
	case errors.As(err, &pErr):
		return codes.Unavailable, true
	}
	return codes.Unknown, false
}
