package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means the record has no host, port or identity yet.
	ErrNotConfigured = errors.New("connection settings missing")
	// ErrNotConnected means the request needs a live peer and there is none.
	ErrNotConnected = errors.New("no active connection")
	// ErrNotReady means a peer exists but has not joined the world yet.
	ErrNotReady = errors.New("connection still joining")
	// ErrAlreadyConnected is returned by connect while a peer is live or joining.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrCapabilityDisabled means the requested feature is switched off in the configuration.
	ErrCapabilityDisabled = errors.New("capability disabled")
	// ErrInvalidArgument wraps request validation failures.
	ErrInvalidArgument = errors.New("invalid argument")
)

// PeerFaultError is a transport fault reported by a peer. It is delivered as a
// notification, never as a request failure.
type PeerFaultError struct {
	Operator Operator
	Slot     int
	Err      error
}

func (e *PeerFaultError) Error() string {
	return fmt.Sprintf("peer fault on %s#%d: %v", e.Operator, e.Slot, e.Err)
}

func (e *PeerFaultError) Unwrap() error { return e.Err }

// InvalidArgument returns an error wrapping ErrInvalidArgument with a reason.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
