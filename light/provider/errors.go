package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrCheckpointNotFound is returned when the provider does not have the
	// requested checkpoint, either because it was not produced yet or
	// because it was pruned.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrNoResponse is returned if the provider doesn't respond to the
	// request in a given time or is temporarily unavailable.
	ErrNoResponse = errors.New("provider failed to respond")
)

// ErrBadCheckpoint is returned when a provider returns data that can't be
// decoded into a checkpoint.
type ErrBadCheckpoint struct {
	Reason error
}

func (e ErrBadCheckpoint) Error() string {
	return fmt.Sprintf("provider returned a bad checkpoint: %s", e.Reason.Error())
}

func (e ErrBadCheckpoint) Unwrap() error { return e.Reason }

// IsTransient reports whether err may go away if the request is retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrCheckpointNotFound) || errors.Is(err, ErrNoResponse)
}
