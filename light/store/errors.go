package store

import "errors"

var (
	// ErrCommitteeNotFound is returned when a store does not have the
	// committee of the requested epoch.
	ErrCommitteeNotFound = errors.New("committee not found")

	// ErrDuplicateEpoch is returned when saving a committee for an epoch
	// that already has a different one.
	ErrDuplicateEpoch = errors.New("a different committee is already stored for this epoch")

	// ErrNoTrustedState is returned when no trusted state was saved yet.
	ErrNoTrustedState = errors.New("no trusted state")

	// ErrStoreNotEmpty is returned when importing into a store that already
	// holds data.
	ErrStoreNotEmpty = errors.New("store is not empty")
)
