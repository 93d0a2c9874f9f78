package store

import (
	"io"

	"github.com/tendermint/checkpoint-light/types"
)

// Store persists committees by epoch, together with the tracker's trusted
// state. Implementations must be safe for concurrent use.
type Store interface {
	// SaveCommittee stores c under c.Epoch. Saving a committee identical to
	// the stored one is a no-op; a different committee for an epoch already
	// present fails with ErrDuplicateEpoch.
	SaveCommittee(c *types.Committee) error

	// Committee returns the committee of the given epoch.
	//
	// If it is not found, ErrCommitteeNotFound is returned.
	Committee(epoch uint64) (*types.Committee, error)

	// LatestCommitteeEpoch returns the highest stored epoch.
	//
	// If the store has no committees, ErrCommitteeNotFound is returned.
	LatestCommitteeEpoch() (uint64, error)

	// PruneCommittees removes committees of epochs older than before, except
	// the committee of the trusted state. It returns how many were removed.
	PruneCommittees(before uint64) (int, error)

	// Size returns the number of stored committees.
	Size() uint64

	// SaveTrustedState persists state and inserts state.Committee under the
	// rules of SaveCommittee, in a single atomic write. Either both are
	// stored or neither is.
	SaveTrustedState(state types.TrustedState) error

	// TrustedState returns the last saved trusted state.
	//
	// If none was saved, ErrNoTrustedState is returned.
	TrustedState() (types.TrustedState, error)

	// Export writes a snapshot of everything the store holds to w.
	Export(w io.Writer) error

	// Import restores a snapshot written by Export into an empty store.
	Import(r io.Reader) error
}
