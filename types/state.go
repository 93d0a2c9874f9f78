package types

import (
	"fmt"
)

// TrustedState is what the light client currently believes: the latest
// verified checkpoint and the committee that signs the next one.
//
// Committee is the committee for Checkpoint.Epoch, unless Checkpoint is an
// epoch boundary, in which case it is Checkpoint.NextCommittee.
type TrustedState struct {
	Checkpoint CheckpointHeader `json:"checkpoint"`
	Committee  Committee        `json:"committee"`
}

// ValidateBasic checks the state is internally consistent.
func (s TrustedState) ValidateBasic() error {
	if err := s.Checkpoint.ValidateBasic(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := s.Committee.ValidateBasic(); err != nil {
		return fmt.Errorf("committee: %w", err)
	}
	if s.Checkpoint.IsEpochBoundary() {
		if !s.Checkpoint.NextCommittee.Equal(&s.Committee) {
			return fmt.Errorf("committee for epoch %d does not match the one announced by checkpoint %d",
				s.Committee.Epoch, s.Checkpoint.SequenceNumber)
		}
		return nil
	}
	if s.Committee.Epoch != s.Checkpoint.Epoch {
		return fmt.Errorf("committee epoch %d does not match checkpoint epoch %d",
			s.Committee.Epoch, s.Checkpoint.Epoch)
	}
	return nil
}

// Copy returns a deep copy that shares no memory with s.
func (s TrustedState) Copy() TrustedState {
	return TrustedState{
		Checkpoint: s.Checkpoint.Copy(),
		Committee:  *s.Committee.Copy(),
	}
}

// Bytes returns the canonical encoding.
func (s TrustedState) Bytes() []byte {
	return mustEncode(s)
}

// TrustedStateFromBytes decodes and validates a trusted state.
func TrustedStateFromBytes(bz []byte) (TrustedState, error) {
	var s TrustedState
	if err := Decode(bz, &s); err != nil {
		return TrustedState{}, err
	}
	if err := s.ValidateBasic(); err != nil {
		return TrustedState{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return s, nil
}

func (s TrustedState) String() string {
	return fmt.Sprintf("TrustedState{%v committee-epoch:%d}", s.Checkpoint.String(), s.Committee.Epoch)
}

//-----------------------------------------------------------------------------

// InclusionStatus is the outcome of an inclusion check.
type InclusionStatus uint8

const (
	// Included means the exact (transaction, effects) pair is committed.
	Included InclusionStatus = iota + 1
	// NotFound means the transaction is not in the checkpoint.
	NotFound
	// EffectsMismatch means the transaction is committed with different
	// effects than claimed; the claim is proven false.
	EffectsMismatch
)

func (s InclusionStatus) String() string {
	switch s {
	case Included:
		return "included"
	case NotFound:
		return "not_found"
	case EffectsMismatch:
		return "effects_mismatch"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s InclusionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InclusionResult reports whether a transaction's claimed effects are
// committed by a checkpoint, and which checkpoint was used.
type InclusionResult struct {
	Status           InclusionStatus `json:"status"`
	Transaction      Digest          `json:"transaction"`
	ClaimedEffects   Digest          `json:"claimed_effects"`
	CommittedEffects *Digest         `json:"committed_effects,omitempty"`
	Checkpoint       uint64          `json:"checkpoint"`
	CheckpointDigest Digest          `json:"checkpoint_digest"`
	// Set when the checkpoint data carried the verified effects and events
	// of the transaction.
	Effects *TransactionEffects `json:"effects,omitempty"`
	Events  *TransactionEvents  `json:"events,omitempty"`
}

// Included reports whether the claim is proven true.
func (r InclusionResult) Included() bool {
	return r.Status == Included
}
