package light

import (
	"errors"
	"fmt"

	tmmath "github.com/tendermint/checkpoint-light/libs/math"
	"github.com/tendermint/checkpoint-light/types"
)

// ErrMalformedInput means the certificate could not be decoded or is
// structurally invalid. It is detected before any signature check.
var ErrMalformedInput = types.ErrMalformedInput

// ErrChainDiscontinuity means the checkpoint does not point back at the
// trusted checkpoint.
type ErrChainDiscontinuity struct {
	Trusted  types.Digest
	Previous *types.Digest
}

func (e ErrChainDiscontinuity) Error() string {
	if e.Previous == nil {
		return fmt.Sprintf("chain discontinuity: checkpoint has no previous digest, trusted is %v", e.Trusted)
	}
	return fmt.Sprintf("chain discontinuity: previous digest %v, trusted is %v", *e.Previous, e.Trusted)
}

// ErrSequenceGap means the checkpoint is not the direct successor of the
// trusted checkpoint. Replays of already applied checkpoints fall here too.
type ErrSequenceGap struct {
	Expected uint64
	Got      uint64
}

func (e ErrSequenceGap) Error() string {
	return fmt.Sprintf("sequence gap: expected checkpoint #%d, got #%d", e.Expected, e.Got)
}

// ErrCommitteeMismatch means the checkpoint's epoch cannot be signed by any
// committee the client trusts.
type ErrCommitteeMismatch struct {
	Epoch          uint64
	CommitteeEpoch uint64
	Reason         string
}

func (e ErrCommitteeMismatch) Error() string {
	return fmt.Sprintf("committee mismatch: checkpoint epoch %d, trusted committee epoch %d: %s",
		e.Epoch, e.CommitteeEpoch, e.Reason)
}

// ErrDigestMismatch means the digest claimed by the certificate is not the
// digest of its header.
type ErrDigestMismatch struct {
	Claimed  types.Digest
	Computed types.Digest
}

func (e ErrDigestMismatch) Error() string {
	return fmt.Sprintf("digest mismatch: certificate claims %v, header hashes to %v", e.Claimed, e.Computed)
}

// ErrQuorumNotMet means the signers do not hold more than the quorum
// threshold of the committee's stake.
type ErrQuorumNotMet struct {
	Signed    uint64
	Total     uint64
	Threshold tmmath.Fraction
}

func (e ErrQuorumNotMet) Error() string {
	return fmt.Sprintf("quorum not met: signed stake %d of %d, need more than %v", e.Signed, e.Total, e.Threshold)
}

// ErrInvalidSignature means the aggregate signature does not verify against
// the signers' public keys.
type ErrInvalidSignature struct {
	Reason error
}

func (e ErrInvalidSignature) Error() string {
	return fmt.Sprintf("invalid aggregate signature: %v", e.Reason)
}

// Unwrap returns underlying reason.
func (e ErrInvalidSignature) Unwrap() error {
	return e.Reason
}

// ErrContentsDigestMismatch means the supplied contents are not the ones the
// checkpoint commits to.
type ErrContentsDigestMismatch struct {
	Committed types.Digest
	Computed  types.Digest
}

func (e ErrContentsDigestMismatch) Error() string {
	return fmt.Sprintf("contents digest mismatch: checkpoint commits to %v, contents hash to %v",
		e.Committed, e.Computed)
}

// ErrEffectsDigestMismatch means the effects carried for a transaction do
// not hash to the effects digest its checkpoint commits to.
type ErrEffectsDigestMismatch struct {
	Transaction types.Digest
	Committed   types.Digest
	Computed    types.Digest
}

func (e ErrEffectsDigestMismatch) Error() string {
	return fmt.Sprintf("effects digest mismatch for transaction %v: checkpoint commits to %v, effects hash to %v",
		e.Transaction, e.Committed, e.Computed)
}

// ErrEventsDigestMismatch means the events carried for a transaction do not
// hash to the events digest of its effects. A nil digest stands for no
// events.
type ErrEventsDigestMismatch struct {
	Transaction types.Digest
	Committed   *types.Digest
	Computed    *types.Digest
}

func (e ErrEventsDigestMismatch) Error() string {
	return fmt.Sprintf("events digest mismatch for transaction %v: effects commit to %s, events hash to %s",
		e.Transaction, digestOrNone(e.Committed), digestOrNone(e.Computed))
}

func digestOrNone(d *types.Digest) string {
	if d == nil {
		return "none"
	}
	return d.String()
}

// IsVerificationError reports whether err means the checkpoint bytes
// themselves are untrustworthy. Such failures are permanent: retrying the
// same bytes cannot succeed.
func IsVerificationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedInput) {
		return true
	}

	var (
		discontinuity ErrChainDiscontinuity
		gap           ErrSequenceGap
		committee     ErrCommitteeMismatch
		digest        ErrDigestMismatch
		quorum        ErrQuorumNotMet
		signature     ErrInvalidSignature
		contents      ErrContentsDigestMismatch
		effects       ErrEffectsDigestMismatch
		events        ErrEventsDigestMismatch
	)
	return errors.As(err, &discontinuity) ||
		errors.As(err, &gap) ||
		errors.As(err, &committee) ||
		errors.As(err, &digest) ||
		errors.As(err, &quorum) ||
		errors.As(err, &signature) ||
		errors.As(err, &contents) ||
		errors.As(err, &effects) ||
		errors.As(err, &events)
}
