package light

import (
	"fmt"

	"github.com/tendermint/checkpoint-light/crypto/bls"
	tmmath "github.com/tendermint/checkpoint-light/libs/math"
	"github.com/tendermint/checkpoint-light/types"
)

var (
	// DefaultQuorumThreshold - a checkpoint is authentic if its signers hold
	// strictly more than two thirds of the committee's stake.
	DefaultQuorumThreshold = tmmath.Fraction{Numerator: 2, Denominator: 3}

	// maxQuorumThreshold is exclusive: no signer set can hold strictly more
	// than all of the stake.
	maxQuorumThreshold = tmmath.Fraction{Numerator: 1, Denominator: 1}
)

// VerifiedHeader is a checkpoint header that passed verification, together
// with the committee that certified it.
type VerifiedHeader struct {
	Header      types.CheckpointHeader
	Digest      types.Digest
	Committee   *types.Committee
	SignedStake uint64
}

// VerifyCheckpoint verifies cert as the direct successor of trusted. It
// ensures that:
//
//	a) its sequence number is trusted's plus one (ErrSequenceGap)
//	b) cert is well formed (if not, ErrMalformedInput is returned)
//	c) it points back at trusted's digest (ErrChainDiscontinuity)
//	d) its epoch is the trusted committee's, or the next one right after an
//	   epoch boundary (ErrCommitteeMismatch)
//	e) the claimed digest is the digest of the header (ErrDigestMismatch)
//	f) the signers hold more than quorum of the stake (ErrQuorumNotMet)
//	g) the aggregate signature verifies (ErrInvalidSignature)
//
// The sequence number is checked first so that any replayed or early
// checkpoint, a replayed genesis included, reports ErrSequenceGap rather than
// failing the structural checks. All of a) to d) run before any signature
// work. VerifyCheckpoint does not modify trusted.
func VerifyCheckpoint(
	cert *types.CheckpointCertificate,
	trusted types.TrustedState,
	quorum tmmath.Fraction) (*VerifiedHeader, error) {

	if cert == nil {
		return nil, fmt.Errorf("%w: nil certificate", ErrMalformedInput)
	}
	header := &cert.Header

	if want := trusted.Checkpoint.SequenceNumber + 1; header.SequenceNumber != want {
		return nil, ErrSequenceGap{Expected: want, Got: header.SequenceNumber}
	}

	if err := cert.ValidateBasic(); err != nil {
		return nil, err
	}

	trustedDigest := trusted.Checkpoint.Digest()
	if header.PreviousDigest == nil || *header.PreviousDigest != trustedDigest {
		return nil, ErrChainDiscontinuity{Trusted: trustedDigest, Previous: header.PreviousDigest}
	}

	committee, err := committeeForEpoch(header.Epoch, trusted)
	if err != nil {
		return nil, err
	}

	return verifyCertificate(cert, committee, quorum)
}

// VerifyCertificate checks that cert was certified by committee: the epochs
// match, the digest is right, the signers hold more than quorum of the stake
// and the aggregate signature verifies. It does not check the certificate's
// position in the chain; callers use it for checkpoints whose ancestry is
// established otherwise.
func VerifyCertificate(
	cert *types.CheckpointCertificate,
	committee *types.Committee,
	quorum tmmath.Fraction) (*VerifiedHeader, error) {

	if err := cert.ValidateBasic(); err != nil {
		return nil, err
	}
	if cert.Header.Epoch != committee.Epoch {
		return nil, ErrCommitteeMismatch{
			Epoch:          cert.Header.Epoch,
			CommitteeEpoch: committee.Epoch,
			Reason:         "certificate is not from the committee's epoch",
		}
	}
	return verifyCertificate(cert, committee, quorum)
}

// committeeForEpoch returns the trusted committee allowed to sign a
// checkpoint of the given epoch.
func committeeForEpoch(epoch uint64, trusted types.TrustedState) (*types.Committee, error) {
	var (
		checkpoint = trusted.Checkpoint
		committee  = &trusted.Committee
	)

	// After an epoch boundary only the announced committee may sign, and
	// only for the next epoch.
	expected := checkpoint.Epoch
	if checkpoint.IsEpochBoundary() {
		expected = checkpoint.Epoch + 1
	}
	if epoch != expected {
		return nil, ErrCommitteeMismatch{
			Epoch:          epoch,
			CommitteeEpoch: committee.Epoch,
			Reason:         fmt.Sprintf("expected epoch %d after checkpoint #%d", expected, checkpoint.SequenceNumber),
		}
	}

	switch {
	case epoch == committee.Epoch:
		if checkpoint.IsEpochBoundary() && !checkpoint.NextCommittee.Equal(committee) {
			return nil, ErrCommitteeMismatch{
				Epoch:          epoch,
				CommitteeEpoch: committee.Epoch,
				Reason:         "trusted committee differs from the one announced at the epoch boundary",
			}
		}
		return committee, nil

	case epoch == committee.Epoch+1 && checkpoint.IsEpochBoundary():
		// The trusted state still carries the outgoing committee; switch to
		// the announced one.
		return checkpoint.NextCommittee, nil

	default:
		return nil, ErrCommitteeMismatch{
			Epoch:          epoch,
			CommitteeEpoch: committee.Epoch,
			Reason:         "no trusted committee for this epoch",
		}
	}
}

func verifyCertificate(
	cert *types.CheckpointCertificate,
	committee *types.Committee,
	quorum tmmath.Fraction) (*VerifiedHeader, error) {

	computed := cert.Header.Digest()
	if computed != cert.Digest {
		return nil, ErrDigestMismatch{Claimed: cert.Digest, Computed: computed}
	}

	if n := cert.Signers.Len(); n != uint64(committee.Size()) {
		return nil, fmt.Errorf("%w: signer bitmap has %d bits, committee has %d members",
			ErrMalformedInput, n, committee.Size())
	}

	var (
		signed  uint64
		pubKeys = make([]bls.PubKey, 0, cert.Signers.Count())
	)
	for _, idx := range cert.Signers.BitIndices() {
		member, _ := committee.Member(idx)
		signed += member.StakeWeight
		pubKeys = append(pubKeys, member.PubKey)
	}

	total := committee.TotalStake()
	if !tmmath.ExceedsFraction(signed, total, quorum) {
		return nil, ErrQuorumNotMet{Signed: signed, Total: total, Threshold: quorum}
	}

	// NOTE: this should always be the last check because it is by far the
	// most expensive one.
	if err := bls.VerifyAggregate(pubKeys, cert.SignBytes(), cert.AggregateSignature); err != nil {
		return nil, ErrInvalidSignature{Reason: err}
	}

	return &VerifiedHeader{
		Header:      cert.Header.Copy(),
		Digest:      computed,
		Committee:   committee.Copy(),
		SignedStake: signed,
	}, nil
}

// ValidateQuorum checks that the quorum threshold is within [2/3, 1). Anything
// lower breaks the Byzantine fault tolerance assumption; a threshold of 1 or
// more can never be exceeded.
func ValidateQuorum(fr tmmath.Fraction) error {
	if fr.Denominator == 0 {
		return fmt.Errorf("quorum threshold must have a positive denominator, given %v", fr)
	}
	if fr.Cmp(DefaultQuorumThreshold) < 0 || fr.Cmp(maxQuorumThreshold) >= 0 {
		return fmt.Errorf("quorum threshold must be within [2/3, 1), given %v", fr)
	}
	return nil
}
