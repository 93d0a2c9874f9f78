package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/prysmaticlabs/go-bitfield"

	"github.com/tendermint/checkpoint-light/crypto"
	"github.com/tendermint/checkpoint-light/crypto/bls"
)

// checkpointIntent prefixes every signed checkpoint message: intent scope
// "checkpoint summary", version 0, application 0.
var checkpointIntent = [3]byte{2, 0, 0}

// CheckpointHeader is the committee-signed summary of a batch of transactions.
// A header carrying NextCommittee is the last checkpoint of its epoch.
type CheckpointHeader struct {
	Epoch          uint64     `json:"epoch"`
	SequenceNumber uint64     `json:"sequence_number"`
	PreviousDigest *Digest    `json:"previous_digest" rlp:"nil"`
	ContentsDigest Digest     `json:"contents_digest"`
	TimestampMs    uint64     `json:"timestamp_ms"`
	NextCommittee  *Committee `json:"next_committee,omitempty" rlp:"nil"`
}

// Digest returns the content address of the header, computed over the
// canonical encoding of all its fields.
func (h CheckpointHeader) Digest() Digest {
	return crypto.DomainChecksum("CheckpointSummary", mustEncode(h))
}

// IsEpochBoundary reports whether the header announces the next committee.
func (h CheckpointHeader) IsEpochBoundary() bool {
	return h.NextCommittee != nil
}

// IsGenesis reports whether the header is the first checkpoint of the chain.
func (h CheckpointHeader) IsGenesis() bool {
	return h.SequenceNumber == 0
}

// ValidateBasic performs stateless checks.
func (h CheckpointHeader) ValidateBasic() error {
	if h.PreviousDigest == nil && !h.IsGenesis() {
		return fmt.Errorf("checkpoint %d has no previous digest", h.SequenceNumber)
	}
	if h.PreviousDigest != nil && h.IsGenesis() {
		return errors.New("genesis checkpoint must not have a previous digest")
	}
	if h.NextCommittee != nil {
		if h.NextCommittee.Epoch != h.Epoch+1 {
			return fmt.Errorf("next committee epoch %d, want %d", h.NextCommittee.Epoch, h.Epoch+1)
		}
		if err := h.NextCommittee.ValidateBasic(); err != nil {
			return fmt.Errorf("next committee: %w", err)
		}
	}
	return nil
}

// Copy returns a deep copy.
func (h CheckpointHeader) Copy() CheckpointHeader {
	if h.PreviousDigest != nil {
		h.PreviousDigest = digestPtr(*h.PreviousDigest)
	}
	h.NextCommittee = h.NextCommittee.Copy()
	return h
}

func (h CheckpointHeader) String() string {
	return fmt.Sprintf("Checkpoint{#%d epoch:%d boundary:%v %v}",
		h.SequenceNumber, h.Epoch, h.IsEpochBoundary(), h.Digest())
}

// CheckpointSignBytes is the message committee members sign for a checkpoint
// with the given digest in the given epoch.
func CheckpointSignBytes(epoch uint64, digest Digest) []byte {
	bz := make([]byte, 0, len(checkpointIntent)+len(digest)+8)
	bz = append(bz, checkpointIntent[:]...)
	bz = append(bz, digest[:]...)
	var e [8]byte
	binary.LittleEndian.PutUint64(e[:], epoch)
	return append(bz, e[:]...)
}

//-----------------------------------------------------------------------------

// CheckpointCertificate is a header together with the claimed digest, the
// committee members who signed it and their aggregate signature. It is a
// claim until verified.
type CheckpointCertificate struct {
	Header             CheckpointHeader `json:"header"`
	Digest             Digest           `json:"digest"`
	Signers            bitfield.Bitlist `json:"signers"`
	AggregateSignature []byte           `json:"aggregate_signature"`
}

// ValidateBasic performs stateless structural checks. Failures wrap
// ErrMalformedInput.
func (c *CheckpointCertificate) ValidateBasic() error {
	if c == nil {
		return fmt.Errorf("%w: nil certificate", ErrMalformedInput)
	}
	if err := c.Header.ValidateBasic(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if c.Signers.Len() == 0 {
		return fmt.Errorf("%w: empty signer bitmap", ErrMalformedInput)
	}
	if len(c.AggregateSignature) != bls.SignatureSize {
		return fmt.Errorf("%w: aggregate signature is %d bytes, want %d",
			ErrMalformedInput, len(c.AggregateSignature), bls.SignatureSize)
	}
	return nil
}

// SignBytes returns the message the signers are claimed to have signed.
func (c *CheckpointCertificate) SignBytes() []byte {
	return CheckpointSignBytes(c.Header.Epoch, c.Digest)
}

// Bytes returns the canonical encoding.
func (c *CheckpointCertificate) Bytes() []byte {
	return mustEncode(c)
}

// CheckpointCertificateFromBytes decodes and structurally validates a
// certificate.
func CheckpointCertificateFromBytes(bz []byte) (*CheckpointCertificate, error) {
	var c CheckpointCertificate
	if err := Decode(bz, &c); err != nil {
		return nil, err
	}
	if err := c.ValidateBasic(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *CheckpointCertificate) String() string {
	if c == nil {
		return "nil-CheckpointCertificate"
	}
	return fmt.Sprintf("Certificate{%v signers:%d/%d}",
		c.Header.String(), c.Signers.Count(), c.Signers.Len())
}
