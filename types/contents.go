package types

import (
	"fmt"

	"github.com/tendermint/checkpoint-light/crypto"
)

// ExecutionDigests pairs a transaction with the digest of its effects.
type ExecutionDigests struct {
	Transaction Digest `json:"transaction"`
	Effects     Digest `json:"effects"`
}

// CheckpointContents is the complete ordered manifest of the transactions a
// checkpoint commits to.
type CheckpointContents struct {
	Transactions []ExecutionDigests `json:"transactions"`
}

// Digest returns the content address committed to by
// CheckpointHeader.ContentsDigest.
func (c *CheckpointContents) Digest() Digest {
	return crypto.DomainChecksum("CheckpointContents", mustEncode(c))
}

// Size returns the number of transactions.
func (c *CheckpointContents) Size() int {
	return len(c.Transactions)
}

//-----------------------------------------------------------------------------

// CheckpointData is a certified checkpoint together with its full contents,
// as published to checkpoint archives. Archives may also carry the effects
// and events of every transaction, in contents order; the verifier then
// checks them against the digests the contents commit to.
type CheckpointData struct {
	Certificate  CheckpointCertificate   `json:"certificate"`
	Contents     CheckpointContents      `json:"contents"`
	Transactions []CheckpointTransaction `json:"transactions,omitempty" rlp:"optional"`
}

// ValidateBasic performs stateless structural checks. Whether the contents
// match the header is left to the verifier. Failures wrap ErrMalformedInput.
func (d *CheckpointData) ValidateBasic() error {
	if d == nil {
		return fmt.Errorf("%w: nil checkpoint data", ErrMalformedInput)
	}
	if err := d.Certificate.ValidateBasic(); err != nil {
		return err
	}
	return validateTransactions(d.Transactions, &d.Contents)
}

// Transaction returns the effects and events carried for the i-th contents
// entry, or false if the data carries none.
func (d *CheckpointData) Transaction(i int) (CheckpointTransaction, bool) {
	if i < 0 || i >= len(d.Transactions) {
		return CheckpointTransaction{}, false
	}
	return d.Transactions[i], true
}

// Blob returns the blob-framed canonical encoding, snappy-compressed if
// compress is set.
func (d *CheckpointData) Blob(compress bool) ([]byte, error) {
	return EncodeBlob(d, compress)
}

// CheckpointDataFromBlob decodes a blob-framed CheckpointData.
func CheckpointDataFromBlob(blob []byte) (*CheckpointData, error) {
	var d CheckpointData
	if err := DecodeBlob(blob, &d); err != nil {
		return nil, err
	}
	if err := d.ValidateBasic(); err != nil {
		return nil, err
	}
	return &d, nil
}
