package types

import (
	"fmt"

	"github.com/tendermint/checkpoint-light/crypto"
)

// TransactionEffects is the outcome of executing a transaction, as far as the
// light client needs it. Its digest is the effects digest a checkpoint's
// contents commit to.
type TransactionEffects struct {
	TransactionDigest Digest   `json:"transaction_digest"`
	Success           bool     `json:"success"`
	ExecutedEpoch     uint64   `json:"executed_epoch"`
	GasUsed           uint64   `json:"gas_used"`
	Dependencies      []Digest `json:"dependencies"`
	// Digest of the events emitted, nil if there were none.
	EventsDigest *Digest `json:"events_digest,omitempty" rlp:"nil"`
}

// Digest returns the content address committed to by
// ExecutionDigests.Effects.
func (e *TransactionEffects) Digest() Digest {
	return crypto.DomainChecksum("TransactionEffects", mustEncode(e))
}

// ExecutionDigests returns the contents entry that commits to e.
func (e *TransactionEffects) ExecutionDigests() ExecutionDigests {
	return ExecutionDigests{Transaction: e.TransactionDigest, Effects: e.Digest()}
}

// Event is a single event emitted by a transaction.
type Event struct {
	PackageID Digest `json:"package_id"`
	Module    string `json:"module"`
	Sender    Digest `json:"sender"`
	Type      string `json:"type"`
	Contents  []byte `json:"contents"`
}

// TransactionEvents are the events emitted by one transaction, in order.
type TransactionEvents struct {
	Data []Event `json:"data"`
}

// Digest returns the content address committed to by
// TransactionEffects.EventsDigest.
func (e *TransactionEvents) Digest() Digest {
	return crypto.DomainChecksum("TransactionEvents", mustEncode(e))
}

// CheckpointTransaction carries the effects, and the events if any, of one
// transaction of a checkpoint.
type CheckpointTransaction struct {
	Effects TransactionEffects `json:"effects"`
	Events  *TransactionEvents `json:"events,omitempty" rlp:"nil"`
}

// validateTransactions checks that txs, if given at all, line up with the
// contents entries.
func validateTransactions(txs []CheckpointTransaction, contents *CheckpointContents) error {
	if len(txs) == 0 {
		return nil
	}
	if len(txs) != contents.Size() {
		return fmt.Errorf("%w: %d transactions for %d contents entries",
			ErrMalformedInput, len(txs), contents.Size())
	}
	for i, tx := range txs {
		if want := contents.Transactions[i].Transaction; tx.Effects.TransactionDigest != want {
			return fmt.Errorf("%w: transaction %d is %v, contents list %v",
				ErrMalformedInput, i, tx.Effects.TransactionDigest, want)
		}
	}
	return nil
}
