package factory

import (
	"time"

	"github.com/tendermint/checkpoint-light/crypto/bls"
	"github.com/tendermint/checkpoint-light/types"
)

// Chain is a certified run of checkpoints starting at genesis.
type Chain struct {
	Genesis types.Genesis
	// Data[i] is the checkpoint with sequence number i+1.
	Data []*types.CheckpointData
	// Keys[e] are the private keys of the committee of epoch e.
	Keys [][]bls.PrivKey
}

// MakeChain produces n checkpoints after genesis, each with txsPerCheckpoint
// transactions and signed by the whole committee. Every epochLen-th
// checkpoint closes its epoch and announces a fresh committee of the same
// size; epochLen 0 keeps one epoch forever.
func MakeChain(committeeSize, n, epochLen, txsPerCheckpoint int) *Chain {
	committee, keys := Committee(0, committeeSize, 1)

	emptyContents := &types.CheckpointContents{}
	chain := &Chain{
		Genesis: types.Genesis{
			ChainID:     "test-chain",
			GenesisTime: time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC),
			Committee:   *committee,
			Checkpoint: types.CheckpointHeader{
				ContentsDigest: emptyContents.Digest(),
				TimestampMs:    1_648_771_200_000,
			},
		},
		Keys: [][]bls.PrivKey{keys},
	}

	prev := chain.Genesis.Checkpoint
	for seq := 1; seq <= n; seq++ {
		contents := Contents(uint64(seq), txsPerCheckpoint)
		header := NextHeader(prev, contents)
		if epochLen > 0 && seq%epochLen == 0 {
			next, nextKeys := Committee(header.Epoch+1, committeeSize, 1)
			header.NextCommittee = next
			chain.Keys = append(chain.Keys, nextKeys)
		}

		chain.Data = append(chain.Data, &types.CheckpointData{
			Certificate:  *Certify(header, chain.Keys[header.Epoch]),
			Contents:     *contents,
			Transactions: Transactions(uint64(seq), txsPerCheckpoint),
		})
		prev = header
	}
	return chain
}

// Checkpoint returns the checkpoint with the given sequence number.
func (c *Chain) Checkpoint(seq uint64) *types.CheckpointData {
	return c.Data[seq-1]
}

// NextHeader returns the direct successor of prev committing to contents, in
// the next epoch if prev closes its epoch.
func NextHeader(prev types.CheckpointHeader, contents *types.CheckpointContents) types.CheckpointHeader {
	epoch := prev.Epoch
	if prev.IsEpochBoundary() {
		epoch++
	}
	prevDigest := prev.Digest()
	return types.CheckpointHeader{
		Epoch:          epoch,
		SequenceNumber: prev.SequenceNumber + 1,
		PreviousDigest: &prevDigest,
		ContentsDigest: contents.Digest(),
		TimestampMs:    prev.TimestampMs + 250,
	}
}

// Contents returns the contents entries of Transactions(seq, n).
func Contents(seq uint64, n int) *types.CheckpointContents {
	contents := &types.CheckpointContents{Transactions: make([]types.ExecutionDigests, n)}
	for i, tx := range Transactions(seq, n) {
		contents.Transactions[i] = tx.Effects.ExecutionDigests()
	}
	return contents
}

// Transactions returns n deterministic transactions for the checkpoint seq.
// Every other transaction, starting with the first, emits one event.
func Transactions(seq uint64, n int) []types.CheckpointTransaction {
	if n == 0 {
		return nil
	}
	txs := make([]types.CheckpointTransaction, n)
	for i := range txs {
		txs[i].Effects, txs[i].Events = Effects(seq, i)
	}
	return txs
}

// Effects returns the effects, and events if any, of the i-th transaction of
// checkpoint seq.
func Effects(seq uint64, i int) (types.TransactionEffects, *types.TransactionEvents) {
	effects := types.TransactionEffects{
		TransactionDigest: TxDigest(seq, i),
		Success:           true,
		GasUsed:           1000 + seq*10 + uint64(i),
	}
	if i > 0 {
		effects.Dependencies = []types.Digest{TxDigest(seq, i-1)}
	}
	if i%2 != 0 {
		return effects, nil
	}

	events := &types.TransactionEvents{Data: []types.Event{{
		PackageID: types.Digest{0x02},
		Module:    "coin",
		Sender:    types.Digest{0x5E, byte(i)},
		Type:      "0x2::coin::Transfer",
		Contents:  []byte{byte(seq), byte(i)},
	}}}
	eventsDigest := events.Digest()
	effects.EventsDigest = &eventsDigest
	return effects, events
}

// TxDigest is the digest of the i-th transaction of checkpoint seq.
func TxDigest(seq uint64, i int) types.Digest {
	return types.Digest{0x7A, byte(seq >> 8), byte(seq), byte(i)}
}

// EffectsDigest is the committed effects digest of TxDigest(seq, i).
func EffectsDigest(seq uint64, i int) types.Digest {
	effects, _ := Effects(seq, i)
	return effects.Digest()
}
