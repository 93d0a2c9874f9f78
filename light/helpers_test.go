package light_test

import (
	"testing"

	"github.com/prysmaticlabs/go-bitfield"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/checkpoint-light/crypto"
	"github.com/tendermint/checkpoint-light/crypto/bls"
	"github.com/tendermint/checkpoint-light/types"
)

// privKeys is a helper type for testing.
//
// It lets us simulate signing with many keys. The main use case is to create
// a set, turn it into a committee with ToCommittee and call certify to get a
// properly signed checkpoint certificate.
type privKeys []crypto.PrivKey

// genPrivKeys produces an array of private keys to generate certificates.
func genPrivKeys(n int) privKeys {
	res := make(privKeys, n)
	for i := range res {
		res[i] = bls.GenPrivKey()
	}
	return res
}

// ToCommittee produces a committee from the set of keys, in key order.
// The first key has weight `init` and it increases by `inc` every step
// so we can have all the same weight, or a simple linear distribution.
func (pkz privKeys) ToCommittee(t testing.TB, epoch, init, inc uint64) *types.Committee {
	t.Helper()

	members := make([]types.CommitteeMember, len(pkz))
	for i, k := range pkz {
		members[i] = types.CommitteeMember{
			PubKey:      k.PubKey().(bls.PubKey),
			StakeWeight: init + uint64(i)*inc,
		}
	}
	c, err := types.NewCommittee(epoch, members)
	require.NoError(t, err)
	return c
}

// certify signs header with the keys at the given indices and sets the
// corresponding bits of a signer bitmap sized for the whole key set.
func (pkz privKeys) certify(t testing.TB, header types.CheckpointHeader, signers ...int) *types.CheckpointCertificate {
	t.Helper()

	digest := header.Digest()
	msg := types.CheckpointSignBytes(header.Epoch, digest)

	bits := bitfield.NewBitlist(uint64(len(pkz)))
	sigs := make([][]byte, 0, len(signers))
	for _, i := range signers {
		sig, err := pkz[i].Sign(msg)
		require.NoError(t, err)
		sigs = append(sigs, sig)
		bits.SetBitAt(uint64(i), true)
	}

	agg, err := bls.AggregateSignatures(sigs)
	require.NoError(t, err)

	return &types.CheckpointCertificate{
		Header:             header,
		Digest:             digest,
		Signers:            bits,
		AggregateSignature: agg,
	}
}

// all returns the indices of every key.
func (pkz privKeys) all() []int {
	idx := make([]int, len(pkz))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func genContents(n int, seed byte) *types.CheckpointContents {
	contents := &types.CheckpointContents{Transactions: make([]types.ExecutionDigests, n)}
	for i := range contents.Transactions {
		contents.Transactions[i] = types.ExecutionDigests{
			Transaction: types.Digest{seed, byte(i), 0x01},
			Effects:     types.Digest{seed, byte(i), 0x02},
		}
	}
	return contents
}

func genesisState(committee *types.Committee) types.TrustedState {
	return types.TrustedState{
		Checkpoint: types.CheckpointHeader{
			Epoch:          committee.Epoch,
			ContentsDigest: (&types.CheckpointContents{}).Digest(),
			TimestampMs:    1_650_000_000_000,
		},
		Committee: *committee.Copy(),
	}
}

// nextHeader returns the direct successor of prev, in the next epoch if prev
// is an epoch boundary.
func nextHeader(prev types.CheckpointHeader, contents *types.CheckpointContents) types.CheckpointHeader {
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
		TimestampMs:    prev.TimestampMs + 1000,
	}
}
