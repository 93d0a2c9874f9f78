package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tendermint/checkpoint-light/crypto/bls"
)

func testCommittee(t *testing.T, epoch uint64, weights ...uint64) *Committee {
	t.Helper()

	members := make([]CommitteeMember, len(weights))
	for i, w := range weights {
		key := bls.GenPrivKeyFromSecret([]byte(fmt.Sprintf("types-%d-%d", epoch, i)))
		members[i] = CommitteeMember{PubKey: key.PubKey().(bls.PubKey), StakeWeight: w}
	}
	c, err := NewCommittee(epoch, members)
	require.NoError(t, err)
	return c
}

func testHeader(seq uint64, prev *Digest) CheckpointHeader {
	return CheckpointHeader{
		Epoch:          0,
		SequenceNumber: seq,
		PreviousDigest: prev,
		ContentsDigest: (&CheckpointContents{}).Digest(),
		TimestampMs:    1_650_000_000_000 + seq,
	}
}
