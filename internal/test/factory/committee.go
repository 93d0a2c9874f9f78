package factory

import (
	"fmt"

	"github.com/prysmaticlabs/go-bitfield"

	"github.com/tendermint/checkpoint-light/crypto/bls"
	"github.com/tendermint/checkpoint-light/types"
)

// Committee returns a committee of n members with equal weight, together
// with their keys in member order.
func Committee(epoch uint64, n int, weight uint64) (*types.Committee, []bls.PrivKey) {
	var (
		members = make([]types.CommitteeMember, n)
		keys    = make([]bls.PrivKey, n)
	)
	for i := range members {
		keys[i] = bls.GenPrivKey()
		members[i] = types.CommitteeMember{
			PubKey:      keys[i].PubKey().(bls.PubKey),
			StakeWeight: weight,
		}
	}

	c, err := types.NewCommittee(epoch, members)
	if err != nil {
		panic(fmt.Errorf("could not make committee: %w", err))
	}
	return c, keys
}

// Certify signs header with the keys at the given indices. With no indices,
// every key signs.
func Certify(header types.CheckpointHeader, keys []bls.PrivKey, signers ...int) *types.CheckpointCertificate {
	if len(signers) == 0 {
		signers = make([]int, len(keys))
		for i := range signers {
			signers[i] = i
		}
	}

	var (
		digest = header.Digest()
		msg    = types.CheckpointSignBytes(header.Epoch, digest)
		bits   = bitfield.NewBitlist(uint64(len(keys)))
		sigs   = make([][]byte, 0, len(signers))
	)
	for _, i := range signers {
		sig, err := keys[i].Sign(msg)
		if err != nil {
			panic(err)
		}
		sigs = append(sigs, sig)
		bits.SetBitAt(uint64(i), true)
	}

	agg, err := bls.AggregateSignatures(sigs)
	if err != nil {
		panic(err)
	}
	return &types.CheckpointCertificate{
		Header:             header,
		Digest:             digest,
		Signers:            bits,
		AggregateSignature: agg,
	}
}
