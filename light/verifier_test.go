package light_test

import (
	"testing"

	"github.com/prysmaticlabs/go-bitfield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tmmath "github.com/tendermint/checkpoint-light/libs/math"
	"github.com/tendermint/checkpoint-light/light"
	"github.com/tendermint/checkpoint-light/types"
)

func TestVerifyCheckpoint(t *testing.T) {
	var (
		keys      = genPrivKeys(4)
		committee = keys.ToCommittee(t, 0, 1, 0)
		trusted   = genesisState(committee)
		contents  = genContents(3, 1)
		header    = nextHeader(trusted.Checkpoint, contents)
		quorum    = light.DefaultQuorumThreshold
	)

	otherKeys := genPrivKeys(4)

	testCases := []struct {
		name   string
		cert   func() *types.CheckpointCertificate
		expErr interface{}
	}{
		{
			"3 of 4 signed: OK",
			func() *types.CheckpointCertificate { return keys.certify(t, header, 0, 1, 2) },
			nil,
		},
		{
			"all signed: OK",
			func() *types.CheckpointCertificate { return keys.certify(t, header, keys.all()...) },
			nil,
		},
		{
			"2 of 4 signed: quorum not met",
			func() *types.CheckpointCertificate { return keys.certify(t, header, 0, 1) },
			light.ErrQuorumNotMet{},
		},
		{
			"sequence number skips ahead: sequence gap",
			func() *types.CheckpointCertificate {
				h := header.Copy()
				h.SequenceNumber += 1
				return keys.certify(t, h, 0, 1, 2)
			},
			light.ErrSequenceGap{},
		},
		{
			"sequence number of the trusted checkpoint: sequence gap",
			func() *types.CheckpointCertificate {
				h := header.Copy()
				h.SequenceNumber = trusted.Checkpoint.SequenceNumber
				return keys.certify(t, h, 0, 1, 2)
			},
			light.ErrSequenceGap{},
		},
		{
			"replayed genesis header: sequence gap",
			func() *types.CheckpointCertificate {
				return keys.certify(t, trusted.Checkpoint, 0, 1, 2)
			},
			light.ErrSequenceGap{},
		},
		{
			"no previous digest: malformed",
			func() *types.CheckpointCertificate {
				h := header.Copy()
				h.PreviousDigest = nil
				return keys.certify(t, h, 0, 1, 2)
			},
			light.ErrMalformedInput,
		},
		{
			"previous digest is not the trusted one: chain discontinuity",
			func() *types.CheckpointCertificate {
				h := header.Copy()
				h.PreviousDigest = &types.Digest{0xde, 0xad}
				return keys.certify(t, h, 0, 1, 2)
			},
			light.ErrChainDiscontinuity{},
		},
		{
			"epoch advances without a boundary: committee mismatch",
			func() *types.CheckpointCertificate {
				h := header.Copy()
				h.Epoch++
				return keys.certify(t, h, 0, 1, 2)
			},
			light.ErrCommitteeMismatch{},
		},
		{
			"claimed digest differs from header: digest mismatch",
			func() *types.CheckpointCertificate {
				cert := keys.certify(t, header, 0, 1, 2)
				cert.Header.TimestampMs++
				return cert
			},
			light.ErrDigestMismatch{},
		},
		{
			"signed by strangers: invalid signature",
			func() *types.CheckpointCertificate { return otherKeys.certify(t, header, 0, 1, 2) },
			light.ErrInvalidSignature{},
		},
		{
			"bitmap names signers who did not sign: invalid signature",
			func() *types.CheckpointCertificate {
				cert := keys.certify(t, header, 0, 1, 2)
				cert.Signers.SetBitAt(2, false)
				cert.Signers.SetBitAt(3, true)
				return cert
			},
			light.ErrInvalidSignature{},
		},
		{
			"bitmap longer than committee: malformed",
			func() *types.CheckpointCertificate {
				cert := keys.certify(t, header, 0, 1, 2)
				bits := bitfield.NewBitlist(5)
				for _, i := range []uint64{0, 1, 2} {
					bits.SetBitAt(i, true)
				}
				cert.Signers = bits
				return cert
			},
			light.ErrMalformedInput,
		},
		{
			"truncated signature: malformed",
			func() *types.CheckpointCertificate {
				cert := keys.certify(t, header, 0, 1, 2)
				cert.AggregateSignature = cert.AggregateSignature[:20]
				return cert
			},
			light.ErrMalformedInput,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			before := trusted.Bytes()

			verified, err := light.VerifyCheckpoint(tc.cert(), trusted, quorum)

			assert.Equal(t, before, trusted.Bytes(), "verification must not modify the trusted state")
			switch e := tc.expErr.(type) {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, header.Digest(), verified.Digest)
				assert.True(t, committee.Equal(verified.Committee))
			case error:
				if e == light.ErrMalformedInput {
					assert.ErrorIs(t, err, light.ErrMalformedInput)
				} else {
					assert.IsType(t, tc.expErr, err)
				}
				assert.True(t, light.IsVerificationError(err))
				assert.Nil(t, verified)
			}
		})
	}
}

func TestVerifyCheckpointQuorumBoundary(t *testing.T) {
	testCases := []struct {
		name    string
		weights func(keys privKeys) *types.Committee
		n       int
		signers []int
		quorum  tmmath.Fraction
		ok      bool
	}{
		// 4 of 6 equal weights is exactly two thirds.
		{"exactly 2/3 of equal stake", func(k privKeys) *types.Committee { return k.ToCommittee(t, 0, 1, 0) },
			6, []int{0, 1, 2, 3}, light.DefaultQuorumThreshold, false},
		{"one signer above 2/3 of equal stake", func(k privKeys) *types.Committee { return k.ToCommittee(t, 0, 1, 0) },
			6, []int{0, 1, 2, 3, 4}, light.DefaultQuorumThreshold, true},
		// weights 2 and 1: the heavy member alone holds exactly 2/3.
		{"exactly 2/3 by weight", func(k privKeys) *types.Committee {
			c := k.ToCommittee(t, 0, 1, 0)
			c.Members[0].StakeWeight = 2
			return c
		}, 2, []int{0}, light.DefaultQuorumThreshold, false},
		// weights 2001 and 1000: 2001/3001 is just above 2/3.
		{"smallest excess over 2/3 by weight", func(k privKeys) *types.Committee {
			c := k.ToCommittee(t, 0, 1, 0)
			c.Members[0].StakeWeight = 2001
			c.Members[1].StakeWeight = 1000
			return c
		}, 2, []int{0}, light.DefaultQuorumThreshold, true},
		// 3 of 4 is exactly 3/4.
		{"exactly a stricter threshold", func(k privKeys) *types.Committee { return k.ToCommittee(t, 0, 1, 0) },
			4, []int{0, 1, 2}, tmmath.Fraction{Numerator: 3, Denominator: 4}, false},
		{"above a stricter threshold", func(k privKeys) *types.Committee { return k.ToCommittee(t, 0, 1, 0) },
			4, []int{0, 1, 2, 3}, tmmath.Fraction{Numerator: 3, Denominator: 4}, true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			keys := genPrivKeys(tc.n)
			committee := tc.weights(keys)
			trusted := genesisState(committee)
			header := nextHeader(trusted.Checkpoint, genContents(1, 0))

			_, err := light.VerifyCheckpoint(keys.certify(t, header, tc.signers...), trusted, tc.quorum)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var quorumErr light.ErrQuorumNotMet
			require.ErrorAs(t, err, &quorumErr)
			assert.Equal(t, committee.TotalStake(), quorumErr.Total)
		})
	}
}

func TestVerifyCheckpointAfterEpochBoundary(t *testing.T) {
	var (
		oldKeys  = genPrivKeys(4)
		newKeys  = genPrivKeys(5)
		c0       = oldKeys.ToCommittee(t, 0, 1, 0)
		c1       = newKeys.ToCommittee(t, 1, 10, 1)
		genesis  = genesisState(c0)
		contents = genContents(2, 7)
	)

	boundary := nextHeader(genesis.Checkpoint, contents)
	boundary.NextCommittee = c1
	verified, err := light.VerifyCheckpoint(oldKeys.certify(t, boundary, 0, 1, 2), genesis, light.DefaultQuorumThreshold)
	require.NoError(t, err)

	next := nextHeader(boundary, contents)
	require.EqualValues(t, 1, next.Epoch)

	// Trusted state as the tracker keeps it: the new committee is active.
	adopted := types.TrustedState{Checkpoint: verified.Header, Committee: *c1.Copy()}
	// Trusted state still carrying the outgoing committee.
	outgoing := types.TrustedState{Checkpoint: verified.Header, Committee: *c0.Copy()}

	for name, trusted := range map[string]types.TrustedState{"adopted": adopted, "outgoing": outgoing} {
		_, err = light.VerifyCheckpoint(newKeys.certify(t, next, 0, 1, 2, 3), trusted, light.DefaultQuorumThreshold)
		assert.NoError(t, err, name)

		// The outgoing committee can no longer sign.
		_, err = light.VerifyCheckpoint(oldKeys.certify(t, next, 0, 1, 2, 3), trusted, light.DefaultQuorumThreshold)
		assert.Error(t, err, name)

		// Nothing may stay in the old epoch after its boundary.
		stale := next.Copy()
		stale.Epoch = 0
		_, err = light.VerifyCheckpoint(oldKeys.certify(t, stale, 0, 1, 2, 3), trusted, light.DefaultQuorumThreshold)
		assert.IsType(t, light.ErrCommitteeMismatch{}, err, name)
	}
}

func TestVerifyCertificate(t *testing.T) {
	keys := genPrivKeys(4)
	c3 := keys.ToCommittee(t, 3, 1, 0)

	prev := types.Digest{1}
	header := types.CheckpointHeader{Epoch: 3, SequenceNumber: 100, PreviousDigest: &prev}

	_, err := light.VerifyCertificate(keys.certify(t, header, 0, 1, 2), c3, light.DefaultQuorumThreshold)
	require.NoError(t, err)

	header.Epoch = 4
	_, err = light.VerifyCertificate(keys.certify(t, header, 0, 1, 2), c3, light.DefaultQuorumThreshold)
	assert.IsType(t, light.ErrCommitteeMismatch{}, err)
}

func TestValidateQuorum(t *testing.T) {
	testCases := []struct {
		fr    tmmath.Fraction
		valid bool
	}{
		{tmmath.Fraction{Numerator: 2, Denominator: 3}, true},
		{tmmath.Fraction{Numerator: 4, Denominator: 6}, true},
		{tmmath.Fraction{Numerator: 3, Denominator: 4}, true},
		{tmmath.Fraction{Numerator: 99, Denominator: 100}, true},
		{tmmath.Fraction{Numerator: 1, Denominator: 2}, false},
		{tmmath.Fraction{Numerator: 1, Denominator: 1}, false},
		{tmmath.Fraction{Numerator: 4, Denominator: 3}, false},
		{tmmath.Fraction{Numerator: 2, Denominator: 0}, false},
	}

	for _, tc := range testCases {
		err := light.ValidateQuorum(tc.fr)
		if tc.valid {
			assert.NoError(t, err, tc.fr.String())
		} else {
			assert.Error(t, err, tc.fr.String())
		}
	}
}
