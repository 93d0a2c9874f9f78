package light_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"
	"pgregory.net/rapid"

	"github.com/tendermint/checkpoint-light/libs/log"
	tmmath "github.com/tendermint/checkpoint-light/libs/math"
	"github.com/tendermint/checkpoint-light/light"
	"github.com/tendermint/checkpoint-light/light/store"
	dbs "github.com/tendermint/checkpoint-light/light/store/db"
	"github.com/tendermint/checkpoint-light/types"
)

func newTestTracker(t *testing.T, genesis types.TrustedState, opts ...light.Option) (*light.Tracker, store.Store) {
	t.Helper()

	trustedStore := dbs.New(dbm.NewMemDB(), "")
	opts = append([]light.Option{light.Logger(log.TestingLogger())}, opts...)
	tracker, err := light.NewTracker(genesis, trustedStore, opts...)
	require.NoError(t, err)
	return tracker, trustedStore
}

// Genesis committee of 4 validators with weight 1 each: more than 2 must
// sign.
func TestTrackerFourValidatorScenario(t *testing.T) {
	keys := genPrivKeys(4)
	genesis := genesisState(keys.ToCommittee(t, 0, 1, 0))
	tracker, _ := newTestTracker(t, genesis)

	cp1 := nextHeader(genesis.Checkpoint, genContents(2, 1))
	cp2 := nextHeader(cp1, genContents(2, 2))

	// #2 before #1
	_, err := tracker.Apply(keys.certify(t, cp2, 0, 1, 2))
	assert.IsType(t, light.ErrSequenceGap{}, err)

	// #1 signed by {0,1}
	_, err = tracker.Apply(keys.certify(t, cp1, 0, 1))
	var quorumErr light.ErrQuorumNotMet
	require.ErrorAs(t, err, &quorumErr)
	assert.EqualValues(t, 2, quorumErr.Signed)
	assert.EqualValues(t, 4, quorumErr.Total)

	assert.Equal(t, genesis.Bytes(), tracker.TrustedState().Bytes())

	// #1 signed by {0,1,2}
	state, err := tracker.Apply(keys.certify(t, cp1, 0, 1, 2))
	require.NoError(t, err)
	assert.EqualValues(t, 1, state.Checkpoint.SequenceNumber)
	assert.Equal(t, cp1.Digest(), state.Checkpoint.Digest())

	// now #2 is next in line
	state, err = tracker.Apply(keys.certify(t, cp2, 1, 2, 3))
	require.NoError(t, err)
	assert.EqualValues(t, 2, state.Checkpoint.SequenceNumber)
}

func TestTrackerReplayIsRejected(t *testing.T) {
	keys := genPrivKeys(4)
	genesis := genesisState(keys.ToCommittee(t, 0, 1, 0))
	tracker, _ := newTestTracker(t, genesis)

	cert := keys.certify(t, nextHeader(genesis.Checkpoint, genContents(1, 1)), 0, 1, 2)
	_, err := tracker.Apply(cert)
	require.NoError(t, err)
	applied := tracker.TrustedState().Bytes()

	_, err = tracker.Apply(cert)
	var gapErr light.ErrSequenceGap
	require.ErrorAs(t, err, &gapErr)
	assert.EqualValues(t, 2, gapErr.Expected)
	assert.EqualValues(t, 1, gapErr.Got)
	assert.Equal(t, applied, tracker.TrustedState().Bytes())
}

func TestTrackerCommitteeRotation(t *testing.T) {
	var (
		keys0 = genPrivKeys(4)
		keys1 = genPrivKeys(3)
		c0    = keys0.ToCommittee(t, 0, 1, 0)
		c1    = keys1.ToCommittee(t, 1, 5, 0)
	)
	genesis := genesisState(c0)
	tracker, trustedStore := newTestTracker(t, genesis)

	cp1 := nextHeader(genesis.Checkpoint, genContents(1, 1))
	_, err := tracker.Apply(keys0.certify(t, cp1, 0, 1, 2))
	require.NoError(t, err)

	boundary := nextHeader(cp1, genContents(1, 2))
	boundary.NextCommittee = c1
	state, err := tracker.Apply(keys0.certify(t, boundary, 1, 2, 3))
	require.NoError(t, err)
	assert.True(t, c1.Equal(&state.Committee), "announced committee becomes active")
	assert.EqualValues(t, 0, state.Checkpoint.Epoch)

	stored, err := trustedStore.Committee(1)
	require.NoError(t, err)
	assert.True(t, c1.Equal(stored))

	cp3 := nextHeader(boundary, genContents(1, 3))
	require.EqualValues(t, 1, cp3.Epoch)

	// The previous committee no longer counts.
	_, err = tracker.Apply(keys0[:3].certify(t, cp3, 0, 1, 2))
	assert.IsType(t, light.ErrInvalidSignature{}, err)

	state, err = tracker.Apply(keys1.certify(t, cp3, 0, 1, 2))
	require.NoError(t, err)
	assert.EqualValues(t, 1, state.Checkpoint.Epoch)
	assert.EqualValues(t, 1, state.Committee.Epoch)

	// Historical lookups still work.
	c, err := tracker.Committee(0)
	require.NoError(t, err)
	assert.True(t, c0.Equal(c))
	c, err = tracker.Committee(1)
	require.NoError(t, err)
	assert.True(t, c1.Equal(c))
	_, err = tracker.Committee(2)
	assert.ErrorIs(t, err, store.ErrCommitteeNotFound)
}

func TestTrackerFailedApplyLeavesStateUntouched(t *testing.T) {
	keys := genPrivKeys(4)
	genesis := genesisState(keys.ToCommittee(t, 0, 1, 0))
	tracker, trustedStore := newTestTracker(t, genesis)

	good := nextHeader(genesis.Checkpoint, genContents(1, 1))
	bad := good.Copy()
	bad.Epoch = 9

	candidates := []*types.CheckpointCertificate{
		keys.certify(t, good, 0),
		keys.certify(t, bad, 0, 1, 2),
		keys.certify(t, nextHeader(good, genContents(1, 2)), 0, 1, 2),
		genPrivKeys(4).certify(t, good, 0, 1, 2, 3),
	}

	before := tracker.TrustedState()
	for i, cert := range candidates {
		_, err := tracker.Apply(cert)
		require.Error(t, err, i)
		assert.True(t, light.IsVerificationError(err), i)

		after := tracker.TrustedState()
		if diff := cmp.Diff(before.Bytes(), after.Bytes()); diff != "" {
			t.Fatalf("candidate %d changed the trusted state (-want +got):\n%s", i, diff)
		}
		saved, err := trustedStore.TrustedState()
		require.NoError(t, err)
		assert.Equal(t, before.Bytes(), saved.Bytes(), i)
	}
}

type failingStore struct {
	store.Store
	fail bool
}

func (s *failingStore) SaveTrustedState(state types.TrustedState) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Store.SaveTrustedState(state)
}

func TestTrackerStoreFailureLeavesStateUntouched(t *testing.T) {
	keys := genPrivKeys(4)
	genesis := genesisState(keys.ToCommittee(t, 0, 1, 0))
	trustedStore := &failingStore{Store: dbs.New(dbm.NewMemDB(), "")}

	tracker, err := light.NewTracker(genesis, trustedStore)
	require.NoError(t, err)

	cert := keys.certify(t, nextHeader(genesis.Checkpoint, genContents(1, 1)), 0, 1, 2)

	trustedStore.fail = true
	_, err = tracker.Apply(cert)
	require.Error(t, err)
	assert.False(t, light.IsVerificationError(err))
	assert.Equal(t, genesis.Bytes(), tracker.TrustedState().Bytes())

	trustedStore.fail = false
	_, err = tracker.Apply(cert)
	require.NoError(t, err)
}

func TestTrackerRestoreFromStore(t *testing.T) {
	keys := genPrivKeys(4)
	genesis := genesisState(keys.ToCommittee(t, 0, 1, 0))
	tracker, trustedStore := newTestTracker(t, genesis)

	header := genesis.Checkpoint
	for i := 0; i < 3; i++ {
		header = nextHeader(header, genContents(1, byte(i)))
		_, err := tracker.Apply(keys.certify(t, header, 0, 1, 2))
		require.NoError(t, err)
	}

	_, err := light.NewTracker(genesis, trustedStore)
	assert.Error(t, err, "store is already initialized")

	restored, err := light.NewTrackerFromStore(trustedStore)
	require.NoError(t, err)
	assert.Equal(t, tracker.TrustedState().Bytes(), restored.TrustedState().Bytes())

	// and it picks up where the first one left off
	next := nextHeader(header, genContents(1, 9))
	_, err = restored.Apply(keys.certify(t, next, 0, 1, 2))
	require.NoError(t, err)

	_, err = light.NewTrackerFromStore(dbs.New(dbm.NewMemDB(), ""))
	assert.ErrorIs(t, err, store.ErrNoTrustedState)
}

func TestTrackerOptions(t *testing.T) {
	keys := genPrivKeys(4)
	genesis := genesisState(keys.ToCommittee(t, 0, 1, 0))

	_, err := light.NewTracker(genesis, dbs.New(dbm.NewMemDB(), ""),
		light.QuorumThreshold(tmmath.Fraction{Numerator: 1, Denominator: 3}))
	assert.Error(t, err)

	tracker, _ := newTestTracker(t, genesis,
		light.QuorumThreshold(tmmath.Fraction{Numerator: 3, Denominator: 4}),
		light.WithMetrics(light.NopMetrics()))

	cp1 := nextHeader(genesis.Checkpoint, genContents(1, 1))
	_, err = tracker.Apply(keys.certify(t, cp1, 0, 1, 2))
	assert.IsType(t, light.ErrQuorumNotMet{}, err)
	_, err = tracker.Apply(keys.certify(t, cp1, keys.all()...))
	assert.NoError(t, err)

	invalid := genesis.Copy()
	invalid.Committee.Epoch = 5
	_, err = light.NewTracker(invalid, dbs.New(dbm.NewMemDB(), ""))
	assert.Error(t, err)
}

func TestTrackerPruningHorizon(t *testing.T) {
	keys := genPrivKeys(4)
	genesis := genesisState(keys.ToCommittee(t, 0, 1, 0))
	tracker, trustedStore := newTestTracker(t, genesis, light.PruningHorizon(2))

	// Every checkpoint is an epoch boundary; the committee stays the same
	// keys under a new epoch number.
	header := genesis.Checkpoint
	for epoch := uint64(1); epoch <= 4; epoch++ {
		header = nextHeader(header, genContents(1, byte(epoch)))
		header.NextCommittee = keys.ToCommittee(t, epoch, 1, 0)
		_, err := tracker.Apply(keys.certify(t, header, 0, 1, 2))
		require.NoError(t, err)
	}

	assert.EqualValues(t, 2, trustedStore.Size())
	for epoch := uint64(0); epoch <= 2; epoch++ {
		_, err := tracker.Committee(epoch)
		assert.ErrorIs(t, err, store.ErrCommitteeNotFound, "epoch %d", epoch)
	}
	for epoch := uint64(3); epoch <= 4; epoch++ {
		_, err := tracker.Committee(epoch)
		assert.NoError(t, err, "epoch %d", epoch)
	}
}

func TestTrackerConcurrentReaders(t *testing.T) {
	keys := genPrivKeys(4)
	genesis := genesisState(keys.ToCommittee(t, 0, 1, 0))
	tracker, _ := newTestTracker(t, genesis)

	const n = 10
	certs := make([]*types.CheckpointCertificate, n)
	header := genesis.Checkpoint
	for i := range certs {
		header = nextHeader(header, genContents(1, byte(i)))
		certs[i] = keys.certify(t, header, 0, 1, 2)
	}

	var (
		wg   sync.WaitGroup
		done = make(chan struct{})
	)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-done:
					return
				default:
				}
				state := tracker.TrustedState()
				if err := state.ValidateBasic(); err != nil {
					t.Errorf("observed an inconsistent state: %v", err)
					return
				}
				if state.Checkpoint.SequenceNumber < last {
					t.Errorf("sequence went backwards: %d after %d", state.Checkpoint.SequenceNumber, last)
					return
				}
				last = state.Checkpoint.SequenceNumber
			}
		}()
	}

	for _, cert := range certs {
		_, err := tracker.Apply(cert)
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()

	assert.EqualValues(t, n, tracker.TrustedState().Checkpoint.SequenceNumber)
}

// Whatever mix of valid, replayed, skipped and under-signed certificates is
// thrown at it, the tracker only ever moves forward by exactly one.
func TestTrackerSequenceIsMonotonic(t *testing.T) {
	keys := genPrivKeys(4)
	committee := keys.ToCommittee(t, 0, 1, 0)

	const chainLen = 8
	genesis := genesisState(committee)
	headers := make([]types.CheckpointHeader, chainLen+1)
	headers[0] = genesis.Checkpoint
	for i := 1; i <= chainLen; i++ {
		headers[i] = nextHeader(headers[i-1], genContents(1, byte(i)))
	}
	signerSets := [][]int{{0}, {0, 1}, {0, 1, 2}, {1, 2, 3}, {0, 1, 2, 3}}
	certs := make(map[[2]int]*types.CheckpointCertificate)
	for i := 1; i <= chainLen; i++ {
		for j, signers := range signerSets {
			certs[[2]int{i, j}] = keys.certify(t, headers[i], signers...)
		}
	}

	rapid.Check(t, func(t *rapid.T) {
		tracker, err := light.NewTracker(genesis, dbs.New(dbm.NewMemDB(), ""))
		if err != nil {
			t.Fatal(err)
		}

		steps := rapid.IntRange(1, 20).Draw(t, "steps").(int)
		for k := 0; k < steps; k++ {
			seq := rapid.IntRange(1, chainLen).Draw(t, "seq").(int)
			set := rapid.IntRange(0, len(signerSets)-1).Draw(t, "signers").(int)

			before := tracker.TrustedState().Checkpoint.SequenceNumber
			_, err := tracker.Apply(certs[[2]int{seq, set}])
			after := tracker.TrustedState().Checkpoint.SequenceNumber

			accepted := uint64(seq) == before+1 && len(signerSets[set]) > 2
			switch {
			case accepted && err != nil:
				t.Fatalf("checkpoint %d with signers %v rejected: %v", seq, signerSets[set], err)
			case !accepted && err == nil:
				t.Fatalf("checkpoint %d with signers %v accepted at %d", seq, signerSets[set], before)
			case err == nil && after != before+1:
				t.Fatalf("sequence moved from %d to %d", before, after)
			case err != nil && after != before:
				t.Fatalf("rejected checkpoint moved the sequence from %d to %d", before, after)
			}
		}
	})
}
