package db

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/checkpoint-light/crypto/bls"
	"github.com/tendermint/checkpoint-light/light/store"
	"github.com/tendermint/checkpoint-light/types"
)

func TestSaveCommittee(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "TestSaveCommittee")

	// Empty store
	c, err := dbStore.Committee(0)
	require.ErrorIs(t, err, store.ErrCommitteeNotFound)
	assert.Nil(t, c)
	_, err = dbStore.LatestCommitteeEpoch()
	require.ErrorIs(t, err, store.ErrCommitteeNotFound)

	c0 := randCommittee(t, 0, 4)
	require.NoError(t, dbStore.SaveCommittee(c0))
	assert.EqualValues(t, 1, dbStore.Size())

	c, err = dbStore.Committee(0)
	require.NoError(t, err)
	assert.True(t, c0.Equal(c))

	// Identical re-insertion is a no-op.
	require.NoError(t, dbStore.SaveCommittee(c0.Copy()))
	assert.EqualValues(t, 1, dbStore.Size())

	// A different committee for the same epoch is refused.
	err = dbStore.SaveCommittee(randCommittee(t, 0, 3))
	require.ErrorIs(t, err, store.ErrDuplicateEpoch)
	c, err = dbStore.Committee(0)
	require.NoError(t, err)
	assert.True(t, c0.Equal(c))

	require.NoError(t, dbStore.SaveCommittee(randCommittee(t, 7, 2)))
	epoch, err := dbStore.LatestCommitteeEpoch()
	require.NoError(t, err)
	assert.EqualValues(t, 7, epoch)
	assert.EqualValues(t, 2, dbStore.Size())
}

func TestCommitteeReturnsCopy(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "TestCommitteeReturnsCopy")
	c0 := randCommittee(t, 0, 2)
	require.NoError(t, dbStore.SaveCommittee(c0))

	c, err := dbStore.Committee(0)
	require.NoError(t, err)
	c.Members[0].StakeWeight = 1000

	c, err = dbStore.Committee(0)
	require.NoError(t, err)
	assert.True(t, c0.Equal(c))
}

func TestSizeSurvivesReopen(t *testing.T) {
	db := dbm.NewMemDB()
	dbStore := New(db, "TestSizeSurvivesReopen")
	for epoch := uint64(0); epoch < 3; epoch++ {
		require.NoError(t, dbStore.SaveCommittee(randCommittee(t, epoch, 1)))
	}

	reopened := New(db, "TestSizeSurvivesReopen")
	assert.EqualValues(t, 3, reopened.Size())

	other := New(db, "other")
	assert.EqualValues(t, 0, other.Size())
	_, err := other.Committee(0)
	assert.ErrorIs(t, err, store.ErrCommitteeNotFound)
}

func TestSaveTrustedState(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "TestSaveTrustedState")

	_, err := dbStore.TrustedState()
	require.ErrorIs(t, err, store.ErrNoTrustedState)

	genesis := genesisState(t)
	require.NoError(t, dbStore.SaveTrustedState(genesis))
	assert.EqualValues(t, 1, dbStore.Size())

	state, err := dbStore.TrustedState()
	require.NoError(t, err)
	assert.Equal(t, genesis.Bytes(), state.Bytes())

	// Advancing to an epoch boundary stores the announced committee with the
	// cursor.
	next := randCommittee(t, 1, 3)
	prev := genesis.Checkpoint.Digest()
	boundary := types.TrustedState{
		Checkpoint: types.CheckpointHeader{
			Epoch:          0,
			SequenceNumber: 1,
			PreviousDigest: &prev,
			NextCommittee:  next,
		},
		Committee: *next.Copy(),
	}
	require.NoError(t, dbStore.SaveTrustedState(boundary))
	assert.EqualValues(t, 2, dbStore.Size())

	c, err := dbStore.Committee(1)
	require.NoError(t, err)
	assert.True(t, next.Equal(c))
}

func TestSaveTrustedStateIsAtomic(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "TestSaveTrustedStateIsAtomic")
	genesis := genesisState(t)
	require.NoError(t, dbStore.SaveTrustedState(genesis))

	// Someone already stored a different committee for epoch 1.
	require.NoError(t, dbStore.SaveCommittee(randCommittee(t, 1, 1)))

	next := randCommittee(t, 1, 3)
	prev := genesis.Checkpoint.Digest()
	boundary := types.TrustedState{
		Checkpoint: types.CheckpointHeader{
			SequenceNumber: 1,
			PreviousDigest: &prev,
			NextCommittee:  next,
		},
		Committee: *next.Copy(),
	}
	err := dbStore.SaveTrustedState(boundary)
	require.ErrorIs(t, err, store.ErrDuplicateEpoch)

	state, err := dbStore.TrustedState()
	require.NoError(t, err)
	assert.Equal(t, genesis.Bytes(), state.Bytes(), "cursor must not move")
	assert.EqualValues(t, 2, dbStore.Size())
}

func Test_PruneCommittees(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_PruneCommittees")

	// Empty store
	n, err := dbStore.PruneCommittees(10)
	require.NoError(t, err)
	assert.Zero(t, n)

	for epoch := uint64(0); epoch < 5; epoch++ {
		require.NoError(t, dbStore.SaveCommittee(randCommittee(t, epoch, 1)))
	}

	n, err = dbStore.PruneCommittees(2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 3, dbStore.Size())

	_, err = dbStore.Committee(1)
	assert.ErrorIs(t, err, store.ErrCommitteeNotFound)
	_, err = dbStore.Committee(2)
	assert.NoError(t, err)

	// The trusted committee survives any horizon.
	state := types.TrustedState{
		Checkpoint: types.CheckpointHeader{Epoch: 2},
	}
	c2, err := dbStore.Committee(2)
	require.NoError(t, err)
	state.Committee = *c2
	require.NoError(t, dbStore.SaveTrustedState(state))

	n, err = dbStore.PruneCommittees(100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 1, dbStore.Size())
	_, err = dbStore.Committee(2)
	assert.NoError(t, err)
}

func TestExportImport(t *testing.T) {
	src := New(dbm.NewMemDB(), "src")
	genesis := genesisState(t)
	require.NoError(t, src.SaveTrustedState(genesis))
	for epoch := uint64(1); epoch < 4; epoch++ {
		require.NoError(t, src.SaveCommittee(randCommittee(t, epoch, 2)))
	}

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))
	snapshot := buf.Bytes()

	dst := New(dbm.NewMemDB(), "dst")
	require.NoError(t, dst.Import(bytes.NewReader(snapshot)))
	assert.Equal(t, src.Size(), dst.Size())

	state, err := dst.TrustedState()
	require.NoError(t, err)
	assert.Equal(t, genesis.Bytes(), state.Bytes())
	for epoch := uint64(0); epoch < 4; epoch++ {
		want, err := src.Committee(epoch)
		require.NoError(t, err)
		got, err := dst.Committee(epoch)
		require.NoError(t, err)
		assert.Equal(t, want.Bytes(), got.Bytes())
	}

	// Re-exporting yields the same bytes.
	var again bytes.Buffer
	require.NoError(t, dst.Export(&again))
	assert.Equal(t, snapshot, again.Bytes())

	// Importing twice is refused.
	err = dst.Import(bytes.NewReader(snapshot))
	assert.ErrorIs(t, err, store.ErrStoreNotEmpty)

	// Garbage is refused without writing anything.
	empty := New(dbm.NewMemDB(), "empty")
	assert.Error(t, empty.Import(bytes.NewReader([]byte{0x00, 0xc1, 0x80})))
	assert.EqualValues(t, 0, empty.Size())
}

func TestImportRejectsDuplicateKeys(t *testing.T) {
	src := New(dbm.NewMemDB(), "src")
	require.NoError(t, src.SaveTrustedState(genesisState(t)))
	require.NoError(t, src.SaveCommittee(randCommittee(t, 1, 2)))

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))
	var snap snapshot
	require.NoError(t, types.DecodeBlob(buf.Bytes(), &snap))

	// repeat the entry of the epoch 1 committee
	var committeeEntry snapshotEntry
	nsLen := len(src.(*dbs).prefixKey())
	for _, e := range snap.Entries {
		if bytes.Equal(e.Key, src.(*dbs).committeeKey(1)[nsLen:]) {
			committeeEntry = e
		}
	}
	require.NotNil(t, committeeEntry.Key)
	snap.Entries = append(snap.Entries, committeeEntry, committeeEntry)
	blob, err := types.EncodeBlob(&snap, true)
	require.NoError(t, err)

	dst := New(dbm.NewMemDB(), "dst")
	assert.Error(t, dst.Import(bytes.NewReader(blob)))
	assert.EqualValues(t, 0, dst.Size())
	_, err = dst.TrustedState()
	assert.ErrorIs(t, err, store.ErrNoTrustedState)

	// the untouched snapshot still imports, with the right size
	require.NoError(t, dst.Import(bytes.NewReader(buf.Bytes())))
	assert.Equal(t, src.Size(), dst.Size())
	assert.EqualValues(t, 2, dst.Size())
}

func Test_Concurrency(t *testing.T) {
	dbStore := New(dbm.NewMemDB(), "Test_Concurrency")
	committees := make([]*types.Committee, 20)
	for i := range committees {
		committees[i] = randCommittee(t, uint64(i), 2)
	}

	var wg sync.WaitGroup
	for _, c := range committees {
		wg.Add(1)
		go func(c *types.Committee) {
			defer wg.Done()

			err := dbStore.SaveCommittee(c)
			assert.NoError(t, err)

			_, err = dbStore.Committee(c.Epoch)
			assert.NoError(t, err)

			_, err = dbStore.LatestCommitteeEpoch()
			assert.NoError(t, err)

			dbStore.Size()

			_, err = dbStore.PruneCommittees(0)
			assert.NoError(t, err)
		}(c)
	}
	wg.Wait()
}

func randCommittee(t *testing.T, epoch uint64, n int) *types.Committee {
	t.Helper()

	members := make([]types.CommitteeMember, n)
	for i := range members {
		key := bls.GenPrivKey()
		members[i] = types.CommitteeMember{
			PubKey:      key.PubKey().(bls.PubKey),
			StakeWeight: uint64(i + 1),
		}
	}
	c, err := types.NewCommittee(epoch, members)
	require.NoError(t, err, fmt.Sprintf("epoch %d", epoch))
	return c
}

func genesisState(t *testing.T) types.TrustedState {
	return types.TrustedState{
		Checkpoint: types.CheckpointHeader{TimestampMs: 1},
		Committee:  *randCommittee(t, 0, 4),
	}
}
