package db

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/orderedcode"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/checkpoint-light/light/store"
	"github.com/tendermint/checkpoint-light/types"
	"github.com/tendermint/checkpoint-light/version"
)

const (
	// key prefixes, in this order; Export walks everything between the first
	// and the last one.
	prefixCommittee = int64(1)
	prefixTrusted   = int64(2)
	prefixSize      = int64(3)
	prefixEnd       = int64(4)

	defaultCacheSize = 16
)

type dbs struct {
	db     dbm.DB
	prefix string

	mtx   sync.RWMutex
	size  uint64
	cache *lru.Cache
}

// New returns a Store that wraps any DB (with an optional prefix in case you
// want to use one DB with many light clients).
//
// Committees are cached in memory with an LRU policy.
func New(db dbm.DB, prefix string) store.Store {
	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		panic(err)
	}

	s := &dbs{db: db, prefix: prefix, cache: cache}
	s.size = s.loadSize()
	return s
}

// SaveCommittee persists the committee unless an identical one is already
// stored.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) SaveCommittee(c *types.Committee) error {
	if err := c.ValidateBasic(); err != nil {
		return errors.Wrap(err, "invalid committee")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	added, err := s.addCommittee(b, c)
	if err != nil || !added {
		return err
	}
	if err := b.Set(s.sizeKey(), marshalSize(s.size+1)); err != nil {
		return err
	}
	if err := b.WriteSync(); err != nil {
		return errors.Wrap(err, "writing batch")
	}

	s.size++
	s.cache.Add(c.Epoch, c.Copy())
	return nil
}

// addCommittee queues c in b. It reports false if an identical committee is
// already stored. The caller must hold the write lock.
func (s *dbs) addCommittee(b dbm.Batch, c *types.Committee) (bool, error) {
	existing, err := s.committee(c.Epoch)
	switch {
	case err == nil:
		if existing.Equal(c) {
			return false, nil
		}
		return false, fmt.Errorf("epoch %d: %w", c.Epoch, store.ErrDuplicateEpoch)
	case !errors.Is(err, store.ErrCommitteeNotFound):
		return false, err
	}

	if err := b.Set(s.committeeKey(c.Epoch), c.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}

// Committee loads the committee of the given epoch.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) Committee(epoch uint64) (*types.Committee, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	c, err := s.committee(epoch)
	if err != nil {
		return nil, err
	}
	return c.Copy(), nil
}

func (s *dbs) committee(epoch uint64) (*types.Committee, error) {
	if v, ok := s.cache.Get(epoch); ok {
		return v.(*types.Committee), nil
	}

	bz, err := s.db.Get(s.committeeKey(epoch))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, store.ErrCommitteeNotFound
	}

	var c types.Committee
	if err := types.Decode(bz, &c); err != nil {
		return nil, errors.Wrapf(err, "decoding committee %d", epoch)
	}
	if err := c.ValidateBasic(); err != nil {
		return nil, errors.Wrapf(err, "stored committee %d", epoch)
	}

	s.cache.Add(epoch, &c)
	return &c, nil
}

// LatestCommitteeEpoch returns the highest stored epoch.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) LatestCommitteeEpoch() (uint64, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	itr, err := s.db.ReverseIterator(s.committeeKey(0), s.prefixKey(prefixTrusted))
	if err != nil {
		return 0, err
	}
	defer itr.Close()

	if !itr.Valid() {
		return 0, store.ErrCommitteeNotFound
	}
	return s.decodeCommitteeKey(itr.Key())
}

// PruneCommittees removes committees of epochs before the given one, sparing
// the committee of the trusted state.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) PruneCommittees(before uint64) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	keep, hasKeep := uint64(0), false
	if state, err := s.trustedState(); err == nil {
		keep, hasKeep = state.Committee.Epoch, true
	} else if !errors.Is(err, store.ErrNoTrustedState) {
		return 0, err
	}

	itr, err := s.db.Iterator(s.committeeKey(0), s.committeeKey(before))
	if err != nil {
		return 0, err
	}

	var epochs []uint64
	for ; itr.Valid(); itr.Next() {
		epoch, err := s.decodeCommitteeKey(itr.Key())
		if err != nil {
			itr.Close()
			return 0, err
		}
		if hasKeep && epoch == keep {
			continue
		}
		epochs = append(epochs, epoch)
	}
	if err := itr.Error(); err != nil {
		itr.Close()
		return 0, err
	}
	if err := itr.Close(); err != nil {
		return 0, err
	}

	if len(epochs) == 0 {
		return 0, nil
	}

	b := s.db.NewBatch()
	defer b.Close()
	for _, epoch := range epochs {
		if err := b.Delete(s.committeeKey(epoch)); err != nil {
			return 0, err
		}
	}
	if err := b.Set(s.sizeKey(), marshalSize(s.size-uint64(len(epochs)))); err != nil {
		return 0, err
	}
	if err := b.WriteSync(); err != nil {
		return 0, errors.Wrap(err, "writing batch")
	}

	s.size -= uint64(len(epochs))
	for _, epoch := range epochs {
		s.cache.Remove(epoch)
	}
	return len(epochs), nil
}

// Size returns the number of stored committees.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) Size() uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.size
}

// SaveTrustedState persists the state and its committee in one batch.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) SaveTrustedState(state types.TrustedState) error {
	if err := state.ValidateBasic(); err != nil {
		return errors.Wrap(err, "invalid trusted state")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	added, err := s.addCommittee(b, &state.Committee)
	if err != nil {
		return err
	}
	size := s.size
	if added {
		size++
		if err := b.Set(s.sizeKey(), marshalSize(size)); err != nil {
			return err
		}
	}
	if err := b.Set(s.trustedKey(), state.Bytes()); err != nil {
		return err
	}
	if err := b.WriteSync(); err != nil {
		return errors.Wrap(err, "writing batch")
	}

	s.size = size
	if added {
		s.cache.Add(state.Committee.Epoch, state.Committee.Copy())
	}
	return nil
}

// TrustedState loads the last saved trusted state.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) TrustedState() (types.TrustedState, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.trustedState()
}

func (s *dbs) trustedState() (types.TrustedState, error) {
	bz, err := s.db.Get(s.trustedKey())
	if err != nil {
		return types.TrustedState{}, err
	}
	if len(bz) == 0 {
		return types.TrustedState{}, store.ErrNoTrustedState
	}
	state, err := types.TrustedStateFromBytes(bz)
	if err != nil {
		return types.TrustedState{}, errors.Wrap(err, "decoding trusted state")
	}
	return state, nil
}

//-----------------------------------------------------------------------------
// snapshots

type snapshotEntry struct {
	Key   []byte
	Value []byte
}

type snapshot struct {
	Version uint64
	Entries []snapshotEntry
}

// Export writes every key owned by this store, keys relative to the store's
// prefix, as a compressed blob.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) Export(w io.Writer) error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	itr, err := s.db.Iterator(s.prefixKey(prefixCommittee), s.prefixKey(prefixEnd))
	if err != nil {
		return err
	}
	defer itr.Close()

	nsLen := len(s.prefixKey())
	snap := snapshot{Version: version.StoreProtocol.Uint64()}
	for ; itr.Valid(); itr.Next() {
		snap.Entries = append(snap.Entries, snapshotEntry{
			Key:   append([]byte(nil), itr.Key()[nsLen:]...),
			Value: append([]byte(nil), itr.Value()...),
		})
	}
	if err := itr.Error(); err != nil {
		return err
	}

	blob, err := types.EncodeBlob(&snap, true)
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}
	_, err = w.Write(blob)
	return err
}

// Import restores a snapshot into an empty store. Every stored value is
// validated before anything is written, and a key may appear only once.
//
// Safe for concurrent use by multiple goroutines.
func (s *dbs) Import(r io.Reader) error {
	blob, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading snapshot")
	}
	var snap snapshot
	if err := types.DecodeBlob(blob, &snap); err != nil {
		return errors.Wrap(err, "decoding snapshot")
	}
	if snap.Version != version.StoreProtocol.Uint64() {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.size > 0 {
		return store.ErrStoreNotEmpty
	}
	if _, err := s.trustedState(); !errors.Is(err, store.ErrNoTrustedState) {
		return store.ErrStoreNotEmpty
	}

	var (
		ns   = s.prefixKey()
		size uint64
		seen = make(map[string]struct{}, len(snap.Entries))
	)
	b := s.db.NewBatch()
	defer b.Close()
	for _, e := range snap.Entries {
		if _, ok := seen[string(e.Key)]; ok {
			return fmt.Errorf("duplicate snapshot entry %X", e.Key)
		}
		seen[string(e.Key)] = struct{}{}

		key := append(append([]byte(nil), ns...), e.Key...)
		if err := s.validateEntry(key, e.Value); err != nil {
			return errors.Wrapf(err, "snapshot entry %X", e.Key)
		}
		if bytes.Equal(key, s.sizeKey()) {
			continue
		}
		if _, err := s.decodeCommitteeKey(key); err == nil {
			size++
		}
		if err := b.Set(key, e.Value); err != nil {
			return err
		}
	}
	if err := b.Set(s.sizeKey(), marshalSize(size)); err != nil {
		return err
	}
	if err := b.WriteSync(); err != nil {
		return errors.Wrap(err, "writing batch")
	}

	s.size = size
	s.cache.Purge()
	return nil
}

func (s *dbs) validateEntry(key, value []byte) error {
	switch {
	case bytes.Equal(key, s.trustedKey()):
		_, err := types.TrustedStateFromBytes(value)
		return err
	case bytes.Equal(key, s.sizeKey()):
		return nil
	}

	epoch, err := s.decodeCommitteeKey(key)
	if err != nil {
		return err
	}
	var c types.Committee
	if err := types.Decode(value, &c); err != nil {
		return err
	}
	if c.Epoch != epoch {
		return fmt.Errorf("committee epoch %d stored under epoch %d", c.Epoch, epoch)
	}
	return c.ValidateBasic()
}

//-----------------------------------------------------------------------------
// keys

func (s *dbs) prefixKey(items ...int64) []byte {
	args := make([]interface{}, 0, len(items)+1)
	args = append(args, s.prefix)
	for _, item := range items {
		args = append(args, item)
	}
	key, err := orderedcode.Append(nil, args...)
	if err != nil {
		panic(err)
	}
	return key
}

func (s *dbs) committeeKey(epoch uint64) []byte {
	key, err := orderedcode.Append(nil, s.prefix, prefixCommittee, epoch)
	if err != nil {
		panic(err)
	}
	return key
}

func (s *dbs) decodeCommitteeKey(key []byte) (epoch uint64, err error) {
	var (
		prefix string
		kind   int64
	)
	remaining, err := orderedcode.Parse(string(key), &prefix, &kind, &epoch)
	if err != nil {
		return 0, err
	}
	if len(remaining) != 0 {
		return 0, fmt.Errorf("expected complete key but got remainder: %X", remaining)
	}
	if prefix != s.prefix || kind != prefixCommittee {
		return 0, fmt.Errorf("not a committee key: %X", key)
	}
	return epoch, nil
}

func (s *dbs) trustedKey() []byte {
	return s.prefixKey(prefixTrusted)
}

func (s *dbs) sizeKey() []byte {
	return s.prefixKey(prefixSize)
}

func (s *dbs) loadSize() uint64 {
	bz, err := s.db.Get(s.sizeKey())
	if err != nil || len(bz) != 8 {
		return 0
	}
	return unmarshalSize(bz)
}

func marshalSize(size uint64) []byte {
	bs := make([]byte, 8)
	binary.LittleEndian.PutUint64(bs, size)
	return bs
}

func unmarshalSize(bz []byte) uint64 {
	return binary.LittleEndian.Uint64(bz)
}
