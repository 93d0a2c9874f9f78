package light

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tendermint/checkpoint-light/libs/log"
	tmmath "github.com/tendermint/checkpoint-light/libs/math"
	"github.com/tendermint/checkpoint-light/light/store"
	"github.com/tendermint/checkpoint-light/types"
)

// Option sets a parameter for the tracker.
type Option func(*Tracker)

// Logger option can be used to set a logger for the tracker.
func Logger(l log.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// QuorumThreshold sets the fraction of the committee's stake that signers
// must strictly exceed. It must be within [2/3, 1). Default: 2/3.
func QuorumThreshold(fr tmmath.Fraction) Option {
	return func(t *Tracker) {
		t.quorum = fr
	}
}

// WithMetrics sets the metrics the tracker reports to. Default: no-op.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// PruningHorizon keeps the committees of the last n epochs when a new epoch
// starts and drops older ones. Older checkpoints can then no longer be used
// for inclusion proofs. Default: 0, which keeps every committee.
func PruningHorizon(n uint64) Option {
	return func(t *Tracker) {
		t.pruningHorizon = n
	}
}

// Tracker owns the light client's trusted state and advances it one verified
// checkpoint at a time. Checkpoints must be applied in sequence order; the
// tracker never buffers or reorders them.
//
// Tracker is safe for concurrent use. Apply calls are serialized; readers get
// snapshots and never observe a half-applied transition.
type Tracker struct {
	quorum         tmmath.Fraction
	pruningHorizon uint64

	store   store.Store
	logger  log.Logger
	metrics *Metrics

	mtx   sync.RWMutex
	state types.TrustedState
}

// NewTracker returns a tracker anchored at genesis, which is trusted as is.
// The store must not hold a trusted state yet; use NewTrackerFromStore to
// resume.
func NewTracker(genesis types.TrustedState, trustedStore store.Store, options ...Option) (*Tracker, error) {
	if err := genesis.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	if _, err := trustedStore.TrustedState(); err == nil {
		return nil, errors.New("store already holds a trusted state")
	} else if !errors.Is(err, store.ErrNoTrustedState) {
		return nil, fmt.Errorf("can't read trusted state: %w", err)
	}

	t, err := newTracker(trustedStore, options...)
	if err != nil {
		return nil, err
	}

	genesis = genesis.Copy()
	if err := t.store.SaveTrustedState(genesis); err != nil {
		return nil, fmt.Errorf("failed to save genesis: %w", err)
	}
	t.state = genesis
	t.logger.Info("initialized from genesis",
		"sequence", genesis.Checkpoint.SequenceNumber,
		"epoch", genesis.Committee.Epoch,
		"digest", genesis.Checkpoint.Digest())
	t.reportState()

	return t, nil
}

// NewTrackerFromStore resumes from the trusted state saved in the store.
//
// See NewTracker
func NewTrackerFromStore(trustedStore store.Store, options ...Option) (*Tracker, error) {
	t, err := newTracker(trustedStore, options...)
	if err != nil {
		return nil, err
	}

	state, err := t.store.TrustedState()
	if err != nil {
		return nil, fmt.Errorf("can't restore trusted state: %w", err)
	}
	t.state = state
	t.logger.Info("restored trusted state",
		"sequence", state.Checkpoint.SequenceNumber,
		"epoch", state.Committee.Epoch)
	t.reportState()

	return t, nil
}

func newTracker(trustedStore store.Store, options ...Option) (*Tracker, error) {
	t := &Tracker{
		quorum:  DefaultQuorumThreshold,
		store:   trustedStore,
		logger:  log.NewNopLogger(),
		metrics: NopMetrics(),
	}

	for _, o := range options {
		o(t)
	}

	if err := ValidateQuorum(t.quorum); err != nil {
		return nil, err
	}

	return t, nil
}

// Apply verifies cert against the trusted state and, on success, makes it
// the new trusted checkpoint. At an epoch boundary the announced committee is
// stored together with the new cursor and signs the next epoch.
//
// On any error the trusted state is left exactly as it was.
func (t *Tracker) Apply(cert *types.CheckpointCertificate) (types.TrustedState, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	verified, err := VerifyCheckpoint(cert, t.state, t.quorum)
	if err != nil {
		t.metrics.RejectedCheckpoints.With("reason", rejectionReason(err)).Add(1)
		t.logger.Debug("rejected checkpoint", "trusted", t.state.Checkpoint.SequenceNumber, "err", err)
		return types.TrustedState{}, err
	}

	next := types.TrustedState{
		Checkpoint: verified.Header,
		Committee:  *verified.Committee,
	}
	rotated := verified.Header.IsEpochBoundary()
	if rotated {
		next.Committee = *verified.Header.NextCommittee.Copy()
	}

	// Persist first; the in-memory cursor only moves once the store holds
	// both the checkpoint and any new committee.
	if err := t.store.SaveTrustedState(next); err != nil {
		return types.TrustedState{}, fmt.Errorf("failed to save trusted state: %w", err)
	}
	t.state = next

	t.logger.Info("applied checkpoint",
		"sequence", next.Checkpoint.SequenceNumber,
		"epoch", next.Checkpoint.Epoch,
		"digest", verified.Digest,
		"signed_stake", verified.SignedStake)
	t.metrics.AppliedCheckpoints.Add(1)

	if rotated {
		t.metrics.CommitteeRotations.Add(1)
		t.logger.Info("adopted next committee",
			"epoch", next.Committee.Epoch,
			"members", next.Committee.Size(),
			"hash", next.Committee.Hash())
		t.pruneCommittees()
	}
	t.reportState()

	return next.Copy(), nil
}

// pruneCommittees drops committees older than the pruning horizon. Failure
// is not fatal: the new state is already saved.
func (t *Tracker) pruneCommittees() {
	epoch := t.state.Committee.Epoch
	if t.pruningHorizon == 0 || epoch < t.pruningHorizon {
		return
	}
	n, err := t.store.PruneCommittees(epoch - t.pruningHorizon + 1)
	if err != nil {
		t.logger.Error("failed to prune committees", "err", err)
		return
	}
	if n > 0 {
		t.logger.Debug("pruned committees", "count", n, "before", epoch-t.pruningHorizon+1)
	}
}

func (t *Tracker) reportState() {
	t.metrics.TrustedSequence.Set(float64(t.state.Checkpoint.SequenceNumber))
	t.metrics.TrustedEpoch.Set(float64(t.state.Committee.Epoch))
}

// TrustedState returns a snapshot of the current trusted state.
func (t *Tracker) TrustedState() types.TrustedState {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.state.Copy()
}

// Committee returns the trusted committee of the given epoch, current or
// historical.
//
// If it is not known, store.ErrCommitteeNotFound is returned.
func (t *Tracker) Committee(epoch uint64) (*types.Committee, error) {
	t.mtx.RLock()
	current := t.state.Committee
	t.mtx.RUnlock()

	if current.Epoch == epoch {
		return current.Copy(), nil
	}
	return t.store.Committee(epoch)
}

// VerifyInclusion checks whether the (tx, effects) pair is committed by the
// latest trusted checkpoint, given that checkpoint's contents.
func (t *Tracker) VerifyInclusion(tx, effects types.Digest, contents *types.CheckpointContents) (types.InclusionResult, error) {
	state := t.TrustedState()
	return VerifyInclusion(tx, effects, contents, &state.Checkpoint)
}

// VerifyTransaction checks whether the (tx, effects) pair is committed by
// the checkpoint in data, together with the effects and events bodies if
// data carries them (see VerifyExecution). The checkpoint may be the latest
// trusted one or any historical checkpoint whose epoch committee is still
// stored; its certificate is verified against that committee first.
func (t *Tracker) VerifyTransaction(data *types.CheckpointData, tx, effects types.Digest) (types.InclusionResult, error) {
	if err := data.ValidateBasic(); err != nil {
		return types.InclusionResult{}, err
	}

	state := t.TrustedState()
	header := &data.Certificate.Header
	if header.SequenceNumber > state.Checkpoint.SequenceNumber {
		return types.InclusionResult{}, fmt.Errorf("checkpoint #%d is ahead of the trusted checkpoint #%d",
			header.SequenceNumber, state.Checkpoint.SequenceNumber)
	}

	if header.SequenceNumber == state.Checkpoint.SequenceNumber {
		// Already verified; the digest ties the data to it.
		if d := header.Digest(); d != state.Checkpoint.Digest() {
			return types.InclusionResult{}, ErrDigestMismatch{Claimed: d, Computed: state.Checkpoint.Digest()}
		}
		return VerifyExecution(tx, effects, data, &state.Checkpoint)
	}

	committee, err := t.Committee(header.Epoch)
	if err != nil {
		return types.InclusionResult{}, fmt.Errorf("committee of epoch %d: %w", header.Epoch, err)
	}
	verified, err := VerifyCheckpointData(data, committee, t.quorum)
	if err != nil {
		return types.InclusionResult{}, err
	}
	return VerifyExecution(tx, effects, data, &verified.Header)
}
