package light

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendermint/checkpoint-light/libs/log"
	"github.com/tendermint/checkpoint-light/libs/service"
	"github.com/tendermint/checkpoint-light/light/provider"
	"github.com/tendermint/checkpoint-light/types"
)

const (
	defaultFetchConcurrency = 8
	defaultMaxRetries       = 10
	defaultInitialBackoff   = 100 * time.Millisecond
	defaultMaxBackoff       = 60 * time.Second
	defaultPollInterval     = time.Second

	// Fetched checkpoints may run this many times the fetch concurrency
	// ahead of the last applied one.
	lookAheadFactor = 4
)

// SyncerOption sets a parameter for the syncer.
type SyncerOption func(*Syncer)

// SyncLogger sets the logger of the syncer.
func SyncLogger(l log.Logger) SyncerOption {
	return func(s *Syncer) {
		s.logger = l
	}
}

// SyncMetrics sets the metrics the syncer reports retries to.
func SyncMetrics(m *Metrics) SyncerOption {
	return func(s *Syncer) {
		s.metrics = m
	}
}

// FetchConcurrency sets how many checkpoints are fetched in parallel.
// Default: 8.
func FetchConcurrency(n int) SyncerOption {
	return func(s *Syncer) {
		s.concurrency = n
	}
}

// MaxRetries sets how many times a transient provider failure is retried
// before the syncer gives up. Default: 10.
func MaxRetries(n int) SyncerOption {
	return func(s *Syncer) {
		s.maxRetries = n
	}
}

// RetryBackoff sets the delay before the first retry and its upper bound.
// The delay doubles on every attempt. Default: 100ms, 60s.
func RetryBackoff(initial, max time.Duration) SyncerOption {
	return func(s *Syncer) {
		s.initialBackoff = initial
		s.maxBackoff = max
	}
}

// PollInterval sets how long the syncer waits for new checkpoints once it
// has caught up with the provider. Default: 1s.
func PollInterval(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		s.pollInterval = d
	}
}

// SyncTarget makes the syncer stop once the given sequence number is
// trusted. Default: 0, follow the provider forever.
func SyncTarget(seq uint64) SyncerOption {
	return func(s *Syncer) {
		s.target = seq
	}
}

// Syncer drives a Tracker from an untrusted provider. It fetches
// checkpoints in parallel, retries transient failures with exponential
// backoff and feeds the tracker strictly in sequence order. A checkpoint
// that fails verification stops the syncer: the provider is serving a
// chain the tracker can't follow.
type Syncer struct {
	service.BaseService

	tracker  *Tracker
	provider provider.Provider
	logger   log.Logger
	metrics  *Metrics

	concurrency    int
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	pollInterval   time.Duration
	target         uint64

	cancel context.CancelFunc
	done   chan struct{}

	mtx sync.Mutex
	err error
}

// NewSyncer returns a syncer advancing tracker with checkpoints from p.
func NewSyncer(tracker *Tracker, p provider.Provider, options ...SyncerOption) (*Syncer, error) {
	s := &Syncer{
		tracker:        tracker,
		provider:       p,
		logger:         log.NewNopLogger(),
		metrics:        NopMetrics(),
		concurrency:    defaultFetchConcurrency,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		pollInterval:   defaultPollInterval,
		done:           make(chan struct{}),
	}
	for _, o := range options {
		o(s)
	}

	switch {
	case s.concurrency <= 0:
		return nil, fmt.Errorf("fetch concurrency must be positive, got %d", s.concurrency)
	case s.maxRetries < 0:
		return nil, fmt.Errorf("max retries can't be negative, got %d", s.maxRetries)
	case s.initialBackoff <= 0 || s.maxBackoff < s.initialBackoff:
		return nil, fmt.Errorf("invalid backoff %v..%v", s.initialBackoff, s.maxBackoff)
	case s.pollInterval <= 0:
		return nil, fmt.Errorf("poll interval must be positive, got %v", s.pollInterval)
	}

	s.BaseService = *service.NewBaseService(s.logger, "Syncer", s)
	return s, nil
}

// OnStart implements service.Service by syncing in the background. The
// syncer stops by itself once the target is reached or on a failure; see
// Err.
func (s *Syncer) OnStart(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		err := s.Sync(ctx)
		s.mtx.Lock()
		s.err = err
		s.mtx.Unlock()
		close(s.done)

		if err := s.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
			s.logger.Error("stopping syncer", "err", err)
		}
	}()
	return nil
}

// OnStop implements service.Service.
func (s *Syncer) OnStop() {
	s.cancel()
	<-s.done
}

// Err returns the error the background sync ended with, if any. Only
// meaningful once the service has stopped.
func (s *Syncer) Err() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.err
}

// Sync runs in the calling goroutine until the target is reached, ctx is
// canceled or a checkpoint can't be fetched or verified. Cancellation is
// not an error.
func (s *Syncer) Sync(ctx context.Context) error {
	for {
		trusted := s.tracker.TrustedState().Checkpoint.SequenceNumber
		if s.target != 0 && trusted >= s.target {
			s.logger.Info("reached sync target", "sequence", trusted)
			return nil
		}

		var latest uint64
		err := s.retry(ctx, "latest sequence", func() (err error) {
			latest, err = s.provider.LatestSequence(ctx)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		end := latest
		if s.target != 0 && s.target < end {
			end = s.target
		}
		if end > trusted {
			s.logger.Debug("syncing", "from", trusted+1, "to", end, "provider", s.provider)
			if err := s.syncRange(ctx, trusted+1, end); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.pollInterval):
		}
	}
}

type fetched struct {
	seq  uint64
	data *types.CheckpointData
}

// syncRange fetches checkpoints from..to with a pool of workers and applies
// them in order. At most concurrency*lookAheadFactor of them are held in
// memory at once.
func (s *Syncer) syncRange(ctx context.Context, from, to uint64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	window := s.concurrency * lookAheadFactor
	var (
		g, gctx = errgroup.WithContext(ctx)
		tokens  = make(chan struct{}, window)
		jobs    = make(chan uint64)
		// never blocks: a token is held for every checkpoint in flight
		results = make(chan fetched, window)
	)

	g.Go(func() error {
		defer close(jobs)
		for seq := from; seq <= to; seq++ {
			select {
			case tokens <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			select {
			case jobs <- seq:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	for i := 0; i < s.concurrency; i++ {
		g.Go(func() error {
			for seq := range jobs {
				data, err := s.fetch(gctx, seq)
				if err != nil {
					return err
				}
				results <- fetched{seq: seq, data: data}
			}
			return nil
		})
	}

	fetchErr := make(chan error, 1)
	go func() {
		fetchErr <- g.Wait()
		close(results)
	}()

	var (
		next     = from
		pending  = make(map[uint64]*types.CheckpointData, window)
		applyErr error
	)
	for r := range results {
		if applyErr != nil {
			continue
		}
		pending[r.seq] = r.data
		for ; next <= to; next++ {
			data, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if _, err := s.tracker.Apply(&data.Certificate); err != nil {
				applyErr = fmt.Errorf("checkpoint %d from %v: %w", next, s.provider, err)
				cancel()
				break
			}
			<-tokens
		}
	}

	err := <-fetchErr
	switch {
	case applyErr != nil:
		return applyErr
	case err != nil:
		return err
	}
	return ctx.Err()
}

func (s *Syncer) fetch(ctx context.Context, seq uint64) (*types.CheckpointData, error) {
	var data *types.CheckpointData
	err := s.retry(ctx, fmt.Sprintf("checkpoint %d", seq), func() (err error) {
		data, err = s.provider.CheckpointData(ctx, seq)
		return err
	})
	return data, err
}

// retry calls fn until it succeeds, fails permanently or maxRetries
// transient failures have happened.
func (s *Syncer) retry(ctx context.Context, what string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !provider.IsTransient(err) || attempt >= s.maxRetries {
			return fmt.Errorf("fetching %s from %v: %w", what, s.provider, err)
		}

		s.metrics.FetchRetries.Add(1)
		wait := s.backoff(attempt)
		s.logger.Debug("retrying fetch", "what", what, "attempt", attempt+1, "in", wait, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// backoff doubles from initialBackoff up to maxBackoff, with up to 10%
// jitter on top.
func (s *Syncer) backoff(attempt int) time.Duration {
	d := s.maxBackoff
	if attempt < 32 {
		if exp := s.initialBackoff << uint(attempt); exp > 0 && exp < s.maxBackoff {
			d = exp
		}
	}
	// nolint:gosec // G404: Use of weak random number generator
	return d + time.Duration(rand.Int63n(int64(d)/10+1))
}
