package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/tendermint/checkpoint-light/light/provider"
	"github.com/tendermint/checkpoint-light/types"
)

// Mock is an in-memory provider. Checkpoints can be added while it is in use
// and individual sequence numbers can be made to fail.
type Mock struct {
	id string

	mtx         sync.Mutex
	checkpoints map[uint64]*types.CheckpointData
	latest      uint64
	failures    map[uint64][]error
	requests    map[uint64]int
}

var _ provider.Provider = (*Mock)(nil)

// New creates a mock provider serving the given checkpoints.
func New(id string, checkpoints ...*types.CheckpointData) *Mock {
	p := &Mock{
		id:          id,
		checkpoints: make(map[uint64]*types.CheckpointData),
		failures:    make(map[uint64][]error),
		requests:    make(map[uint64]int),
	}
	p.Add(checkpoints...)
	return p
}

// Add makes the given checkpoints available.
func (p *Mock) Add(checkpoints ...*types.CheckpointData) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	for _, data := range checkpoints {
		seq := data.Certificate.Header.SequenceNumber
		p.checkpoints[seq] = data
		if seq > p.latest {
			p.latest = seq
		}
	}
}

// FailNext makes the next len(errs) requests for seq return errs, in order.
func (p *Mock) FailNext(seq uint64, errs ...error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.failures[seq] = append(p.failures[seq], errs...)
}

// Requests returns how many times seq was requested.
func (p *Mock) Requests(seq uint64) int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.requests[seq]
}

func (p *Mock) String() string {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return fmt.Sprintf("Mock{%s checkpoints: %d latest: %d}", p.id, len(p.checkpoints), p.latest)
}

func (p *Mock) CheckpointData(ctx context.Context, seq uint64) (*types.CheckpointData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.requests[seq]++
	if errs := p.failures[seq]; len(errs) > 0 {
		p.failures[seq] = errs[1:]
		return nil, errs[0]
	}
	data, ok := p.checkpoints[seq]
	if !ok {
		return nil, provider.ErrCheckpointNotFound
	}
	return data, nil
}

func (p *Mock) LatestSequence(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.latest, nil
}
