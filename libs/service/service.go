package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tendermint/checkpoint-light/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service is a long running component with a start/stop lifecycle.
type Service interface {
	// Start runs the service until the context is canceled or Stop is called.
	Start(context.Context) error
	Stop() error

	IsRunning() bool
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation is the set of hooks a BaseService drives.
type Implementation interface {
	// OnStart is called once by Start. Returning an error leaves the service
	// unstarted.
	OnStart(context.Context) error

	// OnStop is called once, either by Stop or when the start context is
	// canceled.
	OnStop()
}

// BaseService implements Service on top of an Implementation. Embed it and
// construct with NewBaseService:
//
//	type Syncer struct {
//		service.BaseService
//	}
//
//	s := &Syncer{}
//	s.BaseService = *service.NewBaseService(logger, "Syncer", s)
//
// A BaseService can be started and stopped once.
type BaseService struct {
	logger  log.Logger
	name    string
	started uint32 // atomic
	stopped uint32 // atomic
	quit    chan struct{}

	impl Implementation
}

// NewBaseService creates a new BaseService. A nil logger is replaced by a nop
// logger.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BaseService{
		logger: logger,
		name:   name,
		quit:   make(chan struct{}),
		impl:   impl,
	}
}

// Start calls OnStart and arranges for Stop to be called once ctx is done.
func (bs *BaseService) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&bs.started, 0, 1) {
		return ErrAlreadyStarted
	}
	if atomic.LoadUint32(&bs.stopped) == 1 {
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		atomic.StoreUint32(&bs.started, 0)
		return ErrAlreadyStopped
	}

	bs.logger.Info("starting service", "service", bs.name)

	if err := bs.impl.OnStart(ctx); err != nil {
		atomic.StoreUint32(&bs.started, 0)
		return err
	}

	go func() {
		select {
		case <-bs.quit:
		case <-ctx.Done():
			if err := bs.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
				bs.logger.Error("stopping service", "service", bs.name, "err", err)
				return
			}
			bs.logger.Info("stopped service", "service", bs.name)
		}
	}()

	return nil
}

// Stop calls OnStop and releases everyone blocked in Wait.
func (bs *BaseService) Stop() error {
	if !atomic.CompareAndSwapUint32(&bs.stopped, 0, 1) {
		return ErrAlreadyStopped
	}
	if atomic.LoadUint32(&bs.started) == 0 {
		bs.logger.Error("not stopping service; not started yet", "service", bs.name)
		atomic.StoreUint32(&bs.stopped, 0)
		return ErrNotStarted
	}

	bs.logger.Info("stopping service", "service", bs.name)
	bs.impl.OnStop()
	close(bs.quit)

	return nil
}

// IsRunning reports whether the service has been started and not stopped.
func (bs *BaseService) IsRunning() bool {
	return atomic.LoadUint32(&bs.started) == 1 && atomic.LoadUint32(&bs.stopped) == 0
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// Quit returns a channel closed once the service is stopped.
func (bs *BaseService) Quit() <-chan struct{} { return bs.quit }

func (bs *BaseService) String() string { return bs.name }
