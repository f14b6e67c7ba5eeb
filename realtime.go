package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"realtime/metrics"
	"realtime/taskqueue"
	"realtime/workerpool"

	"go.uber.org/zap"
)

// PoolFactory create a new pool generation.
type PoolFactory func(cfg workerpool.Config, logger *zap.Logger) workerpool.WorkerPool

// Executor is a real-time task executor. When queued tasks pile up the oldest
// is dropped so the latest submission always runs. ShutdownNow only stops the
// current pool generation; the next Submit transparently starts a new one.
type Executor struct {
	sync.Mutex

	cfg workerpool.Config

	logger  *zap.Logger
	metrics *metrics.Metrics

	// pool is the current generation, replaced by Submit once it is shut down.
	pool    workerpool.WorkerPool
	newPool PoolFactory
}

type FuncOption func(*Executor)

// WithConfig replace the whole pool configuration.
func WithConfig(cfg workerpool.Config) FuncOption {
	return func(e *Executor) {
		e.cfg = cfg
	}
}

// WithMaxTaskQueueSize set how many tasks may wait for a worker, default is 3.
func WithMaxTaskQueueSize(size int) FuncOption {
	return func(e *Executor) {
		e.cfg.QueueSize = size
	}
}

// WithCorePoolSize set how many workers are kept alive, default is 1.
func WithCorePoolSize(size int) FuncOption {
	return func(e *Executor) {
		e.cfg.CoreSize = size
	}
}

// WithMaxPoolSize set the max number of concurrent workers, default is 3.
func WithMaxPoolSize(size int) FuncOption {
	return func(e *Executor) {
		e.cfg.MaxSize = size
	}
}

// WithKeepAlive set the idle time after which extra workers exit, default is 60s.
func WithKeepAlive(keepAlive time.Duration) FuncOption {
	return func(e *Executor) {
		e.cfg.KeepAlive = keepAlive
	}
}

// WithMetrics record executor and pool activity to m.
func WithMetrics(m *metrics.Metrics) FuncOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithPoolFactory replace how pool generations are created.
func WithPoolFactory(factory PoolFactory) FuncOption {
	return func(e *Executor) {
		e.newPool = factory
	}
}

// New create an Executor with an active pool generation.
func New(logger *zap.Logger, options ...FuncOption) *Executor {
	e := &Executor{
		cfg:    workerpool.DefaultConfig,
		logger: logger,
	}
	for _, option := range options {
		option(e)
	}
	if e.newPool == nil {
		e.newPool = func(cfg workerpool.Config, logger *zap.Logger) workerpool.WorkerPool {
			return workerpool.NewPool(cfg, logger, workerpool.WithMetrics(e.metrics))
		}
	}

	e.pool = e.newPool(e.cfg, e.logger)
	return e
}

// Submit a task for asynchronous execution. It never blocks and never fails:
// a full queue drops its oldest task, a shut down generation is replaced.
func (e *Executor) Submit(task taskqueue.Task) {
	e.Lock()
	defer e.Unlock()

	e.metrics.TaskSubmitted()
	e.checkPool()

	err := e.pool.Submit(task)
	if errors.Is(err, workerpool.ErrPoolShutdown) {
		e.renew()
		err = e.pool.Submit(task)
	}
	if err != nil {
		e.logger.Error("[Executor] submit drop task", zap.String("generation", e.pool.ID()), zap.Error(err))
	}
}

// ShutdownNow interrupt running tasks and discard queued tasks of the current
// generation. Failures are logged, never returned.
func (e *Executor) ShutdownNow() {
	e.Lock()
	defer e.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("[Executor] shutdownNow panic", zap.String("generation", e.pool.ID()), zap.Any("Panic", r))
		}
	}()

	discarded, err := e.pool.ShutdownNow()
	if err != nil {
		if errors.Is(err, workerpool.ErrPoolShutdown) {
			e.logger.Debug("[Executor] shutdownNow generation already stopped", zap.String("generation", e.pool.ID()))
			return
		}
		e.logger.Error("[Executor] shutdownNow", zap.String("generation", e.pool.ID()), zap.Error(err))
		return
	}
	e.logger.Info(fmt.Sprintf("[Executor] shutdownNow generation[%s], discard %d queued task", e.pool.ID(), discarded))
}

// AwaitTermination waiting for the current generation to terminate.
func (e *Executor) AwaitTermination(ctx context.Context) error {
	return e.current().AwaitTermination(ctx)
}

// Generation return the id of the current pool generation.
func (e *Executor) Generation() string {
	return e.current().ID()
}

// State return the state of the current pool generation.
func (e *Executor) State() workerpool.State {
	return e.current().State()
}

// Workers return the number of live workers of the current generation.
func (e *Executor) Workers() int {
	return e.current().Workers()
}

// QueueLen return the number of queued tasks of the current generation.
func (e *Executor) QueueLen() int {
	return e.current().QueueLen()
}

// Config return the immutable pool configuration.
func (e *Executor) Config() workerpool.Config {
	return e.cfg
}

func (e *Executor) current() workerpool.WorkerPool {
	e.Lock()
	defer e.Unlock()
	return e.pool
}

// checkPool replace a generation which is shutting down or terminated.
func (e *Executor) checkPool() {
	if e.pool.IsShutdown() {
		e.renew()
	}
}

func (e *Executor) renew() {
	old := e.pool.ID()
	e.pool = e.newPool(e.cfg, e.logger)
	e.logger.Info(fmt.Sprintf("[Executor] generation[%s] is shut down, start generation[%s]", old, e.pool.ID()))
}
