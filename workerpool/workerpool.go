package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"realtime/metrics"
	"realtime/taskqueue"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPoolShutdown is returned when a generation no longer accepts tasks.
var ErrPoolShutdown = errors.New("worker pool is shut down")

// Pool defined goroutine pool, core workers live until shutdown while extra
// workers exit after sitting idle for KeepAlive.
type Pool struct {
	sync.RWMutex

	queue *taskqueue.Queue

	// ctx is cancelled by ShutdownNow to interrupt in-flight tasks.
	ctx    context.Context
	cancel context.CancelFunc

	state      State
	terminated chan struct{}

	// use for monitor pool status.
	uuid        string
	cfg         Config
	currentSize int
	idle        int32

	logger  *zap.Logger
	metrics *metrics.Metrics
}

type FuncOption func(*Pool)

// WithMetrics record pool activity to m.
func WithMetrics(m *metrics.Metrics) FuncOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

// NewPool create a new, active Pool generation.
func NewPool(cfg Config, logger *zap.Logger, options ...FuncOption) WorkerPool {
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		uuid:       uuid.New().String(),
		queue:      taskqueue.New(cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
		state:      Active,
		terminated: make(chan struct{}),
		cfg:        cfg,
		logger:     logger,
	}
	for _, option := range options {
		option(p)
	}
	p.metrics.GenerationCreated()
	return p
}

// Submit start a core worker for task while the pool is below CoreSize,
// else queue task and start an extra worker when queued tasks outnumber
// idle workers.
func (p *Pool) Submit(task taskqueue.Task) error {
	if task == nil {
		return nil
	}

	p.Lock()
	defer p.Unlock()

	if p.state != Active {
		return ErrPoolShutdown
	}

	if p.currentSize < p.cfg.CoreSize {
		p.add()
		go p.spawnWorker(task)
		return nil
	}

	evicted, err := p.queue.Offer(task)
	if err != nil {
		return ErrPoolShutdown
	}
	if evicted > 0 {
		p.metrics.TasksEvicted(evicted)
		p.logger.Debug(fmt.Sprintf("Pool[%s] queue full, drop %d oldest task.", p.uuid, evicted))
	}

	p.grow()
	return nil
}

// grow start an extra worker when queued tasks outnumber idle workers, must
// be called with the lock held.
func (p *Pool) grow() {
	if p.state == Active && p.queue.Len() > int(atomic.LoadInt32(&p.idle)) && p.currentSize < p.cfg.MaxSize {
		p.add()
		go p.spawnWorkerWithTimeout(nil, p.cfg.KeepAlive)
	}
}

// taken is called by a worker which just left the idle set. A concurrent
// Submit may have counted it as idle, so check again for queued tasks
// nobody will pick up.
func (p *Pool) taken() {
	atomic.AddInt32(&p.idle, -1)
	p.Lock()
	p.grow()
	p.Unlock()
}

// spawnWorker should never exit before shutdown, always try to acquire task from queue.
func (p *Pool) spawnWorker(task taskqueue.Task) {
	defer p.done()

	if task != nil {
		p.run(task)
	}

	for {
		atomic.AddInt32(&p.idle, 1)
		select {
		case job, ok := <-p.queue.C():
			if !ok {
				atomic.AddInt32(&p.idle, -1)
				return
			}
			p.taken()
			p.run(job)
		case <-p.ctx.Done():
			atomic.AddInt32(&p.idle, -1)
			return
		}
	}
}

// spawnWorkerWithTimeout execute task and waiting for
// timeout. If don`t receive task in timeout then return, else do task and reset timer.
func (p *Pool) spawnWorkerWithTimeout(task taskqueue.Task, timeout time.Duration) {
	defer p.done()

	if task != nil {
		p.run(task)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		atomic.AddInt32(&p.idle, 1)
		select {
		case <-timer.C:
			atomic.AddInt32(&p.idle, -1)
			// take a task queued while the timer fired, else retire.
			select {
			case job, ok := <-p.queue.C():
				if !ok {
					return
				}
				p.run(job)
				timer.Reset(timeout)
				continue
			default:
			}
			p.logger.Info(fmt.Sprintf("Pool[%s] size/current[%d/%d] idle worker retire after %s.",
				p.uuid, p.cfg.MaxSize, p.Workers(), timeout))
			return
		case job, ok := <-p.queue.C():
			if !ok {
				atomic.AddInt32(&p.idle, -1)
				return
			}
			p.taken()
			p.run(job)

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
		case <-p.ctx.Done():
			atomic.AddInt32(&p.idle, -1)
			return
		}
	}
}

// run execute task in its own recover boundary, a panicking task never
// takes its worker down.
func (p *Pool) run(task taskqueue.Task) {
	if p.ctx.Err() != nil {
		// dequeued concurrently with ShutdownNow, never started.
		p.metrics.TasksDiscarded(1)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.metrics.TaskFailed()
			p.logger.Error(
				fmt.Sprintf("Pool[%s] size/current[%d/%d] task exit with panic.", p.uuid, p.cfg.MaxSize, p.Workers()),
				zap.Any("Panic", r))
		}
	}()

	task(p.ctx)
	p.metrics.TaskExecuted()
}

// ShutdownNow interrupt in-flight tasks and discard the queued ones.
func (p *Pool) ShutdownNow() (int, error) {
	p.Lock()
	if p.state != Active {
		p.Unlock()
		return 0, ErrPoolShutdown
	}

	p.state = ShuttingDown
	discarded := len(p.queue.Close())
	p.cancel()
	current := p.currentSize
	if current == 0 {
		p.terminate()
	}
	p.Unlock()

	p.metrics.TasksDiscarded(discarded)
	p.logger.Info(fmt.Sprintf("Pool[%s] size/current[%d/%d] shutdown, discard %d queued task.",
		p.uuid, p.cfg.MaxSize, current, discarded))
	return discarded, nil
}

// AwaitTermination waiting for all workers exit.
func (p *Pool) AwaitTermination(ctx context.Context) error {
	select {
	case <-p.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) State() State {
	p.RLock()
	defer p.RUnlock()
	return p.state
}

func (p *Pool) IsShutdown() bool {
	return p.State() != Active
}

func (p *Pool) Workers() int {
	p.RLock()
	current := p.currentSize
	p.RUnlock()
	return current
}

func (p *Pool) QueueLen() int {
	return p.queue.Len()
}

func (p *Pool) ID() string {
	return p.uuid
}

// add must be called with the lock held.
func (p *Pool) add() {
	p.currentSize++
	p.metrics.WorkerStarted()
	p.logger.Debug(fmt.Sprintf("Pool[%s] size/current[%d/%d] create a worker for task execution.",
		p.uuid, p.cfg.MaxSize, p.currentSize))
}

func (p *Pool) done() {
	p.Lock()
	p.currentSize--
	if p.state == Active {
		// a retiring worker may have missed a task queued while it still
		// counted toward MaxSize.
		p.grow()
	}
	current := p.currentSize
	if current == 0 && p.state == ShuttingDown {
		p.terminate()
	}
	p.Unlock()

	p.metrics.WorkerExited()
	p.logger.Debug(fmt.Sprintf("Pool[%s] size/current[%d/%d] worker exit.", p.uuid, p.cfg.MaxSize, current))
}

// terminate must be called with the lock held.
func (p *Pool) terminate() {
	p.state = Terminated
	close(p.terminated)
	p.logger.Info(fmt.Sprintf("Pool[%s] terminated.", p.uuid))
}
