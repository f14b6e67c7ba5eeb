package workerpool

import (
	"context"
	"time"

	"realtime/taskqueue"
)

// WorkerPool is one generation of workers fed by a drop-oldest task queue.
type WorkerPool interface {
	// Submit hand task to an idle worker or the queue, evicting the oldest
	// queued task when the queue is full. It never blocks, and only fails
	// with ErrPoolShutdown once ShutdownNow was called.
	Submit(task taskqueue.Task) error

	// ShutdownNow interrupt in-flight tasks and discard queued tasks.
	// It returns how many queued tasks were discarded.
	ShutdownNow() (int, error)

	// AwaitTermination block until every worker exits or ctx is done.
	AwaitTermination(ctx context.Context) error

	// State return the lifecycle state of this generation.
	State() State

	// IsShutdown report whether the generation stopped accepting tasks.
	IsShutdown() bool

	// Workers return the number of live workers.
	Workers() int

	// QueueLen return the number of queued, not yet started tasks.
	QueueLen() int

	// ID is uniquely identifies of this generation.
	ID() string
}

// State represent the lifecycle of a pool generation.
type State int32

const (
	// Active - accepting and executing tasks
	Active State = iota
	// ShuttingDown - in-flight tasks interrupted, waiting for workers to exit
	ShuttingDown
	// Terminated - no workers remain
	Terminated
)

func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Config describe the size of a pool generation.
type Config struct {
	// max number of queued tasks, default is 3.
	QueueSize int
	// workers kept alive until shutdown, default is 1.
	CoreSize int
	// max number of concurrent workers, default is 3.
	MaxSize int
	// idle time after which a worker above CoreSize exits, default is 60s.
	KeepAlive time.Duration
}

// DefaultConfig is the configuration used when nothing is specified.
var DefaultConfig = Config{
	QueueSize: 3,
	CoreSize:  1,
	MaxSize:   3,
	KeepAlive: 60 * time.Second,
}

func (c Config) normalize() Config {
	if c.QueueSize < 1 {
		c.QueueSize = 1
	}
	if c.CoreSize < 0 {
		c.CoreSize = 0
	}
	if c.MaxSize < 1 {
		c.MaxSize = 1
	}
	if c.MaxSize < c.CoreSize {
		c.MaxSize = c.CoreSize
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultConfig.KeepAlive
	}
	return c
}
