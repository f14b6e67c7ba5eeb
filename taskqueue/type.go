package taskqueue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Offer once the queue stops admitting tasks.
var ErrClosed = errors.New("task queue closed")

// Task is a unit of work without return value. ctx is cancelled when the
// pool generation executing the task is shut down.
type Task func(ctx context.Context)
