package taskqueue

import "sync"

// Queue is a bounded FIFO of not yet started tasks. When it is full a new
// task is admitted by dropping the oldest resident task, so Offer never
// blocks and never rejects because of capacity.
type Queue struct {
	mx sync.Mutex

	closed bool
	tasks  chan Task
}

// New create a Queue holding at most capacity tasks.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		tasks: make(chan Task, capacity),
	}
}

// Offer append task at the tail, evicting from the head while the queue is
// full. It returns how many tasks were evicted.
func (q *Queue) Offer(task Task) (int, error) {
	q.mx.Lock()
	defer q.mx.Unlock()

	if q.closed {
		return 0, ErrClosed
	}

	evicted := 0
	for {
		select {
		case q.tasks <- task:
			return evicted, nil
		default:
		}

		select {
		case <-q.tasks:
			evicted++
		default:
			// a worker took the head in between, retry the append.
		}
	}
}

// C return the channel workers dequeue from. It is closed by Close.
func (q *Queue) C() <-chan Task {
	return q.tasks
}

// Len return the number of resident tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Cap return the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.tasks)
}

// Close stop admission and return the tasks that were still resident, in
// FIFO order.
// Receivers on C observe a closed channel afterwards.
func (q *Queue) Close() []Task {
	q.mx.Lock()
	defer q.mx.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	tasks := q.drain()
	close(q.tasks)
	return tasks
}

func (q *Queue) drain() []Task {
	var tasks []Task
	for {
		select {
		case task, ok := <-q.tasks:
			if !ok {
				return tasks
			}
			tasks = append(tasks, task)
		default:
			return tasks
		}
	}
}
