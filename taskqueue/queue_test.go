package taskqueue

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder builds tasks which append their index when run.
type recorder struct {
	mx  sync.Mutex
	ran []int
}

func (r *recorder) task(i int) Task {
	return func(ctx context.Context) {
		r.mx.Lock()
		r.ran = append(r.ran, i)
		r.mx.Unlock()
	}
}

func (r *recorder) runAll(tasks []Task) []int {
	for _, task := range tasks {
		task(context.Background())
	}
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.ran
}

func TestDropOldest(t *testing.T) {
	q := New(3)
	r := &recorder{}

	evicted := 0
	for i := 1; i <= 5; i++ {
		n, err := q.Offer(r.task(i))
		require.NoError(t, err)
		evicted += n
	}

	require.Equal(t, 2, evicted)
	require.Equal(t, 3, q.Len())
	require.Equal(t, []int{3, 4, 5}, r.runAll(q.Close()))
	require.Equal(t, 0, q.Len())
}

func TestOfferWithFreeCapacity(t *testing.T) {
	q := New(3)
	r := &recorder{}

	for i := 1; i <= 2; i++ {
		n, err := q.Offer(r.task(i))
		require.NoError(t, err)
		require.Equal(t, 0, n)
	}
	require.Equal(t, []int{1, 2}, r.runAll(q.Close()))
}

func TestBound(t *testing.T) {
	q := New(3)
	for i := 0; i < 100; i++ {
		_, err := q.Offer(func(ctx context.Context) {})
		require.NoError(t, err)
		require.LessOrEqual(t, q.Len(), q.Cap())
	}
}

func TestBoundConcurrentProducers(t *testing.T) {
	q := New(3)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, _ = q.Offer(func(ctx context.Context) {})
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 3, q.Len())
}

func TestFIFODequeue(t *testing.T) {
	q := New(4)
	r := &recorder{}
	for i := 1; i <= 6; i++ {
		_, err := q.Offer(r.task(i))
		require.NoError(t, err)
	}

	for i := 0; i < 4; i++ {
		task := <-q.C()
		task(context.Background())
	}
	require.Equal(t, []int{3, 4, 5, 6}, r.ran)
}

func TestCapacityCoerced(t *testing.T) {
	require.Equal(t, 1, New(0).Cap())
	require.Equal(t, 1, New(-5).Cap())
}

func TestClose(t *testing.T) {
	q := New(3)
	r := &recorder{}
	for i := 1; i <= 2; i++ {
		_, err := q.Offer(r.task(i))
		require.NoError(t, err)
	}

	discarded := q.Close()
	require.Len(t, discarded, 2)
	require.Empty(t, r.ran, "discarded tasks must not run")

	_, err := q.Offer(r.task(3))
	require.ErrorIs(t, err, ErrClosed)

	_, ok := <-q.C()
	require.False(t, ok)

	require.Nil(t, q.Close())
}
