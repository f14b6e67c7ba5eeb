package trigger

import (
	"context"
	"fmt"
	"time"

	"realtime/utils"

	"go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

var maxBackOff = 30

// WatchEtcd apply the params stored at key, then every later put of key.
// A lost watch is re-established with Fibonacci backoff. It blocks until ctx
// is done.
func WatchEtcd(ctx context.Context, client *clientv3.Client, key string, logger *zap.Logger, handle func(Params)) error {
	resp, err := client.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("trigger: get %s: %w", key, err)
	}
	for _, kv := range resp.Kvs {
		apply(logger, key, kv.Value, handle)
	}

	w := &watcher{
		client: client,
		key:    key,
		logger: logger,
		handle: handle,
		rev:    resp.Header.Revision,
	}

	backOff := 1
	for {
		if w.watch(ctx) {
			backOff = 1
		}
		if ctx.Err() != nil {
			logger.Info(fmt.Sprintf("[Trigger] etcd watch key[%s] exit", key))
			return nil
		}

		logger.Warn(fmt.Sprintf("[Trigger] etcd watch key[%s] lost, retry after %ds", key, backOff))
		tick := time.NewTimer(time.Duration(backOff) * time.Second)
		select {
		case <-ctx.Done():
			tick.Stop()
			return nil
		case <-tick.C:
			backOff = utils.BackOff(backOff, maxBackOff)
		}
	}
}

type watcher struct {
	client *clientv3.Client
	key    string
	logger *zap.Logger
	handle func(Params)

	// rev is the last revision seen.
	rev int64
}

// watch consume one watch channel until it closes, it reports whether any
// response was received.
func (w *watcher) watch(ctx context.Context) bool {
	ctx, cancel := context.WithCancel(clientv3.WithRequireLeader(ctx))
	defer cancel()

	received := false
	for resp := range w.client.Watch(ctx, w.key, clientv3.WithRev(w.rev+1)) {
		received = true
		if resp.CompactRevision != 0 {
			w.logger.Warn(fmt.Sprintf("[Trigger] etcd watch key[%s] compacted at %d", w.key, resp.CompactRevision))
			w.rev = resp.CompactRevision - 1
			return received
		}
		if err := resp.Err(); err != nil {
			w.logger.Error(fmt.Sprintf("[Trigger] etcd watch key[%s]", w.key), zap.Error(err))
			return received
		}

		for _, ev := range resp.Events {
			w.rev = ev.Kv.ModRevision
			if ev.Type == clientv3.EventTypePut {
				apply(w.logger, w.key, ev.Kv.Value, w.handle)
			}
		}
	}
	return received
}

func apply(logger *zap.Logger, key string, value []byte, handle func(Params)) {
	p, err := Decode(value)
	if err != nil {
		logger.Error(fmt.Sprintf("[Trigger] etcd key[%s] value[%s]", key, string(value)), zap.Error(err))
		return
	}
	handle(p)
}
