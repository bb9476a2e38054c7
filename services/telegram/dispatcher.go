package telegram

import (
	"context"
	"sync"
)

const defaultQueueSize = 16

type job struct {
	ctx    context.Context
	update Update
}

// dispatcher runs one worker per active user. A user's updates are handled
// in arrival order; different users run concurrently. A worker exits once
// its queue is empty.
type dispatcher struct {
	mu     sync.Mutex
	queues map[int64]chan job
	size   int
	handle func(ctx context.Context, u Update)
	wg     sync.WaitGroup
}

func newDispatcher(size int, handle func(ctx context.Context, u Update)) *dispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &dispatcher{
		queues: make(map[int64]chan job),
		size:   size,
		handle: handle,
	}
}

// dispatch queues u for user key. It reports false when that user's queue
// is full and the update was dropped.
func (d *dispatcher) dispatch(ctx context.Context, key int64, u Update) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, ok := d.queues[key]
	if !ok {
		q = make(chan job, d.size)
		d.queues[key] = q
		d.wg.Add(1)
		go d.run(key, q)
	}

	select {
	case q <- job{ctx: ctx, update: u}:
		return true
	default:
		return false
	}
}

func (d *dispatcher) run(key int64, q chan job) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		select {
		case j := <-q:
			d.mu.Unlock()
			// updates still queued at shutdown are dropped
			if j.ctx.Err() != nil {
				continue
			}
			d.handle(j.ctx, j.update)
		default:
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
	}
}

// active returns the number of users with a running worker
func (d *dispatcher) active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// wait blocks until every worker has exited
func (d *dispatcher) wait() {
	d.wg.Wait()
}
