package devices

import (
	"context"
	"sync"
)

// refresher coalesces folder refresh tasks. If a refresh for a folder is
// already queued when another arrives, the second is a no-op; the queued
// task will observe the latest state when it runs.
type refresher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending map[string]struct{}
	queue   []string
	closed  bool
}

func newRefresher() *refresher {
	r := &refresher{pending: make(map[string]struct{})}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// enqueue schedules a refresh for folderID unless one is already queued.
func (r *refresher) enqueue(folderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, ok := r.pending[folderID]; ok {
		return
	}
	r.pending[folderID] = struct{}{}
	r.queue = append(r.queue, folderID)
	r.cond.Signal()
}

// run executes refresh tasks until the context is cancelled. The pending
// mark is cleared before fn runs so refreshes arriving mid-run requeue.
func (r *refresher) run(ctx context.Context, fn func(folderID string)) {
	go func() {
		<-ctx.Done()
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		r.cond.Broadcast()
	}()

	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if r.closed {
			r.mu.Unlock()
			return
		}
		folderID := r.queue[0]
		r.queue = r.queue[1:]
		delete(r.pending, folderID)
		r.mu.Unlock()

		fn(folderID)
	}
}
