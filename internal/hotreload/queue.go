package hotreload

import (
	"context"
	"slices"
	"sync"

	"github.com/schaermu/mcbuild/internal/config"
)

// job is one pending action plus every changed path that asked for it
type job struct {
	action config.Action
	paths  []string
}

// actionQueue serializes action execution. While an action is queued and
// not yet started, further requests for the same action fold into it.
type actionQueue struct {
	mu      sync.Mutex // guards pending
	pending []*job
	wake    chan struct{}
}

func newActionQueue() *actionQueue {
	return &actionQueue{wake: make(chan struct{}, 1)}
}

// push never blocks
func (q *actionQueue) push(action config.Action, path string) {
	q.mu.Lock()
	merged := false
	for _, j := range q.pending {
		if j.action == action {
			if !slices.Contains(j.paths, path) {
				j.paths = append(j.paths, path)
			}
			merged = true
			break
		}
	}
	if !merged {
		q.pending = append(q.pending, &job{action: action, paths: []string{path}})
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *actionQueue) pop() *job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	j := q.pending[0]
	q.pending = q.pending[1:]
	return j
}

// serve runs jobs in order until ctx is cancelled or stop is closed.
// After stop, whatever is still queued is run before returning.
func (q *actionQueue) serve(ctx context.Context, stop <-chan struct{}, run func(context.Context, *job)) {
	drain := func() {
		for j := q.pop(); j != nil; j = q.pop() {
			if ctx.Err() != nil {
				return
			}
			run(ctx, j)
		}
	}

	for {
		drain()
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-stop:
			drain()
			return
		}
	}
}
