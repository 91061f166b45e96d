package scheduler

import (
	"context"
	"sort"
	"sync"
)

// Queue tracks pending projects and releases them in the installed order.
type Queue struct {
	mu      sync.Mutex
	order   []string
	index   map[string]int
	pending map[string]struct{}
	waiters []chan string
}

// NewQueue returns an empty queue with no order installed.
func NewQueue() *Queue {
	return &Queue{
		index:   map[string]int{},
		pending: map[string]struct{}{},
	}
}

// UseOrder installs the project order. Pending flags survive the swap; a
// pending project that is not part of the order stays pending until an order
// includes it.
func (q *Queue) UseOrder(order []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.order = make([]string, 0, len(order))
	q.index = make(map[string]int, len(order))
	for _, id := range order {
		if id == "" {
			continue
		}
		if _, dup := q.index[id]; dup {
			continue
		}
		q.index[id] = len(q.order)
		q.order = append(q.order, id)
	}
	q.dispatchLocked()
}

// Order returns a copy of the installed order.
func (q *Queue) Order() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.order...)
}

// Add marks project pending. A parked consumer receives it directly when the
// project is part of the current order.
func (q *Queue) Add(project string) {
	if project == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[project]; ok {
		return
	}
	if _, ordered := q.index[project]; ordered && len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		w <- project
		return
	}
	q.pending[project] = struct{}{}
}

// Next returns the first pending project in order, waiting until one is
// available or ctx ends.
func (q *Queue) Next(ctx context.Context) (string, error) {
	q.mu.Lock()
	if project, ok := q.popLocked(); ok {
		q.mu.Unlock()
		return project, nil
	}
	w := make(chan string, 1)
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case project := <-w:
		return project, nil
	case <-ctx.Done():
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.dropWaiterLocked(w) {
			return "", ctx.Err()
		}
		// Handed a project while cancelling; keep it pending for the next consumer.
		project := <-w
		q.pending[project] = struct{}{}
		q.dispatchLocked()
		return "", ctx.Err()
	}
}

// TryNext returns the first pending project in order without waiting.
func (q *Queue) TryNext() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Remaining returns the number of pending projects, ordered or not.
func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Pending returns the pending projects in order, followed by any pending
// projects missing from the order.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.pending))
	for _, id := range q.order {
		if _, ok := q.pending[id]; ok {
			out = append(out, id)
		}
	}
	var unordered []string
	for id := range q.pending {
		if _, ordered := q.index[id]; !ordered {
			unordered = append(unordered, id)
		}
	}
	sort.Strings(unordered)
	return append(out, unordered...)
}

func (q *Queue) popLocked() (string, bool) {
	if len(q.pending) == 0 {
		return "", false
	}
	for _, id := range q.order {
		if _, ok := q.pending[id]; ok {
			delete(q.pending, id)
			return id, true
		}
	}
	return "", false
}

func (q *Queue) dispatchLocked() {
	for len(q.waiters) > 0 {
		project, ok := q.popLocked()
		if !ok {
			return
		}
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		w <- project
	}
}

func (q *Queue) dropWaiterLocked(target chan string) bool {
	for i, w := range q.waiters {
		if w == target {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}
