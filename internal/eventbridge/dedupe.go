package eventbridge

import "sync"

const defaultDedupeWindow = 1024

// dedupe remembers the most recent event IDs so retried posts are applied
// once.
type dedupe struct {
	mu     sync.Mutex
	window int
	seen   map[string]struct{}
	order  []string
}

func newDedupe(window int) *dedupe {
	if window <= 0 {
		window = defaultDedupeWindow
	}
	return &dedupe{
		window: window,
		seen:   map[string]struct{}{},
		order:  make([]string, 0, window),
	}
}

// duplicate records id and reports whether it was already in the window.
func (d *dedupe) duplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	if len(d.order) > d.window {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	return false
}
