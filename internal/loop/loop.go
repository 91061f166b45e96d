// Package loop coalesces bursts of triggers into serialized recompute runs.
//
// A Loop wraps a function that must never run concurrently with itself. The
// first trigger of a burst starts a debounce timer; triggers that arrive while
// the loop is waiting or running are merged into the reason set of the next
// run. When a run finishes and reasons are queued, the loop runs again
// immediately without debouncing.
package loop

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State describes what a Loop is currently doing.
type State string

const (
	StateIdle               State = "idle"
	StateWaiting            State = "waiting"
	StateRunning            State = "running"
	StateRunningWithPending State = "running-with-pending"
)

// Func is invoked with the de-duplicated reasons collected since the previous run.
type Func[R comparable] func(ctx context.Context, reasons []R) error

// Logger records loop failures. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type options struct {
	debounce time.Duration
	logger   Logger
	ctx      context.Context
	onRun    func(reasons int, err error)
}

// Option customizes a Loop.
type Option func(*options)

// WithDebounce sets the default delay applied before the first run of a burst.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.debounce = d
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithContext sets the context handed to the wrapped function. Cancelling
// it also aborts a pending debounce wait.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithRunHook registers fn to observe every completed run.
func WithRunHook(fn func(reasons int, err error)) Option {
	return func(o *options) {
		o.onRun = fn
	}
}

// Loop serializes invocations of a Func.
type Loop[R comparable] struct {
	title string
	fn    Func[R]
	opts  options

	mu      sync.Mutex
	state   State
	pending *reasonSet[R]
	idle    chan struct{}
	runs    int
}

// New wraps fn. The title prefixes log lines.
func New[R comparable](title string, fn Func[R], opts ...Option) *Loop[R] {
	o := options{
		logger: nopLogger{},
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	idle := make(chan struct{})
	close(idle)
	return &Loop[R]{
		title: title,
		fn:    fn,
		opts:  o,
		state: StateIdle,
		idle:  idle,
	}
}

// Trigger merges reason into the next run using the default debounce.
func (l *Loop[R]) Trigger(reason R) {
	l.TriggerAfter(reason, l.opts.debounce)
}

// TriggerAfter merges reason into the next run. The debounce only applies
// when the loop is idle.
func (l *Loop[R]) TriggerAfter(reason R, debounce time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateIdle:
		l.pending = newReasonSet[R]()
		l.pending.add(reason)
		l.state = StateWaiting
		l.idle = make(chan struct{})
		go l.run(debounce)
	case StateRunning:
		l.pending.add(reason)
		l.state = StateRunningWithPending
	default:
		l.pending.add(reason)
	}
}

// State reports the loop's current state.
func (l *Loop[R]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Runs returns the number of completed invocations.
func (l *Loop[R]) Runs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runs
}

// Wait blocks until the loop is idle or ctx ends.
func (l *Loop[R]) Wait(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop[R]) run(debounce time.Duration) {
	if debounce > 0 {
		timer := time.NewTimer(debounce)
		select {
		case <-timer.C:
		case <-l.opts.ctx.Done():
			timer.Stop()
		}
	}
	for {
		l.mu.Lock()
		reasons := l.pending.list()
		l.pending = newReasonSet[R]()
		l.state = StateRunning
		l.mu.Unlock()

		l.invoke(reasons)

		l.mu.Lock()
		l.runs++
		if l.pending.len() == 0 {
			l.state = StateIdle
			l.pending = nil
			close(l.idle)
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
	}
}

func (l *Loop[R]) invoke(reasons []R) {
	var err error
	if l.fn != nil {
		err = l.fn(l.opts.ctx, reasons)
	}
	if err != nil {
		l.opts.logger.Printf("loop %s: run failed: %v", l.title, err)
	}
	if l.opts.onRun != nil {
		l.opts.onRun(len(reasons), err)
	}
}

// String renders the loop for log lines.
func (l *Loop[R]) String() string {
	return fmt.Sprintf("loop(%s)", l.title)
}
