// Package lifecycle drives a long-running resource through an open/close state
// machine. Start, Close and Restart requests are queued as commands and
// applied by a serialized loop, so an opener and its closer never overlap and
// a restart always finishes closing before it opens again.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kingrea/weft/internal/loop"
)

// State enumerates controller phases.
type State string

const (
	StateClosed  State = "closed"
	StateOpening State = "opening"
	StateOpened  State = "opened"
	StateClosing State = "closing"
)

// DefaultDebounce coalesces bursts of lifecycle requests.
const DefaultDebounce = 500 * time.Millisecond

// Closer tears the resource down. It receives the reasons passed to Close or
// Restart since the resource was opened.
type Closer[R comparable] func(ctx context.Context, reasons []R) error

// Opener sets the resource up and returns its Closer.
type Opener[R comparable] func(ctx context.Context, reasons []R) (Closer[R], error)

// Logger records lifecycle failures. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Transition describes a single state change.
type Transition struct {
	From State
	To   State
	Err  error
}

// Controller owns one resource and its command queue.
type Controller[R comparable] struct {
	title    string
	opener   Opener[R]
	logger   Logger
	observer func(Transition)

	mu      sync.Mutex
	state   State
	queue   commandQueue[R]
	closer  Closer[R]
	lastErr error

	loop *loop.Loop[R]
}

// Option customizes a Controller.
type Option func(*settings)

type settings struct {
	logger   Logger
	debounce time.Duration
	ctx      context.Context
	observer func(Transition)
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithContext sets the context passed to the opener and closer.
func WithContext(ctx context.Context) Option {
	return func(s *settings) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// WithObserver registers fn to receive every state transition.
func WithObserver(fn func(Transition)) Option {
	return func(s *settings) {
		s.observer = fn
	}
}

// New creates a closed controller around opener.
func New[R comparable](title string, opener Opener[R], opts ...Option) (*Controller[R], error) {
	if opener == nil {
		return nil, fmt.Errorf("lifecycle: %s requires an opener", title)
	}
	cfg := settings{
		logger:   nopLogger{},
		debounce: DefaultDebounce,
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	c := &Controller[R]{
		title:    title,
		opener:   opener,
		logger:   cfg.logger,
		observer: cfg.observer,
		state:    StateClosed,
	}
	c.loop = loop.New(title, c.apply,
		loop.WithDebounce(cfg.debounce),
		loop.WithLogger(cfg.logger),
		loop.WithContext(cfg.ctx),
	)
	return c, nil
}

// Start requests the resource be opened.
func (c *Controller[R]) Start(reason R) {
	c.mu.Lock()
	c.queue.start(reason)
	c.mu.Unlock()
	c.loop.Trigger(reason)
}

// Close requests the resource be closed.
func (c *Controller[R]) Close(reason R) {
	c.mu.Lock()
	c.queue.close(reason)
	c.mu.Unlock()
	c.loop.Trigger(reason)
}

// CloseAfter is Close with an explicit debounce.
func (c *Controller[R]) CloseAfter(reason R, debounce time.Duration) {
	c.mu.Lock()
	c.queue.close(reason)
	c.mu.Unlock()
	c.loop.TriggerAfter(reason, debounce)
}

// Restart requests a full close followed by an open.
func (c *Controller[R]) Restart(reason R) {
	c.mu.Lock()
	c.queue.restart(reason)
	c.mu.Unlock()
	c.loop.Trigger(reason)
}

// RestartAfter is Restart with an explicit debounce, used by one-shot builds
// that have nothing to coalesce.
func (c *Controller[R]) RestartAfter(reason R, debounce time.Duration) {
	c.mu.Lock()
	c.queue.restart(reason)
	c.mu.Unlock()
	c.loop.TriggerAfter(reason, debounce)
}

// State reports the current phase.
func (c *Controller[R]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent opener or closer failure. A successful
// open clears it.
func (c *Controller[R]) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Wait blocks until every queued command has been applied or ctx ends.
func (c *Controller[R]) Wait(ctx context.Context) error {
	return c.loop.Wait(ctx)
}

// apply runs the commands queued before this run started. Requests that
// arrive while it runs keep their own reasons and trigger the next run.
func (c *Controller[R]) apply(ctx context.Context, _ []R) error {
	c.mu.Lock()
	b := c.queue.take()
	c.mu.Unlock()
	for _, cmd := range b.cmds {
		switch cmd {
		case cmdOpen:
			c.open(ctx, b.openReasons)
		case cmdClose:
			c.shut(ctx, b.closeReasons)
		default:
			panic(fmt.Sprintf("lifecycle: %s: unknown command %q", c.title, cmd))
		}
	}
	return nil
}

func (c *Controller[R]) open(ctx context.Context, reasons []R) {
	if !c.transition(StateClosed, StateOpening, nil) {
		return
	}
	closer, err := c.opener(ctx, reasons)
	if err != nil {
		c.logger.Printf("lifecycle %s: open failed: %v", c.title, err)
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.transition(StateOpening, StateClosed, err)
		return
	}
	c.mu.Lock()
	c.closer = closer
	c.lastErr = nil
	c.mu.Unlock()
	c.transition(StateOpening, StateOpened, nil)
}

func (c *Controller[R]) shut(ctx context.Context, reasons []R) {
	if !c.transition(StateOpened, StateClosing, nil) {
		return
	}
	c.mu.Lock()
	closer := c.closer
	c.closer = nil
	c.mu.Unlock()
	var err error
	if closer != nil {
		err = closer(ctx, reasons)
	}
	if err != nil {
		c.logger.Printf("lifecycle %s: close failed: %v", c.title, err)
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
	}
	c.transition(StateClosing, StateClosed, err)
}

func (c *Controller[R]) transition(from, to State, err error) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	observer := c.observer
	c.mu.Unlock()
	if observer != nil {
		observer(Transition{From: from, To: to, Err: err})
	}
	return true
}
