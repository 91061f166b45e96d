// Package builder runs the external type-check and bundle steps for one
// project. The engine drives it through a lifecycle controller: Open starts a
// build and the returned handle's Close aborts it.
package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kingrea/weft/internal/workflow"
)

// Mode selects between a one-shot build and a long-running watch process.
type Mode string

const (
	ModeOnce  Mode = "once"
	ModeWatch Mode = "watch"
)

// ErrAborted is reported by a handle that was closed before its build finished.
var ErrAborted = errors.New("builder: build aborted")

// Job describes one build request.
type Job struct {
	ID       string
	Project  string
	Dir      string
	Mode     Mode
	Commands workflow.BuildCommands
	Reasons  []string
}

// Handle is a running build.
type Handle interface {
	// Done is closed once the build has exited.
	Done() <-chan struct{}
	// Err returns the exit error after Done is closed.
	Err() error
	// Close aborts the build and waits for it to exit.
	Close(ctx context.Context) error
}

// Builder starts builds.
type Builder interface {
	Open(ctx context.Context, job Job) (Handle, error)
}

// Func adapts a blocking build function into a Builder. The function runs on
// its own goroutine and receives a context cancelled by Close.
type Func func(ctx context.Context, job Job) error

// Open starts f in the background.
func (f Func) Open(ctx context.Context, job Job) (Handle, error) {
	if f == nil {
		return nil, fmt.Errorf("builder: nil build func for %s", job.Project)
	}
	return Go(ctx, func(runCtx context.Context) error { return f(runCtx, job) }), nil
}

// Go runs fn on a new goroutine and returns a handle for it. The context
// handed to fn is detached from ctx's cancellation so the build outlives the
// opener call; only Close cancels it.
func Go(ctx context.Context, fn func(context.Context) error) Handle {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &runHandle{done: make(chan struct{}), cancel: cancel}
	go func() {
		err := fn(runCtx)
		if err != nil && runCtx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrAborted, err)
		}
		h.finish(err)
	}()
	return h
}

type runHandle struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (h *runHandle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	h.cancel()
	close(h.done)
}

func (h *runHandle) Done() <-chan struct{} {
	return h.done
}

func (h *runHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *runHandle) Close(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("builder: wait for exit: %w", ctx.Err())
	}
}

func describe(argv []string) string {
	return strings.Join(argv, " ")
}
