package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) record(reasons []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := append([]string(nil), reasons...)
	r.calls = append(r.calls, clone)
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func waitIdle[R comparable](t *testing.T, l *Loop[R]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("wait idle: %v", err)
	}
}

func TestBurstWithinDebounceRunsOnce(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	l := New("burst", func(_ context.Context, reasons []string) error {
		rec.record(reasons)
		return nil
	}, WithDebounce(50*time.Millisecond))
	for i := 0; i < 5; i++ {
		l.Trigger(fmt.Sprintf("r%d", i))
	}
	if got := l.State(); got != StateWaiting {
		t.Fatalf("state during debounce = %s, want %s", got, StateWaiting)
	}
	waitIdle(t, l)
	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected one run, got %d", len(calls))
	}
	if len(calls[0]) == 0 || len(calls[0]) > 5 {
		t.Fatalf("unexpected reasons %v", calls[0])
	}
}

func TestTriggersDuringRunCoalesceIntoOneFollowUp(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	started := make(chan struct{})
	release := make(chan struct{})
	var first atomic.Bool
	first.Store(true)
	l := New("coalesce", func(_ context.Context, reasons []string) error {
		rec.record(reasons)
		if first.CompareAndSwap(true, false) {
			close(started)
			<-release
		}
		return nil
	})
	l.Trigger("initial")
	<-started
	for i := 0; i < 4; i++ {
		l.Trigger(fmt.Sprintf("during-%d", i))
	}
	l.Trigger("during-0")
	if got := l.State(); got != StateRunningWithPending {
		t.Fatalf("state = %s, want %s", got, StateRunningWithPending)
	}
	close(release)
	waitIdle(t, l)
	calls := rec.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected two runs, got %d: %v", len(calls), calls)
	}
	want := []string{"during-0", "during-1", "during-2", "during-3"}
	if len(calls[1]) != len(want) {
		t.Fatalf("follow-up reasons = %v, want %v", calls[1], want)
	}
	for i := range want {
		if calls[1][i] != want[i] {
			t.Fatalf("follow-up reasons = %v, want %v", calls[1], want)
		}
	}
}

func TestRunsNeverOverlap(t *testing.T) {
	t.Parallel()
	var active, maxActive int32
	l := New("exclusive", func(_ context.Context, _ []int) error {
		now := atomic.AddInt32(&active, 1)
		for {
			prev := atomic.LoadInt32(&maxActive)
			if now <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, now) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Trigger(g*100 + i)
			}
		}(g)
	}
	wg.Wait()
	waitIdle(t, l)
	if atomic.LoadInt32(&maxActive) != 1 {
		t.Fatalf("observed %d concurrent runs", maxActive)
	}
}

func TestFailureIsLoggedAndLoopRecovers(t *testing.T) {
	t.Parallel()
	logger := &captureLogger{}
	var calls int32
	l := New("failing", func(_ context.Context, _ []string) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("boom")
		}
		return nil
	}, WithLogger(logger))
	l.Trigger("a")
	waitIdle(t, l)
	if l.State() != StateIdle {
		t.Fatalf("loop should return to idle after a failure")
	}
	l.Trigger("b")
	waitIdle(t, l)
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.lines) != 1 {
		t.Fatalf("expected one logged failure, got %v", logger.lines)
	}
}

func TestRunHookReportsReasonCount(t *testing.T) {
	t.Parallel()
	var got int32
	l := New("hook", func(_ context.Context, _ []string) error { return nil },
		WithDebounce(10*time.Millisecond),
		WithRunHook(func(n int, _ error) { atomic.StoreInt32(&got, int32(n)) }))
	l.Trigger("x")
	l.Trigger("y")
	l.Trigger("x")
	waitIdle(t, l)
	if atomic.LoadInt32(&got) != 2 {
		t.Fatalf("hook reason count = %d, want 2", got)
	}
	if l.Runs() != 1 {
		t.Fatalf("runs = %d, want 1", l.Runs())
	}
}
