package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func settle[R comparable](t *testing.T, c *Controller[R]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func trackingOpener(log *eventLog, hold time.Duration) Opener[string] {
	return func(_ context.Context, _ []string) (Closer[string], error) {
		log.add("open:begin")
		time.Sleep(hold)
		log.add("open:end")
		return func(_ context.Context, _ []string) error {
			log.add("close:begin")
			time.Sleep(hold)
			log.add("close:end")
			return nil
		}, nil
	}
}

func TestStartOpensAndCloseCloses(t *testing.T) {
	t.Parallel()
	log := &eventLog{}
	c, err := New("basic", trackingOpener(log, 0), WithDebounce(0))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c.Start("boot")
	settle(t, c)
	if c.State() != StateOpened {
		t.Fatalf("state = %s, want opened", c.State())
	}
	c.Start("again")
	settle(t, c)
	c.Close("done")
	settle(t, c)
	c.Close("again")
	settle(t, c)
	if c.State() != StateClosed {
		t.Fatalf("state = %s, want closed", c.State())
	}
	want := []string{"open:begin", "open:end", "close:begin", "close:end"}
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestRestartClosesBeforeOpening(t *testing.T) {
	t.Parallel()
	log := &eventLog{}
	c, err := New("restart", trackingOpener(log, 2*time.Millisecond), WithDebounce(0))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c.Start("boot")
	settle(t, c)
	for i := 0; i < 10; i++ {
		c.Restart("change")
		time.Sleep(time.Millisecond)
	}
	settle(t, c)
	if c.State() != StateOpened {
		t.Fatalf("state = %s, want opened", c.State())
	}
	events := log.snapshot()
	open := false
	for i, e := range events {
		switch e {
		case "open:begin":
			if open {
				t.Fatalf("opener started while resource was open at %d: %v", i, events)
			}
		case "open:end":
			open = true
		case "close:begin":
			if !open {
				t.Fatalf("closer ran without an open resource at %d: %v", i, events)
			}
		case "close:end":
			open = false
		}
	}
	if events[len(events)-1] != "open:end" {
		t.Fatalf("expected final event open:end, got %v", events)
	}
}

func TestOpenerFailureFallsBackToClosed(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var transitions []Transition
	var mu sync.Mutex
	c, err := New("failing", func(context.Context, []string) (Closer[string], error) {
		return nil, boom
	}, WithDebounce(0), WithObserver(func(tr Transition) {
		mu.Lock()
		transitions = append(transitions, tr)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c.Start("boot")
	settle(t, c)
	if c.State() != StateClosed {
		t.Fatalf("state = %s, want closed", c.State())
	}
	if !errors.Is(c.LastError(), boom) {
		t.Fatalf("last error = %v, want boom", c.LastError())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 || transitions[1].To != StateClosed || !errors.Is(transitions[1].Err, boom) {
		t.Fatalf("unexpected transitions %+v", transitions)
	}
}

func TestCloseReceivesAccumulatedReasons(t *testing.T) {
	t.Parallel()
	got := make(chan []string, 1)
	c, err := New("reasons", func(context.Context, []string) (Closer[string], error) {
		return func(_ context.Context, reasons []string) error {
			got <- reasons
			return nil
		}, nil
	}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c.Start("boot")
	settle(t, c)
	c.Close("a")
	c.Close("b")
	settle(t, c)
	select {
	case reasons := <-got:
		if len(reasons) != 2 || reasons[0] != "a" || reasons[1] != "b" {
			t.Fatalf("close reasons = %v, want [a b]", reasons)
		}
	default:
		t.Fatalf("closer was not invoked")
	}
}

func TestStartCancelsQueuedClose(t *testing.T) {
	t.Parallel()
	log := &eventLog{}
	c, err := New("cancel-close", trackingOpener(log, 0), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c.Start("boot")
	settle(t, c)
	c.Close("maybe")
	c.Start("never mind")
	settle(t, c)
	if c.State() != StateOpened {
		t.Fatalf("state = %s, want opened", c.State())
	}
	for _, e := range log.snapshot() {
		if e == "close:begin" {
			t.Fatalf("close should have been cancelled by start")
		}
	}
}

func TestNewRequiresOpener(t *testing.T) {
	if _, err := New[string]("nil", nil); err == nil {
		t.Fatalf("expected error for nil opener")
	}
}

func TestCommandQueue(t *testing.T) {
	var q commandQueue[string]
	q.close("stop")
	q.start("boot")
	if len(q.cmds) != 1 || q.cmds[0] != cmdOpen {
		t.Fatalf("start should replace bare close, got %v", q.cmds)
	}
	if len(q.closeReasons) != 0 {
		t.Fatalf("start should drop the cancelled close reasons, got %v", q.closeReasons)
	}
	q.restart("cfg")
	q.start("boot")
	if len(q.cmds) != 2 || q.cmds[0] != cmdClose || q.cmds[1] != cmdOpen {
		t.Fatalf("start after restart should keep close-then-open, got %v", q.cmds)
	}
	q.close("stop")
	if len(q.cmds) != 1 || q.cmds[0] != cmdClose {
		t.Fatalf("close should drop queued open, got %v", q.cmds)
	}
	b := q.take()
	if len(b.closeReasons) != 2 || b.closeReasons[0] != "cfg" || b.closeReasons[1] != "stop" {
		t.Fatalf("close reasons = %v, want [cfg stop]", b.closeReasons)
	}
	if len(q.cmds) != 0 || len(q.openReasons) != 0 || len(q.closeReasons) != 0 {
		t.Fatalf("take should empty the queue, got %+v", q)
	}
}

func TestRestartDuringOpenUsesItsOwnReasons(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var opens, closes [][]string
	opening := make(chan struct{}, 2)
	c, err := New("late-restart", func(_ context.Context, reasons []string) (Closer[string], error) {
		mu.Lock()
		opens = append(opens, append([]string(nil), reasons...))
		mu.Unlock()
		opening <- struct{}{}
		time.Sleep(50 * time.Millisecond)
		return func(_ context.Context, reasons []string) error {
			mu.Lock()
			closes = append(closes, append([]string(nil), reasons...))
			mu.Unlock()
			return nil
		}, nil
	}, WithDebounce(0))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c.Start("boot")
	<-opening
	c.Restart("cfg")
	settle(t, c)

	mu.Lock()
	defer mu.Unlock()
	if len(opens) != 2 || len(opens[0]) != 1 || opens[0][0] != "boot" || len(opens[1]) != 1 || opens[1][0] != "cfg" {
		t.Fatalf("open reasons = %v, want [[boot] [cfg]]", opens)
	}
	if len(closes) != 1 || len(closes[0]) != 1 || closes[0][0] != "cfg" {
		t.Fatalf("close reasons = %v, want [[cfg]]", closes)
	}
}

func TestRestartAfterSkipsDebounce(t *testing.T) {
	t.Parallel()
	log := &eventLog{}
	c, err := New("immediate", trackingOpener(log, 0), WithDebounce(time.Hour))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c.RestartAfter("build", 0)
	settle(t, c)
	if c.State() != StateOpened {
		t.Fatalf("state = %s, want opened", c.State())
	}
}
