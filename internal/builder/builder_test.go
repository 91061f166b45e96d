package builder

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFuncHandleReportsResult(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	h, err := Func(func(context.Context, Job) error { return boom }).Open(context.Background(), Job{Project: "app"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("build did not finish")
	}
	if !errors.Is(h.Err(), boom) {
		t.Fatalf("err = %v, want boom", h.Err())
	}
}

func TestCloseAbortsRunningBuild(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	h, err := Func(func(ctx context.Context, _ Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}).Open(context.Background(), Job{Project: "app"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	<-started
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !errors.Is(h.Err(), ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", h.Err())
	}
}

func TestOpenerContextDoesNotCancelBuild(t *testing.T) {
	t.Parallel()
	openCtx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	h, err := Func(func(ctx context.Context, _ Job) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}).Open(openCtx, Job{Project: "app"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cancel()
	close(release)
	<-h.Done()
	if h.Err() != nil {
		t.Fatalf("build should survive opener cancellation, got %v", h.Err())
	}
}

func TestStepsRequireCommands(t *testing.T) {
	b := NewCommandBuilder()
	if _, err := b.Open(context.Background(), Job{Project: "app"}); err == nil {
		t.Fatalf("expected error without build commands")
	}
	if _, err := b.Open(context.Background(), Job{Project: "app", Mode: ModeWatch}); err == nil {
		t.Fatalf("expected error without watch command")
	}
	if _, err := b.Open(context.Background(), Job{Project: "app", Mode: "later"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
