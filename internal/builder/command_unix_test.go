//go:build !windows

package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/weft/internal/workflow"
)

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureLogger) Printf(format string, args ...any) {
	c.mu.Lock()
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
	c.mu.Unlock()
}

func (c *captureLogger) contains(s string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range c.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func TestCommandBuilderRunsStepsInOrder(t *testing.T) {
	t.Parallel()
	log := &captureLogger{}
	b := NewCommandBuilder(WithLogger(log))
	h, err := b.Open(context.Background(), Job{
		Project: "app",
		Dir:     t.TempDir(),
		Commands: workflow.BuildCommands{
			Typecheck: []string{"sh", "-c", "echo checked"},
			Bundle:    []string{"sh", "-c", "echo bundled for $WEFT_PROJECT"},
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("build did not finish")
	}
	if h.Err() != nil {
		t.Fatalf("build failed: %v", h.Err())
	}
	if !log.contains("checked") || !log.contains("bundled for app") {
		t.Fatalf("missing process output in %v", log.lines)
	}
}

func TestCommandBuilderStopsAfterFailedStep(t *testing.T) {
	t.Parallel()
	log := &captureLogger{}
	h, err := NewCommandBuilder(WithLogger(log)).Open(context.Background(), Job{
		Project: "app",
		Dir:     t.TempDir(),
		Commands: workflow.BuildCommands{
			Typecheck: []string{"sh", "-c", "exit 3"},
			Bundle:    []string{"sh", "-c", "echo unreachable"},
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	<-h.Done()
	if h.Err() == nil {
		t.Fatalf("expected typecheck failure")
	}
	if log.contains("unreachable") {
		t.Fatalf("bundle ran after failed typecheck")
	}
}

func TestCommandBuilderCloseStopsWatch(t *testing.T) {
	t.Parallel()
	h, err := NewCommandBuilder(WithGracePeriod(200*time.Millisecond)).Open(context.Background(), Job{
		Project:  "app",
		Dir:      t.TempDir(),
		Mode:     ModeWatch,
		Commands: workflow.BuildCommands{Watch: []string{"sleep", "30"}},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !errors.Is(h.Err(), ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", h.Err())
	}
}
