package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func nextWithin(t *testing.T, q *Queue) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	project, err := q.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	return project
}

func TestQueueYieldsPendingInInstalledOrder(t *testing.T) {
	q := NewQueue()
	for _, p := range []string{"B", "A", "C"} {
		q.Add(p)
	}
	q.UseOrder([]string{"A", "B", "C"})
	for _, want := range []string{"A", "B", "C"} {
		if got := nextWithin(t, q); got != want {
			t.Fatalf("next = %s, want %s", got, want)
		}
	}
	if q.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", q.Remaining())
	}
}

func TestQueueAddIsIdempotent(t *testing.T) {
	q := NewQueue()
	q.UseOrder([]string{"A", "B"})
	q.Add("B")
	q.Add("B")
	q.Add("A")
	if q.Remaining() != 2 {
		t.Fatalf("remaining = %d, want 2", q.Remaining())
	}
	if got := nextWithin(t, q); got != "A" {
		t.Fatalf("next = %s, want A", got)
	}
	if got := nextWithin(t, q); got != "B" {
		t.Fatalf("next = %s, want B", got)
	}
	if _, ok := q.TryNext(); ok {
		t.Fatalf("expected queue to be drained")
	}
}

func TestQueueReorderKeepsPendingFlags(t *testing.T) {
	q := NewQueue()
	q.UseOrder([]string{"A", "B", "C"})
	q.Add("C")
	q.Add("A")
	q.UseOrder([]string{"C", "B", "A"})
	if got := q.Pending(); len(got) != 2 || got[0] != "C" || got[1] != "A" {
		t.Fatalf("pending = %v, want [C A]", got)
	}
	if got := nextWithin(t, q); got != "C" {
		t.Fatalf("next = %s, want C", got)
	}
}

func TestQueueWakesParkedConsumer(t *testing.T) {
	q := NewQueue()
	q.UseOrder([]string{"A", "B"})
	got := make(chan string, 1)
	go func() {
		project, err := q.Next(context.Background())
		if err == nil {
			got <- project
		}
	}()
	time.Sleep(10 * time.Millisecond)
	q.Add("B")
	select {
	case project := <-got:
		if project != "B" {
			t.Fatalf("woken with %s, want B", project)
		}
	case <-time.After(time.Second):
		t.Fatalf("parked consumer was not woken")
	}
	if q.Remaining() != 0 {
		t.Fatalf("direct hand-off should not leave a pending flag")
	}
}

func TestQueueUnorderedProjectWaitsForOrder(t *testing.T) {
	q := NewQueue()
	q.UseOrder([]string{"A"})
	q.Add("Z")
	if _, ok := q.TryNext(); ok {
		t.Fatalf("project outside the order must not be handed out")
	}
	got := make(chan string, 1)
	go func() {
		project, err := q.Next(context.Background())
		if err == nil {
			got <- project
		}
	}()
	time.Sleep(10 * time.Millisecond)
	q.UseOrder([]string{"A", "Z"})
	select {
	case project := <-got:
		if project != "Z" {
			t.Fatalf("got %s, want Z", project)
		}
	case <-time.After(time.Second):
		t.Fatalf("installing an order should release waiting consumers")
	}
}

func TestQueueNextHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	q.UseOrder([]string{"A"})
	q.Add("A")
	if got := nextWithin(t, q); got != "A" {
		t.Fatalf("cancelled waiter should not swallow later adds, got %s", got)
	}
}
