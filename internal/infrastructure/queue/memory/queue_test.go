package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

func testScheduler() *Scheduler {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// collect runs a subscriber until n tasks were handled or the deadline
// passes, returning the tasks in delivery order.
func collect(t *testing.T, s *Scheduler, class domain.QueueClass, n int, handle func(domain.Task) error) []domain.Task {
	t.Helper()

	var mu sync.Mutex
	var got []domain.Task
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Subscribe(ctx, class, func(_ context.Context, task domain.Task) error {
			var err error
			if handle != nil {
				err = handle(task)
			}
			mu.Lock()
			got = append(got, task)
			if len(got) >= n {
				cancel()
			}
			mu.Unlock()
			return err
		})
	}()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(got) < n {
		t.Fatalf("timed out with %d of %d tasks", len(got), n)
	}
	return got
}

func TestSchedulerDeliversByPriority(t *testing.T) {
	s := testScheduler()
	ctx := context.Background()
	low := domain.NewTask("low", domain.TaskQuickClassify, "c1", 1, 0)
	high := domain.NewTask("high", domain.TaskQuickClassify, "c2", 9, 0)
	_ = s.Enqueue(ctx, low)
	_ = s.Enqueue(ctx, high)

	got := collect(t, s, domain.QueueQuick, 2, nil)
	if got[0].ID != "high" || got[1].ID != "low" {
		t.Fatalf("expected priority order high,low got %s,%s", got[0].ID, got[1].ID)
	}
}

func TestSchedulerHonorsNotBefore(t *testing.T) {
	s := testScheduler()
	ctx := context.Background()
	delayed := domain.NewTask("delayed", domain.TaskQuickClassify, "c1", 9, 150*time.Millisecond)
	ready := domain.NewTask("ready", domain.TaskQuickClassify, "c2", 1, 0)
	_ = s.Enqueue(ctx, delayed)
	_ = s.Enqueue(ctx, ready)

	started := time.Now()
	got := collect(t, s, domain.QueueQuick, 2, nil)
	// The lower-priority ready task must run first; the delayed one only
	// after its NotBefore passes.
	if got[0].ID != "ready" || got[1].ID != "delayed" {
		t.Fatalf("expected ready,delayed got %s,%s", got[0].ID, got[1].ID)
	}
	if elapsed := time.Since(started); elapsed < 150*time.Millisecond {
		t.Fatalf("delayed task ran after %s", elapsed)
	}
}

func TestSchedulerReenqueuesOnStageNotReady(t *testing.T) {
	s := testScheduler()
	s.SetRetry(10*time.Millisecond, 40)
	ctx := context.Background()
	_ = s.Enqueue(ctx, domain.NewTask("t1", domain.TaskQuickClassify, "c1", 5, 0))

	attempts := 0
	got := collect(t, s, domain.QueueQuick, 3, func(domain.Task) error {
		attempts++
		if attempts < 3 {
			return domain.WrapError(domain.ErrStageNotReady, "test", fmt.Errorf("not yet"))
		}
		return nil
	})
	if got[2].Attempt != 2 {
		t.Fatalf("expected attempt counter 2 on third delivery, got %d", got[2].Attempt)
	}
}

func TestSchedulerGivesUpAfterMaxAttempts(t *testing.T) {
	s := testScheduler()
	s.SetRetry(5*time.Millisecond, 2)
	ctx := context.Background()
	_ = s.Enqueue(ctx, domain.NewTask("t1", domain.TaskQuickClassify, "c1", 5, 0))
	// A marker task proves the loop moved on after dropping t1.
	_ = s.Enqueue(ctx, domain.NewTask("marker", domain.TaskQuickClassify, "c2", 1, 0))

	var deliveries []string
	collect(t, s, domain.QueueQuick, 3, func(task domain.Task) error {
		deliveries = append(deliveries, task.ID)
		if task.ID == "t1" {
			return domain.WrapError(domain.ErrStageNotReady, "test", fmt.Errorf("never ready"))
		}
		return nil
	})

	t1Count := 0
	for _, id := range deliveries {
		if id == "t1" {
			t1Count++
		}
	}
	if t1Count != 2 {
		t.Fatalf("expected t1 dropped after 2 attempts, saw %d deliveries", t1Count)
	}
}

func TestSchedulerOtherErrorsAreNotRetried(t *testing.T) {
	s := testScheduler()
	ctx := context.Background()
	_ = s.Enqueue(ctx, domain.NewTask("t1", domain.TaskQuickClassify, "c1", 5, 0))
	_ = s.Enqueue(ctx, domain.NewTask("t2", domain.TaskQuickClassify, "c2", 1, 0))

	got := collect(t, s, domain.QueueQuick, 2, func(task domain.Task) error {
		if task.ID == "t1" {
			return fmt.Errorf("hard failure")
		}
		return nil
	})
	if got[0].ID != "t1" || got[1].ID != "t2" {
		t.Fatalf("hard failure must not re-enqueue, got %s,%s", got[0].ID, got[1].ID)
	}
}

func TestSchedulerSubscribeStopsOnContextCancel(t *testing.T) {
	s := testScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Subscribe(ctx, domain.QueueQuick, func(context.Context, domain.Task) error { return nil })
	}()
	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not stop on cancel")
	}
}
