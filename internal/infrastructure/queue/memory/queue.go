package memory

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

// Scheduler is the in-process task scheduler used by tests and the
// single-binary mode. Semantics mirror the NATS implementation: per
// class queues, priority ordering, NotBefore delays and precondition
// re-enqueues.
type Scheduler struct {
	mu     sync.Mutex
	queues map[domain.QueueClass]*taskHeap
	wake   map[domain.QueueClass]chan struct{}
	logger *slog.Logger

	retryDelay  time.Duration
	maxAttempts int
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		queues:      make(map[domain.QueueClass]*taskHeap),
		wake:        make(map[domain.QueueClass]chan struct{}),
		logger:      logger,
		retryDelay:  3 * time.Second,
		maxAttempts: 40,
	}
}

// SetRetry overrides the precondition retry policy; tests shrink it.
func (s *Scheduler) SetRetry(delay time.Duration, maxAttempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryDelay = delay
	s.maxAttempts = maxAttempts
}

func (s *Scheduler) Enqueue(_ context.Context, task domain.Task) error {
	s.mu.Lock()
	queue, ok := s.queues[task.Queue]
	if !ok {
		queue = &taskHeap{}
		s.queues[task.Queue] = queue
		s.wake[task.Queue] = make(chan struct{}, 1)
	}
	heap.Push(queue, task)
	wake := s.wake[task.Queue]
	s.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
	return nil
}

// Subscribe runs the handler loop for one class until ctx ends.
func (s *Scheduler) Subscribe(ctx context.Context, class domain.QueueClass, handler ports.TaskHandler) error {
	s.mu.Lock()
	if _, ok := s.queues[class]; !ok {
		s.queues[class] = &taskHeap{}
		s.wake[class] = make(chan struct{}, 1)
	}
	wake := s.wake[class]
	s.mu.Unlock()

	for {
		task, wait, ok := s.next(class)
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wake:
			}
			continue
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-wake:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		if err := handler(ctx, task); err != nil {
			if domain.IsKind(err, domain.ErrStageNotReady) {
				task.Attempt++
				if task.Attempt >= s.maxAttempts {
					s.logger.Error("task gave up waiting for precondition",
						"task_id", task.ID, "kind", task.Kind, "attempts", task.Attempt)
					continue
				}
				task.NotBefore = time.Now().UTC().Add(s.retryDelay)
				_ = s.Enqueue(ctx, task)
				continue
			}
			s.logger.Error("task handler failed",
				"task_id", task.ID, "kind", task.Kind,
				"content_id", task.ContentID, "error", err)
		}
	}
}

// next pops the best ready task, or reports how long until the
// earliest delayed one becomes ready.
func (s *Scheduler) next(class domain.QueueClass) (domain.Task, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.queues[class]
	if queue.Len() == 0 {
		return domain.Task{}, 0, false
	}

	now := time.Now()
	best := -1
	for i, task := range *queue {
		if task.NotBefore.After(now) {
			continue
		}
		if best < 0 || less((*queue)[i], (*queue)[best]) {
			best = i
		}
	}
	if best >= 0 {
		task := (*queue)[best]
		heap.Remove(queue, best)
		return task, 0, true
	}

	// All delayed; report the soonest wakeup.
	soonest := (*queue)[0].NotBefore
	for _, task := range *queue {
		if task.NotBefore.Before(soonest) {
			soonest = task.NotBefore
		}
	}
	return domain.Task{}, time.Until(soonest), true
}

type taskHeap []domain.Task

func less(a, b domain.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.EnqueuedAt.Before(b.EnqueuedAt)
}

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(domain.Task)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	*h = old[:n-1]
	return task
}
