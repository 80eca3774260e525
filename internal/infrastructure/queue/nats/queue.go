package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
	"github.com/kirillkom/knowledge-pipeline/internal/infrastructure/resilience"
)

const subjectPrefix = "pipeline.tasks."

// Scheduler delivers pipeline tasks over NATS core queue groups, one
// subject per queue class. Delayed tasks are held in-process until
// their NotBefore and published then; a crash before publication loses
// only tasks that the backup passes scheduled at ingest re-cover.
type Scheduler struct {
	conn     *nats.Conn
	executor *resilience.Executor
	logger   *slog.Logger

	retryDelay  time.Duration
	maxAttempts int
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor

	// RetryDelay spaces precondition re-enqueues; MaxAttempts caps them.
	RetryDelay  time.Duration
	MaxAttempts int
}

func New(url string, logger *slog.Logger) (*Scheduler, error) {
	return NewWithOptions(url, logger, Options{})
}

func NewWithOptions(url string, logger *slog.Logger, options Options) (*Scheduler, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	retryDelay := options.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 3 * time.Second
	}
	maxAttempts := options.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 40
	}

	conn, err := nats.Connect(
		url,
		nats.Name("knowledge-pipeline"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Scheduler{
		conn:        conn,
		executor:    options.ResilienceExecutor,
		logger:      logger,
		retryDelay:  retryDelay,
		maxAttempts: maxAttempts,
	}, nil
}

func (s *Scheduler) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func subjectFor(class domain.QueueClass) string {
	return subjectPrefix + string(class)
}

// Enqueue publishes the task to its class subject, holding it locally
// until NotBefore when a delay was requested.
func (s *Scheduler) Enqueue(ctx context.Context, task domain.Task) error {
	if wait := time.Until(task.NotBefore); wait > 5*time.Millisecond {
		time.AfterFunc(wait, func() {
			if err := s.publish(context.Background(), task); err != nil {
				s.logger.Error("delayed task publish failed",
					"task_id", task.ID, "kind", task.Kind, "error", err)
			}
		})
		return nil
	}
	return s.publish(ctx, task)
}

func (s *Scheduler) publish(ctx context.Context, task domain.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	call := func(_ context.Context) error {
		if err := s.conn.Publish(subjectFor(task.Queue), payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if s.executor != nil {
		err = s.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// Subscribe consumes one queue class until ctx ends. A handler
// returning domain.ErrStageNotReady gets the task re-enqueued with the
// retry delay until the attempt cap; other handler errors are final.
func (s *Scheduler) Subscribe(ctx context.Context, class domain.QueueClass, handler ports.TaskHandler) error {
	sub, err := s.conn.QueueSubscribe(subjectFor(class), "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var task domain.Task
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			s.logger.Error("drop malformed task", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		s.dispatch(handlerCtx, task, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := s.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := s.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, task domain.Task, handler ports.TaskHandler) {
	err := handler(ctx, task)
	if err == nil {
		return
	}

	if domain.IsKind(err, domain.ErrStageNotReady) {
		task.Attempt++
		if task.Attempt >= s.maxAttempts {
			s.logger.Error("task gave up waiting for precondition",
				"task_id", task.ID, "kind", task.Kind,
				"content_id", task.ContentID, "attempts", task.Attempt)
			return
		}
		task.NotBefore = time.Now().UTC().Add(s.retryDelay)
		if enqErr := s.Enqueue(ctx, task); enqErr != nil {
			s.logger.Error("precondition re-enqueue failed",
				"task_id", task.ID, "kind", task.Kind, "error", enqErr)
		}
		return
	}

	s.logger.Error("task handler failed",
		"task_id", task.ID, "kind", task.Kind,
		"content_id", task.ContentID, "error", err)
}
