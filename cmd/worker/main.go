package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/knowledge-pipeline/internal/bootstrap"
	"github.com/kirillkom/knowledge-pipeline/internal/config"
	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/observability/logging"
	"github.com/kirillkom/knowledge-pipeline/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	handler := func(taskCtx context.Context, task domain.Task) error {
		started := time.Now()
		workerMetrics.StartTask()
		workerMetrics.ObserveQueueLag(serviceName, string(task.Kind), started.Sub(task.NotBefore))

		runCtx, cancel := context.WithTimeout(taskCtx, 5*time.Minute)
		defer cancel()

		err := runTask(runCtx, app, task)
		if domain.IsKind(err, domain.ErrStageNotReady) {
			workerMetrics.RecordRetry(serviceName, string(task.Kind))
		}
		workerMetrics.FinishTask(serviceName, string(task.Kind), time.Since(started), err)
		return err
	}

	classes := []domain.QueueClass{
		domain.QueueQuick,
		domain.QueueClassify,
		domain.QueueHeavy,
		domain.QueueIngest,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, class := range classes {
		queueClass := class
		group.Go(func() error {
			logger.Info("worker subscribed", "queue", string(queueClass))
			return app.Scheduler.Subscribe(groupCtx, queueClass, handler)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func runTask(ctx context.Context, app *bootstrap.App, task domain.Task) error {
	switch task.Kind {
	case domain.TaskParseContent:
		return app.ParseUC.Parse(ctx, task.ContentID)
	case domain.TaskQuickClassify:
		_, err := app.QuickUC.QuickClassify(ctx, task.ContentID, task.Display)
		return err
	case domain.TaskClassify:
		_, err := app.ClassifyUC.Classify(ctx, task.ContentID)
		return err
	case domain.TaskGenerateEmbed:
		return app.EmbedUC.GenerateEmbeddings(ctx, task.ContentID)
	case domain.TaskMatchCollections:
		_, err := app.CollectionsUC.MatchCollections(ctx, task.ContentID)
		return err
	default:
		app.Logger.Warn("unknown task kind", "kind", task.Kind, "task_id", task.ID)
		return nil
	}
}
