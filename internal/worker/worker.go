package worker

import (
	"context"
	"time"

	"crusty-reader/internal/model"

	"go.uber.org/zap"
)

// popTimeout bounds each blocking wait so shutdown is noticed promptly.
const popTimeout = time.Second

// Queue is the job source the worker drains.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*model.Job, error)
	Save(ctx context.Context, job *model.Job) error
}

// Ingester saves a URL as an article.
// This allows us to mock the whole pipeline in tests.
type Ingester interface {
	Save(ctx context.Context, rawURL string) (*model.Article, bool, error)
}

type Worker struct {
	queue    Queue
	ingester Ingester
	logger   *zap.Logger
}

func NewWorker(queue Queue, ingester Ingester, logger *zap.Logger) *Worker {
	return &Worker{
		queue:    queue,
		ingester: ingester,
		logger:   logger,
	}
}

// Start runs the worker loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker started. Waiting for jobs...")

	for {
		if ctx.Err() != nil {
			w.logger.Info("Worker shutting down")
			return
		}

		job, err := w.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Worker shutting down")
				return
			}
			w.logger.Error("Queue error", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *model.Job) {
	logger := w.logger.With(zap.String("job_id", job.ID.String()), zap.String("url", job.URL))
	logger.Info("Processing started")

	article, _, err := w.ingester.Save(ctx, job.URL)
	now := time.Now().UTC()
	job.FinishedAt = &now

	if err != nil {
		logger.Error("Ingestion failed", zap.Error(err))
		job.Status = model.JobFailed
		job.ErrorMessage = err.Error()
	} else {
		job.Status = model.JobArchived
		job.ArticleID = article.ID
		logger.Info("Archiving complete", zap.Int64("article_id", article.ID), zap.String("title", article.Title))
	}

	if err := w.queue.Save(ctx, job); err != nil {
		logger.Error("Failed to save job status", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
