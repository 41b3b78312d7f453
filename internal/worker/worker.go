package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwygoda/chaptercast/internal/domain"
)

// Worker polls for pending jobs and runs them one at a time.
type Worker struct {
	svc          *domain.JobService
	runner       domain.Runner
	pollInterval time.Duration
	logger       *slog.Logger
}

// New creates a new worker.
func New(svc *domain.JobService, runner domain.Runner, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		svc:          svc,
		runner:       runner,
		pollInterval: pollInterval,
		logger:       logger.With("component", "worker"),
	}
}

// Run starts the worker loop until context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", "poll_interval", w.pollInterval)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	jobs, err := w.svc.GetPending(ctx, 10)
	if err != nil {
		w.logger.Error("poll failed", "error", err)
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		w.processJob(ctx, &job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *domain.Job) {
	logger := w.logger.With("job_id", job.ID)

	if err := w.svc.MarkProcessing(ctx, job.ID); err != nil {
		logger.Warn("claim failed", "error", err)
		return
	}

	logger.Info("processing", "url", job.URL, "format", job.Format, "quality", job.Quality)

	// Final status writes must land even when shutdown cancels the run.
	statusCtx := context.WithoutCancel(ctx)

	sink := func(line string) {
		logger.Debug("progress", "line", line)
		if err := w.svc.AppendProgress(statusCtx, job.ID, line); err != nil {
			logger.Warn("store progress failed", "error", err)
		}
	}

	result, err := w.runner.Run(ctx, job.URL, job.Options(), sink)
	if err != nil {
		logger.Error("run failed", "error", err)
		if err := w.svc.MarkFailed(statusCtx, job.ID, err.Error()); err != nil {
			logger.Error("mark failed", "error", err)
		}
		return
	}

	if err := w.svc.MarkComplete(statusCtx, job.ID, result); err != nil {
		logger.Error("mark complete failed", "error", err)
		return
	}
	logger.Info("completed", "artifact", result.Artifact.Path, "warnings", len(result.Normalize.Failures))
}
