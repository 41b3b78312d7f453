package domain

import (
	"context"
	"net/url"
)

// JobService orchestrates job operations.
type JobService struct {
	repo JobRepository
}

// NewJobService creates a new JobService.
func NewJobService(repo JobRepository) *JobService {
	return &JobService{repo: repo}
}

// Submit creates a new job for the given URL.
func (s *JobService) Submit(ctx context.Context, rawURL string, opts Options) (*Job, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || u.Host == "" {
		return nil, ErrInvalidURL
	}
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, rawURL, opts)
}

// Get retrieves a job by ID.
func (s *JobService) Get(ctx context.Context, id int64) (*Job, error) {
	return s.repo.Get(ctx, id)
}

// List returns the most recent jobs, newest first.
func (s *JobService) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, limit)
}

// GetPending retrieves pending jobs up to the limit.
func (s *JobService) GetPending(ctx context.Context, limit int) ([]Job, error) {
	return s.repo.FindPending(ctx, limit)
}

// MarkProcessing claims a job for processing.
func (s *JobService) MarkProcessing(ctx context.Context, id int64) error {
	return s.repo.Claim(ctx, id)
}

// MarkComplete records the artifact and normalization warnings of a run.
func (s *JobService) MarkComplete(ctx context.Context, id int64, result *Result) error {
	return s.repo.Complete(ctx, id, result)
}

// MarkFailed marks a job as permanently failed. Runs are never retried.
func (s *JobService) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.repo.Fail(ctx, id, reason)
}

// AppendProgress stores one progress line for a job.
func (s *JobService) AppendProgress(ctx context.Context, id int64, line string) error {
	return s.repo.AppendProgress(ctx, id, line)
}

// Progress returns the progress lines of a job in order.
func (s *JobService) Progress(ctx context.Context, id int64) ([]ProgressLine, error) {
	return s.repo.Progress(ctx, id)
}

// RecoverStale fails jobs left processing by a previous crash.
func (s *JobService) RecoverStale(ctx context.Context) (int64, error) {
	return s.repo.RecoverStale(ctx)
}
