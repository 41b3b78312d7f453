package domain

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

// mockRepo implements JobRepository for testing.
type mockRepo struct {
	jobs      map[int64]*Job
	progress  map[int64][]ProgressLine
	nextID    int64
	createErr error
	getErr    error
	findErr   error
	claimErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{jobs: make(map[int64]*Job), progress: make(map[int64][]ProgressLine), nextID: 1}
}

func (m *mockRepo) Create(ctx context.Context, url string, opts Options) (*Job, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	job := &Job{
		ID:        m.nextID,
		URL:       url,
		Format:    opts.Format,
		Quality:   opts.Quality,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.jobs[m.nextID] = job
	m.nextID++
	return job, nil
}

func (m *mockRepo) Get(ctx context.Context, id int64) (*Job, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (m *mockRepo) List(ctx context.Context, limit int) ([]Job, error) {
	var result []Job
	for _, job := range m.jobs {
		result = append(result, *job)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockRepo) FindPending(ctx context.Context, limit int) ([]Job, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var result []Job
	for _, job := range m.jobs {
		if job.Status == StatusPending {
			result = append(result, *job)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *mockRepo) Claim(ctx context.Context, id int64) error {
	if m.claimErr != nil {
		return m.claimErr
	}
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now()
	return nil
}

func (m *mockRepo) Complete(ctx context.Context, id int64, result *Result) error {
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusCompleted
	job.Title = result.Ref.Title
	job.VideoID = result.Ref.ID
	job.Artifact = result.Artifact.Path
	job.Warnings = result.Normalize.Warnings()
	job.UpdatedAt = time.Now()
	return nil
}

func (m *mockRepo) Fail(ctx context.Context, id int64, reason string) error {
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusFailed
	job.Error = reason
	job.UpdatedAt = time.Now()
	return nil
}

func (m *mockRepo) RecoverStale(ctx context.Context) (int64, error) {
	var count int64
	for _, job := range m.jobs {
		if job.Status == StatusProcessing {
			job.Status = StatusFailed
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) AppendProgress(ctx context.Context, id int64, line string) error {
	seq := int64(len(m.progress[id]) + 1)
	m.progress[id] = append(m.progress[id], ProgressLine{Seq: seq, Line: line, CreatedAt: time.Now()})
	return nil
}

func (m *mockRepo) Progress(ctx context.Context, id int64) ([]ProgressLine, error) {
	return m.progress[id], nil
}

func TestJobService_Submit(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		opts    Options
		wantErr error
	}{
		{
			name:    "valid URL",
			url:     "https://example.com/video",
			wantErr: nil,
		},
		{
			name:    "invalid URL",
			url:     "not a url",
			wantErr: ErrInvalidURL,
		},
		{
			name:    "empty URL",
			url:     "",
			wantErr: ErrInvalidURL,
		},
		{
			name:    "path without host",
			url:     "/watch?v=abc",
			wantErr: ErrInvalidURL,
		},
		{
			name:    "unsupported format",
			url:     "https://example.com/video",
			opts:    Options{Format: "mkv"},
			wantErr: ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			svc := NewJobService(repo)

			job, err := svc.Submit(context.Background(), tt.url, tt.opts)

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && job == nil {
				t.Fatal("Submit() returned nil job for valid URL")
			}
			if tt.wantErr == nil && job.URL != tt.url {
				t.Errorf("Submit() job.URL = %q, want %q", job.URL, tt.url)
			}
			if tt.wantErr == nil && job.Format != "mp3" {
				t.Errorf("Submit() job.Format = %q, want default mp3", job.Format)
			}
		})
	}
}

func TestJobService_Get(t *testing.T) {
	repo := newMockRepo()
	svc := NewJobService(repo)
	ctx := context.Background()

	created, _ := svc.Submit(ctx, "https://example.com", Options{})

	job, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.ID != created.ID {
		t.Errorf("Get() job.ID = %d, want %d", job.ID, created.ID)
	}

	_, err = svc.Get(ctx, 999)
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get() error = %v, want %v", err, ErrJobNotFound)
	}
}

func TestJobService_List(t *testing.T) {
	repo := newMockRepo()
	svc := NewJobService(repo)
	ctx := context.Background()

	for _, u := range []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"} {
		if _, err := svc.Submit(ctx, u, Options{}); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := svc.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("List() returned %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != 3 {
		t.Errorf("List()[0].ID = %d, want newest (3)", jobs[0].ID)
	}

	all, _ := svc.List(ctx, 0)
	if len(all) != 3 {
		t.Errorf("List(0) returned %d jobs, want default limit to include all 3", len(all))
	}
}

func TestJobService_GetPending(t *testing.T) {
	repo := newMockRepo()
	svc := NewJobService(repo)
	ctx := context.Background()

	svc.Submit(ctx, "https://example.com/1", Options{})
	svc.Submit(ctx, "https://example.com/2", Options{})
	svc.Submit(ctx, "https://example.com/3", Options{})

	jobs, err := svc.GetPending(ctx, 2)
	if err != nil {
		t.Fatalf("GetPending() error = %v", err)
	}
	if len(jobs) > 2 {
		t.Errorf("GetPending() returned %d jobs, want <= 2", len(jobs))
	}
}

func TestJobService_MarkComplete(t *testing.T) {
	repo := newMockRepo()
	svc := NewJobService(repo)
	ctx := context.Background()

	job, _ := svc.Submit(ctx, "https://example.com", Options{})
	svc.MarkProcessing(ctx, job.ID)

	result := &Result{
		Ref:      VideoRef{URL: job.URL, Title: "A Talk", ID: "xyz"},
		Artifact: Artifact{Path: "/out/A Talk.zip", Archived: true},
		Normalize: NormalizeReport{
			Failures: []NormalizeFailure{{Path: "/out/A Talk/A Talk - 02.mp3", ExitCode: 1}},
		},
	}
	if err := svc.MarkComplete(ctx, job.ID, result); err != nil {
		t.Fatalf("MarkComplete() error = %v", err)
	}

	updated, _ := svc.Get(ctx, job.ID)
	if updated.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", updated.Status, StatusCompleted)
	}
	if updated.Artifact != "/out/A Talk.zip" {
		t.Errorf("Artifact = %q", updated.Artifact)
	}
	if len(updated.Warnings) != 1 {
		t.Errorf("Warnings = %v, want 1 entry", updated.Warnings)
	}
}

func TestJobService_MarkFailed(t *testing.T) {
	repo := newMockRepo()
	svc := NewJobService(repo)
	ctx := context.Background()

	job, _ := svc.Submit(ctx, "https://example.com", Options{})
	svc.MarkProcessing(ctx, job.ID)

	if err := svc.MarkFailed(ctx, job.ID, "download failed"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	updated, _ := svc.Get(ctx, job.ID)
	if updated.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", updated.Status, StatusFailed)
	}
	if updated.Error != "download failed" {
		t.Errorf("Error = %q, want %q", updated.Error, "download failed")
	}
}

func TestJobService_Progress(t *testing.T) {
	repo := newMockRepo()
	svc := NewJobService(repo)
	ctx := context.Background()

	job, _ := svc.Submit(ctx, "https://example.com", Options{})
	svc.AppendProgress(ctx, job.ID, "first")
	svc.AppendProgress(ctx, job.ID, "second")

	lines, err := svc.Progress(ctx, job.ID)
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if len(lines) != 2 || lines[0].Line != "first" || lines[1].Line != "second" {
		t.Errorf("Progress() = %+v", lines)
	}
}

func TestJobService_RecoverStale(t *testing.T) {
	repo := newMockRepo()
	svc := NewJobService(repo)
	ctx := context.Background()

	job, _ := svc.Submit(ctx, "https://example.com", Options{})
	svc.MarkProcessing(ctx, job.ID)

	n, err := svc.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("RecoverStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("RecoverStale() = %d, want 1", n)
	}
	updated, _ := svc.Get(ctx, job.ID)
	if updated.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", updated.Status, StatusFailed)
	}
}
