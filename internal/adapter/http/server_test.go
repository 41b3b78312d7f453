package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/cwygoda/chaptercast/internal/domain"
)

// mockRepo implements domain.JobRepository for testing.
type mockRepo struct {
	jobs     map[int64]*domain.Job
	progress map[int64][]domain.ProgressLine
	nextID   int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{jobs: make(map[int64]*domain.Job), progress: make(map[int64][]domain.ProgressLine), nextID: 1}
}

func (m *mockRepo) Create(ctx context.Context, url string, opts domain.Options) (*domain.Job, error) {
	job := &domain.Job{
		ID:        m.nextID,
		URL:       url,
		Format:    opts.Format,
		Quality:   opts.Quality,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.jobs[m.nextID] = job
	m.nextID++
	return job, nil
}

func (m *mockRepo) Get(ctx context.Context, id int64) (*domain.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (m *mockRepo) List(ctx context.Context, limit int) ([]domain.Job, error) {
	var result []domain.Job
	for _, job := range m.jobs {
		result = append(result, *job)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockRepo) FindPending(ctx context.Context, limit int) ([]domain.Job, error) {
	return nil, nil
}
func (m *mockRepo) Claim(ctx context.Context, id int64) error { return nil }
func (m *mockRepo) Complete(ctx context.Context, id int64, result *domain.Result) error {
	job := m.jobs[id]
	job.Status = domain.StatusCompleted
	job.Title = result.Ref.Title
	job.Artifact = result.Artifact.Path
	job.Warnings = result.Normalize.Warnings()
	return nil
}
func (m *mockRepo) Fail(ctx context.Context, id int64, reason string) error { return nil }
func (m *mockRepo) RecoverStale(ctx context.Context) (int64, error)         { return 0, nil }
func (m *mockRepo) AppendProgress(ctx context.Context, id int64, line string) error {
	m.progress[id] = append(m.progress[id], domain.ProgressLine{Seq: int64(len(m.progress[id]) + 1), Line: line, CreatedAt: time.Now()})
	return nil
}
func (m *mockRepo) Progress(ctx context.Context, id int64) ([]domain.ProgressLine, error) {
	return m.progress[id], nil
}

func setupTestServer() (*Server, *mockRepo) {
	repo := newMockRepo()
	svc := domain.NewJobService(repo)
	return NewServer(svc, ":8080", "", domain.DefaultOptions(), nil), repo
}

func postWebhook(srv *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestServer_Webhook_Success(t *testing.T) {
	srv, _ := setupTestServer()

	rec := postWebhook(srv, `{"url":"https://youtube.com/watch?v=abc123","format":"FLAC"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp jobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if resp.ID == 0 {
		t.Error("response ID = 0, want non-zero")
	}
	if resp.URL != "https://youtube.com/watch?v=abc123" {
		t.Errorf("response URL = %q, want %q", resp.URL, "https://youtube.com/watch?v=abc123")
	}
	if resp.Status != "pending" {
		t.Errorf("response status = %q, want %q", resp.Status, "pending")
	}
	if resp.Format != "flac" || resp.Quality != "320k" {
		t.Errorf("response options = %s/%s, want flac/320k", resp.Format, resp.Quality)
	}
}

func TestServer_Webhook_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{}`},
		{"invalid url", `{"url":"not a valid url"}`},
		{"invalid json", `not json`},
		{"unsupported format", `{"url":"https://example.com/v","format":"mkv"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := setupTestServer()
			rec := postWebhook(srv, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestServer_Webhook_Signature(t *testing.T) {
	body := `{"url":"https://example.com/v"}`
	now := time.Now().UTC().Format(time.RFC3339)
	stale := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	tests := []struct {
		name      string
		timestamp string
		signature string
		want      int
	}{
		{"valid", now, Sign(now, []byte(body), "s3cret"), http.StatusCreated},
		{"wrong secret", now, Sign(now, []byte(body), "other"), http.StatusUnauthorized},
		{"missing timestamp", "", Sign(now, []byte(body), "s3cret"), http.StatusUnauthorized},
		{"missing signature", now, "", http.StatusUnauthorized},
		{"stale timestamp", stale, Sign(stale, []byte(body), "s3cret"), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(domain.NewJobService(newMockRepo()), ":8080", "s3cret", domain.DefaultOptions(), nil)
			req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
			if tt.timestamp != "" {
				req.Header.Set("X-Timestamp", tt.timestamp)
			}
			if tt.signature != "" {
				req.Header.Set("X-Signature", tt.signature)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestServer_GetJob_Success(t *testing.T) {
	srv, _ := setupTestServer()

	createRec := postWebhook(srv, `{"url":"https://example.com"}`)
	var created jobResponse
	json.NewDecoder(createRec.Body).Decode(&created)

	req := httptest.NewRequest(http.MethodGet, "/jobs/1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp jobResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if resp.ID != created.ID {
		t.Errorf("response ID = %d, want %d", resp.ID, created.ID)
	}
}

func TestServer_GetJob_Errors(t *testing.T) {
	tests := []struct {
		path string
		want int
	}{
		{"/jobs/9999", http.StatusNotFound},
		{"/jobs/invalid", http.StatusBadRequest},
		{"/jobs/9999/progress", http.StatusNotFound},
		{"/runs/9999", http.StatusNotFound},
		{"/runs/invalid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			srv, _ := setupTestServer()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestServer_GetProgress(t *testing.T) {
	srv, repo := setupTestServer()
	job, _ := repo.Create(context.Background(), "https://example.com/v", domain.DefaultOptions())
	repo.AppendProgress(context.Background(), job.ID, "Resolving metadata...")
	repo.AppendProgress(context.Background(), job.ID, "[download]  42.0%")

	req := httptest.NewRequest(http.MethodGet, "/jobs/1/progress", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp progressResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(resp.Lines) != 2 || resp.Lines[1].Seq != 2 || resp.Lines[1].Line != "[download]  42.0%" {
		t.Errorf("lines = %+v", resp.Lines)
	}
	if resp.Status != "pending" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestServer_Index(t *testing.T) {
	srv, repo := setupTestServer()
	repo.Create(context.Background(), "https://example.com/first", domain.DefaultOptions())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{`action="/runs"`, `<option value="mp3" selected>`, `value="320k"`, "https://example.com/first"} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}
}

func TestServer_SubmitForm(t *testing.T) {
	srv, repo := setupTestServer()

	form := url.Values{"url": {"https://example.com/v"}, "format": {"opus"}, "quality": {"160k"}}
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/runs/1" {
		t.Errorf("Location = %q, want /runs/1", loc)
	}
	if job := repo.jobs[1]; job.Format != "opus" || job.Quality != "160k" {
		t.Errorf("job options = %s/%s", job.Format, job.Quality)
	}
}

func TestServer_SubmitForm_InvalidURL(t *testing.T) {
	srv, repo := setupTestServer()

	form := url.Values{"url": {"nope"}}
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rec.Body.String(), "invalid URL") {
		t.Error("form did not show the error")
	}
	if len(repo.jobs) != 0 {
		t.Errorf("created %d jobs for an invalid URL", len(repo.jobs))
	}
}

func TestServer_RunPage(t *testing.T) {
	srv, repo := setupTestServer()
	job, _ := repo.Create(context.Background(), "https://example.com/v", domain.DefaultOptions())
	repo.AppendProgress(context.Background(), job.ID, "Downloading audio for Talk...")

	req := httptest.NewRequest(http.MethodGet, "/runs/1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Downloading audio for Talk...") {
		t.Error("run page missing progress line")
	}
	if !strings.Contains(body, `http-equiv="refresh"`) {
		t.Error("active run page does not refresh")
	}
}

func TestServer_Artifact(t *testing.T) {
	srv, repo := setupTestServer()
	dir := t.TempDir()
	artifact := filepath.Join(dir, "A Talk.zip")
	if err := os.WriteFile(artifact, []byte("zipdata"), 0o644); err != nil {
		t.Fatal(err)
	}

	job, _ := repo.Create(context.Background(), "https://example.com/v", domain.DefaultOptions())
	repo.Complete(context.Background(), job.ID, &domain.Result{
		Ref:      domain.VideoRef{Title: "A Talk", ID: "xyz"},
		Artifact: domain.Artifact{Path: artifact, Archived: true},
	})

	req := httptest.NewRequest(http.MethodGet, "/runs/1/artifact", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="A Talk.zip"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "zipdata" {
		t.Errorf("body = %q", body)
	}

	page := httptest.NewRecorder()
	srv.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/runs/1", nil))
	if !strings.Contains(page.Body.String(), "/runs/1/artifact") {
		t.Error("completed run page has no download link")
	}
	if strings.Contains(page.Body.String(), `http-equiv="refresh"`) {
		t.Error("completed run page still refreshes")
	}
}

func TestServer_Artifact_NotReady(t *testing.T) {
	srv, repo := setupTestServer()
	repo.Create(context.Background(), "https://example.com/v", domain.DefaultOptions())

	req := httptest.NewRequest(http.MethodGet, "/runs/1/artifact", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestServer_Health(t *testing.T) {
	srv, _ := setupTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}
