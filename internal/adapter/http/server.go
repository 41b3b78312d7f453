package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cwygoda/chaptercast/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const recentRuns = 20

// Server is the HTTP adapter: a form UI for people and a JSON webhook for scripts.
type Server struct {
	svc      *domain.JobService
	mux      *http.ServeMux
	server   *http.Server
	secret   string
	defaults domain.Options
	pages    *template.Template
	logger   *slog.Logger
}

// NewServer creates a new HTTP server. defaults preselect the form's format and quality.
func NewServer(svc *domain.JobService, addr string, secret string, defaults domain.Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:      svc,
		mux:      http.NewServeMux(),
		secret:   secret,
		defaults: defaults.Normalize(),
		pages:    template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")),
		logger:   logger.With("component", "http"),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

var templateFuncs = template.FuncMap{
	"ago":  humanize.Time,
	"base": filepath.Base,
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /runs", s.handleSubmitForm)
	s.mux.HandleFunc("GET /runs/{id}", s.handleRunPage)
	s.mux.HandleFunc("GET /runs/{id}/artifact", s.handleArtifact)
	s.mux.HandleFunc("POST /webhook", s.handleWebhook)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("GET /jobs/{id}/progress", s.handleGetProgress)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// webhookRequest is the request body for POST /webhook.
type webhookRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// jobResponse is the JSON response for job endpoints.
type jobResponse struct {
	ID        int64    `json:"id"`
	URL       string   `json:"url"`
	Format    string   `json:"format"`
	Quality   string   `json:"quality"`
	Status    string   `json:"status"`
	Title     string   `json:"title,omitempty"`
	VideoID   string   `json:"video_id,omitempty"`
	Artifact  string   `json:"artifact,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Error     string   `json:"error,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

type progressLineResponse struct {
	Seq  int64  `json:"seq"`
	Line string `json:"line"`
	At   string `json:"at"`
}

type progressResponse struct {
	ID     int64                  `json:"id"`
	Status string                 `json:"status"`
	Lines  []progressLineResponse `json:"lines"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

type indexPage struct {
	Formats  []string
	Defaults domain.Options
	URL      string
	Error    string
	Jobs     []domain.Job
}

type runPage struct {
	Job          *domain.Job
	Lines        []domain.ProgressLine
	ArtifactSize string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, http.StatusOK, indexPage{Defaults: s.defaults})
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, status int, page indexPage) {
	jobs, err := s.svc.List(r.Context(), recentRuns)
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	page.Jobs = jobs
	page.Formats = domain.Formats()
	s.render(w, status, "index.html", page)
}

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	opts := domain.Options{Format: r.PostFormValue("format"), Quality: r.PostFormValue("quality")}
	rawURL := strings.TrimSpace(r.PostFormValue("url"))

	job, err := s.svc.Submit(r.Context(), rawURL, opts)
	if err != nil {
		status, msg := submitError(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("submit failed", "error", err)
		}
		s.renderIndex(w, r, status, indexPage{Defaults: opts.Normalize(), URL: rawURL, Error: msg})
		return
	}

	s.logger.Info("run queued", "job_id", job.ID, "url", job.URL)
	http.Redirect(w, r, fmt.Sprintf("/runs/%d", job.ID), http.StatusSeeOther)
}

func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r, func(status int, msg string) { http.Error(w, msg, status) })
	if !ok {
		return
	}
	lines, err := s.svc.Progress(r.Context(), job.ID)
	if err != nil {
		s.logger.Error("load progress failed", "job_id", job.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	page := runPage{Job: job, Lines: lines}
	if job.Done() {
		if info, err := os.Stat(job.Artifact); err == nil {
			page.ArtifactSize = humanize.Bytes(uint64(info.Size()))
		}
	}
	s.render(w, http.StatusOK, "run.html", page)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r, func(status int, msg string) { http.Error(w, msg, status) })
	if !ok {
		return
	}
	if !job.Done() {
		http.Error(w, "artifact not available", http.StatusNotFound)
		return
	}

	f, err := os.Open(job.Artifact)
	if err != nil {
		s.logger.Warn("artifact missing", "job_id", job.ID, "path", job.Artifact, "error", err)
		http.Error(w, "artifact not available", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.Error(w, "artifact not available", http.StatusNotFound)
		return
	}

	name := filepath.Base(job.Artifact)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if s.secret != "" {
		if err := s.verifySignature(r, body); err != nil {
			s.logger.Warn("webhook verification failed", "error", err)
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
	}

	var req webhookRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	job, err := s.svc.Submit(r.Context(), req.URL, domain.Options{Format: req.Format, Quality: req.Quality})
	if err != nil {
		status, msg := submitError(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("submit failed", "error", err)
		}
		s.writeError(w, status, msg)
		return
	}

	s.writeJSON(w, http.StatusCreated, jobToResponse(job))
}

const maxTimestampSkew = 5 * time.Minute

func (s *Server) verifySignature(r *http.Request, body []byte) error {
	timestamp := r.Header.Get("X-Timestamp")
	if timestamp == "" {
		return errors.New("missing X-Timestamp header")
	}

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return errors.New("invalid X-Timestamp: must be ISO8601/RFC3339 format")
	}

	skew := time.Since(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxTimestampSkew {
		return fmt.Errorf("X-Timestamp too far from current time (skew: %v, max: %v)", skew.Truncate(time.Second), maxTimestampSkew)
	}

	signature := r.Header.Get("X-Signature")
	if signature == "" {
		return errors.New("missing X-Signature header")
	}

	if signature != Sign(timestamp, body, s.secret) {
		return errors.New("invalid signature")
	}

	return nil
}

// Sign computes the webhook signature: SHA256("${timestamp}\n${body}\n${secret}") as hex.
func Sign(timestamp string, body []byte, secret string) string {
	payload := fmt.Sprintf("%s\n%s\n%s", timestamp, string(body), secret)
	hash := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(hash[:])
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r, func(status int, msg string) { s.writeError(w, status, msg) })
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r, func(status int, msg string) { s.writeError(w, status, msg) })
	if !ok {
		return
	}
	lines, err := s.svc.Progress(r.Context(), job.ID)
	if err != nil {
		s.logger.Error("load progress failed", "job_id", job.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := progressResponse{ID: job.ID, Status: string(job.Status), Lines: make([]progressLineResponse, 0, len(lines))}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, progressLineResponse{Seq: l.Seq, Line: l.Line, At: l.CreatedAt.UTC().Format(time.RFC3339)})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// lookupJob resolves the {id} path value, reporting failures through fail.
func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request, fail func(status int, msg string)) (*domain.Job, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		fail(http.StatusBadRequest, "invalid job ID")
		return nil, false
	}

	job, err := s.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			fail(http.StatusNotFound, "job not found")
			return nil, false
		}
		s.logger.Error("get job failed", "job_id", id, "error", err)
		fail(http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return job, true
}

func submitError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		return http.StatusBadRequest, "invalid URL"
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render failed", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func jobToResponse(job *domain.Job) jobResponse {
	return jobResponse{
		ID:        job.ID,
		URL:       job.URL,
		Format:    job.Format,
		Quality:   job.Quality,
		Status:    string(job.Status),
		Title:     job.Title,
		VideoID:   job.VideoID,
		Artifact:  job.Artifact,
		Warnings:  job.Warnings,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}
