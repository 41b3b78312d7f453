// Package pipeline sequences a single run: resolve metadata, extract audio,
// rename chapters, normalize loudness and package the result.
//
// Runs are serialized through an exclusive file lock on the output directory,
// so separate processes sharing that directory never race on work dirs or
// marker files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/cwygoda/chaptercast/internal/chapters"
	"github.com/cwygoda/chaptercast/internal/domain"
	"github.com/cwygoda/chaptercast/internal/packager"
	"github.com/cwygoda/chaptercast/internal/textutil"
)

// LockFileName is created inside the output directory.
const LockFileName = ".chaptercast.lock"

const lockRetryDelay = 500 * time.Millisecond

// maxWorkDirAttempts bounds the numbered fallbacks tried by claimWorkDir.
const maxWorkDirAttempts = 100

// Pipeline runs URLs through the external tools.
type Pipeline struct {
	resolver   domain.MetadataResolver
	downloader domain.Downloader
	normalizer domain.Normalizer
	outputDir  string
	logger     *slog.Logger
}

// New creates a pipeline writing work dirs and artifacts into outputDir.
func New(outputDir string, resolver domain.MetadataResolver, downloader domain.Downloader, normalizer domain.Normalizer, logger *slog.Logger) (*Pipeline, error) {
	if resolver == nil || downloader == nil || normalizer == nil {
		return nil, errors.New("pipeline requires resolver, downloader, and normalizer")
	}
	if outputDir == "" {
		outputDir = "."
	}
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		resolver:   resolver,
		downloader: downloader,
		normalizer: normalizer,
		outputDir:  abs,
		logger:     logger,
	}, nil
}

// OutputDir returns the absolute directory artifacts are written to.
func (p *Pipeline) OutputDir() string {
	return p.outputDir
}

// ResolveMetadata looks up the title and id of url.
func (p *Pipeline) ResolveMetadata(ctx context.Context, url string) (domain.VideoRef, error) {
	return p.resolver.Resolve(ctx, url)
}

// Run processes url start to finish. MetadataError, PipelineError,
// RenameCollisionError and PackagingError abort the run; normalization
// failures are reported in the result.
func (p *Pipeline) Run(ctx context.Context, url string, opts domain.Options, sink domain.ProgressSink) (*domain.Result, error) {
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := p.logger.With("run_id", uuid.NewString(), "url", url)

	unlock, err := p.lock(ctx, logger, sink)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sink.Emit("Resolving metadata for %s...", url)
	ref, err := p.resolver.Resolve(ctx, url)
	if err != nil {
		logger.Error("metadata resolution failed", "error", err)
		return nil, err
	}
	logger = logger.With("video_id", ref.ID)

	workDir, err := p.claimWorkDir(ref)
	if err != nil {
		return nil, err
	}
	logger.Info("work dir ready", "title", ref.Title, "work_dir", workDir)

	sink.Emit("Downloading audio for %s...", ref.Title)
	outcome, err := p.downloader.Download(ctx, ref, workDir, opts, sink)
	if err != nil {
		logger.Error("download failed", "error", err)
		return nil, err
	}

	if outcome.Kind == domain.ChapterSet {
		sink.Emit("Processing %d chapter-split files...", len(outcome.Files))
		outcome, err = chapters.Apply(outcome, ref)
		if err != nil {
			logger.Error("chapter rename failed", "error", err)
			return nil, err
		}
		for _, f := range outcome.Files {
			logger.Debug("chapter ready", "file", f)
		}
	}

	sink.Emit("Applying ReplayGain...")
	report := p.normalizer.Normalize(ctx, outcome.AudioFiles(), sink)
	if !report.OK() {
		logger.Warn("normalization incomplete", "failed", len(report.Failures), "attempted", report.Attempted())
	}

	artifact, err := packager.Package(outcome)
	if err != nil {
		logger.Error("packaging failed", "error", err)
		return nil, err
	}

	logger.Info("run complete", "artifact", artifact.Path, "archived", artifact.Archived)
	sink.Emit("Processing complete: %s", filepath.Base(artifact.Path))
	return &domain.Result{Ref: ref, Artifact: artifact, Normalize: report}, nil
}

// claimWorkDir creates a fresh work dir named after the sanitized title. A
// name whose directory is non-empty or whose archive already exists belongs
// to an earlier run, so the video id and then a counter are appended until a
// free name is found. Callers hold the output directory lock.
func (p *Pipeline) claimWorkDir(ref domain.VideoRef) (string, error) {
	base := textutil.SanitizeTitle(ref.Title)
	candidates := []string{base}
	if id := textutil.SanitizeTitle(ref.ID); ref.ID != "" && id != "untitled" {
		base = base + " " + id
		candidates = append(candidates, base)
	}
	for i := 2; len(candidates) < maxWorkDirAttempts; i++ {
		candidates = append(candidates, fmt.Sprintf("%s %d", base, i))
	}

	for _, name := range candidates {
		dir := filepath.Join(p.outputDir, name)
		if _, err := os.Stat(dir + ".zip"); err == nil {
			continue
		}
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", &domain.PipelineError{Stage: "prepare", Reason: "create work dir", Err: err}
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		if len(entries) == 0 {
			return dir, nil
		}
	}
	return "", &domain.PipelineError{Stage: "prepare", Reason: fmt.Sprintf("no free work dir for %q in %s", base, p.outputDir)}
}

// lock takes the output directory lock, waiting for a concurrent run to finish.
func (p *Pipeline) lock(ctx context.Context, logger *slog.Logger, sink domain.ProgressSink) (func(), error) {
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return nil, &domain.PipelineError{Stage: "prepare", Reason: "create output dir", Err: err}
	}

	lock := flock.New(filepath.Join(p.outputDir, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		logger.Info("waiting for another run to release the output directory")
		sink.Emit("Waiting for another run to finish...")
		ok, err = lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return nil, errors.New("acquire lock: output directory is busy")
		}
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release output directory lock", "error", err)
		}
	}, nil
}
