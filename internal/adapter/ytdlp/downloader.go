package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/cwygoda/chaptercast/internal/chapters"
	"github.com/cwygoda/chaptercast/internal/domain"
)

const (
	mainTemplate    = "%(title)s.%(ext)s"
	chapterTemplate = "%(title)s - %(section_number)s - %(section_title)s [%(id)s].%(ext)s"
	markerPrefix    = ".chaptercast-"
	markerSuffix    = ".path"
)

// Downloader extracts audio with yt-dlp.
type Downloader struct {
	command   string
	extraArgs []string
	logger    *slog.Logger
}

// NewDownloader creates a downloader. An empty command means DefaultCommand.
func NewDownloader(command string, extraArgs []string, logger *slog.Logger) *Downloader {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{command: command, extraArgs: extraArgs, logger: logger}
}

// markerPath returns a fresh marker file path next to workDir.
func markerPath(workDir string) string {
	return filepath.Join(filepath.Dir(workDir), markerPrefix+uuid.NewString()+markerSuffix)
}

func (d *Downloader) args(ref domain.VideoRef, workDir string, opts domain.Options, marker string) []string {
	args := []string{
		"--extract-audio",
		"--audio-format", opts.Format,
		"--audio-quality", opts.Quality,
		"--split-chapters",
		"--restrict-filenames",
		"--no-playlist",
		"--newline",
		"--output", filepath.Join(workDir, mainTemplate),
		"--output", "chapter:" + filepath.Join(workDir, chapterTemplate),
		"--print-to-file", "after_move:%(filepath)s", marker,
	}
	args = append(args, d.extraArgs...)
	return append(args, ref.URL)
}

// Download runs the extraction and classifies what it left on disk. Every
// output line is passed to onProgress.
func (d *Downloader) Download(ctx context.Context, ref domain.VideoRef, workDir string, opts domain.Options, onProgress domain.ProgressSink) (domain.Outcome, error) {
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return domain.Outcome{}, &domain.PipelineError{Stage: "download", Reason: "resolve work dir", Err: err}
	}
	marker := markerPath(workDir)
	defer os.Remove(marker)

	cmd := exec.CommandContext(ctx, d.command, d.args(ref, workDir, opts, marker)...)
	cmd.Dir = filepath.Dir(workDir)

	d.logger.Info("starting extraction", "id", ref.ID, "work_dir", workDir, "format", opts.Format, "quality", opts.Quality)
	if err := runStreaming(cmd, func(line string) {
		d.logger.Debug("yt-dlp", "line", line)
		if onProgress != nil {
			onProgress(line)
		}
	}); err != nil {
		return domain.Outcome{}, &domain.PipelineError{
			Stage:  "download",
			Reason: fmt.Sprintf("%s failed for %s", d.command, ref.URL),
			Err:    err,
		}
	}

	main, err := readMarker(marker)
	if err != nil {
		return domain.Outcome{}, &domain.PipelineError{Stage: "download", Reason: "output marker unavailable", Err: err}
	}
	if !filepath.IsAbs(main) {
		main = filepath.Join(cmd.Dir, main)
	}
	if _, err := os.Stat(main); err != nil {
		return domain.Outcome{}, &domain.PipelineError{Stage: "download", Reason: "marker names a missing file", Err: err}
	}
	d.logger.Info("extraction finished", "id", ref.ID, "file", main)

	return Classify(workDir, main, ref, opts)
}

// readMarker returns the last non-empty line of the marker file.
func readMarker(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(data), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line, nil
		}
	}
	return "", errors.New("marker file is empty")
}

// Classify decides between a single file and a chapter set. Candidates are
// audio files of the requested format inside workDir, plus files in its
// parent that carry the bracketed video id. The main file is never a
// candidate, even when its own name looks like a chapter.
func Classify(workDir, main string, ref domain.VideoRef, opts domain.Options) (domain.Outcome, error) {
	ext := opts.Extension()
	var files []string

	collect := func(dir string, keep func(name string) bool) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if path == filepath.Clean(main) || !keep(e.Name()) {
				continue
			}
			if chapters.IsChapterName(e.Name(), ref.ID) {
				files = append(files, path)
			}
		}
		return nil
	}

	if err := collect(workDir, func(string) bool { return true }); err != nil {
		return domain.Outcome{}, &domain.PipelineError{Stage: "classify", Reason: "read work dir", Err: err}
	}
	if ref.ID != "" {
		tag := "[" + ref.ID + "]"
		if err := collect(filepath.Dir(workDir), func(name string) bool { return strings.Contains(name, tag) }); err != nil {
			return domain.Outcome{}, &domain.PipelineError{Stage: "classify", Reason: "read parent dir", Err: err}
		}
	}

	if len(files) == 0 {
		return domain.NewSingleFile(workDir, main), nil
	}
	sort.Strings(files)
	return domain.NewChapterSet(workDir, main, files), nil
}
