package domain

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Supported audio formats for extraction.
var audioFormats = map[string]struct{}{
	"mp3":    {},
	"m4a":    {},
	"aac":    {},
	"flac":   {},
	"opus":   {},
	"vorbis": {},
	"wav":    {},
}

// VideoRef identifies a resolved source video.
type VideoRef struct {
	URL   string
	Title string
	ID    string
}

// Options selects the extracted audio format and quality.
type Options struct {
	Format  string
	Quality string
}

// Formats lists the supported audio formats in sorted order.
func Formats() []string {
	out := make([]string, 0, len(audioFormats))
	for f := range audioFormats {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// DefaultOptions extracts 320 kbps MP3.
func DefaultOptions() Options {
	return Options{Format: "mp3", Quality: "320k"}
}

// Normalize lowercases the format and fills empty fields from defaults.
func (o Options) Normalize() Options {
	def := DefaultOptions()
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	o.Quality = strings.TrimSpace(o.Quality)
	if o.Format == "" {
		o.Format = def.Format
	}
	if o.Quality == "" {
		o.Quality = def.Quality
	}
	return o
}

// Validate reports whether the format is one the downloader can extract.
func (o Options) Validate() error {
	if _, ok := audioFormats[o.Format]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, o.Format)
	}
	return nil
}

// Extension returns the file extension produced for the format.
func (o Options) Extension() string {
	if o.Format == "vorbis" {
		return ".ogg"
	}
	return "." + o.Format
}

// OutcomeKind distinguishes the two shapes a download can take.
type OutcomeKind int

const (
	SingleFile OutcomeKind = iota
	ChapterSet
)

func (k OutcomeKind) String() string {
	if k == ChapterSet {
		return "chapters"
	}
	return "single"
}

// Outcome is what the downloader left on disk.
//
// For SingleFile, Main is the final audio file and Files is empty. For
// ChapterSet, Files holds the chapter files and Main the pre-split file that
// duplicates them.
type Outcome struct {
	Kind    OutcomeKind
	WorkDir string
	Main    string
	Files   []string
}

// NewSingleFile builds a single-file outcome.
func NewSingleFile(workDir, path string) Outcome {
	return Outcome{Kind: SingleFile, WorkDir: workDir, Main: path}
}

// NewChapterSet builds a chapter outcome.
func NewChapterSet(workDir, main string, files []string) Outcome {
	return Outcome{Kind: ChapterSet, WorkDir: workDir, Main: main, Files: files}
}

// AudioFiles returns the files the normalizer should process.
func (o Outcome) AudioFiles() []string {
	if o.Kind == ChapterSet {
		return o.Files
	}
	if o.Main == "" {
		return nil
	}
	return []string{o.Main}
}

// Artifact is the final file handed back to the caller.
type Artifact struct {
	Path     string
	Archived bool
}

// NormalizeFailure records a normalizer run that exited non-zero.
type NormalizeFailure struct {
	Path     string
	ExitCode int
	Output   string
	Err      error
}

func (f NormalizeFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("normalize %s: %v", f.Path, f.Err)
	}
	return fmt.Sprintf("normalize %s: exit status %d: %s", f.Path, f.ExitCode, f.Output)
}

// NormalizeResult is the outcome for one file.
type NormalizeResult struct {
	Path     string
	ExitCode int
	Output   string
}

// NormalizeReport collects per-file normalizer results.
type NormalizeReport struct {
	Results  []NormalizeResult
	Failures []NormalizeFailure
	Warning  string
}

// Attempted returns how many files the normalizer was run against.
func (r NormalizeReport) Attempted() int {
	return len(r.Results) + len(r.Failures)
}

// OK reports whether every attempted file succeeded.
func (r NormalizeReport) OK() bool {
	return len(r.Failures) == 0
}

// FailedPaths lists the files that failed normalization.
func (r NormalizeReport) FailedPaths() []string {
	paths := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		paths = append(paths, f.Path)
	}
	return paths
}

// Warnings renders the report as user-facing lines.
func (r NormalizeReport) Warnings() []string {
	var out []string
	if r.Warning != "" {
		out = append(out, r.Warning)
	}
	for _, f := range r.Failures {
		if f.Err != nil {
			out = append(out, fmt.Sprintf("normalization failed for %s: %v", filepath.Base(f.Path), f.Err))
			continue
		}
		out = append(out, fmt.Sprintf("normalization failed for %s (exit %d)", filepath.Base(f.Path), f.ExitCode))
	}
	return out
}

// Result is returned by a successful pipeline run.
type Result struct {
	Ref       VideoRef
	Artifact  Artifact
	Normalize NormalizeReport
}

// ProgressSink receives human-readable status lines in order.
type ProgressSink func(line string)

// Emit sends a line to the sink if one is set.
func (s ProgressSink) Emit(format string, args ...any) {
	if s == nil {
		return
	}
	s(fmt.Sprintf(format, args...))
}
