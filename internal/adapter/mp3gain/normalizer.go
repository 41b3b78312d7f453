// Package mp3gain runs an external ReplayGain-style normalizer once per file.
package mp3gain

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/cwygoda/chaptercast/internal/domain"
)

const (
	// DefaultCommand is the normalizer binary looked up on PATH.
	DefaultCommand = "mp3gain"
	// FilePlaceholder is replaced by the target path in the argument list.
	FilePlaceholder = "{file}"
)

// DefaultArgs recalculates track gain, clips if needed and prints tab-delimited output.
var DefaultArgs = []string{"-r", "-k", "-o", FilePlaceholder}

// Normalizer runs the configured command for each file.
type Normalizer struct {
	command string
	args    []string
	logger  *slog.Logger
}

// New creates a normalizer. Empty command or args fall back to the mp3gain defaults.
func New(command string, args []string, logger *slog.Logger) *Normalizer {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	if len(args) == 0 {
		args = DefaultArgs
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{command: command, args: args, logger: logger}
}

// buildArgs substitutes {file}, appending the path when no placeholder is present.
func (n *Normalizer) buildArgs(file string) []string {
	args := make([]string, len(n.args))
	found := false
	for i, arg := range n.args {
		if strings.Contains(arg, FilePlaceholder) {
			found = true
		}
		args[i] = strings.ReplaceAll(arg, FilePlaceholder, file)
	}
	if !found {
		args = append(args, file)
	}
	return args
}

// Normalize runs the normalizer on every file in order. A failing file is
// recorded in the report and the remaining files are still processed.
func (n *Normalizer) Normalize(ctx context.Context, files []string, sink domain.ProgressSink) domain.NormalizeReport {
	var report domain.NormalizeReport
	if len(files) == 0 {
		report.Warning = "no audio files found for normalization"
		n.logger.Warn(report.Warning)
		sink.Emit("%s", report.Warning)
		return report
	}

	for _, file := range files {
		cmd := exec.CommandContext(ctx, n.command, n.buildArgs(file)...)
		output, err := cmd.CombinedOutput()
		text := strings.TrimSpace(string(output))

		if err != nil {
			failure := domain.NormalizeFailure{Path: file, ExitCode: -1, Output: text}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				failure.ExitCode = exitErr.ExitCode()
			} else {
				failure.Err = err
			}
			report.Failures = append(report.Failures, failure)
			n.logger.Error("normalization failed", "file", file, "exit_code", failure.ExitCode, "output", text, "error", err)
			sink.Emit("Error applying ReplayGain to %s: %s", file, text)
			continue
		}

		report.Results = append(report.Results, domain.NormalizeResult{Path: file, Output: text})
		n.logger.Info("normalization applied", "file", file)
		sink.Emit("ReplayGain applied to %s", file)
	}
	return report
}
