package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/cwygoda/chaptercast/internal/domain"
)

// DefaultCommand is the downloader binary looked up on PATH.
const DefaultCommand = "yt-dlp"

// Resolver looks up a video's title and id.
type Resolver struct {
	command   string
	extraArgs []string
	logger    *slog.Logger
}

// NewResolver creates a resolver. An empty command means DefaultCommand.
func NewResolver(command string, extraArgs []string, logger *slog.Logger) *Resolver {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{command: command, extraArgs: extraArgs, logger: logger}
}

func (r *Resolver) args(url string) []string {
	args := []string{"--get-title", "--get-id", "--restrict-filenames", "--no-playlist", "--no-warnings"}
	args = append(args, r.extraArgs...)
	return append(args, url)
}

// Resolve runs the downloader in metadata mode. The first output line is the
// title, the second the id.
func (r *Resolver) Resolve(ctx context.Context, url string) (domain.VideoRef, error) {
	cmd := exec.CommandContext(ctx, r.command, r.args(url)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return domain.VideoRef{}, &domain.MetadataError{
			URL:    url,
			Reason: fmt.Sprintf("%s failed: %s", r.command, strings.TrimSpace(stderr.String())),
			Err:    err,
		}
	}

	lines := strings.Split(strings.TrimRight(string(out), "\r\n"), "\n")
	if len(lines) < 2 {
		return domain.VideoRef{}, &domain.MetadataError{
			URL:    url,
			Reason: fmt.Sprintf("expected title and id, got %d line(s)", len(lines)),
		}
	}

	ref := domain.VideoRef{
		URL:   url,
		Title: strings.TrimRightFunc(lines[0], isSpace),
		ID:    strings.TrimRightFunc(lines[1], isSpace),
	}
	if ref.ID == "" {
		return domain.VideoRef{}, &domain.MetadataError{URL: url, Reason: "empty video id"}
	}
	r.logger.Debug("resolved metadata", "url", url, "title", ref.Title, "id", ref.ID)
	return ref, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}
