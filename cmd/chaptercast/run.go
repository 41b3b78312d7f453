package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cwygoda/chaptercast/internal/domain"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var format, quality string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Download, split, normalize and package one URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			defer ctx.closeLog()
			p, err := ctx.newPipeline()
			if err != nil {
				return err
			}

			opts := cfg.Options()
			if format != "" {
				opts.Format = format
			}
			if quality != "" {
				opts.Quality = quality
			}

			out := cmd.OutOrStdout()
			var sink domain.ProgressSink
			if !quiet {
				sink = func(line string) { fmt.Fprintln(out, line) }
			}

			result, err := p.Run(cmd.Context(), args[0], opts, sink)
			if err != nil {
				return describeRunError(err)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderKeyValues(resultRows(result)))
			for _, w := range result.Normalize.Warnings() {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", fmt.Sprintf("Audio format (%s)", strings.Join(domain.Formats(), ", ")))
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "Audio quality passed to yt-dlp, e.g. 320k or 0")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Do not print progress lines")
	cmd.Flags().StringVarP(&ctx.logFile, "log-file", "l", "", "Also write a debug-level JSON log of the run to this file")
	return cmd
}

func resultRows(result *domain.Result) [][]string {
	kind := "single file"
	if result.Artifact.Archived {
		kind = "zip archive"
	}
	size := "-"
	if info, err := os.Stat(result.Artifact.Path); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	normalized := fmt.Sprintf("%d/%d", len(result.Normalize.Results), result.Normalize.Attempted())
	return [][]string{
		{"Title", result.Ref.Title},
		{"Video ID", result.Ref.ID},
		{"Artifact", filepath.Base(result.Artifact.Path)},
		{"Kind", kind},
		{"Size", size},
		{"Normalized", normalized},
		{"Location", filepath.Dir(result.Artifact.Path)},
	}
}

// describeRunError prefixes the failing stage for the terminal.
func describeRunError(err error) error {
	var (
		metaErr      *domain.MetadataError
		pipeErr      *domain.PipelineError
		collisionErr *domain.RenameCollisionError
		packErr      *domain.PackagingError
	)
	switch {
	case errors.As(err, &metaErr):
		return fmt.Errorf("could not resolve video: %w", err)
	case errors.As(err, &pipeErr):
		return fmt.Errorf("download failed: %w", err)
	case errors.As(err, &collisionErr):
		return fmt.Errorf("chapter rename failed: %w", err)
	case errors.As(err, &packErr):
		return fmt.Errorf("packaging failed: %w", err)
	default:
		return err
	}
}
