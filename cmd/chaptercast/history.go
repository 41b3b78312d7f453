package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cwygoda/chaptercast/internal/domain"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs submitted through the web form or webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := ctx.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			jobs, err := domain.NewJobService(repo).List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, historyRow(job))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Status", "Video", "Format", "Result", "Submitted"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func historyRow(job domain.Job) []string {
	video := job.Title
	if video == "" {
		video = job.URL
	}
	result := job.Error
	if job.Done() {
		result = filepath.Base(job.Artifact)
		if n := len(job.Warnings); n > 0 {
			result += fmt.Sprintf(" (%d %s)", n, pluralize(n, "warning", "warnings"))
		}
	}
	return []string{
		strconv.FormatInt(job.ID, 10),
		string(job.Status),
		video,
		job.Format + " " + job.Quality,
		result,
		humanize.Time(job.CreatedAt),
	}
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
