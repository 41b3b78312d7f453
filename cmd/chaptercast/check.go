package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwygoda/chaptercast/internal/deps"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether the external tools are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(cmd.Context(), deps.Requirements(cfg.Downloader.Command, cfg.Normalizer.Command))

			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				state := "ok"
				detail := s.Version
				if !s.Available {
					state = "missing"
					detail = s.Detail
				}
				path := s.Path
				if path == "" {
					path = s.Command
				}
				rows = append(rows, []string{s.Name, state, path, detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Tool", "Status", "Path", "Version / Detail"}, rows, nil))

			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				names := make([]string, len(missing))
				for i, s := range missing {
					names[i] = s.Name
				}
				return fmt.Errorf("missing required tools: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
}
