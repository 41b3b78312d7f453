package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cwygoda/chaptercast/internal/textutil"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info <url>",
		Short: "Print the title and id of a URL without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.newPipeline()
			if err != nil {
				return err
			}
			ref, err := p.ResolveMetadata(cmd.Context(), args[0])
			if err != nil {
				return describeRunError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues([][]string{
				{"Title", ref.Title},
				{"Video ID", ref.ID},
				{"Work dir", filepath.Join(p.OutputDir(), textutil.SanitizeTitle(ref.Title))},
			}))
			return nil
		},
	}
}
