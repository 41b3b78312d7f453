package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "chaptercast",
		Short:         "Download chapter-split, loudness-normalized audio from video URLs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx.out = cmd.OutOrStdout()
			ctx.errOut = cmd.ErrOrStderr()
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.flags.configPath, "config", "c", "", "Configuration file path (default $XDG_CONFIG_HOME/chaptercast/config.toml)")
	flags.StringVar(&ctx.flags.outputDir, "output-dir", "", "Directory for work dirs and finished artifacts")
	flags.StringVar(&ctx.flags.dbPath, "db", "", "SQLite database path for the run history")
	flags.StringVar(&ctx.flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&ctx.flags.logFormat, "log-format", "", "Log format: auto, console or json")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newInfoCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))

	return rootCmd
}
