package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httpAdapter "github.com/cwygoda/chaptercast/internal/adapter/http"
	"github.com/cwygoda/chaptercast/internal/deps"
	"github.com/cwygoda/chaptercast/internal/domain"
	"github.com/cwygoda/chaptercast/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web form, webhook and background worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			logger.Info("starting chaptercast", "port", cfg.Port, "database", cfg.DBPath, "output_dir", cfg.OutputDir)

			for _, s := range deps.MissingRequired(deps.CheckBinaries(cmd.Context(), deps.Requirements(cfg.Downloader.Command, cfg.Normalizer.Command))) {
				logger.Warn("dependency missing, runs will fail until it is installed", "name", s.Name, "detail", s.Detail)
			}

			repo, err := ctx.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			svc := domain.NewJobService(repo)

			if recovered, err := svc.RecoverStale(cmd.Context()); err != nil {
				logger.Warn("failed to recover stale jobs", "error", err)
			} else if recovered > 0 {
				logger.Info("marked interrupted runs as failed", "count", recovered)
			}

			p, err := ctx.newPipeline()
			if err != nil {
				return err
			}

			srv := httpAdapter.NewServer(svc, cfg.Addr(), cfg.Secret, cfg.Options(), logger)
			w := worker.New(svc, p, cfg.PollInterval, logger)

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			workerDone := make(chan struct{})
			go func() {
				w.Run(runCtx)
				close(workerDone)
			}()

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("HTTP server listening", "addr", srv.Addr())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			var runErr error
			select {
			case <-runCtx.Done():
				logger.Info("shutting down")
			case err := <-serveErr:
				if err != nil {
					runErr = fmt.Errorf("http server: %w", err)
				}
			}

			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
			defer shutdownCancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown error", "error", err)
			}

			select {
			case <-workerDone:
			case <-shutdownCtx.Done():
				logger.Warn("worker did not stop before the shutdown timeout")
			}

			logger.Info("shutdown complete")
			return runErr
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides config and CHAPTERCAST_PORT)")
	return cmd
}
