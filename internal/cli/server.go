package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/martijn/vmorch/internal/api"
	"github.com/martijn/vmorch/internal/observability"
)

const serviceName = "vmorch"

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long:  "Start the REST, SSE and WebSocket API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		// Metrics must be installed before instruments are created
		metricsHandler, shutdownMetrics, err := observability.InitMetrics()
		if err != nil {
			return err
		}
		defer shutdownMetrics(context.Background())

		if cfg.OTelEndpoint != "" {
			shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTelEndpoint)
			if err != nil {
				return err
			}
			defer shutdownTracing(context.Background())
		}

		services, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer services.Close()

		recovered, err := services.Manager.Recover(ctx)
		if err != nil {
			return fmt.Errorf("failed to recover orphaned jobs: %w", err)
		}
		if recovered > 0 {
			log.Info("marked orphaned jobs as failed", "count", recovered)
		}
		if _, err := os.Stat(services.Resolver.Path()); err != nil {
			log.Warn("ssh config not readable, ssh aliases unavailable", "path", services.Resolver.Path())
		}

		// Initialize Gin server
		server := api.NewServer(cfg, api.Dependencies{
			Executor: services.Manager,
			Events:   services.Events,
			Jobs:     services.Jobs,
			Hosts:    services.Resolver,
			Presets:  services.Presets,
			Tokens:   services.Tokens,
			Metrics:  metricsHandler,
			Logger:   log,
		})

		// Start server in goroutine
		serverErr := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		// Wait for interrupt signal or server error
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		log.Info("server is ready",
			"addr", cfg.Addr(),
			"auth", cfg.AuthEnabled(),
			"presets", services.Presets.Len(),
			"archive", cfg.ArchiveEnabled(),
		)

		select {
		case err := <-serverErr:
			return fmt.Errorf("server error: %w", err)
		case sig := <-sigChan:
			log.Info("shutting down gracefully", "signal", sig.String())
		}

		// Graceful shutdown: stop accepting requests, then stop the jobs
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown error", "error", err)
		}
		if err := services.Manager.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("execution manager shutdown error: %w", err)
		}

		log.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
