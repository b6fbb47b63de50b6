package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/harvest/api"
	"github.com/use-agent/harvest/batch"
	"github.com/use-agent/harvest/engine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the HTTP control API and event stream.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// ── 1. Load configuration ───────────────────────────────────────
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// ── 2. Initialise structured logging ────────────────────────────
		initLogger(cfg.Log)
		slog.Info("harvest starting",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"mode", cfg.Server.Mode,
			"output", cfg.Output.BaseDir,
		)

		// ── 3. Batch controller ─────────────────────────────────────────
		ctl, release, err := batch.NewDefault(cfg, engine.NewReporter(slog.Default()))
		if err != nil {
			return err
		}
		defer release()

		// ── 4. HTTP server ──────────────────────────────────────────────
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: api.NewRouter(ctl, cfg, time.Now()),
		}
		errc := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()

		// ── 5. Graceful shutdown ────────────────────────────────────────
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			slog.Info("shutdown signal received", "signal", sig.String())
		case err := <-errc:
			return fmt.Errorf("http server: %w", err)
		}

		// A running batch still persists what it has.
		if ctl.Stop() {
			slog.Info("waiting for the running batch to save its results")
			ctl.Wait()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}
		slog.Info("harvest stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
