// =============================================================================
// ERP to CoreTax Converter - Serve Command
// =============================================================================
//
// This file defines the 'serve' command, which exposes the converter over
// HTTP.
//
// COMMAND USAGE:
//   converter serve [--addr :8000]
//
// ENDPOINTS:
//   POST /convert/  multipart field "file" (.xlsx or .csv), returns the workbook
//   GET  /health    liveness check
//
// The PORT environment variable overrides the configured port.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/erp-coretax-converter/internal/converter"
	"github.com/ginjaninja78/erp-coretax-converter/internal/server"
)

// serveAddr overrides server.addr.
var serveAddr string

// shutdownTimeout bounds the wait for in-flight requests.
const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP conversion endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command) error {
	cfg, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveAddr
	}

	slog.Info("configuration loaded",
		"addr", cfg.Server.Addr,
		"vat_rate", cfg.Converter.VATRate,
		"max_upload_mb", cfg.Server.MaxUploadMB,
		"request_timeout", cfg.Server.RequestTimeout,
	)

	srv := server.NewServer(cfg.Server, converter.NewFromConfig(cfg, slog.Default()))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}
