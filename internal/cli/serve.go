package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gibiertrace/internal/auth"
	"gibiertrace/internal/config"
)

func newServeCommand(opts *RootOptions) *cobra.Command {
	var addr, traceFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the side-effect dispatcher",
		Long: `Run the HTTP API.

Committed events are dispatched in the background. On SIGINT or SIGTERM the
server stops accepting requests, then drains pending side effects.

Example:
  gibiertrace serve --config ./gibiertrace.yaml
  GIBIERTRACE_AUTH_JWT_SECRET=dev gibiertrace serve --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.config
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, opts.logger, traceFile)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	cmd.Flags().StringVar(&traceFile, "trace-file", "", "append one JSON line per service operation to this file")

	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, traceFile string) error {
	var traceOut io.Writer
	if traceFile != "" {
		f, err := os.OpenFile(traceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		traceOut = f
	}

	authn, err := auth.New(cfg.Auth.JWTSecret, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg, logger, traceOut)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.handler(authn),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "storage", cfg.Storage.Driver, "blob", cfg.Blob.Driver)
		errCh <- srv.ListenAndServe()
	}()

	var listenErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			listenErr = fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Dispatch.DrainTimeout)
	defer cancelDrain()
	return errors.Join(listenErr, shutdownErr, a.close(drainCtx))
}
