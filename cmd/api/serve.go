package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"meeting-insights-go/internal/server"
)

func newServeCmd() *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			a.log.WithField("service", "meeting-insights-go").Info("starting service")

			orch, err := a.orchestrator(ctx, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			api := server.New(orch, a.pool, server.Options{
				MaxUploadBytes: a.cfg.MaxUploadBytes,
				Registerer:     prometheus.DefaultRegisterer,
				Gatherer:       prometheus.DefaultGatherer,
			}, a.log)

			addr := fmt.Sprintf(":%s", a.cfg.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      api.Handler(),
				ReadTimeout:  5 * time.Minute,
				WriteTimeout: 10 * time.Minute,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.WithField("addr", addr).Info("listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server terminated: %w", err)
				}
			case <-ctx.Done():
			}

			a.log.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				a.log.WithError(err).Warn("graceful shutdown incomplete")
			}
			orch.Wait()
			return nil
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "time to let in-flight uploads finish")
	return cmd
}
