package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/biocortex/hypothesis/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP chat API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stack, err := buildAgent(ctx)
		if err != nil {
			return err
		}
		defer stack.cleanup(context.Background())

		srv := server.New(stack.cfg.Server, stack.orch, stack.store, stack.telemetry, stack.logger)

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(stack.cfg.Server.Address); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		stack.logger.Printf("[SERVER] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
