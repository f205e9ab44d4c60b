package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	relayhttp "github.com/fyrsmithlabs/relay/internal/http"
)

var (
	serveHost       string
	servePort       int
	serveAutonomous bool
)

// serveCmd exposes one session over an OpenAI-compatible HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a session over an OpenAI-compatible HTTP API",
	Long: `Serve a session over HTTP. POST /v1/chat/completions runs the last user
message as one turn. All requests share the same session.

Examples:
  # Listen on the configured address
  relay serve

  # Listen on every interface
  relay serve --host 0.0.0.0 --port 9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default server.port)")
	serveCmd.Flags().BoolVar(&serveAutonomous, "autonomous", false, "iterate until the agent announces completion or the iteration budget runs out")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.newEngine(ctx, sessionOptions{autonomous: serveAutonomous})
	if err != nil {
		return err
	}

	host, port := a.cfg.Server.Host, a.cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}

	server, err := relayhttp.NewServer(engine, a.logger, &relayhttp.Config{
		Host:    host,
		Port:    port,
		Model:   a.cfg.Agent.Model,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "http server shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
