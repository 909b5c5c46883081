package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/deskmate/internal/app"
	"github.com/zjrosen/deskmate/internal/log"
)

const shutdownTimeout = 10 * time.Second

var daemonAddr string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the pet headless with the HTTP API",
	Long: `Run the plugins and task loop without the terminal view. An agent
drives the pet through the HTTP API:

  GET  /status            status block for the agent's context
  GET  /agent             system prompt, tools and queued messages
  POST /agent/respond     structured agent output, one field per plugin
  GET  /events            websocket stream of broadcast events

Example:
  deskmate daemon                       # listen on daemon.addr
  deskmate daemon --addr 127.0.0.1:8080`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().StringVar(&daemonAddr, "addr", "", "address to listen on (overrides daemon.addr)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cleanup, err := setupLogging("deskmate-daemon")
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	addr := daemonAddr
	if addr == "" {
		addr = cfg.Daemon.Addr
	}
	srv, errCh := serve(a, addr)
	fmt.Fprintf(cmd.OutOrStdout(), "deskmate daemon listening on %s\n", addr)

	var runErr error
	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "shutting down...")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownServer(srv); err != nil {
		log.ErrorErr(log.CatHTTP, "api server shutdown", err)
	}
	return errors.Join(runErr, a.Stop(shutdownCtx))
}

// serve starts the API in the background. The channel yields the listener
// error, or nil after a clean shutdown.
func serve(a *app.App, addr string) (*http.Server, <-chan error) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			errCh <- fmt.Errorf("listening on %s: %w", addr, err)
			return
		}
		log.Info(log.CatHTTP, "api listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	return srv, errCh
}

func shutdownServer(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
