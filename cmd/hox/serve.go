package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/config"
	"github.com/hox/hox/pkg/activitystream"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the dashboard activity stream over SSE",
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot := workspace
		if repoRoot == "" {
			repoRoot, _ = os.Getwd()
		} else if abs, err := filepath.Abs(repoRoot); err == nil {
			repoRoot = abs
		}

		cfg, err := config.Load(repoRoot)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		addr := listenAddr
		if addr == "" {
			addr = cfg.ActivityStream.ListenAddr
		}

		hub := activitystream.NewHub()
		router := activitystream.NewRouter(hub)

		srv := &http.Server{Addr: addr, Handler: router}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		activitylog.Info(activitylog.CategoryActivityStream, "activity stream listening on %s", addr)
		fmt.Fprintf(cmd.OutOrStdout(), "serving activity stream on %s\n", addr)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "address to listen on (default: config activitystream.listen_addr)")
}
