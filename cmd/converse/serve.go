package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-converse/internal/log"
	"github.com/teslashibe/go-converse/pkg/orchestrator"
	"github.com/teslashibe/go-converse/pkg/web"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversation over HTTP and websockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.setup(os.Stdout)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			logger := log.Component("cmd.serve")

			sess, err := newSession(cfg, log.L())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				if err := sess.orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("orchestrator stopped", "error", err)
				}
			}()
			defer sess.close(log.L())

			opts := []web.Option{
				web.WithLogger(log.L()),
				web.WithVersion(Version),
				web.WithRequestLog(cfg.Server.RequestLog),
				web.WithVoiceMetrics(sess.voice.Metrics),
			}
			if sess.bridge != nil {
				opts = append(opts, web.WithBridge(sess.bridge))
			}
			srv := web.NewServer(sess.orch, opts...)

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			logger.Info("starting server",
				"addr", addr,
				"state", fmt.Sprintf("ws://localhost:%d/ws/state", cfg.Server.Port),
				"health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
			)

			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return err
			}
			logger.Info("shut down")
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port (overrides config and PORT)")
	return cmd
}

// Verify the orchestrator satisfies the web conversation at compile time.
var _ web.Conversation = (*orchestrator.Orchestrator)(nil)
