package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Run the gateway until SIGINT or SIGTERM.

On shutdown the listeners drain, pending usage updates are flushed and
backend connections are closed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	var cfg gateway.Config
	if err := loadConfig(&cfg); err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.Log)
	logger.Info("gatewayd starting",
		"version", Version,
		"addr", cfg.HTTP.Addr,
		"credential_store", cfg.Auth.Store,
		"counter_store", cfg.RateLimit.Store,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.New(ctx, cfg, gateway.Deps{Logger: logger, Version: Version})
	if err != nil {
		return err
	}
	if err := gw.Run(ctx); err != nil {
		logger.Error("gatewayd stopped with error", "error", err)
		return err
	}
	logger.Info("gatewayd stopped")
	return nil
}

// commandContext returns cmd's context, or Background when the command
// runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
