package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/clients/postgres"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/config"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/credstore"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/gateway"
)

// cfgFile is the --config flag. A missing file is not an error; the
// environment alone can configure gatewayd.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gatewayd",
	Short: "Authentication and rate-limiting gateway",
	Long: `gatewayd authenticates callers by bearer token or API key, applies
tiered fixed-window admission and forwards admitted requests upstream.

Configuration is read from --config (YAML or JSON) and then from
GATEWAY_* environment variables, which take precedence.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gatewayd.yaml", "config file path")
}

// loadConfig fills cfg from the config file and the environment. cfg may
// be a section struct so commands only need the settings they use.
func loadConfig(cfg any) error {
	l := config.New().WithEnvPrefix(gateway.EnvPrefix)
	if cfgFile != "" {
		l = l.WithFile(cfgFile)
	}
	return l.Load(cfg)
}

// newLogger builds the process logger from the log section.
func newLogger(w io.Writer, c gateway.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// postgresSection is the part of the configuration the key management
// commands need.
type postgresSection struct {
	Postgres postgres.Config `env:"POSTGRES" yaml:"postgres" json:"postgres"`
}

// openStore connects to the credential database. The returned func
// closes the pool.
func openStore(ctx context.Context) (*credstore.Postgres, func(), error) {
	var sec postgresSection
	if err := loadConfig(&sec); err != nil {
		return nil, nil, err
	}
	if err := sec.Postgres.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	client, err := postgres.NewClient(ctx, sec.Postgres)
	if err != nil {
		return nil, nil, err
	}
	return credstore.NewPostgres(client, nil), client.Close, nil
}
