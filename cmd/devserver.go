package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldops/cli/internal/devserver"
)

var devServerAddr string

var devServerCmd = &cobra.Command{
	Use:   "dev-server",
	Short: "Run a local stand-in for the FieldOps auth backend",
	Long: `Run a small local server that implements the auth endpoints the CLI
relies on, for development and demos without the real API.

Endpoints:
  POST /auth/login     sign in as a fixture account ({"username": "advisor"})
  GET  /auth/session   mint an access token from the refresh cookie
  GET  /auth/me        profile of the bearer
  POST /auth/logout    drop the refresh session
  GET  /api/ping       protected sample endpoint
  GET  /api/forms      forms the bearer may view
  GET  /metrics        Prometheus metrics

Fixture accounts: advisor, admin.

Settings come from the [dev_server] section of the config file.

Examples:
  fieldops dev-server
  fieldops dev-server --addr 127.0.0.1:9000
  fieldops auth login --server http://127.0.0.1:8787 --username advisor`,
	RunE: runDevServer,
}

func init() {
	rootCmd.AddCommand(devServerCmd)
	devServerCmd.Flags().StringVar(&devServerAddr, "addr", "", "listen address (overrides config)")
}

func runDevServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	srv, err := devserver.New(devserver.Config{
		SigningKey: cfg.DevServer.GetSigningKey(),
		TokenTTL:   cfg.DevServer.GetTokenTTL(),
		SessionTTL: cfg.DevServer.GetSessionTTL(),
		Logger:     log,
		Metrics:    metricsRegistry,
	})
	if err != nil {
		return err
	}

	addr := devServerAddr
	if addr == "" {
		addr = cfg.DevServer.GetAddr()
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "FieldOps dev server listening on http://%s\n", l.Addr())
	return srv.Serve(ctx, l)
}
