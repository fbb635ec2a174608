package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/fieldops/cli/internal/api"
	"github.com/fieldops/cli/internal/auth"
	"github.com/fieldops/cli/internal/config"
	"github.com/fieldops/cli/internal/logger"
	"github.com/fieldops/cli/internal/metrics"
	"github.com/fieldops/cli/internal/session"
)

// metricsRegistry collects the session metrics of every command run in this
// process; --metrics-file writes it out.
var metricsRegistry = prometheus.NewRegistry()

var sessionMetrics = sync.OnceValue(func() *metrics.Metrics {
	return metrics.New(metricsRegistry)
})

// cliSession bundles everything a command needs to talk to the API as the
// signed-in user.
type cliSession struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *api.Client
	store   auth.Store
	manager *session.Manager

	closeStore func() error
}

// loadConfig reads the config file named by --config, or the usual
// global/local pair, and applies the --server override.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if serverFlag, _ := cmd.Flags().GetString("server"); serverFlag != "" {
		cfg.Host = serverFlag
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logger.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
}

// newSession is the composition root for commands that use the session.
func newSession(cmd *cobra.Command) (*cliSession, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := newLogger(cmd, cfg)

	client, err := api.New(cfg.Host,
		api.WithTimeout(cfg.HTTP.GetTimeout()),
		api.WithUserAgent("fieldops-cli/"+Version),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	store, closeStore, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	manager := session.New(client,
		session.WithStore(store),
		session.WithNavigator(&cliNavigator{out: cmd.OutOrStdout()}),
		session.WithLogger(log),
		session.WithMetrics(sessionMetrics()),
		session.WithPaths(session.Paths{
			Session: cfg.Auth.GetSessionPath(),
			Me:      cfg.Auth.GetMePath(),
			Logout:  cfg.Auth.GetLogoutPath(),
		}),
		session.WithLandingURL(cfg.LandingURL),
		session.WithLogoutTimeout(cfg.Auth.GetLogoutTimeout()),
	)

	return &cliSession{
		cfg:        cfg,
		logger:     log,
		client:     client,
		store:      store,
		manager:    manager,
		closeStore: closeStore,
	}, nil
}

// Close detaches the manager and releases the store.
func (s *cliSession) Close() {
	s.manager.Close()
	if err := s.closeStore(); err != nil {
		s.logger.Warn("failed to close token store", "error", err)
	}
}

// bootstrap recovers the session, honouring the command's context.
func (s *cliSession) bootstrap(ctx context.Context) (session.State, error) {
	st, err := s.manager.Bootstrap(ctx)
	if err != nil {
		return st, fmt.Errorf("failed to restore session: %w", err)
	}
	return st, nil
}

func noClose() error { return nil }

// openStore builds the configured token store.
func openStore(cfg config.StorageConfig) (auth.Store, func() error, error) {
	switch cfg.GetBackend() {
	case config.StorageMemory:
		return auth.NewMemoryStore(), noClose, nil
	case config.StorageRedis:
		if cfg.RedisURL == "" {
			return nil, nil, fmt.Errorf("storage backend %q requires redis_url", config.StorageRedis)
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis_url: %w", err)
		}
		client := redis.NewClient(opts)
		var storeOpts []auth.RedisStoreOption
		if cfg.Key != "" {
			storeOpts = append(storeOpts, auth.WithRedisKey(cfg.Key))
		}
		return auth.NewRedisStore(client, storeOpts...), client.Close, nil
	default:
		store, err := auth.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to locate credentials file: %w", err)
		}
		return store, noClose, nil
	}
}

// cliNavigator tells the user where to continue after a logout; a terminal
// has no page to replace.
type cliNavigator struct {
	out io.Writer
}

func (n *cliNavigator) Assign(url string) error {
	_, err := fmt.Fprintf(n.out, "Continue at %s\n", url)
	return err
}

func (n *cliNavigator) Replace(string) {}
