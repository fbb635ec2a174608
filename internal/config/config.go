package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// StorageBackend selects where the access token is persisted between runs.
type StorageBackend string

const (
	StorageFile   StorageBackend = "file"
	StorageRedis  StorageBackend = "redis"
	StorageMemory StorageBackend = "memory"
)

// IsValid returns true if the backend is a recognized storage backend.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageFile, StorageRedis, StorageMemory:
		return true
	default:
		return false
	}
}

// String returns the string representation of the StorageBackend.
func (b StorageBackend) String() string {
	return string(b)
}

// AuthConfig contains the backend auth endpoints and logout behaviour.
type AuthConfig struct {
	// SessionPath exchanges the refresh cookie for an access token.
	SessionPath string `toml:"session_path,omitempty"`

	// MePath returns the signed-in user's profile.
	MePath string `toml:"me_path,omitempty"`

	// LogoutPath ends the server-side session.
	LogoutPath string `toml:"logout_path,omitempty"`

	// LogoutTimeout bounds the server logout call (e.g., "5s").
	LogoutTimeout string `toml:"logout_timeout,omitempty"`
}

// GetSessionPath returns the session endpoint, defaulting to /auth/session.
func (a *AuthConfig) GetSessionPath() string {
	return orDefault(a.SessionPath, "/auth/session")
}

// GetMePath returns the profile endpoint, defaulting to /auth/me.
func (a *AuthConfig) GetMePath() string {
	return orDefault(a.MePath, "/auth/me")
}

// GetLogoutPath returns the logout endpoint, defaulting to /auth/logout.
func (a *AuthConfig) GetLogoutPath() string {
	return orDefault(a.LogoutPath, "/auth/logout")
}

// GetLogoutTimeout returns the logout timeout, defaulting to 5s.
func (a *AuthConfig) GetLogoutTimeout() time.Duration {
	return durationOr(a.LogoutTimeout, 5*time.Second)
}

// StorageConfig selects and configures the token store.
type StorageConfig struct {
	// Backend is file, redis or memory.
	Backend StorageBackend `toml:"backend,omitempty"`

	// Path overrides the credentials file location for the file backend.
	Path string `toml:"path,omitempty"`

	// RedisURL is a redis:// URL for the redis backend.
	RedisURL string `toml:"redis_url,omitempty"`

	// Key is the redis key holding the token.
	Key string `toml:"key,omitempty"`
}

// GetBackend returns the configured backend, defaulting to "file" if not set.
func (s *StorageConfig) GetBackend() StorageBackend {
	if s.Backend != "" && s.Backend.IsValid() {
		return s.Backend
	}
	return StorageFile
}

// HTTPConfig contains API client settings.
type HTTPConfig struct {
	// Timeout is the per-request timeout (e.g., "30s").
	Timeout string `toml:"timeout,omitempty"`
}

// GetTimeout returns the request timeout, defaulting to 30s.
func (h *HTTPConfig) GetTimeout() time.Duration {
	return durationOr(h.Timeout, 30*time.Second)
}

// LogConfig controls diagnostic logging on stderr.
type LogConfig struct {
	Level  string `toml:"level,omitempty"`
	Format string `toml:"format,omitempty"`
}

// DevServerConfig configures the local development auth server.
type DevServerConfig struct {
	Addr       string `toml:"addr,omitempty"`
	SigningKey string `toml:"signing_key,omitempty"`
	TokenTTL   string `toml:"token_ttl,omitempty"`
	SessionTTL string `toml:"session_ttl,omitempty"`
}

// GetAddr returns the listen address, defaulting to 127.0.0.1:8787.
func (d *DevServerConfig) GetAddr() string {
	return orDefault(d.Addr, "127.0.0.1:8787")
}

// GetSigningKey returns the HMAC key, defaulting to a fixed development key.
func (d *DevServerConfig) GetSigningKey() string {
	return orDefault(d.SigningKey, "fieldops-dev-signing-key")
}

// GetTokenTTL returns the access token lifetime, defaulting to 15m.
func (d *DevServerConfig) GetTokenTTL() time.Duration {
	return durationOr(d.TokenTTL, 15*time.Minute)
}

// GetSessionTTL returns the refresh session lifetime, defaulting to 12h.
func (d *DevServerConfig) GetSessionTTL() time.Duration {
	return durationOr(d.SessionTTL, 12*time.Hour)
}

// Config represents the FieldOps CLI configuration
type Config struct {
	Host string `toml:"host"`

	// LandingURL is where the user is sent after logout.
	LandingURL string `toml:"landing_url,omitempty"`

	Auth      AuthConfig      `toml:"auth,omitempty"`
	Storage   StorageConfig   `toml:"storage,omitempty"`
	HTTP      HTTPConfig      `toml:"http,omitempty"`
	Log       LogConfig       `toml:"log,omitempty"`
	DevServer DevServerConfig `toml:"dev_server,omitempty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Host: "http://localhost:8787",
	}
}

// Load loads configuration from files, with the following precedence:
// 1. Local .fieldopsrc file (in current directory)
// 2. Global ~/.fieldopsrc file
// 3. Default values
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Try global config first (lower precedence)
	globalPath, err := GlobalConfigPath()
	if err == nil {
		if err := mergeFile(cfg, globalPath); err != nil {
			return nil, err
		}
	}

	// Try local config (higher precedence, overwrites global)
	if err := mergeFile(cfg, LocalConfigPath()); err != nil {
		return nil, err
	}

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return toml.Unmarshal(data, cfg)
}

// LocalConfigPath returns the path to the local config file
func LocalConfigPath() string {
	return ".fieldopsrc"
}

// GlobalConfigPath returns the path to the global config file
func GlobalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".fieldopsrc"), nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to the global config file
func (c *Config) Save() error {
	path, err := GlobalConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// durationOr parses v, falling back to def when v is empty, malformed or
// not positive.
func durationOr(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
