package chatclient

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

// ============================================================================
// Defaults
// ============================================================================

const (
	DefaultPort              = 3001
	DefaultCallTimeout       = 30 * time.Second
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultMetaRetryInterval = time.Minute

	productionHost = "totem.live"
)

// ResolveURL picks the chat server URL for the host the application is served
// from. Empty and production hosts map to the production server, local hosts
// to a plain websocket on localhost, and staging hosts (dev.* or *staging*) to
// a server on the same host.
func ResolveURL(appHost string) string {
	host := strings.ToLower(strings.TrimSpace(appHost))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	switch {
	case host == "":
		host = productionHost
	case host == "localhost" || host == "127.0.0.1" || host == "::1":
		return fmt.Sprintf("ws://localhost:%d/ws", DefaultPort)
	case strings.HasPrefix(host, "dev.") || strings.Contains(host, "staging"):
	case host == productionHost || strings.HasSuffix(host, "."+productionHost):
		host = productionHost
	}
	return fmt.Sprintf("wss://%s:%d/ws", host, DefaultPort)
}

// ============================================================================
// Config
// ============================================================================

// Duration is a time.Duration read from and written to text as "30s", "5m".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds client settings. Values come from defaults, then a TOML file,
// then TOTEM_* environment variables.
type Config struct {
	URL     string `toml:"url" env:"TOTEM_URL"`
	AppHost string `toml:"app_host" env:"TOTEM_APP_HOST"`

	CallTimeout       Duration `toml:"call_timeout" env:"TOTEM_CALL_TIMEOUT"`
	IdleTimeout       Duration `toml:"idle_timeout" env:"TOTEM_IDLE_TIMEOUT"`
	MetaRetryInterval Duration `toml:"meta_retry_interval" env:"TOTEM_META_RETRY_INTERVAL"`

	AutoReconnect        bool     `toml:"auto_reconnect" env:"TOTEM_AUTO_RECONNECT"`
	ReconnectBaseDelay   Duration `toml:"reconnect_base_delay" env:"TOTEM_RECONNECT_BASE_DELAY"`
	ReconnectMaxDelay    Duration `toml:"reconnect_max_delay" env:"TOTEM_RECONNECT_MAX_DELAY"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts" env:"TOTEM_MAX_RECONNECT_ATTEMPTS"`

	Language    string `toml:"language" env:"TOTEM_LANGUAGE"`
	DataDir     string `toml:"data_dir" env:"TOTEM_DATA_DIR"`
	LogLevel    string `toml:"log_level" env:"TOTEM_LOG_LEVEL"`
	MetricsAddr string `toml:"metrics_addr" env:"TOTEM_METRICS_ADDR"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		CallTimeout:          Duration(DefaultCallTimeout),
		IdleTimeout:          Duration(DefaultIdleTimeout),
		MetaRetryInterval:    Duration(DefaultMetaRetryInterval),
		AutoReconnect:        true,
		ReconnectBaseDelay:   Duration(time.Second),
		ReconnectMaxDelay:    Duration(30 * time.Second),
		MaxReconnectAttempts: 10,
		Language:             "en",
		LogLevel:             "info",
	}
}

// LoadConfig reads path over the defaults, then applies the environment.
// A missing file is not an error; an empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("cannot parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return cfg, fmt.Errorf("cannot read config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("cannot read environment: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as TOML.
func SaveConfig(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// ServerURL is URL when set, otherwise ResolveURL(AppHost).
func (c Config) ServerURL() string {
	if c.URL != "" {
		return c.URL
	}
	return ResolveURL(c.AppHost)
}

// TransportConfig derives the websocket transport settings.
func (c Config) TransportConfig() TransportConfig {
	return TransportConfig{
		AutoReconnect:        c.AutoReconnect,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		ReconnectBaseDelay:   time.Duration(c.ReconnectBaseDelay),
		ReconnectMaxDelay:    time.Duration(c.ReconnectMaxDelay),
	}
}

// Options derives the client options carried by the config.
func (c Config) Options() []ClientOption {
	return []ClientOption{
		WithCallTimeout(time.Duration(c.CallTimeout)),
		WithIdleTimeout(time.Duration(c.IdleTimeout)),
		WithMetaRetryInterval(time.Duration(c.MetaRetryInterval)),
	}
}
