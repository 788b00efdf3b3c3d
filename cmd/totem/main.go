package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	chatclient "github.com/totem-tech/chatclient-go"
)

var (
	flagConfigPath string
	flagTimeout    time.Duration
	flagJSON       bool
)

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.totem, creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".totem")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the --config flag or ~/.totem/config.toml.
func configPath() (string, error) {
	if flagConfigPath != "" {
		return flagConfigPath, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads the config file over the defaults and applies TOTEM_*
// environment variables. A missing file yields the defaults.
func loadConfig() (chatclient.Config, error) {
	path, err := configPath()
	if err != nil {
		return chatclient.Config{}, err
	}
	return chatclient.LoadConfig(path)
}

func saveConfig(cfg chatclient.Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	return chatclient.SaveConfig(path, cfg)
}

// setConfigValue sets a config field by its TOML key (e.g. "call_timeout").
func setConfigValue(cfg *chatclient.Config, key, value string) error {
	var err error
	switch key {
	case "url":
		cfg.URL = value
	case "app_host":
		cfg.AppHost = value
	case "call_timeout":
		err = cfg.CallTimeout.UnmarshalText([]byte(value))
	case "idle_timeout":
		err = cfg.IdleTimeout.UnmarshalText([]byte(value))
	case "meta_retry_interval":
		err = cfg.MetaRetryInterval.UnmarshalText([]byte(value))
	case "auto_reconnect":
		cfg.AutoReconnect, err = strconv.ParseBool(value)
	case "reconnect_base_delay":
		err = cfg.ReconnectBaseDelay.UnmarshalText([]byte(value))
	case "reconnect_max_delay":
		err = cfg.ReconnectMaxDelay.UnmarshalText([]byte(value))
	case "max_reconnect_attempts":
		cfg.MaxReconnectAttempts, err = strconv.Atoi(value)
	case "language":
		cfg.Language = value
	case "data_dir":
		cfg.DataDir = value
	case "log_level":
		cfg.LogLevel = strings.ToLower(value)
	case "metrics_addr":
		cfg.MetricsAddr = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var rootCmd = &cobra.Command{
	Use:           "totem",
	Short:         "Totem chat client CLI",
	Long:          "Command-line interface for the Totem chat server.\nManage configuration, log in, and call server events.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Config file (default ~/.totem/config.toml)")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", time.Minute, "Overall command timeout")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output raw JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
