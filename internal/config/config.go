// Package config provides configuration management for the IMAP server.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"
)

// ListenerMode defines the operational mode for a listener.
type ListenerMode string

const (
	// ModeIMAP is standard IMAP4rev1 on port 143, with optional STARTTLS.
	ModeIMAP ListenerMode = "imap"
	// ModeIMAPS is implicit TLS on port 993.
	ModeIMAPS ListenerMode = "imaps"
)

// FileConfig is the top-level wrapper for the shared configuration file.
// This allows other mail services to share a single config file alongside
// imapd's own [imapd] section.
type FileConfig struct {
	Server ServerConfig `toml:"server"`
	Imapd  Config       `toml:"imapd"`
}

// ServerConfig holds settings shared across mail services reading the
// same configuration file.
type ServerConfig struct {
	Hostname string    `toml:"hostname"`
	TLS      TLSConfig `toml:"tls"`
}

// Config holds the IMAP-specific server configuration.
type Config struct {
	Hostname             string           `toml:"hostname"`
	ServerName           string           `toml:"server_name"`
	LogLevel             string           `toml:"log_level"`
	Listeners            []ListenerConfig `toml:"listeners"`
	TLS                  TLSConfig        `toml:"tls"`
	Timeouts             TimeoutsConfig   `toml:"timeouts"`
	Limits               LimitsConfig     `toml:"limits"`
	Metrics              MetricsConfig    `toml:"metrics"`
	Auth                 AuthConfig       `toml:"auth"`
	AnnounceDraftSupport bool             `toml:"announce_draft_support"`
}

// ListenerConfig defines settings for a single listener.
type ListenerConfig struct {
	Address string       `toml:"address"`
	Mode    ListenerMode `toml:"mode"`
}

// TLSConfig holds TLS certificate and version settings.
type TLSConfig struct {
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	MinVersion string `toml:"min_version"`
}

// TimeoutsConfig defines the idle-timeout schedule. A connection carries
// one of these three budgets depending on its current state: PreAuth until
// it authenticates, Authenticated once logged in, or Idle while it has an
// IDLE command outstanding (which by convention gets a much longer
// ceiling than ordinary authenticated inactivity).
type TimeoutsConfig struct {
	PreAuth       string `toml:"preauth"`
	Authenticated string `toml:"authenticated"`
	Idle          string `toml:"idle"`
	// Command bounds a single command's wait on a storage/auth collaborator.
	Command string `toml:"command"`
}

// LimitsConfig defines resource limits for the server.
type LimitsConfig struct {
	MaxConnections int `toml:"max_connections"`
	// MaxLineLength is loaded and validated, but the IMAP line framer does
	// not read it: the framer always applies its own fixed 32768-byte cap.
	MaxLineLength int `toml:"max_line_length"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// AuthConfig controls which authentication mechanisms are advertised and
// accepted, and the plaintext-password policy.
type AuthConfig struct {
	Plain     bool `toml:"auth_plain"`
	CramMD5   bool `toml:"auth_cram_md5"`
	DigestMD5 bool `toml:"auth_digest_md5"`
	Anonymous bool `toml:"auth_anonymous"`
	// AllowPlaintextPasswords is one of "always", "never", "if-tls".
	AllowPlaintextPasswords string `toml:"allow_plaintext_passwords"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Hostname:   "localhost",
		ServerName: "imapd",
		LogLevel:   "info",
		Listeners: []ListenerConfig{
			{Address: ":143", Mode: ModeIMAP},
		},
		TLS: TLSConfig{
			MinVersion: "1.2",
		},
		Timeouts: TimeoutsConfig{
			PreAuth:       "2m",
			Authenticated: "30m",
			Idle:          "3h",
			Command:       "1m",
		},
		Limits: LimitsConfig{
			MaxConnections: 100,
			MaxLineLength:  32768,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9105",
			Path:    "/metrics",
		},
		Auth: AuthConfig{
			Plain:                   true,
			CramMD5:                 true,
			DigestMD5:               false,
			Anonymous:               false,
			AllowPlaintextPasswords: "if-tls",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}

	if len(c.Listeners) == 0 {
		return errors.New("at least one listener is required")
	}

	for i, l := range c.Listeners {
		if l.Address == "" {
			return fmt.Errorf("listener %d: address is required", i)
		}
		if !isValidMode(l.Mode) {
			return fmt.Errorf("listener %d: invalid mode %q", i, l.Mode)
		}
	}

	if c.Limits.MaxConnections <= 0 {
		return errors.New("max_connections must be positive")
	}

	if c.Limits.MaxLineLength != 0 && c.Limits.MaxLineLength < 32768 {
		return errors.New("max_line_length must be at least 32768")
	}

	timeouts := []struct {
		name  string
		value string
	}{
		{"preauth", c.Timeouts.PreAuth},
		{"authenticated", c.Timeouts.Authenticated},
		{"idle", c.Timeouts.Idle},
		{"command", c.Timeouts.Command},
	}
	for _, t := range timeouts {
		if t.value == "" {
			continue
		}
		if _, err := time.ParseDuration(t.value); err != nil {
			return fmt.Errorf("invalid %s timeout: %w", t.name, err)
		}
	}

	if c.TLS.MinVersion != "" {
		if _, ok := minTLSVersions[c.TLS.MinVersion]; !ok {
			return fmt.Errorf("invalid TLS min_version %q (valid: 1.0, 1.1, 1.2, 1.3)", c.TLS.MinVersion)
		}
	}

	switch c.Auth.AllowPlaintextPasswords {
	case "", "always", "never", "if-tls":
	default:
		return fmt.Errorf("invalid allow_plaintext_passwords %q (valid: always, never, if-tls)", c.Auth.AllowPlaintextPasswords)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	return nil
}

// MinTLSVersion returns the crypto/tls constant for the configured minimum
// TLS version. Returns tls.VersionTLS12 if not configured or invalid.
func (c *TLSConfig) MinTLSVersion() uint16 {
	if v, ok := minTLSVersions[c.MinVersion]; ok {
		return v
	}
	return tls.VersionTLS12
}

// PreAuthTimeout returns the pre-authentication idle timeout.
// Returns 2 minutes if not configured or invalid.
func (c *TimeoutsConfig) PreAuthTimeout() time.Duration {
	return parseOr(c.PreAuth, 2*time.Minute)
}

// AuthenticatedTimeout returns the authenticated idle timeout.
// Returns 30 minutes if not configured or invalid.
func (c *TimeoutsConfig) AuthenticatedTimeout() time.Duration {
	return parseOr(c.Authenticated, 30*time.Minute)
}

// IdleTimeout returns the ceiling applied to a connection with an
// outstanding IDLE command. Returns 3 hours if not configured or invalid.
func (c *TimeoutsConfig) IdleTimeout() time.Duration {
	return parseOr(c.Idle, 3*time.Hour)
}

// CommandTimeout returns the per-command collaborator timeout.
// Returns 1 minute if not configured or invalid.
func (c *TimeoutsConfig) CommandTimeout() time.Duration {
	return parseOr(c.Command, 1*time.Minute)
}

func parseOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

var minTLSVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

func isValidMode(m ListenerMode) bool {
	switch m {
	case ModeIMAP, ModeIMAPS:
		return true
	default:
		return false
	}
}
