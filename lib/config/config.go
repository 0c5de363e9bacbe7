// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "RTCSWARM_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local experimentation.
	Development Environment = "development"
	// Production is for long-running nodes and relays.
	Production Environment = "production"
)

// Config is the configuration for a swarm node or bootstrap relay.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	Identity  IdentityConfig    `yaml:"identity"`
	Swarm     SwarmConfig       `yaml:"swarm"`
	Bootstrap []BootstrapConfig `yaml:"bootstrap"`
	ICE       ICEConfig         `yaml:"ice"`
	Relay     RelayConfig       `yaml:"relay"`
	Log       LogConfig         `yaml:"log"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
type Overrides struct {
	Log   *LogConfig   `yaml:"log,omitempty"`
	Relay *RelayConfig `yaml:"relay,omitempty"`
}

// IdentityConfig selects where the node's Ed25519 identity comes from.
// At most one of Seed and Passphrase may be set; when neither is, the
// identity is loaded from (or generated into) StateDir.
type IdentityConfig struct {
	// StateDir holds swarm-identity and swarm-identity.pub.
	StateDir string `yaml:"state_dir"`

	// Seed is a hex-encoded 32-byte Ed25519 seed.
	Seed string `yaml:"seed"`

	// Passphrase deterministically derives the identity.
	Passphrase string `yaml:"passphrase"`
}

// SwarmConfig sets admission limits, timing, and what to join at start.
type SwarmConfig struct {
	MaxPeers    int `yaml:"max_peers"`
	MaxRTCPeers int `yaml:"max_rtc_peers"`
	MaxParallel int `yaml:"max_parallel"`
	MaxAttempts int `yaml:"max_attempts"`

	AnnounceInterval  time.Duration `yaml:"announce_interval"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	RetryTimeout      time.Duration `yaml:"retry_timeout"`
	Jitter            time.Duration `yaml:"jitter"`
	FlushTimeout      time.Duration `yaml:"flush_timeout"`
	PeerIdleTimeout   time.Duration `yaml:"peer_idle_timeout"`

	// Topics are joined at startup. Each is hashed to a 32-byte topic
	// unless it is already 64 hex characters.
	Topics []string `yaml:"topics"`

	// Peers are hex public keys joined explicitly at startup.
	Peers []string `yaml:"peers"`

	// Banned are hex public keys never connected to.
	Banned []string `yaml:"banned"`
}

// BootstrapConfig is one relay the node may contact when isolated.
type BootstrapConfig struct {
	PublicKey string `yaml:"public_key"`
	URL       string `yaml:"url"`
}

// ICEConfig lists STUN/TURN servers for WebRTC sessions.
type ICEConfig struct {
	Servers []ICEServerConfig `yaml:"servers"`

	// IncludeLoopback gathers 127.0.0.1 candidates. Useful for several
	// nodes on one host.
	IncludeLoopback bool `yaml:"include_loopback"`
}

// ICEServerConfig is a single STUN or TURN server.
type ICEServerConfig struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// RelayConfig configures the bootstrap relay's HTTP listener.
type RelayConfig struct {
	// Listen is the TCP address for the HTTP server.
	Listen string `yaml:"listen"`

	// RequestsPerSecond and Burst bound the relay's request rate. Excess
	// requests are answered 503.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// MetricsPath serves Prometheus metrics. Empty disables it.
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`
}

// Default returns the default configuration. LoadFile merges the file
// over these values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Identity: IdentityConfig{
			StateDir: filepath.Join(homeDir, ".local", "state", "rtcswarm"),
		},
		Swarm: SwarmConfig{
			MaxPeers:          64,
			MaxParallel:       5,
			MaxAttempts:       5,
			AnnounceInterval:  15 * time.Minute,
			ConnectionTimeout: 30 * time.Second,
			RetryTimeout:      5 * time.Minute,
			Jitter:            2 * time.Minute,
			FlushTimeout:      30 * time.Second,
			PeerIdleTimeout:   35 * time.Minute,
		},
		ICE: ICEConfig{
			Servers: []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		},
		Relay: RelayConfig{
			Listen:            ":8080",
			RequestsPerSecond: 20,
			Burst:             40,
			MetricsPath:       "/metrics",
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
		},
	}
}

// Load loads configuration from the file named by RTCSWARM_CONFIG.
// There is no fallback if the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your swarm config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &Overrides{Log: &LogConfig{Level: "info", Format: "json"}}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}

	if overrides.Relay != nil {
		if overrides.Relay.Listen != "" {
			c.Relay.Listen = overrides.Relay.Listen
		}
		if overrides.Relay.RequestsPerSecond != 0 {
			c.Relay.RequestsPerSecond = overrides.Relay.RequestsPerSecond
		}
		if overrides.Relay.Burst != 0 {
			c.Relay.Burst = overrides.Relay.Burst
		}
		if overrides.Relay.MetricsPath != "" {
			c.Relay.MetricsPath = overrides.Relay.MetricsPath
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":           os.Getenv("HOME"),
		"RTCSWARM_STATE": os.Getenv("RTCSWARM_STATE"),
	}
	c.Identity.StateDir = expandVars(c.Identity.StateDir, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Identity.Seed != "" && c.Identity.Passphrase != "" {
		errs = append(errs, errors.New("identity.seed and identity.passphrase are mutually exclusive"))
	}
	if c.Identity.Seed != "" {
		if err := checkHex32(c.Identity.Seed); err != nil {
			errs = append(errs, fmt.Errorf("identity.seed: %w", err))
		}
	}
	if c.Identity.Seed == "" && c.Identity.Passphrase == "" && c.Identity.StateDir == "" {
		errs = append(errs, errors.New("identity.state_dir is required when no seed or passphrase is set"))
	}

	s := c.Swarm
	if s.MaxPeers <= 0 {
		errs = append(errs, errors.New("swarm.max_peers must be positive"))
	}
	if s.MaxRTCPeers < 0 || s.MaxRTCPeers > s.MaxPeers {
		errs = append(errs, fmt.Errorf("swarm.max_rtc_peers must be between 0 and max_peers (%d)", s.MaxPeers))
	}
	if s.MaxParallel <= 0 {
		errs = append(errs, errors.New("swarm.max_parallel must be positive"))
	}
	if s.MaxAttempts <= 0 {
		errs = append(errs, errors.New("swarm.max_attempts must be positive"))
	}
	for name, value := range map[string]time.Duration{
		"announce_interval":  s.AnnounceInterval,
		"connection_timeout": s.ConnectionTimeout,
		"retry_timeout":      s.RetryTimeout,
		"flush_timeout":      s.FlushTimeout,
		"peer_idle_timeout":  s.PeerIdleTimeout,
	} {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("swarm.%s must be positive", name))
		}
	}
	if s.Jitter < 0 {
		errs = append(errs, errors.New("swarm.jitter must not be negative"))
	}
	for i, topic := range s.Topics {
		if topic == "" {
			errs = append(errs, fmt.Errorf("swarm.topics[%d] is empty", i))
		}
	}
	for i, peer := range s.Peers {
		if err := checkHex32(peer); err != nil {
			errs = append(errs, fmt.Errorf("swarm.peers[%d]: %w", i, err))
		}
	}
	for i, banned := range s.Banned {
		if err := checkHex32(banned); err != nil {
			errs = append(errs, fmt.Errorf("swarm.banned[%d]: %w", i, err))
		}
	}

	for i, relay := range c.Bootstrap {
		if err := checkHex32(relay.PublicKey); err != nil {
			errs = append(errs, fmt.Errorf("bootstrap[%d].public_key: %w", i, err))
		}
		parsed, err := url.Parse(relay.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("bootstrap[%d].url must be an absolute http(s) URL, got %q", i, relay.URL))
		}
	}

	for i, server := range c.ICE.Servers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice.servers[%d].urls is empty", i))
		}
	}

	if c.Relay.Listen == "" {
		errs = append(errs, errors.New("relay.listen is required"))
	}
	if c.Relay.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("relay.requests_per_second must be positive"))
	}
	if c.Relay.Burst <= 0 {
		errs = append(errs, errors.New("relay.burst must be positive"))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}
	formats := []string{"json", "text"}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureStateDir creates the identity state directory if it doesn't
// exist.
func (c *Config) EnsureStateDir() error {
	if c.Identity.StateDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Identity.StateDir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Identity.StateDir, err)
	}
	return nil
}

func checkHex32(s string) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("not hex: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("want 32 bytes, got %d", len(raw))
	}
	return nil
}
