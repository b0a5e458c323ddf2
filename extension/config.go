package extension

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xraph/mirror"
)

// Environment variables read by LoadConfig on top of the credentials the
// core configuration reads.
const (
	EnvConfigPath  = "MIRROR_CONFIG"
	EnvPrefix      = "MIRROR_PREFIX"
	EnvWebhookPath = "MIRROR_WEBHOOK_PATH"
	EnvListenAddr  = "MIRROR_ADDR"
)

// DefaultPrefix is the URL prefix of the admin API.
const DefaultPrefix = "/mirror"

// DefaultListenAddr is where cmd/mirrord listens when no address is set.
const DefaultListenAddr = ":8080"

// Config holds configuration for the mirror extension.
// Fields can be set programmatically or loaded from a YAML file.
type Config struct {
	// Config embeds the core mirror configuration.
	mirror.Config `json:",inline" yaml:",inline" mapstructure:",squash"`

	// Prefix is the URL prefix for the admin API routes (default: "/mirror").
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// ListenAddr is the HTTP listen address of the standalone binary.
	ListenAddr string `json:"listen_addr" yaml:"listen_addr" mapstructure:"listen_addr"`

	// DisableAdmin leaves the admin API unmounted.
	DisableAdmin bool `json:"disable_admin" yaml:"disable_admin" mapstructure:"disable_admin"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Config:     mirror.DefaultConfig(),
		Prefix:     DefaultPrefix,
		ListenAddr: DefaultListenAddr,
	}
}

// LoadConfig reads a YAML file over DefaultConfig and applies environment
// overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("extension: read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("extension: parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv fills empty credentials from the environment and lets
// MIRROR_PREFIX, MIRROR_WEBHOOK_PATH and MIRROR_ADDR override the file.
func (c *Config) ApplyEnv() {
	c.FromEnv()
	if v := os.Getenv(EnvPrefix); v != "" {
		c.Prefix = v
	}
	if v := os.Getenv(EnvWebhookPath); v != "" {
		c.WebhookPath = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.ListenAddr = v
	}
}

// ToMirrorOptions converts the embedded Config into mirror.Option values.
// Zero fields keep the mirror defaults.
func (c Config) ToMirrorOptions() []mirror.Option {
	var opts []mirror.Option

	if c.ClientID != "" {
		opts = append(opts, mirror.WithClientID(c.ClientID))
	}
	if c.APIKey != "" {
		opts = append(opts, mirror.WithAPIKey(c.APIKey))
	}
	if c.WebhookSecret != "" {
		opts = append(opts, mirror.WithWebhookSecret(c.WebhookSecret))
	}
	if c.WebhookPath != "" {
		opts = append(opts, mirror.WithWebhookPath(c.WebhookPath))
	}
	if c.ActionSecret != "" {
		opts = append(opts, mirror.WithActionSecret(c.ActionSecret))
	}
	if c.ActionPath != "" {
		opts = append(opts, mirror.WithActionPath(c.ActionPath))
	}
	if len(c.AdditionalEventTypes) > 0 {
		opts = append(opts, mirror.WithAdditionalEventTypes(c.AdditionalEventTypes...))
	}
	if c.LogLevel != "" {
		opts = append(opts, mirror.WithLogLevel(c.LogLevel))
	}
	if c.PollInterval > 0 {
		opts = append(opts, mirror.WithPollInterval(c.PollInterval))
	}
	if c.MaxAttempts > 0 {
		opts = append(opts, mirror.WithMaxAttempts(c.MaxAttempts))
	}
	if len(c.RetrySchedule) > 0 {
		opts = append(opts, mirror.WithRetrySchedule(c.RetrySchedule))
	}
	if c.CatchUpHorizon > 0 {
		opts = append(opts, mirror.WithCatchUpHorizon(c.CatchUpHorizon))
	}
	if c.SignatureTolerance > 0 {
		opts = append(opts, mirror.WithSignatureTolerance(c.SignatureTolerance))
	}
	if c.ProviderBaseURL != "" {
		opts = append(opts, mirror.WithProviderBaseURL(c.ProviderBaseURL))
	}
	if c.RateLimit > 0 {
		opts = append(opts, mirror.WithRateLimit(c.RateLimit))
	}

	return opts
}
