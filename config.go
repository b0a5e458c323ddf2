package mirror

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xraph/mirror/catchup"
	"github.com/xraph/mirror/provider/workos"
	"github.com/xraph/mirror/ratelimit"
	"github.com/xraph/mirror/signature"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvClientID      = "WORKOS_CLIENT_ID"
	EnvAPIKey        = "WORKOS_API_KEY"
	EnvWebhookSecret = "WORKOS_WEBHOOK_SECRET"
	EnvActionSecret  = "WORKOS_ACTION_SECRET"
	EnvLogLevel      = "MIRROR_LOG_LEVEL"
)

// Default routes for the webhook and action handlers.
const (
	DefaultWebhookPath = "/provider/webhook"
	DefaultActionPath  = "/provider/action"
)

// Config holds the configuration for a Mirror instance.
type Config struct {
	// ClientID is the provider client id. It scopes the JWT issuers
	// returned by AuthProviders.
	ClientID string `json:"client_id" yaml:"client_id" mapstructure:"client_id"`

	// APIKey authenticates event list calls.
	APIKey string `json:"-" yaml:"api_key" mapstructure:"api_key"`

	// WebhookSecret signs incoming webhooks.
	WebhookSecret string `json:"-" yaml:"webhook_secret" mapstructure:"webhook_secret"`

	// WebhookPath is the route the webhook handler is mounted on.
	WebhookPath string `json:"webhook_path" yaml:"webhook_path" mapstructure:"webhook_path"`

	// ActionSecret signs action requests and responses. Actions are
	// disabled while it is empty.
	ActionSecret string `json:"-" yaml:"action_secret" mapstructure:"action_secret"`

	// ActionPath is the route the action handler is mounted on.
	ActionPath string `json:"action_path" yaml:"action_path" mapstructure:"action_path"`

	// AdditionalEventTypes are subscribed to on top of the user types and
	// passed through to the hook without local mutation.
	AdditionalEventTypes []string `json:"additional_event_types" yaml:"additional_event_types" mapstructure:"additional_event_types"`

	// LogLevel "DEBUG" logs every considered event at Info.
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`

	// PollInterval is how often the idle queue worker re-checks the store.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`

	// MaxAttempts is the number of attempts a task gets before it is
	// dead-lettered.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// RetrySchedule defines the backoff intervals between task attempts.
	RetrySchedule []time.Duration `json:"retry_schedule" yaml:"retry_schedule" mapstructure:"retry_schedule"`

	// CatchUpHorizon bounds how far back a catch-up without a cursor looks.
	CatchUpHorizon time.Duration `json:"catch_up_horizon" yaml:"catch_up_horizon" mapstructure:"catch_up_horizon"`

	// SignatureTolerance is the accepted clock skew of webhook timestamps.
	SignatureTolerance time.Duration `json:"signature_tolerance" yaml:"signature_tolerance" mapstructure:"signature_tolerance"`

	// ProviderBaseURL overrides the provider API base URL.
	ProviderBaseURL string `json:"provider_base_url" yaml:"provider_base_url" mapstructure:"provider_base_url"`

	// RateLimit caps provider calls per second. Zero disables limiting.
	RateLimit int `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
}

// DefaultRetrySchedule defines the default backoff intervals between task
// attempts.
var DefaultRetrySchedule = []time.Duration{
	time.Second,
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

// DefaultConfig returns a Config with sensible defaults and no credentials.
func DefaultConfig() Config {
	return Config{
		WebhookPath:        DefaultWebhookPath,
		ActionPath:         DefaultActionPath,
		PollInterval:       time.Second,
		MaxAttempts:        len(DefaultRetrySchedule) + 1,
		RetrySchedule:      DefaultRetrySchedule,
		CatchUpHorizon:     catchup.DefaultHorizon,
		SignatureTolerance: signature.DefaultTolerance,
		ProviderBaseURL:    workos.DefaultBaseURL,
		RateLimit:          ratelimit.DefaultRate,
	}
}

// Verbose reports whether per-event tracing is enabled.
func (c Config) Verbose() bool {
	return strings.EqualFold(c.LogLevel, "DEBUG")
}

// FromEnv fills empty credential and log level fields from the environment.
func (c *Config) FromEnv() {
	setIfEmpty(&c.ClientID, EnvClientID)
	setIfEmpty(&c.APIKey, EnvAPIKey)
	setIfEmpty(&c.WebhookSecret, EnvWebhookSecret)
	setIfEmpty(&c.ActionSecret, EnvActionSecret)
	setIfEmpty(&c.LogLevel, EnvLogLevel)
}

// Validate returns ErrMissingConfig naming every required variable that is
// empty.
func (c Config) Validate() error {
	return c.validate(true)
}

// validate skips the API key when the event list provider is supplied
// directly.
func (c Config) validate(needAPIKey bool) error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, EnvClientID)
	}
	if needAPIKey && c.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if c.WebhookSecret == "" {
		missing = append(missing, EnvWebhookSecret)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// ConfigFromEnv returns DefaultConfig filled from the environment and
// validated.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	cfg.FromEnv()
	return cfg, cfg.Validate()
}

func setIfEmpty(dst *string, env string) {
	if *dst == "" {
		*dst = os.Getenv(env)
	}
}
