package mirror

import (
	"log/slog"
	"time"

	"github.com/xraph/mirror/observability"
	"github.com/xraph/mirror/provider"
	"github.com/xraph/mirror/store"
)

// Option configures a Mirror instance.
type Option func(*Mirror) error

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(m *Mirror) error {
		m.store = s
		return nil
	}
}

// WithProvider sets the event list provider. Without it New builds a WorkOS
// client from the API key.
func WithProvider(p provider.Lister) Option {
	return func(m *Mirror) error {
		if p == nil {
			return ErrNoProvider
		}
		m.lister = p
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) error {
		m.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration. Options applied after it
// still override individual fields.
func WithConfig(cfg Config) Option {
	return func(m *Mirror) error {
		m.config = cfg
		return nil
	}
}

// WithClientID sets the provider client id.
func WithClientID(clientID string) Option {
	return func(m *Mirror) error {
		m.config.ClientID = clientID
		return nil
	}
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(m *Mirror) error {
		m.config.APIKey = key
		return nil
	}
}

// WithWebhookSecret sets the webhook signing secret.
func WithWebhookSecret(secret string) Option {
	return func(m *Mirror) error {
		m.config.WebhookSecret = secret
		return nil
	}
}

// WithWebhookPath sets the webhook route.
func WithWebhookPath(path string) Option {
	return func(m *Mirror) error {
		m.config.WebhookPath = path
		return nil
	}
}

// WithActionSecret sets the action signing secret and enables actions.
func WithActionSecret(secret string) Option {
	return func(m *Mirror) error {
		m.config.ActionSecret = secret
		return nil
	}
}

// WithActionPath sets the action route.
func WithActionPath(path string) Option {
	return func(m *Mirror) error {
		m.config.ActionPath = path
		return nil
	}
}

// WithAdditionalEventTypes subscribes to extra event types.
func WithAdditionalEventTypes(types ...string) Option {
	return func(m *Mirror) error {
		m.config.AdditionalEventTypes = append(m.config.AdditionalEventTypes, types...)
		return nil
	}
}

// WithLogLevel sets the log level; "DEBUG" traces every considered event.
func WithLogLevel(level string) Option {
	return func(m *Mirror) error {
		m.config.LogLevel = level
		return nil
	}
}

// WithPollInterval sets how often the idle worker re-checks the queue.
func WithPollInterval(d time.Duration) Option {
	return func(m *Mirror) error {
		m.config.PollInterval = d
		return nil
	}
}

// WithMaxAttempts sets the attempts a task gets before it is dead-lettered.
func WithMaxAttempts(n int) Option {
	return func(m *Mirror) error {
		m.config.MaxAttempts = n
		return nil
	}
}

// WithRetrySchedule sets the backoff intervals between task attempts.
func WithRetrySchedule(schedule []time.Duration) Option {
	return func(m *Mirror) error {
		m.config.RetrySchedule = schedule
		return nil
	}
}

// WithCatchUpHorizon sets how far back a cold catch-up looks.
func WithCatchUpHorizon(d time.Duration) Option {
	return func(m *Mirror) error {
		m.config.CatchUpHorizon = d
		return nil
	}
}

// WithSignatureTolerance sets the accepted webhook timestamp skew.
func WithSignatureTolerance(d time.Duration) Option {
	return func(m *Mirror) error {
		m.config.SignatureTolerance = d
		return nil
	}
}

// WithProviderBaseURL overrides the provider API base URL.
func WithProviderBaseURL(url string) Option {
	return func(m *Mirror) error {
		m.config.ProviderBaseURL = url
		return nil
	}
}

// WithRateLimit caps provider calls per second. Zero disables limiting.
func WithRateLimit(rps int) Option {
	return func(m *Mirror) error {
		m.config.RateLimit = rps
		return nil
	}
}

// WithMetrics enables metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Mirror) error {
		m.metrics = metrics
		return nil
	}
}

// WithTracer enables OpenTelemetry spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(m *Mirror) error {
		m.tracer = tracer
		return nil
	}
}
