package heromessaging

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the environment-driven tuning for the facade. Every field has a
// working default; deployments override through HERO_-prefixed variables.
type Config struct {
	// MaxConcurrency bounds concurrent dispatches; zero disables the
	// bound.
	MaxConcurrency int `envconfig:"MAX_CONCURRENCY" default:"0"`

	// Queue worker tuning.
	QueueConcurrency int           `envconfig:"QUEUE_CONCURRENCY" default:"4"`
	QueuePrefetch    int           `envconfig:"QUEUE_PREFETCH" default:"16"`
	QueueVisibility  time.Duration `envconfig:"QUEUE_VISIBILITY" default:"30s"`

	// Outbox worker tuning.
	OutboxBatchSize int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxLease     time.Duration `envconfig:"OUTBOX_LEASE" default:"30s"`

	// Poll tuning shared by the outbox, scheduler and queue workers.
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"50ms"`
	MaxIdleWait  time.Duration `envconfig:"MAX_IDLE_WAIT" default:"5s"`

	// Retry tuning for background delivery.
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay    time.Duration `envconfig:"RETRY_MAX_DELAY" default:"1m"`

	// Rate limiting; zero capacity disables it.
	RateCapacity     float64       `envconfig:"RATE_CAPACITY" default:"0"`
	RateRefillPerSec float64       `envconfig:"RATE_REFILL_PER_SEC" default:"0"`
	RateMaxQueueWait time.Duration `envconfig:"RATE_MAX_QUEUE_WAIT" default:"1s"`

	// Idempotency cache TTLs.
	IdempotencySuccessTTL time.Duration `envconfig:"IDEMPOTENCY_SUCCESS_TTL" default:"24h"`
	IdempotencyFailureTTL time.Duration `envconfig:"IDEMPOTENCY_FAILURE_TTL" default:"1h"`
}

// LoadConfig reads configuration from HERO_-prefixed environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("hero", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns the built-in defaults without consulting the
// environment.
func DefaultConfig() Config {
	return Config{
		QueueConcurrency:      4,
		QueuePrefetch:         16,
		QueueVisibility:       30 * time.Second,
		OutboxBatchSize:       100,
		OutboxLease:           30 * time.Second,
		PollInterval:          50 * time.Millisecond,
		MaxIdleWait:           5 * time.Second,
		RetryMaxAttempts:      3,
		RetryBaseDelay:        time.Second,
		RetryMaxDelay:         time.Minute,
		RateMaxQueueWait:      time.Second,
		IdempotencySuccessTTL: 24 * time.Hour,
		IdempotencyFailureTTL: time.Hour,
	}
}
