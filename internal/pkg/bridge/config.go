package bridge

import (
	"time"

	"github.com/sbsbridge/claimbridge/internal/pkg/env"
)

// Config holds submission settings.
type Config struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase float64 // seconds; attempt n waits BackoffBase^n
	Jitter      bool
	LockTTL     time.Duration

	RecoveryInterval   time.Duration
	RecoveryStaleAfter time.Duration
	RecoveryBatchSize  int
}

// LoadConfig reads bridge settings from the environment.
func LoadConfig() Config {
	return Config{
		BaseURL:     env.GetEnv("NPHIES_BASE_URL", "https://hsb.nphies.sa/$process-message"),
		Token:       env.GetEnv("NPHIES_TOKEN", ""),
		Timeout:     env.GetEnvDuration("NPHIES_TIMEOUT", 30*time.Second),
		MaxRetries:  env.GetEnvInt("SUBMIT_MAX_RETRIES", 3),
		BackoffBase: env.GetEnvFloat("SUBMIT_BACKOFF_BASE", 2),
		Jitter:      env.GetEnvBool("SUBMIT_JITTER", false),
		LockTTL:     env.GetEnvDuration("SUBMIT_LOCK_TTL", 5*time.Minute),

		RecoveryInterval:   env.GetEnvDuration("RECOVERY_INTERVAL", time.Minute),
		RecoveryStaleAfter: env.GetEnvDuration("RECOVERY_STALE_AFTER", 10*time.Minute),
		RecoveryBatchSize:  env.GetEnvInt("RECOVERY_BATCH_SIZE", 50),
	}
}

// DefaultConfig is LoadConfig without the environment.
func DefaultConfig() Config {
	return Config{
		Timeout:            30 * time.Second,
		MaxRetries:         3,
		BackoffBase:        2,
		LockTTL:            5 * time.Minute,
		RecoveryInterval:   time.Minute,
		RecoveryStaleAfter: 10 * time.Minute,
		RecoveryBatchSize:  50,
	}
}
