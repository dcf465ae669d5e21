package config

import (
	"time"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/utils"
)

// Config carries every tunable the engine reads from the environment. Window
// sizes, attempt ceilings and tick intervals are configuration, not code.
type Config struct {
	Port string

	JWTSecretKey string

	// Rate limiter.
	RateWindow   time.Duration
	RateLimit    int
	BurstWindow  time.Duration
	BurstLimit   int
	RateCooldown time.Duration

	// Session store.
	ContextTTL    time.Duration
	SweepInterval time.Duration

	// Graph executor.
	HandlerTimeout time.Duration
	NodeBudget     int

	// Scheduler.
	TickInterval    time.Duration
	TickConcurrency int
	MaxAttempts     int
	DedupeWindow    time.Duration

	// Classifier keyword tables (optional YAML override).
	ClassifierConfigPath string
}

func Load(log *logger.Logger) Config {
	return Config{
		Port: utils.GetEnv("PORT", "8080", log),

		JWTSecretKey: utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),

		RateWindow:   seconds("RATE_WINDOW_SECONDS", 60, log),
		RateLimit:    utils.GetEnvAsInt("RATE_LIMIT", 30, log),
		BurstWindow:  seconds("BURST_WINDOW_SECONDS", 5, log),
		BurstLimit:   utils.GetEnvAsInt("BURST_LIMIT", 5, log),
		RateCooldown: seconds("RATE_COOLDOWN_SECONDS", 60, log),

		ContextTTL:    seconds("CONTEXT_TTL_SECONDS", 1800, log),
		SweepInterval: seconds("SWEEP_INTERVAL_SECONDS", 300, log),

		HandlerTimeout: seconds("HANDLER_TIMEOUT_SECONDS", 30, log),
		NodeBudget:     utils.GetEnvAsInt("NODE_VISIT_BUDGET", 10, log),

		TickInterval:    seconds("SCHEDULER_TICK_SECONDS", 60, log),
		TickConcurrency: utils.GetEnvAsInt("SCHEDULER_CONCURRENCY", 8, log),
		MaxAttempts:     utils.GetEnvAsInt("SCHEDULER_MAX_ATTEMPTS", 3, log),
		DedupeWindow:    seconds("SCHEDULER_DEDUPE_SECONDS", 120, log),

		ClassifierConfigPath: utils.GetEnv("CLASSIFIER_CONFIG", "", log),
	}
}

func seconds(key string, def int, log *logger.Logger) time.Duration {
	return time.Duration(utils.GetEnvAsInt(key, def, log)) * time.Second
}
