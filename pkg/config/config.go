package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RedisURL     string
	HTTPPort     int
	CronSchedule string

	// Pacing between adapter invocations within one cycle.
	PacingDelay time.Duration

	// Plain-fetch tuning.
	FetchTimeout    time.Duration
	FetchRetries    int
	FetchRetryDelay time.Duration

	// Rendered-fetch tuning.
	RenderTimeout time.Duration
	RenderSettle  time.Duration
}

// Load reads environment variables and application flags (via a local FlagSet),
// strips out any -test.* flags, and validates required fields.
func Load() (*Config, error) {
	// Build a fresh FlagSet so we don't collide with `go test` flags
	fs := flag.NewFlagSet("config", flag.ContinueOnError)

	var redisURL string
	var httpPort int
	var cronSchedule string
	fs.StringVar(&redisURL, "redis", os.Getenv("REDIS_URL"), "Redis connection URL")
	fs.IntVar(&httpPort, "port", 8080, "HTTP listen port")
	fs.StringVar(&cronSchedule, "cron", getEnvOrDefault("CRON_SCHEDULE", "*/5 * * * *"), "Cron expression for scrape cycles")

	// Filter out any -test.* args before parsing
	var appArgs []string
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			continue
		}
		appArgs = append(appArgs, arg)
	}
	if err := fs.Parse(appArgs); err != nil {
		return nil, err
	}

	cfg := &Config{
		RedisURL:        redisURL,
		HTTPPort:        httpPort,
		CronSchedule:    cronSchedule,
		PacingDelay:     getDurationEnvOrDefault("SCRAPE_PACING", 2*time.Second),
		FetchTimeout:    getDurationEnvOrDefault("FETCH_TIMEOUT", 30*time.Second),
		FetchRetries:    getEnvIntOrDefault("FETCH_RETRIES", 2),
		FetchRetryDelay: getDurationEnvOrDefault("FETCH_RETRY_DELAY", 3*time.Second),
		RenderTimeout:   getDurationEnvOrDefault("RENDER_TIMEOUT", 45*time.Second),
		RenderSettle:    getDurationEnvOrDefault("RENDER_SETTLE", 2*time.Second),
	}

	// PORT env var overrides flag/default if set
	if portEnv := os.Getenv("PORT"); portEnv != "" {
		portVal, err := strconv.Atoi(portEnv)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT env var: %v", err)
		}
		cfg.HTTPPort = portVal
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("missing required config: REDIS_URL or -redis")
	}
	if cfg.FetchRetries < 0 {
		return nil, fmt.Errorf("FETCH_RETRIES must not be negative")
	}

	return cfg, nil
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns environment variable as int or default
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnvOrDefault returns environment variable as duration or default
func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
