package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "helpdesk.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "HELPDESK_PORT")
	setString(&cfg.Server.CORSOrigin, "HELPDESK_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "HELPDESK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "HELPDESK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "HELPDESK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "HELPDESK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "HELPDESK_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Agent.URL, "HELPDESK_AGENT_URL")
	setString(&cfg.Agent.APIKey, "HELPDESK_AGENT_API_KEY")
	setDuration(&cfg.Agent.Timeout, "HELPDESK_AGENT_TIMEOUT")
	setInt(&cfg.Agent.MaxRetries, "HELPDESK_AGENT_MAX_RETRIES")
	setDuration(&cfg.Agent.RetryBase, "HELPDESK_AGENT_RETRY_BASE")

	setFloat64(&cfg.Engine.HighConfidence, "HELPDESK_HIGH_CONFIDENCE")
	setFloat64(&cfg.Engine.LowConfidence, "HELPDESK_LOW_CONFIDENCE")
	setDuration(&cfg.Engine.FollowupDelay, "HELPDESK_FOLLOWUP_DELAY")
	setString(&cfg.Engine.DefaultTeam, "HELPDESK_DEFAULT_TEAM")

	setDuration(&cfg.Scheduler.PollInterval, "HELPDESK_SCHEDULER_POLL_INTERVAL")
	setInt(&cfg.Scheduler.BatchSize, "HELPDESK_SCHEDULER_BATCH_SIZE")

	setString(&cfg.Notifiers.SlackWebhookURL, "HELPDESK_SLACK_WEBHOOK_URL")
	setString(&cfg.Notifiers.EmailHost, "HELPDESK_EMAIL_HOST")
	setInt(&cfg.Notifiers.EmailPort, "HELPDESK_EMAIL_PORT")
	setString(&cfg.Notifiers.EmailFrom, "HELPDESK_EMAIL_FROM")
	setString(&cfg.Notifiers.EmailPassword, "HELPDESK_EMAIL_PASSWORD")

	setInt64(&cfg.Cache.MaxSizeMB, "HELPDESK_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "HELPDESK_CACHE_TTL")

	setString(&cfg.Idempotency.Bucket, "HELPDESK_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "HELPDESK_IDEMPOTENCY_TTL")

	setString(&cfg.Logging.Level, "HELPDESK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "HELPDESK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "HELPDESK_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "HELPDESK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "HELPDESK_BREAKER_TIMEOUT")

	setBool(&cfg.Observability.Enabled, "HELPDESK_OTEL_ENABLED")
	setString(&cfg.Observability.OTLPEndpoint, "HELPDESK_OTLP_ENDPOINT")
}

// validate checks that required fields are set and thresholds are coherent.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Agent.URL == "" {
		return errors.New("agent.url is required")
	}
	if cfg.Agent.MaxRetries < 0 {
		return errors.New("agent.max_retries must be >= 0")
	}
	if cfg.Engine.HighConfidence <= 0 || cfg.Engine.HighConfidence > 1 {
		return errors.New("engine.high_confidence must be in (0, 1]")
	}
	if cfg.Engine.LowConfidence < 0 || cfg.Engine.LowConfidence >= cfg.Engine.HighConfidence {
		return errors.New("engine.low_confidence must be in [0, high_confidence)")
	}
	if cfg.Engine.FollowupDelay <= 0 {
		return errors.New("engine.followup_delay must be positive")
	}
	if cfg.Scheduler.PollInterval <= 0 {
		return errors.New("scheduler.poll_interval must be positive")
	}
	if cfg.Scheduler.BatchSize < 1 {
		return errors.New("scheduler.batch_size must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
