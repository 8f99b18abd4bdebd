package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "reviewflow.yaml"

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
	setString(&cfg.Server.Port, "REVIEWFLOW_PORT")
	setString(&cfg.Server.CORSOrigin, "REVIEWFLOW_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "REVIEWFLOW_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "REVIEWFLOW_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "REVIEWFLOW_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "REVIEWFLOW_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "REVIEWFLOW_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LLM.URL, "REVIEWFLOW_LLM_URL")
	setString(&cfg.LLM.APIKey, "REVIEWFLOW_LLM_API_KEY")
	setString(&cfg.LLM.Model, "REVIEWFLOW_LLM_MODEL")
	setInt(&cfg.LLM.MaxTokens, "REVIEWFLOW_LLM_MAX_TOKENS")
	setString(&cfg.Logging.Level, "REVIEWFLOW_LOG_LEVEL")
	setString(&cfg.Logging.Service, "REVIEWFLOW_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "REVIEWFLOW_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "REVIEWFLOW_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "REVIEWFLOW_BREAKER_TIMEOUT")
	setFloat64(&cfg.Gate.Threshold, "REVIEWFLOW_GATE_THRESHOLD")
	setDuration(&cfg.Analysis.Timeout, "REVIEWFLOW_ANALYSIS_TIMEOUT")
	setInt(&cfg.Analysis.Workers, "REVIEWFLOW_ANALYSIS_WORKERS")
	setInt(&cfg.Analysis.QueueSize, "REVIEWFLOW_ANALYSIS_QUEUE_SIZE")
	setInt(&cfg.Notify.Workers, "REVIEWFLOW_NOTIFY_WORKERS")
	setInt(&cfg.Notify.QueueSize, "REVIEWFLOW_NOTIFY_QUEUE_SIZE")
	setStrings(&cfg.Notify.Providers, "REVIEWFLOW_NOTIFY_PROVIDERS")
	setString(&cfg.Notify.Webhook, "REVIEWFLOW_NOTIFY_WEBHOOK")
	setInt64(&cfg.Cache.MaxSizeMB, "REVIEWFLOW_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "REVIEWFLOW_CACHE_TTL")
	setBool(&cfg.Otel.Enabled, "REVIEWFLOW_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "REVIEWFLOW_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
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
	if cfg.Gate.Threshold <= 0 || cfg.Gate.Threshold > 1 {
		return errors.New("gate.threshold must be in (0, 1]")
	}
	if cfg.Analysis.Timeout <= 0 {
		return errors.New("analysis.timeout must be positive")
	}
	if cfg.Analysis.Workers < 1 {
		return errors.New("analysis.workers must be >= 1")
	}
	if cfg.Notify.Workers < 1 {
		return errors.New("notify.workers must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStrings(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
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
