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
const DefaultConfigFile = "claimpilot.yaml"

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
	setString(&cfg.Server.Port, "CLAIMPILOT_PORT")
	setString(&cfg.Server.CORSOrigin, "CLAIMPILOT_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CLAIMPILOT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CLAIMPILOT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CLAIMPILOT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CLAIMPILOT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CLAIMPILOT_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")

	// Model
	setString(&cfg.Model.Endpoint, "CLAIMPILOT_MODEL_ENDPOINT")
	setString(&cfg.Model.Name, "CLAIMPILOT_MODEL_NAME")
	setFloat64(&cfg.Model.Temperature, "CLAIMPILOT_MODEL_TEMPERATURE")
	setInt(&cfg.Model.MaxTokens, "CLAIMPILOT_MODEL_MAX_TOKENS")
	setDuration(&cfg.Model.Timeout, "CLAIMPILOT_MODEL_TIMEOUT")
	setInt(&cfg.Model.Retries, "CLAIMPILOT_MODEL_RETRIES")
	setDuration(&cfg.Model.RetryBase, "CLAIMPILOT_MODEL_RETRY_BASE")

	// Tools
	setString(&cfg.Tools.OCRServerURL, "CLAIMPILOT_OCR_URL")
	setString(&cfg.Tools.RAGServerURL, "CLAIMPILOT_RAG_URL")
	setString(&cfg.Tools.GuardrailsServerURL, "CLAIMPILOT_GUARDRAILS_URL")
	setDuration(&cfg.Tools.DefaultTimeout, "CLAIMPILOT_TOOL_TIMEOUT")

	// Orchestrator
	setInt(&cfg.Orchestrator.MaxIterations, "CLAIMPILOT_ORCH_MAX_ITERATIONS")
	setDuration(&cfg.Orchestrator.RunTimeout, "CLAIMPILOT_ORCH_RUN_TIMEOUT")
	setInt(&cfg.Orchestrator.ToolFailureThreshold, "CLAIMPILOT_ORCH_TOOL_FAILURE_THRESHOLD")
	setFloat64(&cfg.Orchestrator.ConfidenceThreshold, "CLAIMPILOT_ORCH_CONFIDENCE_THRESHOLD")

	// Tool server
	setString(&cfg.ToolServer.Port, "CLAIMPILOT_TOOLSERVER_PORT")
	setDuration(&cfg.ToolServer.KeepAlive, "CLAIMPILOT_TOOLSERVER_KEEP_ALIVE")
	setInt(&cfg.ToolServer.QueueCapacity, "CLAIMPILOT_TOOLSERVER_QUEUE_CAPACITY")

	// MCP
	setString(&cfg.MCP.Addr, "CLAIMPILOT_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "CLAIMPILOT_MCP_API_KEY")
	setString(&cfg.MCP.Name, "CLAIMPILOT_MCP_NAME")
	setString(&cfg.MCP.Version, "CLAIMPILOT_MCP_VERSION")

	setString(&cfg.Logging.Level, "CLAIMPILOT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CLAIMPILOT_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CLAIMPILOT_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "CLAIMPILOT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CLAIMPILOT_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "CLAIMPILOT_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "CLAIMPILOT_CACHE_TTL")
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
	if cfg.Model.Endpoint == "" {
		return errors.New("model.endpoint is required")
	}
	if cfg.Orchestrator.MaxIterations < 1 {
		return errors.New("orchestrator.max_iterations must be >= 1")
	}
	if cfg.Orchestrator.RunTimeout <= 0 {
		return errors.New("orchestrator.run_timeout must be > 0")
	}
	if cfg.Orchestrator.ConfidenceThreshold < 0 || cfg.Orchestrator.ConfidenceThreshold > 1 {
		return errors.New("orchestrator.confidence_threshold must be in [0, 1]")
	}
	if cfg.ToolServer.KeepAlive <= 0 {
		return errors.New("tool_server.keep_alive must be > 0")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
