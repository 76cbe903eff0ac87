package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Orchestrator.MaxIterations != 10 {
		t.Errorf("expected max_iterations 10, got %d", cfg.Orchestrator.MaxIterations)
	}
	if cfg.Orchestrator.RunTimeout != 300*time.Second {
		t.Errorf("expected run_timeout 300s, got %v", cfg.Orchestrator.RunTimeout)
	}
	if cfg.Orchestrator.ConfidenceThreshold != 0.7 {
		t.Errorf("expected confidence_threshold 0.7, got %v", cfg.Orchestrator.ConfidenceThreshold)
	}
	if cfg.ToolServer.KeepAlive != 30*time.Second {
		t.Errorf("expected keep_alive 30s, got %v", cfg.ToolServer.KeepAlive)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
model:
  name: "llama-4-70b"
orchestrator:
  max_iterations: 6
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Model.Name != "llama-4-70b" {
		t.Errorf("expected model llama-4-70b, got %s", cfg.Model.Name)
	}
	if cfg.Orchestrator.MaxIterations != 6 {
		t.Errorf("expected max_iterations 6, got %d", cfg.Orchestrator.MaxIterations)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("CLAIMPILOT_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("CLAIMPILOT_ORCH_MAX_ITERATIONS", "4")
	t.Setenv("CLAIMPILOT_ORCH_RUN_TIMEOUT", "2m")
	t.Setenv("CLAIMPILOT_ORCH_CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("CLAIMPILOT_LOG_LEVEL", "warn")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.Orchestrator.MaxIterations != 4 {
		t.Errorf("expected max_iterations 4, got %d", cfg.Orchestrator.MaxIterations)
	}
	if cfg.Orchestrator.RunTimeout != 2*time.Minute {
		t.Errorf("expected run_timeout 2m, got %v", cfg.Orchestrator.RunTimeout)
	}
	if cfg.Orchestrator.ConfidenceThreshold != 0.85 {
		t.Errorf("expected confidence_threshold 0.85, got %v", cfg.Orchestrator.ConfidenceThreshold)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "empty DSN",
			modify: func(c *Config) { c.Postgres.DSN = "" },
			errMsg: "postgres.dsn is required",
		},
		{
			name:   "empty NATS URL",
			modify: func(c *Config) { c.NATS.URL = "" },
			errMsg: "nats.url is required",
		},
		{
			name:   "empty model endpoint",
			modify: func(c *Config) { c.Model.Endpoint = "" },
			errMsg: "model.endpoint is required",
		},
		{
			name:   "zero max_iterations",
			modify: func(c *Config) { c.Orchestrator.MaxIterations = 0 },
			errMsg: "orchestrator.max_iterations must be >= 1",
		},
		{
			name:   "zero run_timeout",
			modify: func(c *Config) { c.Orchestrator.RunTimeout = 0 },
			errMsg: "orchestrator.run_timeout must be > 0",
		},
		{
			name:   "confidence threshold out of range",
			modify: func(c *Config) { c.Orchestrator.ConfidenceThreshold = 1.5 },
			errMsg: "orchestrator.confidence_threshold must be in [0, 1]",
		},
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Breaker.MaxFailures = 0 },
			errMsg: "breaker.max_failures must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestParseFlags(t *testing.T) {
	flags, err := ParseFlags([]string{"--port", "9090", "--log-level", "debug"})
	if err != nil {
		t.Fatal(err)
	}

	if flags.Port == nil || *flags.Port != "9090" {
		t.Errorf("expected port 9090, got %v", flags.Port)
	}
	if flags.LogLevel == nil || *flags.LogLevel != "debug" {
		t.Errorf("expected log-level debug, got %v", flags.LogLevel)
	}
	// Unset flags remain nil
	if flags.DSN != nil {
		t.Errorf("expected nil DSN, got %v", *flags.DSN)
	}
	if flags.ConfigPath != nil {
		t.Errorf("expected nil ConfigPath, got %v", *flags.ConfigPath)
	}
}

func TestParseFlagsInvalid(t *testing.T) {
	_, err := ParseFlags([]string{"--unknown-flag"})
	if err == nil {
		t.Error("expected error for unknown flag, got nil")
	}
}

func TestCLIOverridesEnv(t *testing.T) {
	// CLI flags must win over ENV.
	t.Setenv("CLAIMPILOT_PORT", "7070")
	t.Setenv("CLAIMPILOT_LOG_LEVEL", "warn")

	flags, err := ParseFlags([]string{"--port", "3333", "--log-level", "error"})
	if err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadWithCLI(flags)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "3333" {
		t.Errorf("expected CLI port 3333 to override ENV 7070, got %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected CLI log-level error to override ENV warn, got %s", cfg.Logging.Level)
	}
}

func TestLoadWithCLICustomConfig(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "custom.yaml")
	content := `
server:
  port: "5555"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	flags, err := ParseFlags([]string{"--config", yamlPath})
	if err != nil {
		t.Fatal(err)
	}

	cfg, resolvedPath, err := LoadWithCLI(flags)
	if err != nil {
		t.Fatal(err)
	}

	if resolvedPath != yamlPath {
		t.Errorf("expected resolved path %s, got %s", yamlPath, resolvedPath)
	}
	if cfg.Server.Port != "5555" {
		t.Errorf("expected port 5555 from custom YAML, got %s", cfg.Server.Port)
	}
}
