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
	if cfg.Engine.HighConfidence != 0.8 {
		t.Errorf("expected high confidence 0.8, got %v", cfg.Engine.HighConfidence)
	}
	if cfg.Engine.LowConfidence != 0.5 {
		t.Errorf("expected low confidence 0.5, got %v", cfg.Engine.LowConfidence)
	}
	if cfg.Engine.FollowupDelay != 24*time.Hour {
		t.Errorf("expected followup delay 24h, got %v", cfg.Engine.FollowupDelay)
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
engine:
  high_confidence: 0.9
  default_team: "Service Desk"
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
	if cfg.Engine.HighConfidence != 0.9 {
		t.Errorf("expected high confidence 0.9, got %v", cfg.Engine.HighConfidence)
	}
	if cfg.Engine.DefaultTeam != "Service Desk" {
		t.Errorf("expected team Service Desk, got %s", cfg.Engine.DefaultTeam)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.NATS.URL)
	}
	if cfg.Engine.LowConfidence != 0.5 {
		t.Errorf("expected default low confidence, got %v", cfg.Engine.LowConfidence)
	}
}

func TestLoadYAMLMissingFileIsNotError(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HELPDESK_PORT", "7070")
	t.Setenv("HELPDESK_HIGH_CONFIDENCE", "0.85")
	t.Setenv("HELPDESK_FOLLOWUP_DELAY", "12h")
	t.Setenv("HELPDESK_LOG_ASYNC", "true")

	cfg := Defaults()
	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Engine.HighConfidence != 0.85 {
		t.Errorf("expected high confidence 0.85, got %v", cfg.Engine.HighConfidence)
	}
	if cfg.Engine.FollowupDelay != 12*time.Hour {
		t.Errorf("expected followup delay 12h, got %v", cfg.Engine.FollowupDelay)
	}
	if !cfg.Logging.Async {
		t.Error("expected async logging enabled")
	}
}

func TestValidateRejectsIncoherentThresholds(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.LowConfidence = 0.9 // above high_confidence

	if err := validate(&cfg); err == nil {
		t.Error("expected error for low_confidence >= high_confidence")
	}
}

func TestValidateRejectsMissingAgentURL(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.URL = ""

	if err := validate(&cfg); err == nil {
		t.Error("expected error for empty agent.url")
	}
}
