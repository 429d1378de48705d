package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// validYAML returns a complete configuration YAML string.
func validYAML() string {
	return `listen_addr: ":9000"
db_path: "/tmp/blueprint-test.db"
vocabulary_path: "/tmp/vocab.yaml"
iteration_limit: 3
participant_timeout_sec: 30
rate_limit_per_minute: 10
spend_budget_usd: 25.0
llm:
  base_url: "http://localhost:8080"
  model: "claude-sonnet-4-20250514"
  api_key_env: "BLUEPRINT_API_KEY"
  max_tokens: 2048
  max_retries: 2
`
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validYAML())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.ListenAddr)
	}
	if cfg.DBPath != "/tmp/blueprint-test.db" {
		t.Errorf("DBPath = %q, want /tmp/blueprint-test.db", cfg.DBPath)
	}
	if cfg.VocabularyPath != "/tmp/vocab.yaml" {
		t.Errorf("VocabularyPath = %q, want /tmp/vocab.yaml", cfg.VocabularyPath)
	}
	if cfg.IterationLimit != 3 {
		t.Errorf("IterationLimit = %d, want 3", cfg.IterationLimit)
	}
	if cfg.SpendBudgetUSD != 25.0 {
		t.Errorf("SpendBudgetUSD = %f, want 25.0", cfg.SpendBudgetUSD)
	}
	if cfg.LLM.Model != "claude-sonnet-4-20250514" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.APIKeyEnv != "BLUEPRINT_API_KEY" {
		t.Errorf("LLM.APIKeyEnv = %q, want BLUEPRINT_API_KEY", cfg.LLM.APIKeyEnv)
	}
	if cfg.LLM.MaxTokens != 2048 {
		t.Errorf("LLM.MaxTokens = %d, want 2048", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.MaxRetries != 2 {
		t.Errorf("LLM.MaxRetries = %d, want 2", cfg.LLM.MaxRetries)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "listen_addr: [unclosed\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "workspace: /tmp/ws\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestLoad_NegativeValues(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `iteration_limit: -1
rate_limit_per_minute: -5
spend_budget_usd: -0.5
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for negative values, got nil")
	}
	engineErr, ok := err.(*domain.EngineError)
	if !ok {
		t.Fatalf("expected EngineError, got %T", err)
	}
	if engineErr.Code != domain.ErrConfigInvalid.Code {
		t.Errorf("Code = %d, want %d", engineErr.Code, domain.ErrConfigInvalid.Code)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "spend_budget_usd: 50\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9810" {
		t.Errorf("ListenAddr = %q, want :9810", cfg.ListenAddr)
	}
	if cfg.DBPath != "blueprint.db" {
		t.Errorf("DBPath = %q, want blueprint.db", cfg.DBPath)
	}
	if cfg.IterationLimit != 5 {
		t.Errorf("IterationLimit = %d, want 5", cfg.IterationLimit)
	}
	if cfg.ParticipantTimeoutSec != 60 {
		t.Errorf("ParticipantTimeoutSec = %d, want 60", cfg.ParticipantTimeoutSec)
	}
	if cfg.RateLimitPerMinute != 30 {
		t.Errorf("RateLimitPerMinute = %d, want 30", cfg.RateLimitPerMinute)
	}
	if cfg.SpendBudgetUSD != 50 {
		t.Errorf("SpendBudgetUSD = %f, want 50", cfg.SpendBudgetUSD)
	}
	if cfg.LLM.APIKeyEnv != "ANTHROPIC_API_KEY" {
		t.Errorf("LLM.APIKeyEnv = %q, want ANTHROPIC_API_KEY", cfg.LLM.APIKeyEnv)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr != ":9810" {
		t.Errorf("ListenAddr = %q, want :9810", cfg.ListenAddr)
	}
	if cfg.DBPath != "blueprint.db" {
		t.Errorf("DBPath = %q, want blueprint.db", cfg.DBPath)
	}
	if cfg.SpendBudgetUSD != 0 {
		t.Errorf("SpendBudgetUSD = %f, want 0 (governor disabled)", cfg.SpendBudgetUSD)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}
