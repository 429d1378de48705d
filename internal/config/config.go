package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// LLMConfig configures the reasoning client. Empty fields fall back to the
// client's own defaults; APIKeyEnv names the environment variable holding
// the key.
type LLMConfig struct {
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxTokens  int    `yaml:"max_tokens"`
	MaxRetries int    `yaml:"max_retries"`
}

// Config holds the engine's runtime configuration. VocabularyPath and
// ReferenceDocsPath are optional; empty means built-in vocabulary and no
// retrieval corpus.
type Config struct {
	ListenAddr            string    `yaml:"listen_addr"`
	DBPath                string    `yaml:"db_path"`
	VocabularyPath        string    `yaml:"vocabulary_path"`
	ReferenceDocsPath     string    `yaml:"reference_docs_path"`
	IterationLimit        int       `yaml:"iteration_limit"`
	ParticipantTimeoutSec int       `yaml:"participant_timeout_sec"`
	RateLimitPerMinute    int       `yaml:"rate_limit_per_minute"`
	SpendBudgetUSD        float64   `yaml:"spend_budget_usd"`
	LLM                   LLMConfig `yaml:"llm"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file, applies defaults, and validates.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9810"
	}
	if c.DBPath == "" {
		c.DBPath = "blueprint.db"
	}
	if c.IterationLimit == 0 {
		c.IterationLimit = 5
	}
	if c.ParticipantTimeoutSec == 0 {
		c.ParticipantTimeoutSec = 60
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 30
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.IterationLimit < 0 {
		problems = append(problems, "iteration_limit must not be negative")
	}
	if c.ParticipantTimeoutSec < 0 {
		problems = append(problems, "participant_timeout_sec must not be negative")
	}
	if c.RateLimitPerMinute < 0 {
		problems = append(problems, "rate_limit_per_minute must not be negative")
	}
	if c.SpendBudgetUSD < 0 {
		problems = append(problems, "spend_budget_usd must not be negative")
	}
	if c.LLM.MaxTokens < 0 {
		problems = append(problems, "llm.max_tokens must not be negative")
	}
	if c.LLM.MaxRetries < 0 {
		problems = append(problems, "llm.max_retries must not be negative")
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}
