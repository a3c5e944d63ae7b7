// Package config holds all gatekeep configuration. Every heuristic constant
// used by the pipeline (token ratios, rate tables, score thresholds) lives
// here rather than being hardwired into stage logic.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"gatekeep/internal/types"
)

// Config holds all gatekeep configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Cost estimation
	Cost CostConfig `yaml:"cost"`

	// Scope locking policy
	Scope ScopeConfig `yaml:"scope"`

	// Encoding validation thresholds
	Validation ValidationConfig `yaml:"validation"`

	// Agent matching
	Matching MatchingConfig `yaml:"matching"`

	// Controlled execution
	Execution ExecutionConfig `yaml:"execution"`

	// Intent capture heuristics
	Capture CaptureConfig `yaml:"capture"`
}

// EngineRate is the per-1k-token rate pair for one execution engine.
type EngineRate struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// CostConfig configures cost estimation. The defaults are illustrative
// placeholders; deployments calibrate them against their actual rate card.
type CostConfig struct {
	CharsPerToken    float64               `yaml:"chars_per_token"`   // input length -> token estimate
	OutputMultiplier float64               `yaml:"output_multiplier"` // projected output tokens per input token
	DefaultEngine    string                `yaml:"default_engine"`    // engine when action has no routing entry
	ReasoningEngine  string                `yaml:"reasoning_engine"`  // engine for generative/analytic actions
	Rates            map[string]EngineRate `yaml:"rates"`             // engine -> rate pair
	Confidence       float64               `yaml:"confidence"`        // reported estimate confidence
}

// ScopeConfig configures the scope locking gate.
type ScopeConfig struct {
	MaxDomains int `yaml:"max_domains"` // inferred domain count above this fails the gate
	MaxResults int `yaml:"max_results"`
	MaxDepth   int `yaml:"max_depth"`
}

// ValidationConfig configures encoding validation.
type ValidationConfig struct {
	QualityThreshold float64 `yaml:"quality_threshold"` // below this emits a rephrase warning
}

// MatchingConfig configures the agent compatibility matrix.
type MatchingConfig struct {
	MinScore        float64 `yaml:"min_score"`        // candidates below this are not selected
	MaxAlternatives int     `yaml:"max_alternatives"` // ranked alternatives surfaced on failure
}

// ExecutionConfig configures supervised execution.
type ExecutionConfig struct {
	CheckpointLimit int    `yaml:"checkpoint_limit"` // hard cap on checkpoints per run
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	DefaultActor    string `yaml:"default_actor"` // actor recorded on audit entries
}

// CaptureConfig configures intent capture heuristics.
type CaptureConfig struct {
	// FullConfidenceChars is the input length at which heuristic confidence
	// saturates at 1.0. Shorter inputs scale linearly.
	FullConfidenceChars int     `yaml:"full_confidence_chars"`
	MinConfidence       float64 `yaml:"min_confidence"`
}

// DefaultConfig returns the reference configuration. All numeric values here
// are placeholders meant to be overridden per deployment.
func DefaultConfig() *Config {
	return &Config{
		Name:    "gatekeep",
		Version: "1.0",
		Cost: CostConfig{
			CharsPerToken:    4.0,
			OutputMultiplier: 3.0,
			DefaultEngine:    "standard",
			ReasoningEngine:  "reasoning",
			Rates: map[string]EngineRate{
				"standard":  {InputPer1K: 1.0, OutputPer1K: 2.0},
				"reasoning": {InputPer1K: 5.0, OutputPer1K: 10.0},
			},
			Confidence: 0.7,
		},
		Scope: ScopeConfig{
			MaxDomains: 3,
			MaxResults: 100,
			MaxDepth:   3,
		},
		Validation: ValidationConfig{
			QualityThreshold: 0.5,
		},
		Matching: MatchingConfig{
			MinScore:        0.75,
			MaxAlternatives: 3,
		},
		Execution: ExecutionConfig{
			CheckpointLimit: 100,
			TimeoutSeconds:  300,
			DefaultActor:    "pipeline",
		},
		Capture: CaptureConfig{
			FullConfidenceChars: 200,
			MinConfidence:       0.1,
		},
	}
}

// Load reads configuration from a YAML file, applying defaults for anything
// unset and environment overrides on top. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides lets operators adjust key limits without editing files.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GATEKEEP_MAX_DOMAINS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scope.MaxDomains = n
		}
	}
	if v := os.Getenv("GATEKEEP_MIN_MATCH_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Matching.MinScore = f
		}
	}
	if v := os.Getenv("GATEKEEP_OUTPUT_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Cost.OutputMultiplier = f
		}
	}
}

// Validate checks that configured values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Cost.CharsPerToken <= 0 {
		return fmt.Errorf("cost.chars_per_token must be > 0")
	}
	if c.Cost.OutputMultiplier <= 0 {
		return fmt.Errorf("cost.output_multiplier must be > 0")
	}
	if _, ok := c.Cost.Rates[c.Cost.DefaultEngine]; !ok {
		return fmt.Errorf("cost.rates missing default engine %q", c.Cost.DefaultEngine)
	}
	if _, ok := c.Cost.Rates[c.Cost.ReasoningEngine]; !ok {
		return fmt.Errorf("cost.rates missing reasoning engine %q", c.Cost.ReasoningEngine)
	}
	if c.Scope.MaxDomains < 1 {
		return fmt.Errorf("scope.max_domains must be >= 1")
	}
	if c.Validation.QualityThreshold < 0 || c.Validation.QualityThreshold > 1 {
		return fmt.Errorf("validation.quality_threshold must be in [0,1]")
	}
	if c.Matching.MinScore < 0 || c.Matching.MinScore > 1 {
		return fmt.Errorf("matching.min_score must be in [0,1]")
	}
	if c.Matching.MaxAlternatives < 0 {
		return fmt.Errorf("matching.max_alternatives must be >= 0")
	}
	if c.Execution.CheckpointLimit < 1 {
		return fmt.Errorf("execution.checkpoint_limit must be >= 1")
	}
	if c.Capture.FullConfidenceChars < 1 {
		return fmt.Errorf("capture.full_confidence_chars must be >= 1")
	}
	return nil
}

// EngineFor returns the execution engine recommended for an action kind.
// Generative and analytic actions route to the higher-capability engine.
func (c *Config) EngineFor(action types.ActionKind) string {
	switch action {
	case types.ActionGenerate, types.ActionAnalyze, types.ActionTransform,
		types.ActionSummarize, types.ActionAggregate:
		return c.Cost.ReasoningEngine
	}
	return c.Cost.DefaultEngine
}
