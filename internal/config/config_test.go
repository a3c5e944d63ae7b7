package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gatekeep/internal/types"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatekeep.yaml")

	cfg := DefaultConfig()
	cfg.Scope.MaxDomains = 5
	cfg.Cost.OutputMultiplier = 2.5
	cfg.Execution.DefaultActor = "ops"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Fatalf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("missing file should yield defaults:\n%s", diff)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("scope:\n  max_domains: 0\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("max_domains 0 must be rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GATEKEEP_MAX_DOMAINS", "7")
	t.Setenv("GATEKEEP_MIN_MATCH_SCORE", "0.9")
	t.Setenv("GATEKEEP_OUTPUT_MULTIPLIER", "1.5")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scope.MaxDomains != 7 {
		t.Errorf("MaxDomains = %d, want 7", cfg.Scope.MaxDomains)
	}
	if cfg.Matching.MinScore != 0.9 {
		t.Errorf("MinScore = %f, want 0.9", cfg.Matching.MinScore)
	}
	if cfg.Cost.OutputMultiplier != 1.5 {
		t.Errorf("OutputMultiplier = %f, want 1.5", cfg.Cost.OutputMultiplier)
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chars per token", func(c *Config) { c.Cost.CharsPerToken = 0 }},
		{"zero output multiplier", func(c *Config) { c.Cost.OutputMultiplier = 0 }},
		{"unknown default engine", func(c *Config) { c.Cost.DefaultEngine = "missing" }},
		{"unknown reasoning engine", func(c *Config) { c.Cost.ReasoningEngine = "missing" }},
		{"quality threshold above 1", func(c *Config) { c.Validation.QualityThreshold = 1.5 }},
		{"negative min score", func(c *Config) { c.Matching.MinScore = -0.1 }},
		{"zero checkpoint limit", func(c *Config) { c.Execution.CheckpointLimit = 0 }},
		{"zero confidence chars", func(c *Config) { c.Capture.FullConfidenceChars = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestEngineFor(t *testing.T) {
	cfg := DefaultConfig()
	reasoning := []types.ActionKind{
		types.ActionGenerate, types.ActionAnalyze, types.ActionTransform,
		types.ActionSummarize, types.ActionAggregate,
	}
	for _, a := range reasoning {
		if got := cfg.EngineFor(a); got != cfg.Cost.ReasoningEngine {
			t.Errorf("EngineFor(%s) = %s, want %s", a, got, cfg.Cost.ReasoningEngine)
		}
	}
	for _, a := range []types.ActionKind{types.ActionRead, types.ActionCreate, types.ActionDelete} {
		if got := cfg.EngineFor(a); got != cfg.Cost.DefaultEngine {
			t.Errorf("EngineFor(%s) = %s, want %s", a, got, cfg.Cost.DefaultEngine)
		}
	}
}
