package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning collects the numeric knobs of the turn pipeline, memory and world simulation.
type Tuning struct {
	RetryBudget    int `yaml:"retry_budget"`
	WorldTickEvery int `yaml:"world_tick_every"`

	SessionRing      int `yaml:"session_ring"`
	ThreadIdlePause  int `yaml:"thread_idle_pause"`
	PatternEvery     int `yaml:"pattern_every"`
	ConsolidateAbove int `yaml:"consolidate_above"`
	RecallTopK       int `yaml:"recall_top_k"`

	TextGenTimeout time.Duration `yaml:"text_gen_timeout"`
	TurnBudget     time.Duration `yaml:"turn_budget"`
	FlushInterval  time.Duration `yaml:"flush_interval"`

	TextGenPerMinute int `yaml:"text_gen_per_minute"`

	HeartDemon HeartDemon `yaml:"heart_demon"`
}

// HeartDemon holds the mechanical weight of corruption effects.
type HeartDemon struct {
	HallucinationWillpowerDecay float64 `yaml:"hallucination_willpower_decay"`
	BerserkDefensePenalty       float64 `yaml:"berserk_defense_penalty"`
}

// DefaultTuning returns the values the engine ships with.
func DefaultTuning() Tuning {
	return Tuning{
		RetryBudget:      2,
		WorldTickEvery:   10,
		SessionRing:      20,
		ThreadIdlePause:  20,
		PatternEvery:     5,
		ConsolidateAbove: 50,
		RecallTopK:       5,
		TextGenTimeout:   30 * time.Second,
		TurnBudget:       3 * time.Minute,
		FlushInterval:    30 * time.Second,
		TextGenPerMinute: 60,
		HeartDemon: HeartDemon{
			HallucinationWillpowerDecay: 0.10,
			BerserkDefensePenalty:       0.20,
		},
	}
}

// LoadTuning reads a YAML tuning file over the defaults. An empty path returns the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Validate rejects values the engine cannot run with.
func (t Tuning) Validate() error {
	switch {
	case t.RetryBudget < 0:
		return fmt.Errorf("retry_budget must be >= 0, got %d", t.RetryBudget)
	case t.WorldTickEvery <= 0:
		return fmt.Errorf("world_tick_every must be > 0, got %d", t.WorldTickEvery)
	case t.SessionRing <= 0:
		return fmt.Errorf("session_ring must be > 0, got %d", t.SessionRing)
	case t.PatternEvery <= 0:
		return fmt.Errorf("pattern_every must be > 0, got %d", t.PatternEvery)
	case t.RecallTopK <= 0:
		return fmt.Errorf("recall_top_k must be > 0, got %d", t.RecallTopK)
	}
	return nil
}
