// Package config holds the single configuration value threaded through every
// advisor component, replacing the opaque process-wide settings singleton
// the source relied on (spec.md section 9). The only environment variables
// read anywhere in this repo are LOG_LEVEL (obslog) and PGPASS (cmd/pgopt).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the configuration surface recognized by the core, spec.md
// section 6. Every component constructor takes a *Config by reference; none
// retains process-wide mutable state of its own.
type Config struct {
	// Index Advisor (C6)
	MinRowsForIndex     int64   `yaml:"min_rows_for_index"`
	MaxIndexCols        int     `yaml:"max_index_cols"`
	IndexMaxWidthBytes  int     `yaml:"index_max_width_bytes"`
	SuppressLowGainPct  float64 `yaml:"suppress_low_gain_pct"`
	JoinColPriorBoost   float64 `yaml:"join_col_prior_boost"`

	// What-If Evaluator (C7)
	WhatIfEnabled        bool    `yaml:"whatif_enabled"`
	MaxTrials            int     `yaml:"max_trials"`
	Parallelism          int     `yaml:"parallelism"`
	TrialTimeoutMs       int     `yaml:"trial_timeout_ms"`
	GlobalTimeoutMs      int     `yaml:"global_timeout_ms"`
	EarlyStopPct         float64 `yaml:"early_stop_pct"`
	MinCostReductionPct  float64 `yaml:"min_cost_reduction_pct"`

	// Linter (C3)
	LargeTablePatterns    []string `yaml:"large_table_patterns"`
	NumericColumnPatterns []string `yaml:"numeric_column_patterns"`

	// Plan Inspector (C4)
	LargeRelationThreshold int64 `yaml:"large_relation_threshold"`

	// Workload Aggregator (C8)
	N1Threshold int `yaml:"n1_threshold"`
}

// Default returns the configuration with every default value from spec.md
// section 6 applied.
func Default() *Config {
	return &Config{
		MinRowsForIndex:        10_000,
		MaxIndexCols:           3,
		IndexMaxWidthBytes:     8192,
		SuppressLowGainPct:     5,
		JoinColPriorBoost:      1.2,
		WhatIfEnabled:          true,
		MaxTrials:              8,
		Parallelism:            2,
		TrialTimeoutMs:         4000,
		GlobalTimeoutMs:        12000,
		EarlyStopPct:           2,
		MinCostReductionPct:    5,
		LargeTablePatterns:     []string{},
		NumericColumnPatterns:  []string{"*_id", "*_count", "*_num"},
		LargeRelationThreshold: 100_000,
		N1Threshold:            10,
	}
}

// Load reads a YAML config file and overlays it on top of Default(), so a
// partial file only needs to name the fields it overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg.applyZeroDefaults(), nil
}

// applyZeroDefaults restores a default value for any field that decoded to
// its Go zero value, so a YAML file with `max_trials: 0` does not silently
// disable what-if trials. Fields for which zero is a legitimate override
// (WhatIfEnabled) are exempt.
func (c *Config) applyZeroDefaults() *Config {
	d := Default()
	if c.MinRowsForIndex == 0 {
		c.MinRowsForIndex = d.MinRowsForIndex
	}
	if c.MaxIndexCols == 0 {
		c.MaxIndexCols = d.MaxIndexCols
	}
	if c.IndexMaxWidthBytes == 0 {
		c.IndexMaxWidthBytes = d.IndexMaxWidthBytes
	}
	if c.SuppressLowGainPct == 0 {
		c.SuppressLowGainPct = d.SuppressLowGainPct
	}
	if c.JoinColPriorBoost == 0 {
		c.JoinColPriorBoost = d.JoinColPriorBoost
	}
	if c.MaxTrials == 0 {
		c.MaxTrials = d.MaxTrials
	}
	if c.Parallelism == 0 {
		c.Parallelism = d.Parallelism
	}
	if c.TrialTimeoutMs == 0 {
		c.TrialTimeoutMs = d.TrialTimeoutMs
	}
	if c.GlobalTimeoutMs == 0 {
		c.GlobalTimeoutMs = d.GlobalTimeoutMs
	}
	if c.EarlyStopPct == 0 {
		c.EarlyStopPct = d.EarlyStopPct
	}
	if c.MinCostReductionPct == 0 {
		c.MinCostReductionPct = d.MinCostReductionPct
	}
	if c.LargeRelationThreshold == 0 {
		c.LargeRelationThreshold = d.LargeRelationThreshold
	}
	if c.N1Threshold == 0 {
		c.N1Threshold = d.N1Threshold
	}
	if len(c.NumericColumnPatterns) == 0 {
		c.NumericColumnPatterns = d.NumericColumnPatterns
	}
	return c
}
