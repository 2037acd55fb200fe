// Package config loads and manages the engine configuration.
// Configuration source priority (highest to lowest):
// 1. CLI-style overrides (Merge with SourceCLI)
// 2. Environment variables with the CTXBUDGET_ prefix
// 3. Config file path passed via --config, else ~/.config/ctxbudget/config.yaml
// 4. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Provenance tags for the Source field.
const (
	SourceDefault = "default"
	SourceEnv     = "env"
	SourceCLI     = "cli"
)

// EnvPrefix is the fixed prefix for all environment variables read by FromEnv.
const EnvPrefix = "CTXBUDGET_"

// ToolBudget caps one tool's output size. Protected tools are never truncated
// regardless of budget pressure.
type ToolBudget struct {
	ToolName        string `yaml:"tool_name"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	Protected       bool   `yaml:"protected"`
}

// Config is a configuration snapshot. Treat values as immutable: Merge
// returns a new Config and never mutates the receiver.
type Config struct {
	// Model selects the context-window table entry. Empty uses the default.
	Model string `yaml:"model"`

	// ContextWindow overrides the model's default window size. 0 = table value.
	ContextWindow int `yaml:"context_window"`

	// OutputReserve is the token count reserved for model output.
	OutputReserve int `yaml:"output_reserve"`

	// AutoCompact enables compaction when utilization crosses CompactThreshold.
	AutoCompact bool `yaml:"auto_compact"`

	// CompactThreshold is the fraction of the usable budget that triggers
	// compaction (0.0–1.0).
	CompactThreshold float64 `yaml:"compact_threshold"`

	// Strategy names the reduction strategy. Unknown values degrade to smart.
	Strategy string `yaml:"strategy"`

	// CompressionMinGainPct is the minimum percent reduction required to keep
	// a compaction; below it the original messages are restored.
	CompressionMinGainPct float64 `yaml:"compression_min_gain_pct"`

	// EstimationMode: "heuristic" | "validated".
	EstimationMode string `yaml:"estimation_mode"`

	// RedactSensitive strips raw message text from monitor records.
	RedactSensitive bool `yaml:"redact_sensitive"`

	// Monitor settings (JSONL/text observability sink).
	MonitorEnabled  bool   `yaml:"monitor_enabled"`
	MonitorPath     string `yaml:"monitor_path"`
	MonitorFormat   string `yaml:"monitor_format"`   // "jsonl" | "text"
	MonitorInterval int    `yaml:"monitor_interval"` // record every Nth event

	// DefaultToolOutputMax is the per-tool output cap when no explicit budget
	// is configured.
	DefaultToolOutputMax int `yaml:"default_tool_output_max"`

	// ProtectedTools are exempt from output truncation.
	ProtectedTools []string `yaml:"protected_tools"`

	// ToolBudgets maps tool name to its output budget.
	ToolBudgets map[string]ToolBudget `yaml:"tool_budgets"`

	// Source records which layer last set this config: default | env | cli.
	Source string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:                 "claude-sonnet-4",
		OutputReserve:         8192,
		AutoCompact:           true,
		CompactThreshold:      0.8,
		Strategy:              "smart",
		CompressionMinGainPct: 5.0,
		EstimationMode:        "heuristic",
		MonitorFormat:         "jsonl",
		MonitorInterval:       1,
		DefaultToolOutputMax:  2000,
		Source:                SourceDefault,
	}
}

// Load reads the config file (defaults when absent) and applies environment
// overrides on top.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".config", "ctxbudget", "config.yaml")
		}
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	return applyEnvOverrides(cfg), nil
}

// FromEnv builds a config from defaults plus environment variables. The
// Source tag becomes "env" when any variable was set.
func FromEnv() Config {
	return applyEnvOverrides(Default())
}

// Overrides is the CLI-style override mapping: nil fields are left alone.
type Overrides struct {
	Model                 *string
	ContextWindow         *int
	OutputReserve         *int
	AutoCompact           *bool
	CompactThreshold      *float64
	Strategy              *string
	CompressionMinGainPct *float64
	EstimationMode        *string
	RedactSensitive       *bool
	MonitorEnabled        *bool
	MonitorPath           *string
	MonitorFormat         *string
	MonitorInterval       *int
	DefaultToolOutputMax  *int
	ProtectedTools        []string
	ToolBudgets           map[string]ToolBudget
	Source                string
}

// Merge returns a new Config with the overrides applied. The receiver is
// never mutated; slices and maps are copied so the result shares nothing
// with either input.
func (c Config) Merge(o Overrides) Config {
	out := c
	out.ProtectedTools = append([]string(nil), c.ProtectedTools...)
	out.ToolBudgets = copyToolBudgets(c.ToolBudgets)

	if o.Model != nil {
		out.Model = *o.Model
	}
	if o.ContextWindow != nil {
		out.ContextWindow = *o.ContextWindow
	}
	if o.OutputReserve != nil {
		out.OutputReserve = *o.OutputReserve
	}
	if o.AutoCompact != nil {
		out.AutoCompact = *o.AutoCompact
	}
	if o.CompactThreshold != nil {
		out.CompactThreshold = *o.CompactThreshold
	}
	if o.Strategy != nil {
		out.Strategy = *o.Strategy
	}
	if o.CompressionMinGainPct != nil {
		out.CompressionMinGainPct = *o.CompressionMinGainPct
	}
	if o.EstimationMode != nil {
		out.EstimationMode = *o.EstimationMode
	}
	if o.RedactSensitive != nil {
		out.RedactSensitive = *o.RedactSensitive
	}
	if o.MonitorEnabled != nil {
		out.MonitorEnabled = *o.MonitorEnabled
	}
	if o.MonitorPath != nil {
		out.MonitorPath = *o.MonitorPath
	}
	if o.MonitorFormat != nil {
		out.MonitorFormat = *o.MonitorFormat
	}
	if o.MonitorInterval != nil {
		out.MonitorInterval = *o.MonitorInterval
	}
	if o.DefaultToolOutputMax != nil {
		out.DefaultToolOutputMax = *o.DefaultToolOutputMax
	}
	if o.ProtectedTools != nil {
		out.ProtectedTools = append([]string(nil), o.ProtectedTools...)
	}
	if o.ToolBudgets != nil {
		out.ToolBudgets = copyToolBudgets(o.ToolBudgets)
	}
	if o.Source != "" {
		out.Source = o.Source
	}
	return out
}

func copyToolBudgets(in map[string]ToolBudget) map[string]ToolBudget {
	if in == nil {
		return nil
	}
	out := make(map[string]ToolBudget, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// applyEnvOverrides applies CTXBUDGET_* environment variables to cfg.
func applyEnvOverrides(cfg Config) Config {
	touched := false
	str := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
			touched = true
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
				touched = true
			}
		}
	}
	flt := func(key string, dst *float64) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
				touched = true
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
				touched = true
			}
		}
	}

	str("MODEL", &cfg.Model)
	num("CONTEXT_WINDOW", &cfg.ContextWindow)
	num("OUTPUT_RESERVE", &cfg.OutputReserve)
	boolean("AUTO_COMPACT", &cfg.AutoCompact)
	flt("COMPACT_THRESHOLD", &cfg.CompactThreshold)
	str("STRATEGY", &cfg.Strategy)
	flt("MIN_GAIN_PCT", &cfg.CompressionMinGainPct)
	str("ESTIMATION_MODE", &cfg.EstimationMode)
	boolean("REDACT", &cfg.RedactSensitive)
	boolean("MONITOR", &cfg.MonitorEnabled)
	str("MONITOR_PATH", &cfg.MonitorPath)
	str("MONITOR_FORMAT", &cfg.MonitorFormat)
	num("MONITOR_INTERVAL", &cfg.MonitorInterval)
	num("TOOL_OUTPUT_MAX", &cfg.DefaultToolOutputMax)

	if touched {
		cfg.Source = SourceEnv
	}
	return cfg
}
