package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PricingConfig sets the per-million-token prices used for cost estimates
type PricingConfig struct {
	InputPer1M  float64 `yaml:"input_per_1m"`
	OutputPer1M float64 `yaml:"output_per_1m"`

	// InputShare is the fraction of total tokens billed at the input price
	InputShare float64 `yaml:"input_share"`
}

// VisionConfig configures the external vision judge
type VisionConfig struct {
	// Command is the program (and leading args) wrapping the vision model.
	// Empty disables vision analysis.
	Command []string `yaml:"command"`

	// Timeout bounds a single vision call
	Timeout time.Duration `yaml:"-"`
}

// RateLimitConfig controls waiting out provider rate limits
type RateLimitConfig struct {
	// MaxWait is the longest reset we are willing to sleep through
	MaxWait time.Duration `yaml:"-"`

	// AnnounceInterval is how often the countdown is logged
	AnnounceInterval time.Duration `yaml:"-"`

	// MaxRetries caps how often one vision call is retried after a limit
	MaxRetries int `yaml:"max_retries"`
}

// HistoryConfig represents run history configuration
type HistoryConfig struct {
	// Enabled records every suite run and attaches trends
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`
}

// Config represents phasegate configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs will be written
	LogDir string `yaml:"log_dir"`

	// MaxRetries is the number of retries after a flaky phase execution
	MaxRetries int `yaml:"max_retries"`

	// PoolSize bounds how many suite/device runs execute in parallel
	PoolSize int `yaml:"pool_size"`

	StepTimeout     time.Duration `yaml:"-"`
	AnalyzerTimeout time.Duration `yaml:"-"`

	// ExecutionErrorPolicy decides how exhausted execution errors are
	// reported: "warn" or "fail"
	ExecutionErrorPolicy string `yaml:"execution_error_policy"`

	// Thresholds are the minimum analyzer scores (0-10) a phase must reach
	Thresholds map[string]float64 `yaml:"thresholds"`

	// ConfidenceBoost multiplies the confidence of DOM-confirmed issues
	ConfidenceBoost float64 `yaml:"confidence_boost"`

	Pricing PricingConfig `yaml:"pricing"`

	// Analyzers maps an analyzer name to the command that runs it
	Analyzers map[string][]string `yaml:"analyzers"`

	Vision    VisionConfig    `yaml:"vision"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	History   HistoryConfig   `yaml:"history"`

	// ReportDir receives one JSON report per suite run
	ReportDir string `yaml:"report_dir"`

	// ArtifactDir holds screenshots and HTML snapshots
	ArtifactDir string `yaml:"artifact_dir"`

	// DryRun validates suites without executing them
	DryRun bool `yaml:"dry_run"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:             "info",
		LogDir:               ".phasegate/logs",
		MaxRetries:           2,
		PoolSize:             2,
		StepTimeout:          30 * time.Second,
		AnalyzerTimeout:      30 * time.Second,
		ExecutionErrorPolicy: "warn",
		Thresholds: map[string]float64{
			"rtl":          6.0,
			"code_quality": 5.0,
		},
		ConfidenceBoost: 1.2,
		Pricing: PricingConfig{
			InputPer1M:  3.00,
			OutputPer1M: 15.00,
			InputShare:  0.7,
		},
		Analyzers: map[string][]string{},
		Vision: VisionConfig{
			Timeout: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxWait:          15 * time.Minute,
			AnnounceInterval: 30 * time.Second,
			MaxRetries:       3,
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  ".phasegate/history/runs.db",
		},
		ReportDir:   ".phasegate/reports",
		ArtifactDir: ".phasegate/artifacts",
		DryRun:      false,
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations are strings in YAML
	type yamlVision struct {
		Command []string `yaml:"command"`
		Timeout string   `yaml:"timeout"`
	}
	type yamlRateLimit struct {
		MaxWait          string `yaml:"max_wait"`
		AnnounceInterval string `yaml:"announce_interval"`
		MaxRetries       int    `yaml:"max_retries"`
	}
	type yamlConfig struct {
		LogLevel             string              `yaml:"log_level"`
		LogDir               string              `yaml:"log_dir"`
		MaxRetries           int                 `yaml:"max_retries"`
		PoolSize             int                 `yaml:"pool_size"`
		StepTimeout          string              `yaml:"step_timeout"`
		AnalyzerTimeout      string              `yaml:"analyzer_timeout"`
		ExecutionErrorPolicy string              `yaml:"execution_error_policy"`
		Thresholds           map[string]float64  `yaml:"thresholds"`
		ConfidenceBoost      float64             `yaml:"confidence_boost"`
		Pricing              PricingConfig       `yaml:"pricing"`
		Analyzers            map[string][]string `yaml:"analyzers"`
		Vision               yamlVision          `yaml:"vision"`
		RateLimit            yamlRateLimit       `yaml:"rate_limit"`
		History              HistoryConfig       `yaml:"history"`
		ReportDir            string              `yaml:"report_dir"`
		ArtifactDir          string              `yaml:"artifact_dir"`
		DryRun               bool                `yaml:"dry_run"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Detect explicitly present keys so zero values in the file still apply
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	has := func(key string) bool {
		_, ok := rawMap[key]
		return ok
	}
	section := func(key string) map[string]interface{} {
		m, _ := rawMap[key].(map[string]interface{})
		return m
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if has("max_retries") {
		cfg.MaxRetries = yamlCfg.MaxRetries
	}
	if yamlCfg.PoolSize != 0 {
		cfg.PoolSize = yamlCfg.PoolSize
	}
	if err := parseDuration("step_timeout", yamlCfg.StepTimeout, &cfg.StepTimeout); err != nil {
		return nil, err
	}
	if err := parseDuration("analyzer_timeout", yamlCfg.AnalyzerTimeout, &cfg.AnalyzerTimeout); err != nil {
		return nil, err
	}
	if yamlCfg.ExecutionErrorPolicy != "" {
		cfg.ExecutionErrorPolicy = strings.ToLower(strings.TrimSpace(yamlCfg.ExecutionErrorPolicy))
	}
	// Threshold entries override defaults one by one
	for name, min := range yamlCfg.Thresholds {
		cfg.Thresholds[name] = min
	}
	if yamlCfg.ConfidenceBoost != 0 {
		cfg.ConfidenceBoost = yamlCfg.ConfidenceBoost
	}

	if p := section("pricing"); p != nil {
		if _, ok := p["input_per_1m"]; ok {
			cfg.Pricing.InputPer1M = yamlCfg.Pricing.InputPer1M
		}
		if _, ok := p["output_per_1m"]; ok {
			cfg.Pricing.OutputPer1M = yamlCfg.Pricing.OutputPer1M
		}
		if _, ok := p["input_share"]; ok {
			cfg.Pricing.InputShare = yamlCfg.Pricing.InputShare
		}
	}

	for name, command := range yamlCfg.Analyzers {
		cfg.Analyzers[name] = command
	}

	if len(yamlCfg.Vision.Command) > 0 {
		cfg.Vision.Command = yamlCfg.Vision.Command
	}
	if err := parseDuration("vision.timeout", yamlCfg.Vision.Timeout, &cfg.Vision.Timeout); err != nil {
		return nil, err
	}

	if err := parseDuration("rate_limit.max_wait", yamlCfg.RateLimit.MaxWait, &cfg.RateLimit.MaxWait); err != nil {
		return nil, err
	}
	if err := parseDuration("rate_limit.announce_interval", yamlCfg.RateLimit.AnnounceInterval, &cfg.RateLimit.AnnounceInterval); err != nil {
		return nil, err
	}
	if rl := section("rate_limit"); rl != nil {
		if _, ok := rl["max_retries"]; ok {
			cfg.RateLimit.MaxRetries = yamlCfg.RateLimit.MaxRetries
		}
	}

	if h := section("history"); h != nil {
		if _, ok := h["enabled"]; ok {
			cfg.History.Enabled = yamlCfg.History.Enabled
		}
		if _, ok := h["db_path"]; ok {
			// Explicitly set db_path, even if empty string
			cfg.History.DBPath = yamlCfg.History.DBPath
		}
	}

	if yamlCfg.ReportDir != "" {
		cfg.ReportDir = yamlCfg.ReportDir
	}
	if yamlCfg.ArtifactDir != "" {
		cfg.ArtifactDir = yamlCfg.ArtifactDir
	}
	if yamlCfg.DryRun {
		cfg.DryRun = yamlCfg.DryRun
	}

	return cfg, nil
}

func parseDuration(key, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s format %q: %w", key, raw, err)
	}
	*dst = d
	return nil
}

// LoadConfigFromDir loads configuration from .phasegate/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ".phasegate", "config.yaml")
	return LoadConfig(configPath)
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(maxRetries *int, poolSize *int, logLevel *string, reportDir *string, dryRun *bool) {
	if maxRetries != nil {
		c.MaxRetries = *maxRetries
	}
	if poolSize != nil {
		c.PoolSize = *poolSize
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if reportDir != nil {
		c.ReportDir = *reportDir
	}
	if dryRun != nil {
		c.DryRun = *dryRun
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("step_timeout must be >= 0, got %v", c.StepTimeout)
	}
	if c.AnalyzerTimeout < 0 {
		return fmt.Errorf("analyzer_timeout must be >= 0, got %v", c.AnalyzerTimeout)
	}

	switch c.ExecutionErrorPolicy {
	case "warn", "fail":
	default:
		return fmt.Errorf("invalid execution_error_policy %q, must be one of: warn, fail", c.ExecutionErrorPolicy)
	}

	for name, min := range c.Thresholds {
		if min < 0 || min > 10 {
			return fmt.Errorf("thresholds.%s must be between 0 and 10, got %v", name, min)
		}
	}
	if c.ConfidenceBoost < 1 {
		return fmt.Errorf("confidence_boost must be >= 1, got %v", c.ConfidenceBoost)
	}

	if c.Pricing.InputPer1M < 0 || c.Pricing.OutputPer1M < 0 {
		return fmt.Errorf("pricing must be >= 0")
	}
	if c.Pricing.InputShare < 0 || c.Pricing.InputShare > 1 {
		return fmt.Errorf("pricing.input_share must be between 0 and 1, got %v", c.Pricing.InputShare)
	}

	for name, command := range c.Analyzers {
		if len(command) == 0 || command[0] == "" {
			return fmt.Errorf("analyzers.%s: command cannot be empty", name)
		}
	}

	if c.Vision.Timeout < 0 {
		return fmt.Errorf("vision.timeout must be >= 0, got %v", c.Vision.Timeout)
	}
	if c.RateLimit.MaxRetries < 0 {
		return fmt.Errorf("rate_limit.max_retries must be >= 0, got %d", c.RateLimit.MaxRetries)
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path cannot be empty when history is enabled")
	}

	return nil
}
