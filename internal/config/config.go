package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the match engine configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Matching MatchingConfig `yaml:"matching"`
	Gate     GateConfig     `yaml:"gate"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// WeightsConfig holds the per-signal scoring weights. Must sum to 100.
type WeightsConfig struct {
	Category int `yaml:"category"`
	Location int `yaml:"location"`
	Temporal int `yaml:"temporal"`
	Text     int `yaml:"text"`
	Tags     int `yaml:"tags"`
}

// MatchingConfig holds scorer thresholds and candidate generation limits.
type MatchingConfig struct {
	Weights WeightsConfig `yaml:"weights"`
	// CreateThreshold is the minimum score for generating a pending match.
	CreateThreshold int `yaml:"create_threshold"`
	// RetainThreshold is the score under which a rescored pending match is
	// auto-rejected. Kept below CreateThreshold to avoid churn at the boundary.
	RetainThreshold int `yaml:"retain_threshold"`
	// MaxCandidates caps the candidate list per item.
	MaxCandidates int `yaml:"max_candidates"`
	// MinCandidates triggers location-constraint relaxation when the
	// bucket lookup yields fewer candidates.
	MinCandidates int `yaml:"min_candidates"`
	// TimeBucketDays is the event-date bucket window.
	TimeBucketDays int `yaml:"time_bucket_days"`
	// MaxTimeWindowDays is where temporal credit reaches zero.
	MaxTimeWindowDays int `yaml:"max_time_window_days"`
	// FullCreditDistanceM / MaxDistanceM bound the location decay curve.
	FullCreditDistanceM float64 `yaml:"full_credit_distance_m"`
	MaxDistanceM        float64 `yaml:"max_distance_m"`
	// LocationCellDeg is the coarse location grid cell size in degrees.
	LocationCellDeg float64 `yaml:"location_cell_deg"`
	// ConfirmedItemStatus is what both items become on confirm:
	// "resolved" (default) or "matched".
	ConfirmedItemStatus string `yaml:"confirmed_item_status"`
	// Workers bounds concurrent scoring per item event.
	Workers int `yaml:"workers"`
}

// GateConfig holds disclosure gate settings.
type GateConfig struct {
	Mode       string `yaml:"mode"` // log (default), webhook
	WebhookURL string `yaml:"webhook_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "lf:"
	}
	if c.Matching.Weights == (WeightsConfig{}) {
		c.Matching.Weights = WeightsConfig{Category: 25, Location: 20, Temporal: 20, Text: 20, Tags: 15}
	}
	if c.Matching.CreateThreshold <= 0 {
		c.Matching.CreateThreshold = 60
	}
	if c.Matching.RetainThreshold <= 0 {
		c.Matching.RetainThreshold = 40
	}
	if c.Matching.MaxCandidates <= 0 {
		c.Matching.MaxCandidates = 200
	}
	if c.Matching.MinCandidates <= 0 {
		c.Matching.MinCandidates = 5
	}
	if c.Matching.TimeBucketDays <= 0 {
		c.Matching.TimeBucketDays = 14
	}
	if c.Matching.MaxTimeWindowDays <= 0 {
		c.Matching.MaxTimeWindowDays = 14
	}
	if c.Matching.FullCreditDistanceM <= 0 {
		c.Matching.FullCreditDistanceM = 200
	}
	if c.Matching.MaxDistanceM <= 0 {
		c.Matching.MaxDistanceM = 5000
	}
	if c.Matching.LocationCellDeg <= 0 {
		c.Matching.LocationCellDeg = 0.05
	}
	if c.Matching.ConfirmedItemStatus == "" {
		c.Matching.ConfirmedItemStatus = "resolved"
	}
	if c.Matching.Workers <= 0 {
		c.Matching.Workers = 8
	}
	if c.Gate.Mode == "" {
		c.Gate.Mode = "log"
	}
	if c.Gate.TimeoutSec <= 0 {
		c.Gate.TimeoutSec = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	w := c.Matching.Weights
	if sum := w.Category + w.Location + w.Temporal + w.Text + w.Tags; sum != 100 {
		return fmt.Errorf("matching.weights must sum to 100, got %d", sum)
	}
	if c.Matching.RetainThreshold >= c.Matching.CreateThreshold {
		return fmt.Errorf(
			"matching.retain_threshold (%d) must be below matching.create_threshold (%d)",
			c.Matching.RetainThreshold, c.Matching.CreateThreshold,
		)
	}
	if c.Matching.MaxDistanceM <= c.Matching.FullCreditDistanceM {
		return fmt.Errorf(
			"matching.max_distance_m (%f) must exceed matching.full_credit_distance_m (%f)",
			c.Matching.MaxDistanceM, c.Matching.FullCreditDistanceM,
		)
	}
	switch c.Matching.ConfirmedItemStatus {
	case "resolved", "matched":
		// ok
	default:
		return fmt.Errorf(
			"matching.confirmed_item_status must be \"resolved\" or \"matched\", got %q",
			c.Matching.ConfirmedItemStatus,
		)
	}
	switch c.Gate.Mode {
	case "log", "webhook":
		// ok
	default:
		return fmt.Errorf("gate.mode must be \"log\" or \"webhook\", got %q", c.Gate.Mode)
	}
	if c.Gate.Mode == "webhook" && c.Gate.WebhookURL == "" {
		return fmt.Errorf("gate.webhook_url is required when gate.mode is webhook")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
