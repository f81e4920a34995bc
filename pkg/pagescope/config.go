package pagescope

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/pagescope/internal/analyzer"
	"github.com/PentesterFlow/pagescope/internal/browser"
	"github.com/PentesterFlow/pagescope/internal/history"
	"github.com/PentesterFlow/pagescope/internal/messaging"
	"github.com/PentesterFlow/pagescope/internal/output"
	"github.com/PentesterFlow/pagescope/internal/source"
)

// Config holds all engine configuration.
type Config struct {
	// Source loads pages: auto, http, browser or file
	Source string `json:"source" yaml:"source"`

	// Wall-clock budget for one target, fetch and analysis included
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Number of targets analyzed concurrently in a batch
	Workers int `json:"workers" yaml:"workers"`

	// Document URL for local files; empty uses the file:// URL
	BaseURL string `json:"base_url" yaml:"base_url"`

	// HTTP source
	HTTP source.HTTPConfig `json:"http" yaml:"http"`

	// Browser source
	Browser browser.Config `json:"browser" yaml:"browser"`

	// Rate limiting for remote fetches
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Sampling caps and detection thresholds
	Analysis analyzer.Config `json:"analysis" yaml:"analysis"`

	// Report history
	History HistoryConfig `json:"history" yaml:"history"`

	// WebSocket host
	Server messaging.ServerConfig `json:"server" yaml:"server"`

	// Output configuration
	Output output.Config `json:"output" yaml:"output"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// RateLimitConfig throttles remote fetches. A zero rate disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
}

// HistoryConfig controls the persisted report history.
type HistoryConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Path     string `json:"path" yaml:"path"`
	MaxItems int    `json:"max_items" yaml:"max_items"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Source:  string(source.KindAuto),
		Timeout: 30 * time.Second,
		Workers: 4,
		HTTP:    source.DefaultHTTPConfig(),
		Browser: browser.DefaultConfig(),
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Analysis: analyzer.DefaultConfig(),
		History: HistoryConfig{
			Enabled:  false,
			Path:     DefaultHistoryPath(),
			MaxItems: history.DefaultMaxItems,
		},
		Server: messaging.DefaultServerConfig(),
		Output: output.Config{
			Pretty: true,
		},
	}
}

// DefaultHistoryPath returns ~/.pagescope/history.db, or a path relative to
// the working directory when there is no home directory.
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".pagescope", "history.db")
	}
	return filepath.Join(home, ".pagescope", "history.db")
}

// LoadFromFile loads configuration from a file (JSON or YAML).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		config = DefaultConfig()
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := source.ParseKind(c.Source); err != nil {
		return err
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	if c.Browser.PoolSize < 1 {
		return fmt.Errorf("browser pool size must be at least 1")
	}

	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}

	a := c.Analysis
	for name, v := range map[string]int{
		"link sample":         a.LinkSample,
		"link text max":       a.LinkTextMax,
		"table sample":        a.TableSample,
		"header max":          a.HeaderMax,
		"detected api max":    a.DetectedAPIMax,
		"method window":       a.MethodWindow,
		"price threshold":     a.PriceThreshold,
		"dashboard threshold": a.DashboardThreshold,
		"svg shape threshold": a.SVGShapeThreshold,
	} {
		if v < 0 {
			return fmt.Errorf("analysis %s must not be negative", name)
		}
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history path is required when history is enabled")
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	return clone
}
