// Package config provides configuration loading for wormd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. Defaults are applied for anything left unset, so an empty
// configuration is always usable: the daemon starts in heuristic-only mode
// with an in-memory knowledge index.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete wormd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Backend    BackendConfig    `koanf:"backend"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Knowledge  KnowledgeConfig  `koanf:"knowledge"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Selection  SelectionConfig  `koanf:"selection"`
	Rules      RulesConfig      `koanf:"rules"`
	Plan       PlanConfig       `koanf:"plan"`
}

// ServerConfig holds HTTP adapter configuration.
type ServerConfig struct {
	Addr            string   `koanf:"addr"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig controls zap logger construction.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// BackendConfig selects and bounds the external reasoning backend.
type BackendConfig struct {
	// Provider is "openai", "anthropic", or "none" (heuristics only).
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	Timeout     Duration `koanf:"timeout"`
	MaxTokens   int      `koanf:"max_tokens"`
	Temperature float64  `koanf:"temperature"`
}

// Enabled reports whether a reasoning backend is configured.
func (c BackendConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != "none"
}

// EmbeddingsConfig configures the embedding endpoint.
// Works with both OpenAI and TEI (OpenAI-compatible) servers.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// KnowledgeConfig configures the knowledge index and its refresh cycle.
type KnowledgeConfig struct {
	// Dir is the knowledge corpus directory watched by the refresher.
	Dir string `koanf:"dir"`
	// Path is the persistent index location. Empty means in-memory only.
	Path string `koanf:"path"`
	// Collection is the vector collection name.
	Collection string `koanf:"collection"`
	// ChunkSize is the chunk window size in characters.
	ChunkSize int `koanf:"chunk_size"`
	// Overlap is the window overlap fraction in [0, 0.9].
	Overlap float64 `koanf:"overlap"`
	// RefreshInterval is the corpus polling interval.
	RefreshInterval Duration `koanf:"refresh_interval"`
	// MaxFileSize caps source document size in bytes.
	MaxFileSize int64 `koanf:"max_file_size"`
}

// RetrievalConfig configures knowledge queries.
type RetrievalConfig struct {
	// K is the default number of results per query.
	K int `koanf:"k"`
}

// SelectionConfig configures rule scoring.
type SelectionConfig struct {
	// Threshold is the minimum score for a rule to be selected.
	Threshold float64 `koanf:"threshold"`
	// MaxAdjustment bounds the AI score adjustment to [-max, +max].
	MaxAdjustment float64 `koanf:"max_adjustment"`
}

// RulesConfig locates the rule catalog definitions.
type RulesConfig struct {
	// Path is a YAML file of rule definitions. Empty means built-in defaults.
	Path string `koanf:"path"`
}

// PlanConfig holds the stage templates and category mappings used by the
// plan generator. Empty maps fall back to the built-in defaults.
type PlanConfig struct {
	// Templates maps complexity ("low", "medium", "high") to stage names.
	Templates map[string][]string `koanf:"templates"`
	// CategoryStages maps a rule category to its stage name.
	CategoryStages map[string]string `koanf:"category_stages"`
	// CategoryGates maps a rule category to quality gate identifiers.
	CategoryGates map[string][]string `koanf:"category_gates"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8741"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Backend.Provider == "" {
		cfg.Backend.Provider = "none"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = Duration(15 * time.Second)
	}
	if cfg.Backend.MaxTokens == 0 {
		cfg.Backend.MaxTokens = 2000
	}
	if cfg.Backend.Temperature == 0 {
		cfg.Backend.Temperature = 0.3
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080/v1"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	if cfg.Knowledge.Collection == "" {
		cfg.Knowledge.Collection = "worm_knowledge"
	}
	if cfg.Knowledge.ChunkSize == 0 {
		cfg.Knowledge.ChunkSize = 800
	}
	if cfg.Knowledge.Overlap == 0 {
		cfg.Knowledge.Overlap = 0.25
	}
	if cfg.Knowledge.RefreshInterval == 0 {
		cfg.Knowledge.RefreshInterval = Duration(30 * time.Second)
	}
	if cfg.Knowledge.MaxFileSize == 0 {
		cfg.Knowledge.MaxFileSize = 1024 * 1024
	}

	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 5
	}

	if cfg.Selection.Threshold == 0 {
		cfg.Selection.Threshold = 0.35
	}
	if cfg.Selection.MaxAdjustment == 0 {
		cfg.Selection.MaxAdjustment = 0.2
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	switch c.Backend.Provider {
	case "none", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown backend provider: %q", c.Backend.Provider)
	}
	if c.Backend.Enabled() && c.Backend.Model == "" {
		return errors.New("backend model required when provider is set")
	}
	if c.Backend.Timeout.Duration() <= 0 {
		return errors.New("backend timeout must be positive")
	}

	if c.Knowledge.ChunkSize < 64 {
		return fmt.Errorf("knowledge chunk_size too small: %d (min 64)", c.Knowledge.ChunkSize)
	}
	if c.Knowledge.Overlap < 0 || c.Knowledge.Overlap > 0.9 {
		return fmt.Errorf("knowledge overlap out of range: %v (must be in [0, 0.9])", c.Knowledge.Overlap)
	}
	if c.Knowledge.RefreshInterval.Duration() <= 0 {
		return errors.New("knowledge refresh_interval must be positive")
	}

	if c.Retrieval.K < 1 {
		return fmt.Errorf("retrieval k must be >= 1, got %d", c.Retrieval.K)
	}

	if c.Selection.Threshold < 0 || c.Selection.Threshold > 1 {
		return fmt.Errorf("selection threshold out of range: %v", c.Selection.Threshold)
	}
	if c.Selection.MaxAdjustment < 0 || c.Selection.MaxAdjustment > 1 {
		return fmt.Errorf("selection max_adjustment out of range: %v", c.Selection.MaxAdjustment)
	}

	return nil
}
