// Package config loads the service configuration from an optional YAML file
// with FINSIGHT_* environment overrides on top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	APIKey      string `yaml:"api_key"` // empty disables auth
	ReadTimeout int    `yaml:"read_timeout_sec"`
	Shutdown    int    `yaml:"shutdown_timeout_sec"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type RetrievalConfig struct {
	TopK          int     `yaml:"top_k"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // ollama, openai
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	Dimensions  int    `yaml:"dimensions"` // 0 means learn from the first vector
	Concurrency int    `yaml:"concurrency"`
	MaxRetries  int    `yaml:"max_retries"`
}

type CacheConfig struct {
	Dir            string `yaml:"dir"` // empty means memory-only
	MaxDiskEntries int    `yaml:"max_disk_entries"`
}

type TasksConfig struct {
	MaxWorkers      int    `yaml:"max_workers"`
	RetentionSec    int    `yaml:"retention_sec"`
	SoftMemoryBytes uint64 `yaml:"soft_memory_bytes"`
	HardMemoryBytes uint64 `yaml:"hard_memory_bytes"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        4000,
			ReadTimeout: 30,
			Shutdown:    10,
		},
		Chunking: ChunkingConfig{
			Size:    500,
			Overlap: 50,
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			MinSimilarity: 0.3,
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "nomic-embed-text",
			Concurrency: 4,
			MaxRetries:  3,
		},
		Cache: CacheConfig{
			MaxDiskEntries: 10000,
		},
		Tasks: TasksConfig{
			RetentionSec: 600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".finsight"
	}
	return filepath.Join(home, ".finsight")
}

// Load reads path (if non-empty), applies FINSIGHT_* environment overrides
// and validates the result. A missing explicit path is an error; with no
// path, defaults plus environment are used.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envSpec binds one environment variable to a config field.
type envSpec struct {
	name  string
	apply func(cfg *Config, raw string) error
}

var envSpecs = []envSpec{
	{"FINSIGHT_PORT", func(c *Config, v string) error { return setInt(&c.Server.Port, v) }},
	{"FINSIGHT_API_KEY", func(c *Config, v string) error { c.Server.APIKey = v; return nil }},
	{"FINSIGHT_CHUNK_SIZE", func(c *Config, v string) error { return setInt(&c.Chunking.Size, v) }},
	{"FINSIGHT_CHUNK_OVERLAP", func(c *Config, v string) error { return setInt(&c.Chunking.Overlap, v) }},
	{"FINSIGHT_TOP_K", func(c *Config, v string) error { return setInt(&c.Retrieval.TopK, v) }},
	{"FINSIGHT_MIN_SIMILARITY", func(c *Config, v string) error { return setFloat(&c.Retrieval.MinSimilarity, v) }},
	{"FINSIGHT_EMBEDDING_PROVIDER", func(c *Config, v string) error { c.Embedding.Provider = v; return nil }},
	{"FINSIGHT_EMBEDDING_BASE_URL", func(c *Config, v string) error { c.Embedding.BaseURL = v; return nil }},
	{"FINSIGHT_EMBEDDING_MODEL", func(c *Config, v string) error { c.Embedding.Model = v; return nil }},
	{"FINSIGHT_EMBEDDING_API_KEY", func(c *Config, v string) error { c.Embedding.APIKey = v; return nil }},
	{"FINSIGHT_EMBEDDING_DIMENSIONS", func(c *Config, v string) error { return setInt(&c.Embedding.Dimensions, v) }},
	{"FINSIGHT_EMBEDDING_CONCURRENCY", func(c *Config, v string) error { return setInt(&c.Embedding.Concurrency, v) }},
	{"FINSIGHT_MAX_RETRIES", func(c *Config, v string) error { return setInt(&c.Embedding.MaxRetries, v) }},
	{"FINSIGHT_CACHE_DIR", func(c *Config, v string) error { c.Cache.Dir = v; return nil }},
	{"FINSIGHT_MAX_WORKERS", func(c *Config, v string) error { return setInt(&c.Tasks.MaxWorkers, v) }},
	{"FINSIGHT_DATA_DIR", func(c *Config, v string) error { c.Storage.DataDir = v; return nil }},
	{"FINSIGHT_LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
}

func applyEnv(cfg *Config) error {
	for _, s := range envSpecs {
		raw := os.Getenv(s.name)
		if raw == "" {
			continue
		}
		if err := s.apply(cfg, raw); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func setInt(dst *int, raw string) error {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("expected integer, got %q", raw)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, raw string) error {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("expected number, got %q", raw)
	}
	*dst = v
	return nil
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d for size %d",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("retrieval.min_similarity must be in [0, 1], got %g", c.Retrieval.MinSimilarity)
	}
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embedding.provider must be \"ollama\" or \"openai\", got %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required for the openai provider")
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// IndexPath is where the knowledge base artifact pair is persisted.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Storage.DataDir, "knowledge")
}
