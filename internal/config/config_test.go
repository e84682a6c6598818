package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chunking.Size != 500 || cfg.Chunking.Overlap != 50 {
		t.Errorf("chunking defaults = %+v", cfg.Chunking)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.MinSimilarity != 0.3 {
		t.Errorf("retrieval defaults = %+v", cfg.Retrieval)
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("provider default = %q", cfg.Embedding.Provider)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finsight.yaml")
	body := `
server:
  port: 9100
chunking:
  size: 800
  overlap: 100
retrieval:
  min_similarity: 0.5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Chunking.Size != 800 || cfg.Chunking.Overlap != 100 {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	if cfg.Retrieval.MinSimilarity != 0.5 {
		t.Errorf("min_similarity = %v", cfg.Retrieval.MinSimilarity)
	}
	// Untouched sections keep defaults.
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("top_k = %d, want default 5", cfg.Retrieval.TopK)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finsight.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FINSIGHT_PORT", "9200")
	t.Setenv("FINSIGHT_MIN_SIMILARITY", "0.7")
	t.Setenv("FINSIGHT_EMBEDDING_DIMENSIONS", "768")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("port = %d, want env override 9200", cfg.Server.Port)
	}
	if cfg.Retrieval.MinSimilarity != 0.7 {
		t.Errorf("min_similarity = %v, want env override 0.7", cfg.Retrieval.MinSimilarity)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("embedding.dimensions = %d, want env override 768", cfg.Embedding.Dimensions)
	}
}

func TestEnvMalformedInteger(t *testing.T) {
	t.Setenv("FINSIGHT_PORT", "not-a-port")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "FINSIGHT_PORT") {
		t.Fatalf("err = %v, want FINSIGHT_PORT parse error", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"negative dimensions", func(c *Config) { c.Embedding.Dimensions = -1 }, "embedding.dimensions"},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }, "chunking.overlap"},
		{"negative similarity", func(c *Config) { c.Retrieval.MinSimilarity = -0.1 }, "min_similarity"},
		{"similarity above one", func(c *Config) { c.Retrieval.MinSimilarity = 1.5 }, "min_similarity"},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }, "top_k"},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"openai without key", func(c *Config) { c.Embedding.Provider = "openai" }, "api_key"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestIndexPath(t *testing.T) {
	cfg := defaults()
	cfg.Storage.DataDir = "/var/lib/finsight"
	if got := cfg.IndexPath(); got != filepath.Join("/var/lib/finsight", "knowledge") {
		t.Errorf("IndexPath = %q", got)
	}
}
