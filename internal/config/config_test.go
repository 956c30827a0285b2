package config

import (
	"strings"
	"testing"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  port: 8080\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "memory" {
		t.Errorf("database.driver = %q, want memory", cfg.Database.Driver)
	}
	if cfg.Storage.KeyPrefix != "cdcr:" || cfg.Storage.BatchTTLHours != 24 {
		t.Errorf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Clustering.Cutoff != 1.5 || cfg.Clustering.Metric != "cosine" {
		t.Errorf("unexpected clustering defaults: %+v", cfg.Clustering)
	}
	if cfg.Clustering.MaxMentions != 5000 {
		t.Errorf("clustering.max_mentions = %d, want 5000", cfg.Clustering.MaxMentions)
	}
	if cfg.Detection.Provider != "heuristic" || cfg.Embedding.Provider != "tfidf" {
		t.Errorf("unexpected providers: %q / %q", cfg.Detection.Provider, cfg.Embedding.Provider)
	}
	if cfg.HTTP.MaxUploadBytes != 64<<20 {
		t.Errorf("http.max_upload_bytes = %d", cfg.HTTP.MaxUploadBytes)
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("CDCR_TEST_PORT", "9090")
	t.Setenv("CDCR_TEST_KEY", "")

	cfg, err := Parse([]byte(`
http:
  port: ${CDCR_TEST_PORT}
auth:
  api_keys: ["${CDCR_TEST_KEY:-fallback}"]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("http.port = %d, want 9090", cfg.HTTP.Port)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0] != "fallback" {
		t.Errorf("auth.api_keys = %v, want [fallback]", cfg.Auth.APIKeys)
	}
}

func TestParse_OpenAIModelDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
http: {port: 8080}
detection: {provider: openai, api_key: k}
embedding: {provider: openai, api_key: k}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Detection.Model == "" || cfg.Embedding.Model == "" {
		t.Errorf("expected default models, got %q / %q", cfg.Detection.Model, cfg.Embedding.Model)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{HTTP: HTTPConfig{Port: 8080}}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"redis without addrs", func(c *Config) { c.Database.Driver = "redis" }, "database.addrs"},
		{"negative cutoff", func(c *Config) { c.Clustering.Cutoff = -1 }, "clustering.cutoff"},
		{"unknown metric", func(c *Config) { c.Clustering.Metric = "manhattan" }, "clustering.metric"},
		{"unknown detector", func(c *Config) { c.Detection.Provider = "spacy" }, "detection.provider"},
		{"openai detector without key", func(c *Config) { c.Detection.Provider = "openai" }, "detection.api_key"},
		{"unknown embedder", func(c *Config) { c.Embedding.Provider = "bert" }, "embedding.provider"},
		{"openai embedder without key", func(c *Config) { c.Embedding.Provider = "openai" }, "embedding.api_key"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}

func TestValidate_ValidDrivers(t *testing.T) {
	for _, driver := range []string{"memory", "redis", "valkey"} {
		t.Run(driver, func(t *testing.T) {
			cfg := Config{
				HTTP:     HTTPConfig{Port: 8080},
				Database: DatabaseConfig{Driver: driver, Addrs: []string{"localhost:6379"}},
			}
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoad_LocalConfig(t *testing.T) {
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("local config should run in memory, got %q", cfg.Database.Driver)
	}
}

func TestHotCacheEnabled(t *testing.T) {
	tests := []struct {
		name         string
		driver       string
		ttl          int
		singleWriter bool
		want         bool
	}{
		{"memory", "memory", 300, false, true},
		{"shared redis", "redis", 300, false, false},
		{"redis single writer", "redis", 300, true, true},
		{"shared valkey", "valkey", 300, false, false},
		{"ttl zero", "memory", 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Database.Driver = tt.driver
			cfg.Storage.HotCacheTTLSec = tt.ttl
			cfg.Storage.SingleWriter = tt.singleWriter
			if got := cfg.HotCacheEnabled(); got != tt.want {
				t.Errorf("HotCacheEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
