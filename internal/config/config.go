package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the cdcr API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Detection  DetectionConfig  `yaml:"detection"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
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
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, valkey (default: memory)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds key layout and retention settings.
type StorageConfig struct {
	KeyPrefix      string `yaml:"key_prefix"`
	BatchTTLHours  int    `yaml:"batch_ttl_hours"`
	HotCacheTTLSec int    `yaml:"hot_cache_ttl_sec"` // 0 disables the decoded-batch cache
	// SingleWriter declares that no other process writes batches to a shared database.
	// The hot cache is per process, so with redis/valkey it is only used when this is set.
	SingleWriter   bool   `yaml:"single_writer"`
}

// HotCacheEnabled reports whether the decoded-batch cache may be used.
func (c *Config) HotCacheEnabled() bool {
	return c.Storage.HotCacheTTLSec > 0 && (c.Database.Driver == "memory" || c.Storage.SingleWriter)
}

// ClusteringConfig holds agglomerative clustering settings.
type ClusteringConfig struct {
	Cutoff          float64 `yaml:"cutoff"`
	Metric          string  `yaml:"metric"` // cosine, euclidean
	MaxDocuments    int     `yaml:"max_documents"`
	MaxMentions     int     `yaml:"max_mentions"`
	DistanceWorkers int     `yaml:"distance_workers"`
}

// DetectionConfig holds mention detector settings.
type DetectionConfig struct {
	Provider               string `yaml:"provider"` // heuristic, openai
	APIKey                 string `yaml:"api_key"`
	BaseURL                string `yaml:"base_url"`
	Model                  string `yaml:"model"`
	MaxMentionsPerDocument int    `yaml:"max_mentions_per_document"`
	Workers                int    `yaml:"workers"`
}

// EmbeddingConfig holds mention vectorizer settings.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // tfidf, openai
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	ChunkSize   int    `yaml:"chunk_size"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"` // 0 disables the embedding cache
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
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
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 64 << 20
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "cdcr:"
	}
	if c.Storage.BatchTTLHours <= 0 {
		c.Storage.BatchTTLHours = 24
	}
	if c.Clustering.Cutoff == 0 {
		c.Clustering.Cutoff = 1.5
	}
	if c.Clustering.Metric == "" {
		c.Clustering.Metric = "cosine"
	}
	if c.Clustering.MaxDocuments <= 0 {
		c.Clustering.MaxDocuments = 1000
	}
	if c.Clustering.MaxMentions <= 0 {
		c.Clustering.MaxMentions = 5000
	}
	if c.Detection.Provider == "" {
		c.Detection.Provider = "heuristic"
	}
	if c.Detection.Workers <= 0 {
		c.Detection.Workers = 4
	}
	if c.Detection.Provider == "openai" && c.Detection.Model == "" {
		c.Detection.Model = "gpt-4o-mini"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "tfidf"
	}
	if c.Embedding.Provider == "openai" && c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "redis", "valkey":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be \"memory\", \"redis\" or \"valkey\", got %q", c.Database.Driver)
	}
	if math.IsNaN(c.Clustering.Cutoff) || math.IsInf(c.Clustering.Cutoff, 0) || c.Clustering.Cutoff < 0 {
		return fmt.Errorf("clustering.cutoff must be a finite non-negative number, got %v", c.Clustering.Cutoff)
	}
	switch c.Clustering.Metric {
	case "cosine", "euclidean":
	default:
		return fmt.Errorf("clustering.metric must be \"cosine\" or \"euclidean\", got %q", c.Clustering.Metric)
	}
	switch c.Detection.Provider {
	case "heuristic":
	case "openai":
		if c.Detection.APIKey == "" {
			return fmt.Errorf("detection.api_key is required for provider \"openai\"")
		}
	default:
		return fmt.Errorf("detection.provider must be \"heuristic\" or \"openai\", got %q", c.Detection.Provider)
	}
	switch c.Embedding.Provider {
	case "tfidf":
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for provider \"openai\"")
		}
	default:
		return fmt.Errorf("embedding.provider must be \"tfidf\" or \"openai\", got %q", c.Embedding.Provider)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

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
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
