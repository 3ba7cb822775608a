// Package config loads depscan settings from defaults, an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName = ".depscan"
	configType = "yaml"
	envPrefix  = "DEPSCAN"
)

// Default configuration values.
const (
	DefaultQdrantURL      = "localhost:6334"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultWorkers        = 4
	DefaultCacheSize      = 1024
	DefaultMaxFileSize    = 2 << 20
	DefaultBatchSize      = 64
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultOutputFormat   = "table"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers     = errors.New("scan workers must be positive")
	ErrInvalidCacheSize   = errors.New("scan cache size must be positive")
	ErrInvalidMaxFileSize = errors.New("scan max file size must be positive")
	ErrInvalidBatchSize   = errors.New("index batch size must be positive")
	ErrInvalidOutput      = errors.New("output format must be one of json, yaml, table")
)

// Config holds all depscan settings.
type Config struct {
	Qdrant     QdrantConfig     `mapstructure:"qdrant"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Index      IndexConfig      `mapstructure:"index"`
	Log        LogConfig        `mapstructure:"log"`
	Output     string           `mapstructure:"output"`
}

// QdrantConfig locates the vector store.
type QdrantConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// EmbeddingsConfig selects the embedding endpoint and model.
type EmbeddingsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// ScanConfig controls file discovery and extraction.
type ScanConfig struct {
	Exclude     []string `mapstructure:"exclude"`
	Workers     int      `mapstructure:"workers"`
	CacheSize   int      `mapstructure:"cache_size"`
	MaxFileSize int64    `mapstructure:"max_file_size"`
}

// IndexConfig controls vector indexing.
type IndexConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. If path is empty, .depscan.yaml is looked up in
// the working directory and then $HOME; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Scan.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Scan.CacheSize <= 0 {
		return ErrInvalidCacheSize
	}
	if c.Scan.MaxFileSize <= 0 {
		return ErrInvalidMaxFileSize
	}
	if c.Index.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	switch c.Output {
	case "json", "yaml", "table":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOutput, c.Output)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("qdrant.url", DefaultQdrantURL)
	v.SetDefault("qdrant.api_key", "")
	v.SetDefault("embeddings.api_key", "")
	v.SetDefault("embeddings.base_url", "")
	v.SetDefault("embeddings.model", DefaultEmbeddingModel)
	v.SetDefault("scan.exclude", []string{})
	v.SetDefault("scan.workers", DefaultWorkers)
	v.SetDefault("scan.cache_size", DefaultCacheSize)
	v.SetDefault("scan.max_file_size", DefaultMaxFileSize)
	v.SetDefault("index.batch_size", DefaultBatchSize)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("output", DefaultOutputFormat)
}

// bindLegacyEnv keeps the unprefixed variable names working. The prefixed
// name wins when both are set.
func bindLegacyEnv(v *viper.Viper) error {
	legacy := map[string][]string{
		"qdrant.url":          {"DEPSCAN_QDRANT_URL", "QDRANT_URL"},
		"qdrant.api_key":      {"DEPSCAN_QDRANT_API_KEY", "QDRANT_API_KEY", "QDRANT_API_TOKEN", "QDRANT_AUTH_TOKEN"},
		"embeddings.api_key":  {"DEPSCAN_EMBEDDINGS_API_KEY", "OPENAI_API_KEY"},
		"embeddings.base_url": {"DEPSCAN_EMBEDDINGS_BASE_URL", "OPENAI_BASE_URL"},
		"embeddings.model":    {"DEPSCAN_EMBEDDINGS_MODEL", "OPENAI_EMBEDDING_MODEL"},
	}
	for key, envs := range legacy {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
