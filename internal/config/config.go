// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (GDDSEARCH_ prefix)
//  2. Config file (~/.gddsearch/config.yaml)
//  3. Default values
//
// Validation uses sentinel errors for errors.Is checks; a deployment
// without any AI provider configured fails fast at startup.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the generation model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidChunkSize indicates the chunk size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidOverlapRatio indicates the overlap ratio is out of range.
	ErrInvalidOverlapRatio = errors.New("invalid overlap ratio")

	// ErrInvalidMatchLimit indicates the search match limit is out of range.
	ErrInvalidMatchLimit = errors.New("invalid match limit")

	// ErrInvalidParallelism indicates the ingest parallelism is out of range.
	ErrInvalidParallelism = errors.New("invalid ingest parallelism")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidMergeStrategy indicates the retrieval merge strategy is unknown.
	ErrInvalidMergeStrategy = errors.New("invalid merge strategy")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Retrieval merge strategy identifiers used in Config.MergeStrategy.
const (
	MergeUnion        = "union"
	MergeLexicalFirst = "lexical-first"
)

const (
	// DefaultChunkSize is the target chunk size in tokens.
	DefaultChunkSize = 500

	// DefaultOverlapRatio is the overlap between consecutive sub-chunks
	// as a fraction of the chunk size.
	DefaultOverlapRatio = 0.15

	// DefaultMatchLimit is the default number of search results.
	DefaultMatchLimit = 10

	// DefaultIngestParallelism bounds concurrent document ingestion.
	DefaultIngestParallelism = 4

	// MaxChunkSize guards against pathological chunk configuration.
	MaxChunkSize = 4000
)

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`             // "gemini" (default), "ollama", "openai"
	ModelName     string `mapstructure:"model_name" json:"model_name"`         // generation model (HYDE, deep search)
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"` // embedding model
	OllamaHost    string `mapstructure:"ollama_host" json:"ollama_host"`

	// Chunking
	ChunkSize    int     `mapstructure:"chunk_size" json:"chunk_size"`
	OverlapRatio float64 `mapstructure:"overlap_ratio" json:"overlap_ratio"`

	// Retrieval
	MatchLimit    int    `mapstructure:"match_limit" json:"match_limit"`
	MergeStrategy string `mapstructure:"merge_strategy" json:"merge_strategy"`
	HydeEnabled   bool   `mapstructure:"hyde_enabled" json:"hyde_enabled"`

	// Ingestion
	IngestParallelism int `mapstructure:"ingest_parallelism" json:"ingest_parallelism"`

	// PostgreSQL connection
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDBName   string `mapstructure:"postgres_dbname" json:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgres_sslmode"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load reads configuration from defaults, the optional config file and
// environment variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("GDDSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir, err := configDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			// Missing config file is fine; defaults + env apply.
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("overlap_ratio", DefaultOverlapRatio)

	v.SetDefault("match_limit", DefaultMatchLimit)
	v.SetDefault("merge_strategy", MergeUnion)
	v.SetDefault("hyde_enabled", false)

	v.SetDefault("ingest_parallelism", DefaultIngestParallelism)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "gddsearch")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "gddsearch")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// configDir returns ~/.gddsearch, creating it if necessary.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".gddsearch")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// ConnString builds the PostgreSQL connection URL.
// The password is URL-escaped; it must never appear in logs.
func (c *Config) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   c.PostgresDBName,
	}
	if c.PostgresUser != "" {
		if c.PostgresPassword != "" {
			u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
		} else {
			u.User = url.User(c.PostgresUser)
		}
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3",
// "openai/gpt-4o". A ModelName already containing "/" is returned
// as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return "googleai/" + c.ModelName
	}
}
