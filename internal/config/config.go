// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.nutriqa/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: provider, generation model, embedder model, temperature
//   - Chunking: chunk size, overlap, tokenizer encoding
//   - Retrieval: top-k, score threshold, minimum passage count
//   - Storage: PostgreSQL connection (see storage.go)
//   - Observability: OTLP trace export (see observability.go)
//
// Security: Sensitive data (passwords, API keys) are never logged; config
// directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidDimension indicates the embedding dimension is invalid.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidRetrieval indicates retrieval policy values are out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval parameters")

	// ErrInvalidIndexName indicates the index name is empty or malformed.
	ErrInvalidIndexName = errors.New("invalid index name")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	// DefaultEmbedderModel is the default OpenAI embedding model.
	// text-embedding-3-small outputs 1536 dimensions, which matches the
	// vector column width created by EnsureIndex.
	DefaultEmbedderModel = "text-embedding-3-small"

	// DefaultGenerationModel is the default model for rewriting and answering.
	DefaultGenerationModel = "gpt-4o"

	// DefaultEmbeddingDimension is the process-wide embedding width.
	// Swapping to an embedder with a different output width requires a
	// full index rebuild.
	DefaultEmbeddingDimension = 1536

	// DefaultTemperature biases generation toward literal, consistent output
	// for both question rewriting and grounded answering.
	DefaultTemperature float32 = 0.3

	// DefaultIndexName is the vector index the corpus is ingested into.
	DefaultIndexName = "diabetes-nutrition"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"`             // "openai" (default), "gemini"
	ModelName     string  `mapstructure:"model_name" json:"model_name"`         // generation model ("gpt-4o", "gemini-2.5-flash")
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"` // embedding model
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`

	// Embedding dimension. Must match the width the embedder model returns
	// and the vector column of an existing index.
	EmbeddingDimension int `mapstructure:"embedding_dimension" json:"embedding_dimension"`

	// Corpus and index configuration
	DataDir   string `mapstructure:"data_dir" json:"data_dir"`
	IndexName string `mapstructure:"index_name" json:"index_name"`

	// Chunking configuration. Size and overlap are measured in tokens of
	// TokenEncoding so chunk boundaries align with how the models consume text.
	ChunkSize     int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap  int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	TokenEncoding string `mapstructure:"token_encoding" json:"token_encoding"`

	// Retrieval policy
	TopK           int     `mapstructure:"top_k" json:"top_k"`
	ScoreThreshold float32 `mapstructure:"score_threshold" json:"score_threshold"`
	MinPassages    int     `mapstructure:"min_passages" json:"min_passages"`
	RewriteEnabled bool    `mapstructure:"rewrite_enabled" json:"rewrite_enabled"`

	// Ingestion configuration
	IngestWorkers int `mapstructure:"ingest_workers" json:"ingest_workers"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Observability configuration (see observability.go)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// SlogLevel maps LogLevel to its slog value. Unknown values fall back to
// info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// QualifiedModelName returns the generation model name prefixed with its
// Genkit provider, the form genkit.Generate expects.
func (c *Config) QualifiedModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderGemini:
		return "googleai/" + c.ModelName
	default:
		return "openai/" + c.ModelName
	}
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".nutriqa")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderOpenAI)
	viper.SetDefault("model_name", DefaultGenerationModel)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("temperature", DefaultTemperature)
	viper.SetDefault("embedding_dimension", DefaultEmbeddingDimension)

	// Corpus defaults
	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("index_name", DefaultIndexName)

	// Chunking defaults: 500-token chunks with 25% overlap so information
	// spanning a chunk boundary remains retrievable from at least one chunk.
	viper.SetDefault("chunk_size", 500)
	viper.SetDefault("chunk_overlap", 125)
	viper.SetDefault("token_encoding", "o200k_base")

	// Retrieval defaults
	viper.SetDefault("top_k", 5)
	viper.SetDefault("score_threshold", 0.7)
	viper.SetDefault("min_passages", 2)
	viper.SetDefault("rewrite_enabled", true)

	// Ingestion defaults
	viper.SetDefault("ingest_workers", 2)

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)

	// PostgreSQL defaults for local development
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "nutriqa")
	viper.SetDefault("postgres_password", "nutriqa_dev_password")
	viper.SetDefault("postgres_db_name", "nutriqa")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.agent_host", "localhost:4318")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "nutriqa")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets are env-only; they never come from the config file.
func bindEnvVariables() {
	viper.SetEnvPrefix("NUTRIQA")
	viper.AutomaticEnv()

	// Non-prefixed aliases for common deployment variables
	_ = viper.BindEnv("postgres_password", "NUTRIQA_POSTGRES_PASSWORD", "POSTGRES_PASSWORD")
	_ = viper.BindEnv("data_dir", "NUTRIQA_DATA_DIR")
	_ = viper.BindEnv("index_name", "NUTRIQA_INDEX_NAME")
}

// OpenAIAPIKey returns the OpenAI API key from the environment.
// API keys are deliberately not part of the config struct so they can
// never leak through config file round-trips or JSON marshaling.
func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// GeminiAPIKey returns the Gemini API key from the environment.
func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// MarshalJSON masks sensitive fields when serializing the configuration.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // Avoid infinite recursion
	masked := alias(*c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "********"
	}
	return json.Marshal(masked)
}
