package config

import (
	"fmt"
	"regexp"
	"slices"
)

// indexNamePattern matches valid vector index names: lowercase alphanumerics
// and hyphens, starting with a letter. The name becomes part of a table
// identifier, so it is validated strictly.
var indexNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and API key validation (required for all AI operations)
	switch c.Provider {
	case ProviderOpenAI:
		if OpenAIAPIKey() == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderGemini:
		if GeminiAPIKey() == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("%w: %q, must be one of: openai, gemini", ErrInvalidProvider, c.Provider)
	}

	// 2. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidDimension, c.EmbeddingDimension)
	}

	// 3. Chunking validation. Overlap must leave room for the window to
	// advance, otherwise chunking would never terminate.
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}
	if c.TokenEncoding == "" {
		return fmt.Errorf("%w: token_encoding cannot be empty", ErrInvalidChunking)
	}

	// 4. Retrieval policy validation
	if c.TopK <= 0 || c.TopK > 50 {
		return fmt.Errorf("%w: top_k must be between 1 and 50, got %d", ErrInvalidRetrieval, c.TopK)
	}
	if c.ScoreThreshold < -1.0 || c.ScoreThreshold > 1.0 {
		return fmt.Errorf("%w: score_threshold must be a cosine similarity in [-1, 1], got %.2f",
			ErrInvalidRetrieval, c.ScoreThreshold)
	}
	if c.MinPassages < 0 || c.MinPassages > c.TopK {
		return fmt.Errorf("%w: min_passages must be in [0, top_k], got %d with top_k %d",
			ErrInvalidRetrieval, c.MinPassages, c.TopK)
	}

	if c.IngestWorkers <= 0 || c.IngestWorkers > 32 {
		return fmt.Errorf("%w: ingest_workers must be between 1 and 32, got %d",
			ErrInvalidRetrieval, c.IngestWorkers)
	}

	// 5. Index name validation (becomes part of a table identifier)
	if !indexNamePattern.MatchString(c.IndexName) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidIndexName, c.IndexName, indexNamePattern)
	}

	// 6. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
