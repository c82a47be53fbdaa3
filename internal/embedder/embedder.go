// Package embedder converts text into fixed-dimension dense vectors through
// a Genkit ai.Embedder.
//
// The client owns the cross-cutting concerns around the embedding service:
// proactive rate limiting, bounded retry with exponential backoff for
// transient failures, and enforcement of the process-wide vector dimension.
// A response of the wrong dimension is a configuration error, never retried.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

var (
	// ErrEmbeddingService indicates a transport, auth, or rate-limit failure
	// from the embedding service after retries were exhausted.
	ErrEmbeddingService = errors.New("embedding service failed")

	// ErrDimensionMismatch indicates the service returned a vector of the
	// wrong width. This is a fatal configuration error: the embedder model
	// and the vector index no longer agree, and the index must be rebuilt.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// RetryConfig configures the retry behavior for embedding calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for embedding API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Client wraps a Genkit embedder with rate limiting, retry, and
// dimension enforcement. Safe for concurrent use.
type Client struct {
	embedder  ai.Embedder
	dimension int
	limiter   *rate.Limiter
	retry     RetryConfig
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit sets the request rate limit (requests per second and burst).
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// New creates a Client around embedder enforcing the given output dimension.
func New(embedder ai.Embedder, dimension int, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		embedder:  embedder,
		dimension: dimension,
		limiter:   rate.NewLimiter(10, 30),
		retry:     DefaultRetryConfig(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dimension returns the enforced output vector width.
func (c *Client) Dimension() int {
	return c.dimension
}

// Embed converts one text into its embedding vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts a batch of texts into embedding vectors, one per input
// in input order. The whole batch is sent in a single service call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := make([]*ai.Document, len(texts))
	for i, text := range texts {
		input[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := c.embedWithRetry(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d embeddings, got %d",
			ErrEmbeddingService, len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) != c.dimension {
			return nil, fmt.Errorf("%w: expected %d, got %d (rebuild the index after changing embedder)",
				ErrDimensionMismatch, c.dimension, len(emb.Embedding))
		}
		vectors[i] = emb.Embedding
	}

	return vectors, nil
}

// embedWithRetry executes the embed request with rate limiting and
// exponential backoff for transient failures.
func (c *Client) embedWithRetry(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		// Rate limit each attempt, including retries
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: rate limit wait: %v", ErrEmbeddingService, err)
			}
		}

		resp, err := c.embedder.Embed(ctx, req)
		if err == nil {
			c.logger.Debug("embed request succeeded",
				"inputs", len(req.Input),
				"attempts", attempt+1,
				"elapsed", time.Since(start))
			return resp, nil
		}

		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
		}

		if attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying embed request",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: context canceled during retry: %v", ErrEmbeddingService, ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("%w: after %d retries (elapsed %v): %v",
		ErrEmbeddingService, c.retry.MaxRetries, time.Since(start), lastErr)
}

// retryablePatterns groups error substrings by category.
// Matched case-insensitively against err.Error().
//
// NOTE: This uses string matching because Genkit and provider SDKs do not
// expose typed errors for transient failures. Re-evaluate if Genkit adds
// structured error types in a future version.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, pattern := range group {
			if strings.Contains(errStr, pattern) {
				return true
			}
		}
	}
	return false
}
