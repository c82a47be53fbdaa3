package embedder

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"

	"github.com/nutriqa/nutriqa/internal/log"
	"github.com/nutriqa/nutriqa/internal/testutil"
)

// stubEmbedder is a configurable ai.Embedder for testing.
type stubEmbedder struct {
	dimension int
	calls     int
	failFirst int   // first N calls return failErr
	failErr   error // error returned for failing calls
}

func (s *stubEmbedder) Name() string {
	return "stub-embedder"
}

func (s *stubEmbedder) Register(_ api.Registry) {
	// No-op for testing
}

func (s *stubEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	s.calls++
	if s.calls <= s.failFirst {
		return nil, s.failErr
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i := range req.Input {
		vec := make([]float32, s.dimension)
		for j := range vec {
			vec[j] = float32(i + j)
		}
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestEmbedBatch(t *testing.T) {
	stub := &stubEmbedder{dimension: 4}
	client := New(stub, 4, log.NewNop())

	vectors, err := client.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}

	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != 4 {
			t.Errorf("vector %d: expected dimension 4, got %d", i, len(vec))
		}
	}
	if stub.calls != 1 {
		t.Errorf("expected a single service call for the batch, got %d", stub.calls)
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	stub := &stubEmbedder{dimension: 4}
	client := New(stub, 4, log.NewNop())

	vectors, err := client.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
	if stub.calls != 0 {
		t.Errorf("expected no service calls for empty input, got %d", stub.calls)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	// Service returns 3-wide vectors but the client enforces 1536
	stub := &stubEmbedder{dimension: 3}
	client := New(stub, 1536, log.NewNop(), WithRetryConfig(fastRetry()))

	_, err := client.Embed(context.Background(), "test")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("dimension mismatch must not be retried, got %d calls", stub.calls)
	}
}

func TestEmbed_RetriesTransientFailure(t *testing.T) {
	stub := &stubEmbedder{
		dimension: 4,
		failFirst: 2,
		failErr:   errors.New("429 rate limit exceeded"),
	}
	client := New(stub, 4, log.NewNop(), WithRetryConfig(fastRetry()))

	vec, err := client.Embed(context.Background(), "test")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("expected dimension 4, got %d", len(vec))
	}
	if stub.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", stub.calls)
	}
}

func TestEmbed_ExhaustsRetries(t *testing.T) {
	stub := &stubEmbedder{
		dimension: 4,
		failFirst: 10,
		failErr:   errors.New("503 service unavailable"),
	}
	client := New(stub, 4, log.NewNop(), WithRetryConfig(fastRetry()))

	_, err := client.Embed(context.Background(), "test")
	if !errors.Is(err, ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
	if stub.calls != 3 {
		t.Errorf("expected 3 calls (initial + 2 retries), got %d", stub.calls)
	}
}

func TestEmbed_NonRetryableFailsFast(t *testing.T) {
	stub := &stubEmbedder{
		dimension: 4,
		failFirst: 10,
		failErr:   errors.New("401 invalid api key"),
	}
	client := New(stub, 4, log.NewNop(), WithRetryConfig(fastRetry()))

	_, err := client.Embed(context.Background(), "test")
	if !errors.Is(err, ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("non-retryable error must fail fast, got %d calls", stub.calls)
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("Rate Limit exceeded"), true},
		{"http 429", errors.New("request failed with status 429"), true},
		{"server error", errors.New("502 bad gateway"), true},
		{"timeout", errors.New("dial tcp: i/o timeout"), true},
		{"auth error", errors.New("invalid api key"), false},
		{"bad request", errors.New("400 bad request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestClientWithGenkitEmbedder runs the client against an embedder registered
// through Genkit, the same path production wiring uses.
func TestClientWithGenkitEmbedder(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := testutil.NewMockEmbedder(4)
	mock.SetVector("pinned question", []float32{1, 0, 0, 0})

	registered := mock.RegisterEmbedder(g)
	client := New(registered, 4, log.NewNop())

	t.Run("pinned vector round trips", func(t *testing.T) {
		vec, err := client.Embed(ctx, "pinned question")
		if err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
		want := []float32{1, 0, 0, 0}
		for i := range want {
			if vec[i] != want[i] {
				t.Fatalf("component %d = %v, want %v", i, vec[i], want[i])
			}
		}
	})

	t.Run("unpinned vectors are deterministic unit vectors", func(t *testing.T) {
		first, err := client.Embed(ctx, "dietary fiber")
		if err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
		second, err := client.Embed(ctx, "dietary fiber")
		if err != nil {
			t.Fatalf("Embed failed: %v", err)
		}

		var norm float64
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("component %d differs across calls: %v vs %v", i, first[i], second[i])
			}
			norm += float64(first[i]) * float64(first[i])
		}
		if math.Abs(norm-1) > 1e-4 {
			t.Errorf("squared norm = %v, want 1", norm)
		}
	})

	t.Run("batch preserves order", func(t *testing.T) {
		vectors, err := client.EmbedBatch(ctx, []string{"pinned question", "dietary fiber"})
		if err != nil {
			t.Fatalf("EmbedBatch failed: %v", err)
		}
		if len(vectors) != 2 {
			t.Fatalf("expected 2 vectors, got %d", len(vectors))
		}
		if vectors[0][0] != 1 || vectors[0][1] != 0 {
			t.Errorf("first vector is not the pinned one: %v", vectors[0])
		}
	})

	t.Run("dimension mismatch detected", func(t *testing.T) {
		narrow := New(registered, 8, log.NewNop())
		_, err := narrow.Embed(ctx, "any text")
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Fatalf("expected ErrDimensionMismatch, got %v", err)
		}
	})
}
