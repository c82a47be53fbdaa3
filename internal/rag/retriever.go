package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nutriqa/nutriqa/internal/vectorstore"
)

// Retriever embeds a query and searches the vector store for similar chunks.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	logger   *slog.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder Embedder, searcher Searcher, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, searcher: searcher, logger: logger}
}

// Retrieve returns the topK chunks most similar to query, ordered by
// descending similarity.
func (r *Retriever) Retrieve(ctx context.Context, index, query string, topK int) ([]vectorstore.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.searcher.Query(ctx, index, embedding, topK)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("retrieved chunks", "index", index, "requested", topK, "returned", len(matches))
	return matches, nil
}

// SelectPassages applies the relevance policy to ranked matches. The first
// minPassages matches are always included so the model has something to work
// with even on weak retrievals; each later match is included only when its
// score meets threshold, judged independently of its neighbors.
func SelectPassages(matches []vectorstore.Match, minPassages int, threshold float64) []Passage {
	passages := make([]Passage, 0, len(matches))
	for rank, m := range matches {
		if rank >= minPassages && m.Score < threshold {
			continue
		}
		passages = append(passages, Passage{
			Rank:   rank,
			ID:     m.ID,
			Source: m.Source,
			Score:  m.Score,
			Text:   m.Text,
		})
	}
	return passages
}

// FormatContext renders passages as a numbered context block. Numbers
// continue the retrieval ranking so citations in the answer stay traceable
// to retrieval order.
func FormatContext(passages []Passage) string {
	if len(passages) == 0 {
		return ""
	}
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = fmt.Sprintf("[%d] %s", p.Rank+1, p.Text)
	}
	return strings.Join(parts, "\n\n")
}
