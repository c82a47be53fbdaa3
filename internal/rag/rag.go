// Package rag answers questions over the ingested knowledge base.
//
// The query path runs in four stages: an optional model-backed query
// rewrite, embedding plus vector search, context assembly under the
// relevance policy, and grounded answer generation. Every stage except the
// rewrite propagates its errors; the rewrite fails open so a flaky model
// never blocks retrieval.
package rag

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nutriqa/nutriqa/internal/vectorstore"
)

// ErrGenerationService indicates the answer model call failed.
var ErrGenerationService = errors.New("answer generation failed")

// Embedder converts a query into its embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher serves similarity queries over an index.
type Searcher interface {
	Query(ctx context.Context, index string, embedding []float32, topK int) ([]vectorstore.Match, error)
}

// Passage is one retrieved chunk selected for the answer context.
type Passage struct {
	Rank   int // zero-based retrieval rank
	ID     string
	Source string
	Score  float64
	Text   string
}

// Answer is the full result of one query, retrieval details included.
type Answer struct {
	Question    string
	Rewritten   string // query sent to retrieval; equals Question when no rewrite applied
	Explanation string // rewrite rationale; empty when no rewrite applied
	Passages    []Passage
	Text        string
}

// Options configures a Pipeline.
type Options struct {
	Index          string
	TopK           int
	ScoreThreshold float64
	MinPassages    int
	RewriteEnabled bool
}

// Pipeline wires the retrieval stages into a single Ask operation.
type Pipeline struct {
	rewriter  *Rewriter
	retriever *Retriever
	generator *Generator
	opts      Options
	logger    *slog.Logger
}

// NewPipeline assembles the query path. rewriter may be nil when rewriting
// is disabled.
func NewPipeline(rewriter *Rewriter, retriever *Retriever, generator *Generator, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		rewriter:  rewriter,
		retriever: retriever,
		generator: generator,
		opts:      opts,
		logger:    logger,
	}
}

// Ask answers question from the knowledge base.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Answer, error) {
	query := question
	var explanation string
	if p.opts.RewriteEnabled && p.rewriter != nil {
		query, explanation = p.rewriter.Rewrite(ctx, question)
	}

	matches, err := p.retriever.Retrieve(ctx, p.opts.Index, query, p.opts.TopK)
	if err != nil {
		return nil, err
	}

	passages := SelectPassages(matches, p.opts.MinPassages, p.opts.ScoreThreshold)
	p.logger.Debug("assembled context",
		"retrieved", len(matches),
		"selected", len(passages),
		"threshold", p.opts.ScoreThreshold)

	text, err := p.generator.Generate(ctx, question, passages)
	if err != nil {
		return nil, err
	}

	return &Answer{
		Question:    question,
		Rewritten:   query,
		Explanation: explanation,
		Passages:    passages,
		Text:        text,
	}, nil
}
