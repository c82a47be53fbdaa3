package rag

import (
	"context"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

const rewriteSystemPrompt = `You improve user questions for document retrieval. ` +
	`Rewrite the question to correct grammar and spelling, add relevant diabetes ` +
	`and nutrition terminology, and make it more specific, while preserving the ` +
	`original intent. Respond with the rewritten question on the first line, ` +
	`followed by a one-sentence explanation of your changes on the next line.`

// Rewriter reformulates raw user questions before retrieval. It is an
// accuracy enhancement, never a hard dependency: on any failure the raw
// question is returned unchanged.
type Rewriter struct {
	g           *genkit.Genkit
	modelName   string
	temperature float64
	logger      *slog.Logger
}

// NewRewriter creates a Rewriter generating at the given temperature.
func NewRewriter(g *genkit.Genkit, modelName string, temperature float64, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{
		g:           g,
		modelName:   modelName,
		temperature: temperature,
		logger:      logger,
	}
}

// Rewrite returns an improved version of question together with the model's
// explanation of its changes. On any failure the raw question comes back
// unchanged with an empty explanation.
func (r *Rewriter) Rewrite(ctx context.Context, question string) (rewritten, explanation string) {
	resp, err := genkit.Generate(ctx, r.g,
		ai.WithModelName(r.modelName),
		ai.WithSystem(rewriteSystemPrompt),
		ai.WithPrompt(question),
		ai.WithConfig(map[string]any{"temperature": r.temperature}),
	)
	if err != nil {
		r.logger.Warn("query rewrite failed, using raw question", "error", err)
		return question, ""
	}

	rewritten, explanation = parseRewriteReply(resp.Text())
	if rewritten == "" {
		r.logger.Warn("query rewrite returned empty text, using raw question")
		return question, ""
	}

	r.logger.Debug("rewrote query",
		"original", question,
		"rewritten", rewritten,
		"explanation", explanation)
	return rewritten, explanation
}

// parseRewriteReply splits a model reply into the rewritten question (first
// non-empty line) and the explanation (remaining text). Models that ignore
// the two-line instruction yield an empty explanation.
func parseRewriteReply(reply string) (rewritten, explanation string) {
	rewritten, explanation, found := strings.Cut(strings.TrimSpace(reply), "\n")
	rewritten = strings.TrimSpace(rewritten)
	if !found {
		return rewritten, ""
	}
	return rewritten, strings.TrimSpace(explanation)
}
