package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

const answerSystemPrompt = `You are a helpful assistant that answers questions ` +
	`about diabetes and nutrition based only on the provided context. You provide ` +
	`accurate, evidence-based information and clearly indicate when information is ` +
	`not available in the provided context.`

const answerPromptTemplate = `Answer the following question based ONLY on the provided context. If the answer cannot be determined from the context, say "I don't have enough information to answer this question based on the available documents."

Context:
%s

Question: %s`

// NoInformationAnswer is returned when retrieval selected no passages at
// all. The model is not consulted in that case, so an empty knowledge base
// can never produce a fabricated answer.
const NoInformationAnswer = "No relevant information was found in the available documents for this question."

// Generator produces grounded answers from assembled context.
type Generator struct {
	g           *genkit.Genkit
	modelName   string
	temperature float64
	logger      *slog.Logger
}

// NewGenerator creates a Generator answering at the given temperature.
func NewGenerator(g *genkit.Genkit, modelName string, temperature float64, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		g:           g,
		modelName:   modelName,
		temperature: temperature,
		logger:      logger,
	}
}

// Generate answers question from the given passages. An empty passage list
// short-circuits to NoInformationAnswer without a model call.
func (g *Generator) Generate(ctx context.Context, question string, passages []Passage) (string, error) {
	if len(passages) == 0 {
		g.logger.Debug("no passages selected, skipping model call")
		return NoInformationAnswer, nil
	}

	prompt := fmt.Sprintf(answerPromptTemplate, FormatContext(passages), question)

	resp, err := genkit.Generate(ctx, g.g,
		ai.WithModelName(g.modelName),
		ai.WithSystem(answerSystemPrompt),
		ai.WithPrompt(prompt),
		ai.WithConfig(map[string]any{"temperature": g.temperature}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationService, err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", fmt.Errorf("%w: model returned empty response", ErrGenerationService)
	}

	return answer, nil
}

// Sources returns the distinct source documents behind passages, in first
// appearance order.
func Sources(passages []Passage) []string {
	seen := make(map[string]struct{}, len(passages))
	var sources []string
	for _, p := range passages {
		if _, ok := seen[p.Source]; ok {
			continue
		}
		seen[p.Source] = struct{}{}
		sources = append(sources, p.Source)
	}
	return sources
}
