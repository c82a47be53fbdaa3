package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/nutriqa/nutriqa/internal/log"
	"github.com/nutriqa/nutriqa/internal/testutil"
	"github.com/nutriqa/nutriqa/internal/vectorstore"
)

func matchesWithScores(scores []float64) []vectorstore.Match {
	matches := make([]vectorstore.Match, len(scores))
	for i, score := range scores {
		matches[i] = vectorstore.Match{
			ID:       fmt.Sprintf("doc.pdf-%d", i),
			Source:   "doc.pdf",
			Position: i,
			Text:     fmt.Sprintf("passage %d", i),
			Score:    score,
		}
	}
	return matches
}

func TestSelectPassages(t *testing.T) {
	tests := []struct {
		name      string
		scores    []float64
		wantRanks []int
	}{
		{
			name:      "weak tail dropped",
			scores:    []float64{0.95, 0.85, 0.60, 0.40},
			wantRanks: []int{0, 1},
		},
		{
			name:      "strong third kept",
			scores:    []float64{0.95, 0.85, 0.75, 0.30},
			wantRanks: []int{0, 1, 2},
		},
		{
			name:      "top two kept despite weak scores",
			scores:    []float64{0.50, 0.40, 0.30},
			wantRanks: []int{0, 1},
		},
		{
			name:      "gap does not exclude later strong match",
			scores:    []float64{0.95, 0.85, 0.60, 0.75},
			wantRanks: []int{0, 1, 3},
		},
		{
			name:      "exactly at threshold included",
			scores:    []float64{0.95, 0.85, 0.70},
			wantRanks: []int{0, 1, 2},
		},
		{
			name:      "fewer matches than minimum",
			scores:    []float64{0.20},
			wantRanks: []int{0},
		},
		{
			name:      "empty",
			scores:    nil,
			wantRanks: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passages := SelectPassages(matchesWithScores(tt.scores), 2, 0.7)

			if len(passages) != len(tt.wantRanks) {
				t.Fatalf("expected %d passages, got %d", len(tt.wantRanks), len(passages))
			}
			for i, rank := range tt.wantRanks {
				if passages[i].Rank != rank {
					t.Errorf("passage %d: expected rank %d, got %d", i, rank, passages[i].Rank)
				}
			}
		})
	}
}

func TestFormatContext(t *testing.T) {
	passages := SelectPassages(matchesWithScores([]float64{0.95, 0.85, 0.60, 0.75}), 2, 0.7)
	got := FormatContext(passages)

	want := "[1] passage 0\n\n[2] passage 1\n\n[4] passage 3"
	if got != want {
		t.Errorf("FormatContext:\ngot  %q\nwant %q", got, want)
	}
}

func TestFormatContext_Empty(t *testing.T) {
	if got := FormatContext(nil); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
}

func TestSources(t *testing.T) {
	passages := []Passage{
		{Source: "a.pdf"},
		{Source: "b.pdf"},
		{Source: "a.pdf"},
	}
	got := Sources(passages)
	want := []string{"a.pdf", "b.pdf"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("source %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

// fixedEmbedder returns the same vector for every input.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

// cannedSearcher returns preset matches and records the incoming query
// embedding count.
type cannedSearcher struct {
	matches []vectorstore.Match
	err     error
	queries int
}

func (s *cannedSearcher) Query(_ context.Context, _ string, _ []float32, _ int) ([]vectorstore.Match, error) {
	s.queries++
	if s.err != nil {
		return nil, s.err
	}
	return s.matches, nil
}

// recordingEmbedder captures the query text that reached retrieval.
type recordingEmbedder struct {
	queries []string
}

func (e *recordingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.queries = append(e.queries, text)
	return []float32{1, 0, 0, 0}, nil
}

func newTestPipeline(t *testing.T, llm *testutil.MockLLM, embedder Embedder, searcher Searcher, rewrite bool) *Pipeline {
	t.Helper()
	g := genkit.Init(context.Background())
	llm.RegisterModel(g)

	logger := log.NewNop()
	return NewPipeline(
		NewRewriter(g, "mock/test-model", 0.3, logger),
		NewRetriever(embedder, searcher, logger),
		NewGenerator(g, "mock/test-model", 0.3, logger),
		Options{Index: "test-index", TopK: 5, ScoreThreshold: 0.7, MinPassages: 2, RewriteEnabled: rewrite},
		logger,
	)
}

func TestAsk(t *testing.T) {
	llm := testutil.NewMockLLM("fallback")
	// The answer prompt always carries a Context block; match it first so
	// the rewrite pattern only fires on the bare question
	llm.AddResponse("context:", "grounded answer from context")
	llm.AddResponse("glycemic",
		"what is the glycemic index of white rice\nFixed grammar and named the specific food.")

	searcher := &cannedSearcher{matches: matchesWithScores([]float64{0.95, 0.85})}
	p := newTestPipeline(t, llm, fixedEmbedder{}, searcher, true)

	answer, err := p.Ask(context.Background(), "whats glycemic index rice?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if answer.Text != "grounded answer from context" {
		t.Errorf("unexpected answer: %q", answer.Text)
	}
	if answer.Rewritten != "what is the glycemic index of white rice" {
		t.Errorf("expected rewritten query, got %q", answer.Rewritten)
	}
	if answer.Explanation != "Fixed grammar and named the specific food." {
		t.Errorf("expected rewrite explanation, got %q", answer.Explanation)
	}
	if len(answer.Passages) != 2 {
		t.Errorf("expected 2 passages, got %d", len(answer.Passages))
	}

	// The answer prompt must carry the assembled context
	calls := llm.Calls()
	last := calls[len(calls)-1]
	if !strings.Contains(last.UserMessage, "[1] passage 0") {
		t.Errorf("answer prompt missing context: %q", last.UserMessage)
	}
	if !strings.Contains(last.UserMessage, answer.Question) {
		t.Errorf("answer prompt missing question: %q", last.UserMessage)
	}
}

func TestAsk_RewriteFailsOpen(t *testing.T) {
	llm := testutil.NewMockLLM("answer")
	llm.FailWith(errors.New("model unavailable"))

	embedder := &recordingEmbedder{}
	searcher := &cannedSearcher{matches: nil}
	p := newTestPipeline(t, llm, embedder, searcher, true)

	const question = "raw user question"
	answer, err := p.Ask(context.Background(), question)
	if err != nil {
		t.Fatalf("Ask must survive rewrite failure: %v", err)
	}

	// The raw question must reach retrieval unchanged
	if len(embedder.queries) != 1 || embedder.queries[0] != question {
		t.Errorf("expected raw question to reach retrieval, got %v", embedder.queries)
	}
	if answer.Rewritten != question {
		t.Errorf("expected Rewritten to fall back to the raw question, got %q", answer.Rewritten)
	}
	if answer.Explanation != "" {
		t.Errorf("expected empty explanation on fallback, got %q", answer.Explanation)
	}
}

func TestParseRewriteReply(t *testing.T) {
	tests := []struct {
		name            string
		reply           string
		wantRewritten   string
		wantExplanation string
	}{
		{
			name:            "two lines",
			reply:           "what is the glycemic index of rice?\nFixed spelling.",
			wantRewritten:   "what is the glycemic index of rice?",
			wantExplanation: "Fixed spelling.",
		},
		{
			name:          "single line",
			reply:         "what is the glycemic index of rice?",
			wantRewritten: "what is the glycemic index of rice?",
		},
		{
			name:            "surrounding whitespace",
			reply:           "\n  rewritten question  \n\n  expanded the abbreviation\n",
			wantRewritten:   "rewritten question",
			wantExplanation: "expanded the abbreviation",
		},
		{
			name:            "multi-line explanation",
			reply:           "rewritten question\nline one\nline two",
			wantRewritten:   "rewritten question",
			wantExplanation: "line one\nline two",
		},
		{name: "empty reply", reply: "   \n  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rewritten, explanation := parseRewriteReply(tt.reply)
			if rewritten != tt.wantRewritten {
				t.Errorf("rewritten = %q, want %q", rewritten, tt.wantRewritten)
			}
			if explanation != tt.wantExplanation {
				t.Errorf("explanation = %q, want %q", explanation, tt.wantExplanation)
			}
		})
	}
}

func TestAsk_NoResults(t *testing.T) {
	llm := testutil.NewMockLLM("should never be called")
	searcher := &cannedSearcher{matches: nil}
	p := newTestPipeline(t, llm, fixedEmbedder{}, searcher, false)

	answer, err := p.Ask(context.Background(), "question with no matches")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if answer.Text != NoInformationAnswer {
		t.Errorf("expected no-information answer, got %q", answer.Text)
	}
	if len(llm.Calls()) != 0 {
		t.Errorf("model must not be called with empty context, got %d calls", len(llm.Calls()))
	}
}

func TestAsk_SearchErrorPropagates(t *testing.T) {
	llm := testutil.NewMockLLM("answer")
	searcher := &cannedSearcher{err: vectorstore.ErrStore}
	p := newTestPipeline(t, llm, fixedEmbedder{}, searcher, false)

	_, err := p.Ask(context.Background(), "any question")
	if !errors.Is(err, vectorstore.ErrStore) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestAsk_GenerationErrorSurfaces(t *testing.T) {
	llm := testutil.NewMockLLM("answer")
	searcher := &cannedSearcher{matches: matchesWithScores([]float64{0.95, 0.85})}
	p := newTestPipeline(t, llm, fixedEmbedder{}, searcher, false)

	llm.FailWith(errors.New("model overloaded"))
	_, err := p.Ask(context.Background(), "any question")
	if !errors.Is(err, ErrGenerationService) {
		t.Fatalf("expected ErrGenerationService, got %v", err)
	}
}
