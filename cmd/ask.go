package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nutriqa/nutriqa/internal/app"
	"github.com/nutriqa/nutriqa/internal/config"
	"github.com/nutriqa/nutriqa/internal/rag"
)

var (
	askShowPassages bool
	askNoRewrite    bool
	askTopK         int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the knowledge base",
	Example: `  nutriqa ask "What foods help maintain stable blood sugar levels?"
  nutriqa ask --show-passages "How does fiber affect glucose absorption?"
  nutriqa ask --no-rewrite "glycemic index vs glycemic load"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowPassages, "show-passages", false, "print the retrieved passages and their scores")
	askCmd.Flags().BoolVar(&askNoRewrite, "no-rewrite", false, "skip the query rewrite stage")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of passages to retrieve (default from config)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if askNoRewrite {
		cfg.RewriteEnabled = false
	}
	if err := applyTopKOverride(cfg, askTopK); err != nil {
		return err
	}

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	answer, err := a.RAG.Ask(ctx, question)
	if err != nil {
		return err
	}

	fmt.Println(renderMarkdown(answer.Text))

	if sources := rag.Sources(answer.Passages); len(sources) > 0 {
		fmt.Printf("Sources: %s\n", strings.Join(sources, ", "))
	}

	if askShowPassages {
		fmt.Println()
		if answer.Rewritten != answer.Question {
			fmt.Printf("Rewritten query: %s\n", answer.Rewritten)
			if answer.Explanation != "" {
				fmt.Printf("Rewrite rationale: %s\n", answer.Explanation)
			}
		}
		for _, p := range answer.Passages {
			fmt.Printf("[%d] %s (score %.3f)\n    %s\n", p.Rank+1, p.ID, p.Score, truncate(p.Text, 200))
		}
	}

	return nil
}

// applyTopKOverride replaces cfg.TopK with the flag value, re-running the
// configuration validation so the flag obeys the same bounds. MinPassages is
// lowered when a small top-k would otherwise leave it unsatisfiable.
func applyTopKOverride(cfg *config.Config, topK int) error {
	if topK <= 0 {
		return nil
	}
	cfg.TopK = topK
	if cfg.MinPassages > cfg.TopK {
		cfg.MinPassages = cfg.TopK
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid --top-k value %d: %w", topK, err)
	}
	return nil
}

// renderMarkdown renders md for the terminal, falling back to plain text
// when no renderer is available.
func renderMarkdown(md string) string {
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = min(w, 120)
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
