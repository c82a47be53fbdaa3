package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nutriqa/nutriqa/internal/app"
	"github.com/nutriqa/nutriqa/internal/config"
	"github.com/nutriqa/nutriqa/internal/extract"
	"github.com/nutriqa/nutriqa/internal/ingest"
)

const timeRounding = 10 * time.Millisecond

var (
	ingestDataDir string
	ingestReset   bool
	ingestYes     bool
	ingestWorkers int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load documents from the data directory into the knowledge base",
	Long: `Ingest extracts text from every supported document in the data
directory, splits it into overlapping token chunks, embeds each chunk, and
writes the vectors into the index.

Re-ingesting the same documents overwrites their previous chunks. Use
--reset to drop and recreate the whole index first, which is required
after changing the embedder model or chunking parameters.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDataDir, "data-dir", "", "directory containing source documents (default from config)")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "drop and recreate the index before ingesting")
	ingestCmd.Flags().BoolVarP(&ingestYes, "yes", "y", false, "skip the --reset confirmation prompt")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "number of concurrent document workers (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	dataDir := cfg.DataDir
	if ingestDataDir != "" {
		dataDir = ingestDataDir
	}
	workers := cfg.IngestWorkers
	if ingestWorkers > 0 {
		workers = ingestWorkers
	}

	if ingestReset && !ingestYes {
		if !confirm(fmt.Sprintf("This will drop and rebuild index %q. Continue?", cfg.IndexName)) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := extract.CheckPDFToolAvailable(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: pdftotext not found in PATH, PDF documents will fail")
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	summary, err := a.Ingest.Run(ctx, ingest.Options{
		DataDir: dataDir,
		Index:   cfg.IndexName,
		Reset:   ingestReset,
		Workers: workers,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Run %s\n", summary.RunID)
	fmt.Printf("  Documents processed: %d\n", summary.DocumentsProcessed)
	fmt.Printf("  Documents failed:    %d\n", summary.DocumentsFailed)
	fmt.Printf("  Chunks ingested:     %d\n", summary.ChunksIngested)
	fmt.Printf("  Elapsed:             %s\n", summary.Elapsed.Round(timeRounding))

	for _, f := range summary.Failures {
		fmt.Fprintf(os.Stderr, "  failed: %s: %v\n", f.Source, f.Err)
	}

	if summary.DocumentsProcessed == 0 {
		return fmt.Errorf("all %d documents failed", summary.DocumentsFailed)
	}
	return nil
}

// confirm prompts on stdin for a yes/no answer.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
