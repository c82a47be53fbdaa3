package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nutriqa/nutriqa/internal/app"
	"github.com/nutriqa/nutriqa/internal/config"
	"github.com/nutriqa/nutriqa/internal/vectorstore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the knowledge base index",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	info, err := a.Store.Describe(ctx, cfg.IndexName)
	if errors.Is(err, vectorstore.ErrIndexNotFound) {
		fmt.Printf("Index %q does not exist. Run 'nutriqa ingest' to create it.\n", cfg.IndexName)
		return nil
	}
	if err != nil {
		return err
	}

	count, err := a.Store.Count(ctx, cfg.IndexName)
	if err != nil {
		return err
	}

	fmt.Printf("Index:     %s\n", info.Name)
	fmt.Printf("Dimension: %d\n", info.Dimension)
	fmt.Printf("Metric:    %s\n", info.Metric)
	fmt.Printf("Created:   %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Chunks:    %d\n", count)

	sources, err := a.Store.Sources(ctx, cfg.IndexName)
	if err != nil {
		return err
	}
	if len(sources) > 0 {
		fmt.Println("\nDocuments:")
		for _, s := range sources {
			fmt.Printf("  %-40s %d chunks\n", s.Source, s.Chunks)
		}
	}

	return nil
}
