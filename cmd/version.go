package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nutriqa/nutriqa/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(*cobra.Command, []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("nutriqa %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		// Version output should not require a valid configuration
		return nil
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Provider:  %s\n", cfg.Provider)
	fmt.Printf("  Model:     %s\n", cfg.ModelName)
	fmt.Printf("  Embedder:  %s (%d dimensions)\n", cfg.EmbedderModel, cfg.EmbeddingDimension)
	fmt.Printf("  Index:     %s\n", cfg.IndexName)
	fmt.Printf("  Chunking:  %d tokens, %d overlap\n", cfg.ChunkSize, cfg.ChunkOverlap)
	return nil
}
