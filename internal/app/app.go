// Package app wires configuration, database, Genkit, and the ingestion and
// query pipelines into a runnable application.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutriqa/nutriqa/internal/config"
	"github.com/nutriqa/nutriqa/internal/embedder"
	"github.com/nutriqa/nutriqa/internal/ingest"
	"github.com/nutriqa/nutriqa/internal/rag"
	"github.com/nutriqa/nutriqa/internal/vectorstore"
)

// App holds the initialized application components.
// Call Close to release all resources.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DBPool   *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder *embedder.Client
	Store    *vectorstore.Store
	Ingest   *ingest.Pipeline
	RAG      *rag.Pipeline

	otelCleanup func()
	dbCleanup   func()
}

// Close releases database connections and flushes pending trace spans.
// Safe to call on a partially initialized App.
func (a *App) Close() error {
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.dbCleanup = nil
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
		a.otelCleanup = nil
	}
	return nil
}
