// Package ingest walks a document directory and loads its contents into the
// vector store: extract text, chunk, embed, upsert.
//
// Documents are processed concurrently by a bounded worker pool. A failure in
// one document is recorded and skipped; the run continues with the rest. Only
// a store reset failure or context cancellation aborts the whole run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nutriqa/nutriqa/internal/chunker"
	"github.com/nutriqa/nutriqa/internal/extract"
	"github.com/nutriqa/nutriqa/internal/vectorstore"
)

var (
	// ErrIngestLocked indicates another ingestion run holds the data
	// directory lock.
	ErrIngestLocked = errors.New("ingestion already in progress")

	// ErrNoDocuments indicates the data directory contains no supported
	// files.
	ErrNoDocuments = errors.New("no supported documents found")
)

// lockFileName is created inside the data directory to serialize runs.
const lockFileName = ".nutriqa.lock"

// embedBatchSize caps how many chunk texts go into one embedding request.
const embedBatchSize = 64

// Embedder converts chunk texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store receives the embedded chunks.
type Store interface {
	EnsureIndex(ctx context.Context, name string, dimension int, metric string) error
	Drop(ctx context.Context, name string) error
	Upsert(ctx context.Context, name string, records []vectorstore.Record) error
}

// Failure records one document that could not be ingested.
type Failure struct {
	Source string
	Err    error
}

// Summary reports the outcome of an ingestion run.
type Summary struct {
	RunID              string
	DocumentsProcessed int
	DocumentsFailed    int
	ChunksIngested     int
	Failures           []Failure
	Elapsed            time.Duration
}

// Options configures one ingestion run.
type Options struct {
	DataDir string
	Index   string
	Reset   bool // drop and recreate the index before loading
	Workers int
}

// Pipeline orchestrates document ingestion.
type Pipeline struct {
	registry  *extract.Registry
	chunker   *chunker.Chunker
	embedder  Embedder
	store     Store
	dimension int
	logger    *slog.Logger
}

// New creates an ingestion pipeline.
func New(registry *extract.Registry, ch *chunker.Chunker, embedder Embedder, store Store, dimension int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		registry:  registry,
		chunker:   ch,
		embedder:  embedder,
		store:     store,
		dimension: dimension,
		logger:    logger,
	}
}

// Run ingests every supported document under opts.DataDir into opts.Index.
// Returns ErrIngestLocked when another run holds the directory lock and
// ErrNoDocuments when nothing ingestible is found.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	lock := flock.New(filepath.Join(opts.DataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire ingest lock: %w", err)
	}
	if !locked {
		return nil, ErrIngestLocked
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			p.logger.Warn("failed to release ingest lock", "error", uerr)
		}
	}()

	files, err := p.discover(opts.DataDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s (supported: %s)",
			ErrNoDocuments, opts.DataDir, strings.Join(p.registry.Extensions(), ", "))
	}

	// Resetting drops the index before EnsureIndex recreates it, so a run
	// with a changed embedding dimension rebuilds instead of mismatching.
	if opts.Reset {
		if err := p.store.Drop(ctx, opts.Index); err != nil {
			return nil, err
		}
	}
	if err := p.store.EnsureIndex(ctx, opts.Index, p.dimension, vectorstore.MetricCosine); err != nil {
		return nil, err
	}

	summary := &Summary{RunID: uuid.NewString()}
	start := time.Now()

	p.logger.Info("starting ingestion",
		"run_id", summary.RunID,
		"index", opts.Index,
		"documents", len(files),
		"workers", opts.Workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, path := range files {
		g.Go(func() error {
			chunks, err := p.ingestDocument(gctx, opts.Index, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Cancellation aborts the run; anything else is a
				// per-document failure
				if gctx.Err() != nil {
					return gctx.Err()
				}
				summary.DocumentsFailed++
				summary.Failures = append(summary.Failures, Failure{
					Source: filepath.Base(path),
					Err:    err,
				})
				p.logger.Error("document ingestion failed", "source", filepath.Base(path), "error", err)
				return nil
			}
			summary.DocumentsProcessed++
			summary.ChunksIngested += chunks
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingestion run aborted: %w", err)
	}

	slices.SortFunc(summary.Failures, func(a, b Failure) int {
		return strings.Compare(a.Source, b.Source)
	})
	summary.Elapsed = time.Since(start)

	p.logger.Info("ingestion complete",
		"run_id", summary.RunID,
		"processed", summary.DocumentsProcessed,
		"failed", summary.DocumentsFailed,
		"chunks", summary.ChunksIngested,
		"elapsed", summary.Elapsed)

	return summary, nil
}

// discover returns the supported files under dataDir in sorted order.
// Hidden files and directories are skipped.
func (p *Pipeline) discover(dataDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dataDir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if p.registry.Supported(name) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan data directory %s: %w", dataDir, err)
	}
	slices.Sort(files)
	return files, nil
}

// ingestDocument runs the extract, chunk, embed, upsert pipeline for one
// file and returns the number of chunks written.
func (p *Pipeline) ingestDocument(ctx context.Context, index, path string) (int, error) {
	source := filepath.Base(path)

	text, err := p.registry.Extract(ctx, path)
	if err != nil {
		return 0, err
	}

	chunks := p.chunker.Split(source, text)
	if len(chunks) == 0 {
		p.logger.Warn("document produced no chunks", "source", source)
		return 0, nil
	}

	records := make([]vectorstore.Record, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed %s chunks %d-%d: %w", source, start, end-1, err)
		}

		for i, c := range batch {
			records = append(records, vectorstore.Record{
				ID:         c.ID,
				Source:     c.Source,
				Position:   c.Position,
				Text:       c.Text,
				TokenCount: c.TokenCount,
				Embedding:  vectors[i],
			})
		}
	}

	if err := p.store.Upsert(ctx, index, records); err != nil {
		return 0, fmt.Errorf("upsert %s: %w", source, err)
	}

	p.logger.Debug("ingested document",
		"source", source,
		"chunks", len(records),
		"characters", len(text))
	return len(records), nil
}
