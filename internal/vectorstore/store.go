// Package vectorstore persists chunk embeddings in PostgreSQL with pgvector
// and serves cosine similarity queries over them.
//
// Each logical index owns one chunk table plus a metadata row in rag_indexes
// recording its dimension and distance metric. Opening an index whose stored
// configuration disagrees with the requested one fails with
// ErrIndexConfigMismatch rather than silently corrupting search results.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

var (
	// ErrStore indicates a database-level failure.
	ErrStore = errors.New("vector store operation failed")

	// ErrIndexNotFound indicates the named index has not been created.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexConfigMismatch indicates the index exists with a different
	// dimension or metric than requested. The index must be dropped and
	// rebuilt before it can be used with the new configuration.
	ErrIndexConfigMismatch = errors.New("index configuration mismatch")
)

// MetricCosine is the only distance metric currently supported.
const MetricCosine = "cosine"

// UpsertBatchSize caps the number of records written per database batch.
const UpsertBatchSize = 100

// indexNamePattern mirrors the configuration-level index name rule. The
// store re-validates because index names become table identifiers.
var indexNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)

// Record is one chunk ready for storage, embedding included.
type Record struct {
	ID         string
	Source     string
	Position   int
	Text       string
	TokenCount int
	Embedding  []float32
}

// Match is one query result with its cosine similarity score in [-1, 1].
type Match struct {
	ID       string
	Source   string
	Position int
	Text     string
	Score    float64
}

// SourceStat reports how many chunks one source document contributed.
type SourceStat struct {
	Source string
	Chunks int
}

// IndexInfo describes a stored index.
type IndexInfo struct {
	Name      string
	Dimension int
	Metric    string
	CreatedAt time.Time
}

// DB defines the database operations the store needs.
// *pgxpool.Pool satisfies this interface.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store manages chunk embeddings in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store on top of db.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// chunkTable maps an index name to its chunk table identifier. The name is
// assumed validated against indexNamePattern, so the result contains only
// [a-z0-9_] and is safe to interpolate into DDL and DML.
func chunkTable(index string) string {
	return "rag_chunks_" + strings.ReplaceAll(index, "-", "_")
}

func validateIndexName(name string) error {
	if !indexNamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid index name %q", ErrStore, name)
	}
	return nil
}

// EnsureIndex creates the named index if it does not exist, or verifies its
// stored configuration if it does. Dimension or metric disagreement returns
// ErrIndexConfigMismatch.
func (s *Store) EnsureIndex(ctx context.Context, name string, dimension int, metric string) error {
	if err := validateIndexName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrStore, dimension)
	}
	if metric != MetricCosine {
		return fmt.Errorf("%w: unsupported metric %q", ErrStore, metric)
	}

	info, err := s.Describe(ctx, name)
	switch {
	case err == nil:
		if info.Dimension != dimension || info.Metric != metric {
			return fmt.Errorf("%w: index %q stores dimension=%d metric=%s, requested dimension=%d metric=%s (drop and re-ingest to change the index configuration)",
				ErrIndexConfigMismatch, name, info.Dimension, info.Metric, dimension, metric)
		}
		return nil
	case errors.Is(err, ErrIndexNotFound):
		// Fall through to creation
	default:
		return err
	}

	table := chunkTable(name)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id          TEXT PRIMARY KEY,
		source      TEXT NOT NULL,
		position    INTEGER NOT NULL,
		text        TEXT NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		embedding   vector(%d) NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table, dimension)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("%w: create chunk table for index %q: %v", ErrStore, name, err)
	}

	hnsw := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
		USING hnsw (embedding vector_cosine_ops)`, table, table)
	if _, err := s.db.Exec(ctx, hnsw); err != nil {
		return fmt.Errorf("%w: create similarity index for %q: %v", ErrStore, name, err)
	}

	srcIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)`, table, table)
	if _, err := s.db.Exec(ctx, srcIdx); err != nil {
		return fmt.Errorf("%w: create source index for %q: %v", ErrStore, name, err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO rag_indexes (name, dimension, metric) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		name, dimension, metric)
	if err != nil {
		return fmt.Errorf("%w: register index %q: %v", ErrStore, name, err)
	}

	s.logger.Info("created index", "index", name, "dimension", dimension, "metric", metric)
	return nil
}

// Describe returns the stored configuration of the named index.
func (s *Store) Describe(ctx context.Context, name string) (IndexInfo, error) {
	if err := validateIndexName(name); err != nil {
		return IndexInfo{}, err
	}

	var info IndexInfo
	err := s.db.QueryRow(ctx,
		`SELECT name, dimension, metric, created_at FROM rag_indexes WHERE name = $1`,
		name).Scan(&info.Name, &info.Dimension, &info.Metric, &info.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return IndexInfo{}, fmt.Errorf("%w: %q", ErrIndexNotFound, name)
	}
	if err != nil {
		return IndexInfo{}, fmt.Errorf("%w: describe index %q: %v", ErrStore, name, err)
	}
	return info, nil
}

// Exists reports whether the named index has been created.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Describe(ctx, name)
	if errors.Is(err, ErrIndexNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Drop removes the named index entirely, chunk table and registration both.
// A following EnsureIndex recreates the index from scratch, which is the
// rebuild path after changing the embedder or chunking configuration.
func (s *Store) Drop(ctx context.Context, name string) error {
	if err := validateIndexName(name); err != nil {
		return err
	}

	table := chunkTable(name)
	if _, err := s.db.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("%w: drop index %q: %v", ErrStore, name, err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM rag_indexes WHERE name = $1`, name); err != nil {
		return fmt.Errorf("%w: deregister index %q: %v", ErrStore, name, err)
	}

	s.logger.Info("dropped index", "index", name)
	return nil
}

// Upsert writes records into the named index, inserting new IDs and
// overwriting existing ones. Writes are sent in batches of at most
// UpsertBatchSize records each.
func (s *Store) Upsert(ctx context.Context, name string, records []Record) error {
	if _, err := s.Describe(ctx, name); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	table := chunkTable(name)
	stmt := fmt.Sprintf(`INSERT INTO %s (id, source, position, text, token_count, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			source      = EXCLUDED.source,
			position    = EXCLUDED.position,
			text        = EXCLUDED.text,
			token_count = EXCLUDED.token_count,
			embedding   = EXCLUDED.embedding,
			updated_at  = now()`, table)

	for start := 0; start < len(records); start += UpsertBatchSize {
		end := min(start+UpsertBatchSize, len(records))

		batch := &pgx.Batch{}
		for _, rec := range records[start:end] {
			vec := pgvector.NewVector(rec.Embedding)
			batch.Queue(stmt, rec.ID, rec.Source, rec.Position, rec.Text, rec.TokenCount, vec)
		}

		if err := s.sendBatch(ctx, batch); err != nil {
			return fmt.Errorf("%w: upsert batch %d-%d into index %q: %v",
				ErrStore, start, end-1, name, err)
		}

		s.logger.Debug("upserted batch", "index", name, "records", end-start, "offset", start)
	}

	return nil
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	results := s.db.SendBatch(ctx, batch)
	defer func() {
		if cerr := results.Close(); cerr != nil {
			s.logger.Warn("failed to close batch results", "error", cerr)
		}
	}()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return nil
}

// Query returns the topK most similar chunks to the query embedding,
// ordered by descending cosine similarity. Ties break on chunk ID so
// repeated queries return results in a stable order.
func (s *Store) Query(ctx context.Context, name string, embedding []float32, topK int) ([]Match, error) {
	info, err := s.Describe(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(embedding) != info.Dimension {
		return nil, fmt.Errorf("%w: query embedding dimension %d does not match index dimension %d",
			ErrStore, len(embedding), info.Dimension)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrStore, topK)
	}

	table := chunkTable(name)
	query := fmt.Sprintf(`SELECT id, source, position, text, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, id
		LIMIT $2`, table)

	vec := pgvector.NewVector(embedding)
	rows, err := s.db.Query(ctx, query, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: query index %q: %v", ErrStore, name, err)
	}
	defer rows.Close()

	matches := make([]Match, 0, topK)
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Source, &m.Position, &m.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("%w: scan query result: %v", ErrStore, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate query results: %v", ErrStore, err)
	}

	return matches, nil
}

// Count returns the number of chunks stored in the named index.
func (s *Store) Count(ctx context.Context, name string) (int, error) {
	if _, err := s.Describe(ctx, name); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRow(ctx, "SELECT count(*) FROM "+chunkTable(name)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count index %q: %v", ErrStore, name, err)
	}
	return count, nil
}

// Sources returns per-document chunk counts for the named index, ordered
// by source name.
func (s *Store) Sources(ctx context.Context, name string) ([]SourceStat, error) {
	if _, err := s.Describe(ctx, name); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT source, count(*) FROM %s GROUP BY source ORDER BY source`,
		chunkTable(name))
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list sources for index %q: %v", ErrStore, name, err)
	}
	defer rows.Close()

	var stats []SourceStat
	for rows.Next() {
		var st SourceStat
		if err := rows.Scan(&st.Source, &st.Chunks); err != nil {
			return nil, fmt.Errorf("%w: scan source row: %v", ErrStore, err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate source rows: %v", ErrStore, err)
	}

	return stats, nil
}
