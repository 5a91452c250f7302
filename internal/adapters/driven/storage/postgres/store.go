// Package postgres provides the Postgres implementation of the document
// store and the query log, using the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Ensure Store implements the interfaces.
var (
	_ driven.DocumentStore = (*Store)(nil)
	_ driven.QueryLogStore = (*Store)(nil)
	_ driven.DocumentTx    = (*tx)(nil)
)

// Connection attempts made by Open before giving up.
const connectAttempts = 5

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		content    TEXT NOT NULL,
		source     TEXT NOT NULL DEFAULT '',
		doc_type   TEXT NOT NULL DEFAULT 'text',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_source ON documents (source)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
		chunk_text  TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		chunk_size  INTEGER NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		UNIQUE (document_id, chunk_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks (document_id)`,
	`CREATE TABLE IF NOT EXISTS query_logs (
		id               TEXT PRIMARY KEY,
		question         TEXT NOT NULL,
		answer           TEXT,
		chunks_retrieved INTEGER NOT NULL DEFAULT 0,
		avg_score        DOUBLE PRECISION,
		response_time    DOUBLE PRECISION NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL
	)`,
}

// Store is the Postgres document store and query log.
type Store struct {
	db *sql.DB
}

// Open connects to dsn, retrying with exponential backoff, and creates
// the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectAttempts-1), ctx)
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("postgres: connect attempt %d/%d failed: %v", attempt, connectAttempts, err)
			return err
		}
		return nil
	}, b)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: postgres: %v", domain.ErrBackendUnavailable, err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open pool. The schema is not touched.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the pool so the pgvector index can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx driven.DocumentTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(&tx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) SaveDocument(ctx context.Context, doc *domain.Document) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, source, doc_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			source = EXCLUDED.source,
			doc_type = EXCLUDED.doc_type,
			updated_at = EXCLUDED.updated_at
	`, doc.ID, doc.Title, doc.Content, doc.Source, doc.DocType, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

func (t *tx) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_text, chunk_index, chunk_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Text, c.Index, c.Size, c.CreatedAt); err != nil {
			return fmt.Errorf("saving chunk %d: %w", c.Index, err)
		}
	}
	return nil
}

func (t *tx) DeleteChunks(ctx context.Context, documentID string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// DeleteDocument removes the document; chunks go with it by cascade.
func (t *tx) DeleteDocument(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const documentColumns = `d.id, d.title, d.content, d.source, d.doc_type, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id)`

func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents d WHERE d.id = $1", id)
	return scanDocument(row)
}

func (s *Store) FindDocumentBySource(ctx context.Context, source string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+` FROM documents d
		WHERE d.source = $1
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT 1`, source)
	return scanDocument(row)
}

func (s *Store) ListDocuments(ctx context.Context, opts domain.ListOptions) ([]domain.Document, error) {
	var limit any // NULL means no limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+documentColumns+` FROM documents d
		ORDER BY d.created_at DESC, d.id ASC
		LIMIT $1 OFFSET $2`, limit, max(opts.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		doc.Content = ""
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

const chunkColumns = "id, document_id, chunk_text, chunk_index, chunk_size, created_at"

func (s *Store) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, "SELECT "+chunkColumns+` FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index`, documentID)
}

func (s *Store) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	return scanChunk(s.db.QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE id = $1", id))
}

func (s *Store) GetChunkRange(ctx context.Context, documentID string, from, to int) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, "SELECT "+chunkColumns+` FROM chunks
		WHERE document_id = $1 AND chunk_index BETWEEN $2 AND $3
		ORDER BY chunk_index`, documentID, from, to)
}

// SearchChunks matches with ILIKE, so case folding follows the database
// collation.
func (s *Store) SearchChunks(ctx context.Context, text string, limit int) ([]domain.Chunk, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	return s.queryChunks(ctx, "SELECT "+chunkColumns+` FROM chunks
		WHERE chunk_text ILIKE $1 ESCAPE '\'
		ORDER BY document_id, chunk_index
		LIMIT $2`, "%"+escapeLike(text)+"%", lim)
}

func (s *Store) Counts(ctx context.Context) (documents, chunks int, err error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM documents), (SELECT COUNT(*) FROM chunks)")
	if err := row.Scan(&documents, &chunks); err != nil {
		return 0, 0, fmt.Errorf("counting: %w", err)
	}
	return documents, chunks, nil
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// SaveQueryLog appends a query log.
func (s *Store) SaveQueryLog(ctx context.Context, log domain.QueryLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_logs (id, question, answer, chunks_retrieved, avg_score, response_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, log.ID, log.Question, log.Answer, log.ChunksRetrieved, log.AvgScore,
		log.ResponseTime.Seconds(), log.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving query log: %w", err)
	}
	return nil
}

// QueryStats returns the count and mean latency of logged queries.
func (s *Store) QueryStats(ctx context.Context) (domain.QueryStats, error) {
	var (
		stats domain.QueryStats
		avg   float64
	)
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(AVG(response_time), 0) FROM query_logs")
	if err := row.Scan(&stats.Count, &avg); err != nil {
		return stats, fmt.Errorf("query stats: %w", err)
	}
	stats.AvgResponseTime = time.Duration(avg * float64(time.Second))
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Source, &doc.DocType,
		&doc.CreatedAt, &doc.UpdatedAt, &doc.ChunkCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &doc, nil
}

func scanChunk(row scanner) (*domain.Chunk, error) {
	var c domain.Chunk
	err := row.Scan(&c.ID, &c.DocumentID, &c.Text, &c.Index, &c.Size, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	return &c, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
