// Package pgvector provides a VectorIndex stored in a Postgres table with
// the pgvector extension. Similarity is cosine: 1 - (embedding <=> query).
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// DefaultTable is used when no collection name is given.
const DefaultTable = "chunk_vectors"

// Index stores vectors in one table.
type Index struct {
	db    *sql.DB
	owned bool
	name  string
	table string // quoted identifier
}

// Open connects to Postgres with the pgx driver.
func Open(ctx context.Context, dsn, table string) (*Index, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: postgres: %v", domain.ErrVectorIndexUnavailable, err)
	}
	idx := New(db, table)
	idx.owned = true
	return idx, nil
}

// New wraps an existing connection pool. Close leaves db open.
func New(db *sql.DB, table string) *Index {
	if table == "" {
		table = DefaultTable
	}
	return &Index{
		db:    db,
		name:  table,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

// EnsureCollection creates the extension, table and indexes. An existing
// table with another vector size is a configuration error.
func (i *Index) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}

	if _, err := i.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return unavailable("create extension", err)
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		chunk_text  TEXT NOT NULL,
		title       TEXT NOT NULL,
		source      TEXT NOT NULL DEFAULT '',
		doc_type    TEXT NOT NULL,
		embedding   vector(%d) NOT NULL
	)`, i.table, dimensions)
	if _, err := i.db.ExecContext(ctx, create); err != nil {
		return unavailable("create table", err)
	}

	var size int
	err := i.db.QueryRowContext(ctx,
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = $1::regclass AND attname = 'embedding'`,
		i.table).Scan(&size)
	if err != nil {
		return unavailable("read dimension", err)
	}
	if size > 0 && size != dimensions {
		return fmt.Errorf("%w: table %s has dimension %d, not %d", domain.ErrConfiguration, i.name, size, dimensions)
	}

	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (document_id)",
			pgx.Identifier{i.name + "_document_id_idx"}.Sanitize(), i.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)",
			pgx.Identifier{i.name + "_embedding_idx"}.Sanitize(), i.table),
	}
	for _, stmt := range indexes {
		if _, err := i.db.ExecContext(ctx, stmt); err != nil {
			logger.Warn("pgvector: %v", err)
		}
	}
	return nil
}

// Upsert writes points in one transaction.
func (i *Index) Upsert(ctx context.Context, points []domain.VectorPoint) (err error) {
	if len(points) == 0 {
		return nil
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, document_id, chunk_index, chunk_text, title, source, doc_type, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_index = EXCLUDED.chunk_index,
			chunk_text  = EXCLUDED.chunk_text,
			title       = EXCLUDED.title,
			source      = EXCLUDED.source,
			doc_type    = EXCLUDED.doc_type,
			embedding   = EXCLUDED.embedding`, i.table))
	if err != nil {
		return unavailable("prepare upsert", err)
	}
	defer stmt.Close()

	for _, p := range points {
		pl := p.Payload
		if _, err = stmt.ExecContext(ctx, p.ID, pl.DocumentID, pl.ChunkIndex, pl.Preview,
			pl.Title, pl.Source, pl.DocType, pgvector.NewVector(p.Vector)); err != nil {
			return unavailable("upsert "+p.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// Search returns the nearest rows at or above threshold.
func (i *Index) Search(ctx context.Context, query []float32, limit int, threshold float64) ([]domain.VectorHit, error) {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, document_id, chunk_index, chunk_text, title, source, doc_type,
		       1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3`, i.table), pgvector.NewVector(query), threshold, limit)
	if err != nil {
		return nil, unavailable("search", err)
	}
	defer rows.Close()

	hits := make([]domain.VectorHit, 0, limit)
	for rows.Next() {
		var (
			hit     domain.VectorHit
			payload domain.VectorPayload
		)
		if err := rows.Scan(&hit.ID, &payload.DocumentID, &payload.ChunkIndex, &payload.Preview,
			&payload.Title, &payload.Source, &payload.DocType, &hit.Score); err != nil {
			return nil, unavailable("scan", err)
		}
		hit.Payload = &payload
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("search", err)
	}
	return hits, nil
}

// DeleteByDocument removes every row of documentID.
func (i *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := i.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", i.table), documentID)
	if err != nil {
		return unavailable("delete document "+documentID, err)
	}
	return nil
}

// DeletePoints removes rows by ID.
func (i *Index) DeletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for n, id := range ids {
		placeholders[n] = fmt.Sprintf("$%d", n+1)
		args[n] = id
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", i.table, strings.Join(placeholders, ", "))
	if _, err := i.db.ExecContext(ctx, query, args...); err != nil {
		return unavailable("delete points", err)
	}
	return nil
}

// Count returns the number of rows.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := i.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", i.table)).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// Name returns the table name.
func (i *Index) Name() string {
	return i.name
}

// Close closes the pool when Open created it.
func (i *Index) Close() error {
	if i.owned {
		return i.db.Close()
	}
	return nil
}

// unavailable wraps a database failure. Cancellation passes through.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: pgvector %s: %v", domain.ErrVectorIndexUnavailable, op, err)
}
