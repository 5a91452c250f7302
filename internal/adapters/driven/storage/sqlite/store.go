package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/ragkb/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
)

// Ensure Store implements the interfaces.
var (
	_ driven.DocumentStore = (*Store)(nil)
	_ driven.QueryLogStore = (*Store)(nil)
	_ driven.DocumentTx    = (*tx)(nil)
)

// DatabaseFile is the file name inside the data directory.
const DatabaseFile = "ragkb.db"

// Store is the SQLite document store and query log.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (and migrates) the database in dataDir.
// If dataDir is empty, defaults to ~/.ragkb/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".ragkb", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// Pragmas in the DSN apply to every pooled connection.
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending up migrations in version order.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Transactions ====================

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

// tx implements driven.DocumentTx on a sql.Tx.
type tx struct {
	tx *sql.Tx
}

// SaveDocument inserts or updates a document.
func (t *tx) SaveDocument(ctx context.Context, doc *domain.Document) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, source, doc_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			source = excluded.source,
			doc_type = excluded.doc_type,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Title, doc.Content, doc.Source, doc.DocType,
		toUnix(doc.CreatedAt), toUnix(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// SaveChunks inserts chunks.
func (t *tx) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_text, chunk_index, chunk_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Text, c.Index, c.Size,
			toUnix(c.CreatedAt)); err != nil {
			return fmt.Errorf("saving chunk %d: %w", c.Index, err)
		}
	}
	return nil
}

// DeleteChunks removes every chunk of a document.
func (t *tx) DeleteChunks(ctx context.Context, documentID string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// DeleteDocument removes a document and its chunks.
func (t *tx) DeleteDocument(ctx context.Context, id string) error {
	if err := t.DeleteChunks(ctx, id); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
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

// ==================== Document Store ====================

const documentColumns = `d.id, d.title, d.content, d.source, d.doc_type, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id)`

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents d WHERE d.id = ?", id)
	return scanDocument(row)
}

// FindDocumentBySource returns the most recent document with source.
func (s *Store) FindDocumentBySource(ctx context.Context, source string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+` FROM documents d
		WHERE d.source = ?
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT 1`, source)
	return scanDocument(row)
}

// ListDocuments returns documents newest first, without content.
func (s *Store) ListDocuments(ctx context.Context, opts domain.ListOptions) ([]domain.Document, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+documentColumns+` FROM documents d
		ORDER BY d.created_at DESC, d.id ASC
		LIMIT ? OFFSET ?`, limit, max(opts.Offset, 0))
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

// GetChunks retrieves all chunks for a document ordered by index.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, "SELECT "+chunkColumns+` FROM chunks
		WHERE document_id = ?
		ORDER BY chunk_index`, documentID)
}

// GetChunk retrieves a chunk by ID.
func (s *Store) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE id = ?", id)
	return scanChunk(row)
}

// GetChunkRange returns chunks with index in [from, to].
func (s *Store) GetChunkRange(ctx context.Context, documentID string, from, to int) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, "SELECT "+chunkColumns+` FROM chunks
		WHERE document_id = ? AND chunk_index BETWEEN ? AND ?
		ORDER BY chunk_index`, documentID, from, to)
}

// SearchChunks returns chunks containing text. SQLite folds ASCII case only.
func (s *Store) SearchChunks(ctx context.Context, text string, limit int) ([]domain.Chunk, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryChunks(ctx, "SELECT "+chunkColumns+` FROM chunks
		WHERE chunk_text LIKE ? ESCAPE '\'
		ORDER BY document_id, chunk_index
		LIMIT ?`, "%"+escapeLike(text)+"%", limit)
}

// Counts returns the number of documents and chunks.
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

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
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

// ==================== Query Log Store ====================

// SaveQueryLog appends a query log.
func (s *Store) SaveQueryLog(ctx context.Context, log domain.QueryLog) error {
	var answer sql.NullString
	if log.Answer != nil {
		answer = sql.NullString{String: *log.Answer, Valid: true}
	}
	var score sql.NullFloat64
	if log.AvgScore != nil {
		score = sql.NullFloat64{Float64: *log.AvgScore, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_logs (id, question, answer, chunks_retrieved, avg_score, response_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.Question, answer, log.ChunksRetrieved, score,
		log.ResponseTime.Seconds(), toUnix(log.CreatedAt))
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

// ==================== Helper Functions ====================

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc                  domain.Document
		createdAt, updatedAt int64
	)
	err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Source, &doc.DocType,
		&createdAt, &updatedAt, &doc.ChunkCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.CreatedAt = fromUnix(createdAt)
	doc.UpdatedAt = fromUnix(updatedAt)
	return &doc, nil
}

func scanChunk(row scanner) (*domain.Chunk, error) {
	var (
		c         domain.Chunk
		createdAt int64
	)
	err := row.Scan(&c.ID, &c.DocumentID, &c.Text, &c.Index, &c.Size, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	c.CreatedAt = fromUnix(createdAt)
	return &c, nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// escapeLike escapes LIKE wildcards with a backslash.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
