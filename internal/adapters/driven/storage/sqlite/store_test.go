package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
)

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testDocument(id string, offset time.Duration) *domain.Document {
	return &domain.Document{
		ID:        id,
		Title:     "Document " + id,
		Content:   "contenu de " + id,
		Source:    "/kb/" + id + ".md",
		DocType:   "markdown",
		CreatedAt: baseTime.Add(offset),
		UpdatedAt: baseTime.Add(offset),
	}
}

func testChunks(docID string, texts ...string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:         fmt.Sprintf("%s-c%d", docID, i),
			DocumentID: docID,
			Text:       text,
			Index:      i,
			Size:       len([]rune(text)),
			CreatedAt:  baseTime,
		}
	}
	return chunks
}

// save writes a document and its chunks in one transaction.
func save(t *testing.T, store *Store, doc *domain.Document, chunks []domain.Chunk) {
	t.Helper()
	err := store.WithTx(context.Background(), func(tx driven.DocumentTx) error {
		if err := tx.SaveDocument(context.Background(), doc); err != nil {
			return err
		}
		return tx.SaveChunks(context.Background(), chunks)
	})
	require.NoError(t, err)
}

// ==================== Store Creation ====================

func TestNewStore_ErrorHandling(t *testing.T) {
	_, err := NewStore("/invalid\x00path")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "creating data directory")
}

func TestNewStore_Success(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, DatabaseFile), store.Path())
	assert.FileExists(t, store.Path())
	assert.NoError(t, store.db.Ping())
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	save(t, store, testDocument("a", 0), testChunks("a", "un"))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	doc, err := reopened.GetDocument(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ChunkCount)

	var versions int
	require.NoError(t, reopened.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 2, versions)
}

// ==================== Documents ====================

func TestStore_SaveAndGetDocument(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	doc := testDocument("a", 0)

	save(t, store, doc, testChunks("a", "premier", "second"))

	got, err := store.GetDocument(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, doc.Source, got.Source)
	assert.Equal(t, "markdown", got.DocType)
	assert.Equal(t, 2, got.ChunkCount)
	assert.True(t, doc.CreatedAt.Equal(got.CreatedAt))
}

func TestStore_GetDocument_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_SaveDocument_UpdateKeepsCreatedAt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	save(t, store, testDocument("a", 0), nil)

	updated := testDocument("a", time.Hour)
	updated.Title = "Nouveau titre"
	save(t, store, updated, nil)

	got, err := store.GetDocument(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Nouveau titre", got.Title)
	assert.True(t, baseTime.Equal(got.CreatedAt))
	assert.True(t, baseTime.Add(time.Hour).Equal(got.UpdatedAt))
}

func TestStore_FindDocumentBySource_MostRecent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	older := testDocument("old", 0)
	older.Source = "/kb/shared.md"
	newer := testDocument("new", time.Minute)
	newer.Source = "/kb/shared.md"
	save(t, store, older, nil)
	save(t, store, newer, nil)

	got, err := store.FindDocumentBySource(ctx, "/kb/shared.md")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)

	_, err = store.FindDocumentBySource(ctx, "/kb/none.md")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ListDocuments(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		save(t, store, testDocument(id, time.Duration(i)*time.Minute), testChunks(id, "x"))
	}

	docs, err := store.ListDocuments(ctx, domain.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
	assert.Empty(t, docs[0].Content)
	assert.Equal(t, 1, docs[0].ChunkCount)

	docs, err = store.ListDocuments(ctx, domain.ListOptions{Offset: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)

	docs, err = store.ListDocuments(ctx, domain.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	docs, err = store.ListDocuments(ctx, domain.ListOptions{Offset: 10, Limit: 5})
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

// ==================== Chunks ====================

func TestStore_GetChunks_Ordered(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	chunks := testChunks("a", "zéro", "un", "deux")
	// Insert out of order.
	save(t, store, testDocument("a", 0), []domain.Chunk{chunks[2], chunks[0], chunks[1]})

	got, err := store.GetChunks(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, "zéro", got[0].Text)
	assert.Equal(t, 4, got[0].Size)

	none, err := store.GetChunks(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_GetChunk(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	save(t, store, testDocument("a", 0), testChunks("a", "un", "deux"))

	c, err := store.GetChunk(ctx, "a-c1")
	require.NoError(t, err)
	assert.Equal(t, "deux", c.Text)
	assert.Equal(t, "a", c.DocumentID)
	assert.True(t, baseTime.Equal(c.CreatedAt))

	_, err = store.GetChunk(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_GetChunkRange(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	save(t, store, testDocument("a", 0), testChunks("a", "0", "1", "2", "3", "4"))

	got, err := store.GetChunkRange(ctx, "a", 1, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 3, got[2].Index)

	got, err = store.GetChunkRange(ctx, "a", -1, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_SearchChunks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	save(t, store, testDocument("a", 0), testChunks("a", "Le Moteur démarre", "rien ici", "moteur arrêté"))
	save(t, store, testDocument("b", time.Minute), testChunks("b", "100% fiable", "1000 fiable"))

	got, err := store.SearchChunks(ctx, "moteur", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a-c0", got[0].ID)
	assert.Equal(t, "a-c2", got[1].ID)

	got, err = store.SearchChunks(ctx, "moteur", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Wildcards are literal.
	got, err = store.SearchChunks(ctx, "0%", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b-c0", got[0].ID)
}

func TestStore_SaveChunks_RequiresDocument(t *testing.T) {
	store := setupTestStore(t)

	err := store.WithTx(context.Background(), func(tx driven.DocumentTx) error {
		return tx.SaveChunks(context.Background(), testChunks("ghost", "x"))
	})
	assert.Error(t, err)
}

// ==================== Transactions ====================

func TestStore_WithTx_RollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	boom := errors.New("vector index down")

	err := store.WithTx(ctx, func(tx driven.DocumentTx) error {
		if err := tx.SaveDocument(ctx, testDocument("a", 0)); err != nil {
			return err
		}
		if err := tx.SaveChunks(ctx, testChunks("a", "un")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetDocument(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, chunks, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, chunks)
}

func TestStore_ReplaceChunks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	save(t, store, testDocument("a", 0), testChunks("a", "un", "deux", "trois"))

	replacement := testChunks("a", "nouveau")
	replacement[0].ID = "a-v2-c0"
	err := store.WithTx(ctx, func(tx driven.DocumentTx) error {
		if err := tx.DeleteChunks(ctx, "a"); err != nil {
			return err
		}
		return tx.SaveChunks(ctx, replacement)
	})
	require.NoError(t, err)

	got, err := store.GetChunks(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a-v2-c0", got[0].ID)
}

func TestStore_DeleteDocument(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	save(t, store, testDocument("a", 0), testChunks("a", "un", "deux"))
	save(t, store, testDocument("b", time.Minute), testChunks("b", "trois"))

	err := store.WithTx(ctx, func(tx driven.DocumentTx) error {
		return tx.DeleteDocument(ctx, "a")
	})
	require.NoError(t, err)

	_, err = store.GetDocument(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	docs, chunks, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
	assert.Equal(t, 1, chunks)

	err = store.WithTx(ctx, func(tx driven.DocumentTx) error {
		return tx.DeleteDocument(ctx, "a")
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== Query Logs ====================

func TestStore_QueryLogs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	stats, err := store.QueryStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.AvgResponseTime)

	answer := "Réponse."
	score := 0.8
	require.NoError(t, store.SaveQueryLog(ctx, domain.QueryLog{
		ID: "q1", Question: "Quoi ?", Answer: &answer, ChunksRetrieved: 3,
		AvgScore: &score, ResponseTime: time.Second, CreatedAt: baseTime,
	}))
	// A failed generation has neither answer nor score.
	require.NoError(t, store.SaveQueryLog(ctx, domain.QueryLog{
		ID: "q2", Question: "Pourquoi ?", ResponseTime: 3 * time.Second, CreatedAt: baseTime,
	}))

	stats, err = store.QueryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 2*time.Second, stats.AvgResponseTime)

	err = store.SaveQueryLog(ctx, domain.QueryLog{ID: "q1", Question: "again", CreatedAt: baseTime})
	assert.Error(t, err)
}

// ==================== Helpers ====================

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`c:\dir`, `c:\\dir`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeLike(tt.in))
		})
	}
}

func TestUnixRoundTrip(t *testing.T) {
	assert.Zero(t, toUnix(time.Time{}))
	assert.True(t, fromUnix(0).IsZero())

	ts := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	assert.True(t, ts.Equal(fromUnix(toUnix(ts))))
}
