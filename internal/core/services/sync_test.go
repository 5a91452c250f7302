package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
)

// --- Mock implementations for sync testing ---

// syncMockConnector implements driven.Connector for testing.
type syncMockConnector struct {
	fullSyncDocs []domain.RawDocument
	fullSyncErr  error
	changes      []domain.RawDocumentChange
	watchErr     error
	validateErr  error
	closed       bool
}

func (m *syncMockConnector) FullSync(ctx context.Context) (<-chan domain.RawDocument, <-chan error) {
	docs := make(chan domain.RawDocument)
	errs := make(chan error, 1)

	go func() {
		defer close(docs)
		defer close(errs)

		if m.fullSyncErr != nil {
			errs <- m.fullSyncErr
			return
		}

		for _, doc := range m.fullSyncDocs {
			select {
			case <-ctx.Done():
				return
			case docs <- doc:
			}
		}
	}()

	return docs, errs
}

// Watch replays the queued changes, then closes the stream.
func (m *syncMockConnector) Watch(_ context.Context) (<-chan domain.RawDocumentChange, error) {
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	ch := make(chan domain.RawDocumentChange, len(m.changes))
	for _, c := range m.changes {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (m *syncMockConnector) Validate(_ context.Context) error {
	return m.validateErr
}

func (m *syncMockConnector) Close() error {
	m.closed = true
	return nil
}

// syncMockNormaliserRegistry treats text/plain as text and rejects
// everything else.
type syncMockNormaliserRegistry struct {
	normaliseErr error
}

func (r *syncMockNormaliserRegistry) Register(_ driven.Normaliser) {}

func (r *syncMockNormaliserRegistry) SupportedMIMETypes() []string {
	return []string{"text/plain"}
}

func (r *syncMockNormaliserRegistry) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if r.normaliseErr != nil {
		return nil, r.normaliseErr
	}
	if raw.MIMEType != "text/plain" {
		return nil, domain.ErrUnsupportedType
	}
	return &driven.NormaliseResult{Content: string(raw.Content), DocType: "text"}, nil
}

type syncFixture struct {
	*ingestionFixture
	conn     *syncMockConnector
	registry *syncMockNormaliserRegistry
	sync     *SyncOrchestrator
	root     string
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	f := &syncFixture{
		ingestionFixture: newIngestionFixture(t),
		conn:             &syncMockConnector{},
		registry:         &syncMockNormaliserRegistry{},
		root:             filepath.Join(string(filepath.Separator), "kb"),
	}
	f.sync = NewSyncOrchestrator(f.svc, f.store, f.registry, func(string) (driven.Connector, error) {
		return f.conn, nil
	})
	return f
}

func (f *syncFixture) file(name, content string) domain.RawDocument {
	return domain.RawDocument{
		URI:      filepath.Join(f.root, name),
		MIMEType: "text/plain",
		Content:  []byte(content),
	}
}

func TestSyncOrchestrator_Sync_IngestsNewFiles(t *testing.T) {
	f := newSyncFixture(t)
	f.conn.fullSyncDocs = []domain.RawDocument{
		f.file("a.txt", "Premier fichier."),
		f.file("b.txt", "Second fichier."),
		{URI: filepath.Join(f.root, "image.png"), MIMEType: "image/png", Content: []byte{0x89}},
		f.file("blank.txt", "   \n"),
	}

	status, err := f.sync.Sync(context.Background(), f.root)
	require.NoError(t, err)

	assert.Equal(t, 2, status.Ingested)
	assert.Equal(t, 2, status.Skipped)
	assert.Zero(t, status.ErrorCount)
	assert.False(t, status.Running)
	assert.True(t, f.conn.closed)

	doc, err := f.store.FindDocumentBySource(context.Background(), filepath.Join(f.root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", doc.Title)
	assert.Equal(t, 1, doc.ChunkCount)
}

func TestSyncOrchestrator_Sync_ReindexesChangedAndSkipsUnchanged(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.conn.fullSyncDocs = []domain.RawDocument{f.file("a.txt", "v1"), f.file("b.txt", "stable")}
	_, err := f.sync.Sync(ctx, f.root)
	require.NoError(t, err)
	before, err := f.store.FindDocumentBySource(ctx, filepath.Join(f.root, "a.txt"))
	require.NoError(t, err)

	f.conn.fullSyncDocs = []domain.RawDocument{f.file("a.txt", "v2"), f.file("b.txt", "stable")}
	status, err := f.sync.Sync(ctx, f.root)
	require.NoError(t, err)

	assert.Equal(t, 1, status.Reindexed)
	assert.Equal(t, 1, status.Unchanged)
	assert.Zero(t, status.Ingested)

	after, err := f.store.FindDocumentBySource(ctx, filepath.Join(f.root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, "v2", after.Content)
}

func TestSyncOrchestrator_Sync_PrunesRemovedFiles(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	outside, err := f.svc.Ingest(ctx, domain.IngestRequest{Title: "ailleurs", Content: "x", Source: "/other/c.txt"})
	require.NoError(t, err)

	f.conn.fullSyncDocs = []domain.RawDocument{f.file("a.txt", "un"), f.file("b.txt", "deux")}
	_, err = f.sync.Sync(ctx, f.root)
	require.NoError(t, err)

	f.conn.fullSyncDocs = []domain.RawDocument{f.file("a.txt", "un")}
	status, err := f.sync.Sync(ctx, f.root)
	require.NoError(t, err)

	assert.Equal(t, 1, status.Deleted)
	_, err = f.store.FindDocumentBySource(ctx, filepath.Join(f.root, "b.txt"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.store.GetDocument(ctx, outside.ID)
	assert.NoError(t, err)
}

func TestSyncOrchestrator_Sync_CountsFailures(t *testing.T) {
	f := newSyncFixture(t)
	f.registry.normaliseErr = errors.New("corrupt file")
	f.conn.fullSyncDocs = []domain.RawDocument{f.file("a.txt", "un")}

	status, err := f.sync.Sync(context.Background(), f.root)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ErrorCount)
	assert.Zero(t, status.Ingested)
}

func TestSyncOrchestrator_Sync_ConnectorError(t *testing.T) {
	f := newSyncFixture(t)
	f.conn.fullSyncErr = errors.New("permission denied")

	_, err := f.sync.Sync(context.Background(), f.root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.False(t, f.sync.Status().Running)
}

func TestSyncOrchestrator_Sync_ValidationError(t *testing.T) {
	f := newSyncFixture(t)
	f.conn.validateErr = errors.New("no such directory")

	_, err := f.sync.Sync(context.Background(), f.root)
	require.Error(t, err)
	assert.True(t, f.conn.closed)
}

func TestSyncOrchestrator_Sync_NoBuilder(t *testing.T) {
	f := newSyncFixture(t)
	o := NewSyncOrchestrator(f.svc, f.store, f.registry, nil)

	_, err := o.Sync(context.Background(), f.root)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSyncOrchestrator_Watch_AppliesChanges(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.conn.fullSyncDocs = []domain.RawDocument{f.file("a.txt", "un")}
	f.conn.changes = []domain.RawDocumentChange{
		{Type: domain.ChangeCreated, Document: f.file("b.txt", "deux")},
		{Type: domain.ChangeUpdated, Document: f.file("a.txt", "un, modifié")},
		{Type: domain.ChangeDeleted, Document: domain.RawDocument{URI: filepath.Join(f.root, "b.txt")}},
		{Type: domain.ChangeDeleted, Document: domain.RawDocument{URI: filepath.Join(f.root, "never.txt")}},
	}

	require.NoError(t, f.sync.Watch(ctx, f.root))

	status := f.sync.Status()
	assert.Equal(t, 2, status.Ingested)
	assert.Equal(t, 1, status.Reindexed)
	assert.Equal(t, 1, status.Deleted)
	assert.Zero(t, status.ErrorCount)
	assert.False(t, status.Running)

	doc, err := f.store.FindDocumentBySource(ctx, filepath.Join(f.root, "a.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(doc.Content, "modifié"))
}

func TestSyncOrchestrator_Watch_CancelledIsClean(t *testing.T) {
	f := newSyncFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, f.sync.Watch(ctx, f.root))
}

func TestSyncOrchestrator_Watch_Error(t *testing.T) {
	f := newSyncFixture(t)
	f.conn.watchErr = errors.New("too many open files")

	err := f.sync.Watch(context.Background(), f.root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many open files")
}

func TestSyncOrchestrator_StatusBeforeRun(t *testing.T) {
	f := newSyncFixture(t)

	status := f.sync.Status()
	assert.False(t, status.Running)
	assert.Empty(t, status.Root)
}

func TestSyncOrchestrator_IngestFile(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	files := map[string]domain.RawDocument{}
	o := NewSyncOrchestrator(f.svc, f.store, f.registry, nil, WithFileReader(func(path string) (domain.RawDocument, error) {
		raw, ok := files[path]
		if !ok {
			return domain.RawDocument{}, errors.New("no such file")
		}
		return raw, nil
	}))
	path := filepath.Join(f.root, "notes.txt")
	files[path] = f.file("notes.txt", "Première version.")

	doc, err := o.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Title)
	assert.Equal(t, path, doc.Source)

	files[path] = f.file("notes.txt", "Deuxième version.")
	updated, err := o.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, updated.ID)

	stored, err := f.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Deuxième version.", stored.Content)
}

func TestSyncOrchestrator_IngestFile_Errors(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	files := map[string]domain.RawDocument{
		filepath.Join(f.root, "blank.txt"): f.file("blank.txt", "  "),
		filepath.Join(f.root, "logo.png"):  {URI: filepath.Join(f.root, "logo.png"), MIMEType: "image/png"},
	}
	o := NewSyncOrchestrator(f.svc, f.store, f.registry, nil, WithFileReader(func(path string) (domain.RawDocument, error) {
		raw, ok := files[path]
		if !ok {
			return domain.RawDocument{}, errors.New("no such file")
		}
		return raw, nil
	}))

	_, err := o.IngestFile(ctx, filepath.Join(f.root, "blank.txt"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = o.IngestFile(ctx, filepath.Join(f.root, "logo.png"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	_, err = o.IngestFile(ctx, filepath.Join(f.root, "missing.txt"))
	assert.ErrorContains(t, err, "no such file")
}

func TestSyncOrchestrator_IngestFile_NoReader(t *testing.T) {
	f := newSyncFixture(t)

	_, err := f.sync.IngestFile(context.Background(), "/kb/a.txt")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
