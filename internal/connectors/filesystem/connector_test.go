package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(ctx context.Context, t *testing.T, c *Connector) ([]domain.RawDocument, error) {
	t.Helper()
	docsCh, errsCh := c.FullSync(ctx)

	var docs []domain.RawDocument
	for doc := range docsCh {
		docs = append(docs, doc)
	}
	var err error
	for e := range errsCh {
		if e != nil {
			err = e
		}
	}
	return docs, err
}

func waitChange(t *testing.T, changes <-chan domain.RawDocumentChange, match func(domain.RawDocumentChange) bool) domain.RawDocumentChange {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case change, ok := <-changes:
			require.True(t, ok, "changes closed early")
			if match(change) {
				return change
			}
		case <-deadline:
			t.Fatal("timeout waiting for file change event")
			return domain.RawDocumentChange{}
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("creates connector with root", func(t *testing.T) {
		connector := New("/tmp/test")

		require.NotNil(t, connector)
		assert.Equal(t, "/tmp/test", connector.Root())
		assert.Equal(t, int64(DefaultMaxFileSize), connector.maxFileSize)
	})

	t.Run("max file size option", func(t *testing.T) {
		assert.Equal(t, int64(10), New("/tmp", WithMaxFileSize(10)).maxFileSize)
		assert.Equal(t, int64(DefaultMaxFileSize), New("/tmp", WithMaxFileSize(0)).maxFileSize)
	})

	t.Run("implements Connector interface", func(t *testing.T) {
		var _ driven.Connector = New("/tmp")
	})
}

func TestConnector_FullSync(t *testing.T) {
	t.Run("syncs files from nested directories", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "file1.txt"), "content 1")
		writeFile(t, filepath.Join(root, "notes", "file2.md"), "# Markdown")

		docs, err := collect(context.Background(), t, New(root))
		require.NoError(t, err)
		require.Len(t, docs, 2)

		uris := []string{docs[0].URI, docs[1].URI}
		assert.ElementsMatch(t, []string{
			filepath.Join(root, "file1.txt"),
			filepath.Join(root, "notes", "file2.md"),
		}, uris)
	})

	t.Run("skips hidden files and directories", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "visible.txt"), "visible")
		writeFile(t, filepath.Join(root, ".hidden.txt"), "hidden")
		writeFile(t, filepath.Join(root, ".git", "config"), "hidden")

		docs, err := collect(context.Background(), t, New(root))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, filepath.Join(root, "visible.txt"), docs[0].URI)
	})

	t.Run("dotted root is not hidden", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), ".kb")
		writeFile(t, filepath.Join(root, "a.txt"), "a")

		docs, err := collect(context.Background(), t, New(root))
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("includes file content and MIME type", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "test.txt"), "hello")

		docs, err := collect(context.Background(), t, New(root))
		require.NoError(t, err)
		require.Len(t, docs, 1)

		doc := docs[0]
		assert.Equal(t, "text/plain", doc.MIMEType)
		assert.Equal(t, []byte("hello"), doc.Content)
		assert.False(t, doc.ModTime.IsZero())
	})

	t.Run("skips files over the size limit", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "small.txt"), "ok")
		writeFile(t, filepath.Join(root, "big.txt"), "this is too long")

		docs, err := collect(context.Background(), t, New(root, WithMaxFileSize(4)))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Contains(t, docs[0].URI, "small.txt")
	})

	t.Run("non-existent directory", func(t *testing.T) {
		_, err := collect(context.Background(), t, New("/non/existent/path"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("cancelled context closes channels", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "a.txt"), "a")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		docs, err := collect(ctx, t, New(root))
		assert.NoError(t, err)
		assert.Empty(t, docs)
	})
}

func TestConnector_Validate(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(t *testing.T) string
		errorContains string
	}{
		{
			name:  "valid directory succeeds",
			setup: func(t *testing.T) string { return t.TempDir() },
		},
		{
			name:          "non-existent path returns error",
			setup:         func(*testing.T) string { return "/non/existent/path/12345" },
			errorContains: "does not exist",
		},
		{
			name: "file instead of directory returns error",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "file.txt")
				writeFile(t, path, "content")
				return path
			},
			errorContains: "not a directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.setup(t)).Validate(context.Background())
			if tt.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Equal(t, context.Canceled, New(t.TempDir()).Validate(ctx))
	})
}

func TestConnector_Watch(t *testing.T) {
	t.Run("reports created, updated and deleted files", func(t *testing.T) {
		root := t.TempDir()
		existing := filepath.Join(root, "test.txt")
		writeFile(t, existing, "initial")

		connector := New(root)
		defer connector.Close()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, err := connector.Watch(ctx)
		require.NoError(t, err)

		created := filepath.Join(root, "new-file.txt")
		writeFile(t, created, "content")
		change := waitChange(t, changes, func(c domain.RawDocumentChange) bool { return c.Document.URI == created })
		assert.Contains(t, []domain.ChangeType{domain.ChangeCreated, domain.ChangeUpdated}, change.Type)

		writeFile(t, existing, "modified")
		change = waitChange(t, changes, func(c domain.RawDocumentChange) bool {
			return c.Document.URI == existing && c.Type == domain.ChangeUpdated
		})
		assert.Equal(t, "text/plain", change.Document.MIMEType)

		require.NoError(t, os.Remove(existing))
		waitChange(t, changes, func(c domain.RawDocumentChange) bool {
			return c.Document.URI == existing && c.Type == domain.ChangeDeleted
		})
	})

	t.Run("follows new directories", func(t *testing.T) {
		root := t.TempDir()
		connector := New(root)
		defer connector.Close()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, err := connector.Watch(ctx)
		require.NoError(t, err)

		dir := filepath.Join(root, "sub")
		require.NoError(t, os.Mkdir(dir, 0o755))
		// Give the watcher time to add the directory.
		time.Sleep(100 * time.Millisecond)

		nested := filepath.Join(dir, "nested.md")
		writeFile(t, nested, "# Nested")
		change := waitChange(t, changes, func(c domain.RawDocumentChange) bool { return c.Document.URI == nested })
		assert.Equal(t, "text/markdown", change.Document.MIMEType)
	})

	t.Run("ignores hidden files", func(t *testing.T) {
		root := t.TempDir()
		connector := New(root)
		defer connector.Close()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, err := connector.Watch(ctx)
		require.NoError(t, err)

		writeFile(t, filepath.Join(root, ".swap"), "x")
		visible := filepath.Join(root, "visible.txt")
		writeFile(t, visible, "y")

		change := waitChange(t, changes, func(domain.RawDocumentChange) bool { return true })
		assert.Equal(t, visible, change.Document.URI)
	})

	t.Run("returns error for non-existent directory", func(t *testing.T) {
		changes, err := New("/non/existent/path").Watch(context.Background())

		require.Error(t, err)
		assert.Nil(t, changes)
		assert.Contains(t, err.Error(), "root path error")
	})

	t.Run("closes channel when context is cancelled", func(t *testing.T) {
		connector := New(t.TempDir())
		defer connector.Close()
		ctx, cancel := context.WithCancel(context.Background())

		changes, err := connector.Watch(ctx)
		require.NoError(t, err)
		cancel()

		select {
		case _, ok := <-changes:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("channel did not close after context cancellation")
		}
	})

	t.Run("rejects a second watch", func(t *testing.T) {
		connector := New(t.TempDir())
		defer connector.Close()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		_, err := connector.Watch(ctx)
		require.NoError(t, err)
		_, err = connector.Watch(ctx)
		assert.Error(t, err)
	})

	t.Run("returns error when connector is closed", func(t *testing.T) {
		connector := New(t.TempDir())
		require.NoError(t, connector.Close())

		changes, err := connector.Watch(context.Background())
		require.Error(t, err)
		assert.Nil(t, changes)
		assert.Contains(t, err.Error(), "closed")
	})
}

func TestConnector_Close(t *testing.T) {
	t.Run("close is idempotent", func(t *testing.T) {
		connector := New("/tmp/test")

		assert.NoError(t, connector.Close())
		assert.NoError(t, connector.Close())
	})

	t.Run("close stops the watch", func(t *testing.T) {
		connector := New(t.TempDir())
		changes, err := connector.Watch(context.Background())
		require.NoError(t, err)

		require.NoError(t, connector.Close())

		select {
		case _, ok := <-changes:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("channel did not close after Close")
		}
	})
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		filename     string
		expectedMIME string
	}{
		{"file", "text/plain"},
		{"notes.txt", "text/plain"},
		{"doc.md", "text/markdown"},
		{"doc.markdown", "text/markdown"},
		{"page.html", "text/html"},
		{"page.htm", "text/html"},
		{"doc.pdf", "application/pdf"},
		{"code.go", "text/x-go"},
		{"config.yaml", "text/yaml"},
		{"config.toml", "text/toml"},
		{"data.json", "application/json"},
		{"image.png", "image/png"},
		{"file.zzzzunknown", "application/octet-stream"},
		{"FILE.MD", "text/markdown"},
		{"File.Html", "text/html"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.expectedMIME, detectMIMEType(tt.filename))
		})
	}

	t.Run("strips parameters", func(t *testing.T) {
		for _, file := range []string{"file.css", "file.js", "file.html"} {
			assert.NotContains(t, detectMIMEType(file), ";")
		}
	})
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"path/to/.hidden", true},
		{"dir/.git/config", true},
		{"/home/user/.ssh/id_rsa", true},
		{"visible.txt", false},
		{"path/to/file.txt", false},
		{".", false},
		{"../sibling/file.txt", false},
		{"./file.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	writeFile(t, path, "# Guide")

	doc, err := ReadFile(path, DefaultMaxFileSize)
	require.NoError(t, err)
	assert.Equal(t, path, doc.URI)
	assert.Equal(t, "text/markdown", doc.MIMEType)
	assert.Equal(t, "# Guide", string(doc.Content))
	assert.False(t, doc.ModTime.IsZero())

	_, err = ReadFile(path, 3)
	assert.ErrorContains(t, err, "exceeds limit")

	_, err = ReadFile(dir, DefaultMaxFileSize)
	assert.ErrorContains(t, err, "not a regular file")

	_, err = ReadFile(filepath.Join(dir, "missing.txt"), DefaultMaxFileSize)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
