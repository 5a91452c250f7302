package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// DefaultMaxFileSize is the largest file read; bigger files are skipped.
const DefaultMaxFileSize = 32 << 20

// Connector reads documents from a local directory.
type Connector struct {
	rootPath    string
	maxFileSize int64

	mu      sync.Mutex
	closed  bool
	watcher *fsnotify.Watcher
}

// Option configures a Connector.
type Option func(*Connector)

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(c *Connector) {
		if n > 0 {
			c.maxFileSize = n
		}
	}
}

// New creates a connector rooted at rootPath. The path is checked by
// Validate, not here.
func New(rootPath string, opts ...Option) *Connector {
	c := &Connector{rootPath: rootPath, maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the directory this connector reads.
func (c *Connector) Root() string {
	return c.rootPath
}

// Validate checks the root exists and is a readable directory.
func (c *Connector) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.checkRoot(); err != nil {
		return err
	}
	if _, err := os.ReadDir(c.rootPath); err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	return nil
}

func (c *Connector) checkRoot() error {
	info, err := os.Stat(c.rootPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("root path error: %s does not exist", c.rootPath)
	}
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path error: %s is not a directory", c.rootPath)
	}
	return nil
}

// FullSync walks the tree and emits every visible regular file.
// Unreadable files are logged and skipped.
func (c *Connector) FullSync(ctx context.Context) (<-chan domain.RawDocument, <-chan error) {
	docs := make(chan domain.RawDocument)
	errs := make(chan error, 1)

	go func() {
		defer close(docs)
		defer close(errs)

		if err := c.checkRoot(); err != nil {
			errs <- err
			return
		}

		err := filepath.WalkDir(c.rootPath, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				logger.Warn("Skipping %s: %v", path, err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if path != c.rootPath && c.hidden(path) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			doc, ok := c.read(path)
			if !ok {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case docs <- doc:
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			errs <- fmt.Errorf("walk %s: %w", c.rootPath, err)
		}
	}()

	return docs, errs
}

// Watch streams changes under the root until ctx is cancelled or the
// connector is closed. New subdirectories are watched as they appear.
func (c *Connector) Watch(ctx context.Context) (<-chan domain.RawDocumentChange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("connector is closed")
	}
	if c.watcher != nil {
		return nil, errors.New("connector is already watching")
	}
	if err := c.checkRoot(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := c.addTree(watcher, c.rootPath); err != nil {
		watcher.Close()
		return nil, err
	}
	c.watcher = watcher

	changes := make(chan domain.RawDocumentChange)
	go c.watchLoop(ctx, watcher, changes)
	return changes, nil
}

func (c *Connector) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- domain.RawDocumentChange) {
	defer close(changes)
	defer c.stopWatching(watcher)

	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Watch error: %v", err)

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			change, emit := c.translate(watcher, event)
			if !emit {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case changes <- change:
			}
		}
	}
}

// translate maps an fsnotify event to a change. Directory creations add
// watches and emit nothing.
func (c *Connector) translate(watcher *fsnotify.Watcher, event fsnotify.Event) (domain.RawDocumentChange, bool) {
	path := event.Name
	if c.hidden(path) {
		return domain.RawDocumentChange{}, false
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return domain.RawDocumentChange{
			Type:     domain.ChangeDeleted,
			Document: domain.RawDocument{URI: path, MIMEType: detectMIMEType(path)},
		}, true

	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return domain.RawDocumentChange{}, false
		}
		if info.IsDir() {
			if event.Has(fsnotify.Create) {
				if err := c.addTree(watcher, path); err != nil {
					logger.Warn("Failed to watch %s: %v", path, err)
				}
			}
			return domain.RawDocumentChange{}, false
		}
		doc, ok := c.read(path)
		if !ok {
			return domain.RawDocumentChange{}, false
		}
		changeType := domain.ChangeUpdated
		if event.Has(fsnotify.Create) {
			changeType = domain.ChangeCreated
		}
		return domain.RawDocumentChange{Type: changeType, Document: doc}, true
	}

	return domain.RawDocumentChange{}, false
}

func (c *Connector) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != c.rootPath && c.hidden(path) {
			return fs.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (c *Connector) stopWatching(watcher *fsnotify.Watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher == watcher {
		c.watcher.Close()
		c.watcher = nil
	}
}

// Close stops any watch. It is safe to call more than once.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.watcher != nil {
		err := c.watcher.Close()
		c.watcher = nil
		return err
	}
	return nil
}

// hidden checks path relative to the root so a dotted root directory
// does not hide everything.
func (c *Connector) hidden(path string) bool {
	rel, err := filepath.Rel(c.rootPath, path)
	if err != nil {
		return isHidden(path)
	}
	return isHidden(rel)
}

func (c *Connector) read(path string) (domain.RawDocument, bool) {
	doc, err := ReadFile(path, c.maxFileSize)
	if err != nil {
		logger.Warn("Skipping %s: %v", path, err)
		return domain.RawDocument{}, false
	}
	return doc, true
}

// ReadFile loads one regular file no larger than maxSize bytes.
func ReadFile(path string, maxSize int64) (domain.RawDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.RawDocument{}, err
	}
	if !info.Mode().IsRegular() {
		return domain.RawDocument{}, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() > maxSize {
		return domain.RawDocument{}, fmt.Errorf("%d bytes exceeds limit of %d", info.Size(), maxSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.RawDocument{}, err
	}
	return domain.RawDocument{
		URI:      path,
		MIMEType: detectMIMEType(path),
		Content:  content,
		ModTime:  info.ModTime(),
	}, nil
}
