package file

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/logger"
)

var _ driven.PromptStore = (*PromptStore)(nil)

const (
	promptExt    = ".txt"
	defaultsRoot = "defaults"
)

//go:embed defaults
var defaultFS embed.FS

var errPlaceholders = errors.New("placeholders do not match the built-in prompt")

// DefaultPrompt returns the built-in template for name.
func DefaultPrompt(name string) (string, bool) {
	data, err := defaultFS.ReadFile(path.Join(defaultsRoot, name+promptExt))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// PromptNames lists the built-in prompt names in sorted order.
func PromptNames() []string {
	entries, err := fs.ReadDir(defaultFS, defaultsRoot)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), promptExt) {
			names = append(names, strings.TrimSuffix(e.Name(), promptExt))
		}
	}
	sort.Strings(names)
	return names
}

// PromptStore serves answer prompts. A file <name>.txt in the prompt
// directory overrides the built-in template of the same name.
//
// The directory is populated with the built-in templates on first Load, and
// existing files are never overwritten. If it cannot be written the store
// keeps working from the built-ins.
type PromptStore struct {
	dir string

	installOnce sync.Once

	mu    sync.RWMutex
	cache map[string]string
}

// NewPromptStore returns a store rooted at dir, or ~/.ragkb/prompts when
// dir is empty. No I/O happens until the first Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".ragkb", "prompts")
	}
	return &PromptStore{dir: dir, cache: make(map[string]string)}, nil
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Load returns the template for name. Overrides that drop or add %s
// placeholders are ignored with a warning.
func (s *PromptStore) Load(name string) (string, error) {
	s.installOnce.Do(s.install)

	s.mu.RLock()
	p, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := s.resolve(name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		p = cached
	} else {
		s.cache[name] = p
	}
	s.mu.Unlock()
	return p, nil
}

// Reload forgets cached templates so edits on disk are picked up.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

func (s *PromptStore) resolve(name string) (string, error) {
	def, hasDefault := DefaultPrompt(name)

	data, err := os.ReadFile(filepath.Join(s.dir, name+promptExt))
	switch {
	case err == nil:
		custom := strings.TrimSpace(string(data))
		if !hasDefault || placeholdersMatch(def, custom) {
			return custom, nil
		}
		logger.Warn("Prompt %s: %v, using the built-in prompt", name, errPlaceholders)
	case !errors.Is(err, fs.ErrNotExist):
		logger.Warn("Prompt %s unreadable: %v", name, err)
	}

	if !hasDefault {
		return "", fmt.Errorf("%w: prompt %q", domain.ErrNotFound, name)
	}
	return def, nil
}

// install writes the built-in templates and README into the directory,
// leaving existing files alone.
func (s *PromptStore) install() {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		logger.Warn("Prompt directory %s: %v", s.dir, err)
		return
	}

	entries, err := fs.ReadDir(defaultFS, defaultsRoot)
	if err != nil {
		return
	}
	for _, e := range entries {
		dst := filepath.Join(s.dir, e.Name())
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		data, err := defaultFS.ReadFile(path.Join(defaultsRoot, e.Name()))
		if err != nil {
			continue
		}
		if err := os.WriteFile(dst, data, 0600); err != nil {
			logger.Warn("Writing %s: %v", dst, err)
			return
		}
	}
}

// placeholdersMatch reports whether custom has as many %s verbs as def.
func placeholdersMatch(def, custom string) bool {
	return strings.Count(custom, "%s") == strings.Count(def, "%s")
}
