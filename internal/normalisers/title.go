package normalisers

import (
	"path/filepath"
	"strings"
)

// TitleFromPath derives a human-readable title from a file path:
// the base name without extension, with underscores and dashes as spaces.
func TitleFromPath(uri string) string {
	filename := filepath.Base(uri)
	if ext := filepath.Ext(filename); ext != "" && ext != filename {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return strings.TrimSpace(filename)
}
