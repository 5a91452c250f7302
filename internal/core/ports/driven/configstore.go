package driven

import "time"

// ConfigStore provides access to persisted configuration.
// Keys are dotted paths into the file (e.g. "embedding.model").
type ConfigStore interface {
	// Get retrieves a configuration value by key.
	// Returns the value and a boolean indicating if the key exists.
	Get(key string) (any, bool)

	// GetString returns "" if the key doesn't exist or isn't a string.
	GetString(key string) string

	// GetInt returns 0 if the key doesn't exist or isn't a number.
	GetInt(key string) int

	// GetFloat returns 0 if the key doesn't exist or isn't a number.
	GetFloat(key string) float64

	// GetBool returns false if the key doesn't exist or isn't a boolean.
	GetBool(key string) bool

	// GetDuration parses a Go duration string ("30s"). Returns 0 on failure.
	GetDuration(key string) time.Duration

	// Keys returns every stored key, sorted.
	Keys() []string

	// Set stores a value and persists the file.
	Set(key string, value any) error

	// Save persists the current configuration.
	Save() error

	// Load reads configuration from storage.
	Load() error

	// Path returns the configuration file path.
	Path() string
}
