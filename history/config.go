package history

const defaultMaxEntries = 10000

// Config holds history initialization parameters.
type Config struct {
	// Path is the FileStore directory. Empty keeps history in memory only.
	Path string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	// MaxEntries bounds how many earlier entries are loaded at startup.
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty" toml:"max_entries,omitempty"`
}

// DefaultConfig returns the default history configuration (in memory).
func DefaultConfig() Config {
	return Config{MaxEntries: defaultMaxEntries}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.MaxEntries > 0 {
		c.MaxEntries = source.MaxEntries
	}
}

// NewStore creates a Store from configuration: a FileStore when Path is set,
// otherwise a memory store.
func NewStore(cfg *Config) Store {
	if cfg.Path == "" {
		return NewMemoryStore()
	}
	return NewFileStore(cfg.Path)
}
