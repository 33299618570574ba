package session

const defaultUsername = "kernel"

// Config holds session initialization parameters.
type Config struct {
	// Username is placed in the header of kernel-originated messages.
	Username string `json:"username,omitempty" yaml:"username,omitempty" toml:"username,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{Username: defaultUsername}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Username != "" {
		c.Username = source.Username
	}
}

// New creates a Session from configuration. Currently returns an in-memory session.
func New(cfg *Config, key []byte) (Session, error) {
	username := cfg.Username
	if username == "" {
		username = defaultUsername
	}
	return NewMemorySession(username, key), nil
}
