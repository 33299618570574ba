package transport

const (
	defaultMaxFrameBytes = 256 << 20
	defaultMaxBuffers    = 1024
)

// Config holds transport limits.
type Config struct {
	MaxFrameBytes int `json:"max_frame_bytes,omitempty" yaml:"max_frame_bytes,omitempty" toml:"max_frame_bytes,omitempty"`
	MaxBuffers    int `json:"max_buffers,omitempty" yaml:"max_buffers,omitempty" toml:"max_buffers,omitempty"`
}

// DefaultConfig returns the default transport limits.
func DefaultConfig() Config {
	return Config{
		MaxFrameBytes: defaultMaxFrameBytes,
		MaxBuffers:    defaultMaxBuffers,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MaxFrameBytes > 0 {
		c.MaxFrameBytes = source.MaxFrameBytes
	}
	if source.MaxBuffers > 0 {
		c.MaxBuffers = source.MaxBuffers
	}
}
