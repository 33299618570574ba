package display

// Config holds formatter registry parameters.
type Config struct {
	// DisableImageMetadata omits width/height metadata on images.
	DisableImageMetadata bool `json:"disable_image_metadata,omitempty" yaml:"disable_image_metadata,omitempty" toml:"disable_image_metadata,omitempty"`
	// DisableJSON stops maps and slices from rendering as application/json.
	DisableJSON bool `json:"disable_json,omitempty" yaml:"disable_json,omitempty" toml:"disable_json,omitempty"`
	// PlainTextLimit truncates text/plain to this many runes. Zero means no limit.
	PlainTextLimit int `json:"plain_text_limit,omitempty" yaml:"plain_text_limit,omitempty" toml:"plain_text_limit,omitempty"`
}

// DefaultConfig returns the default display configuration.
func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.DisableImageMetadata {
		c.DisableImageMetadata = true
	}
	if source.DisableJSON {
		c.DisableJSON = true
	}
	if source.PlainTextLimit > 0 {
		c.PlainTextLimit = source.PlainTextLimit
	}
}
