package kernel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/nbkernel/backend/calc"
	"github.com/tailored-agentic-units/nbkernel/display"
	"github.com/tailored-agentic-units/nbkernel/history"
	"github.com/tailored-agentic-units/nbkernel/session"
	"github.com/tailored-agentic-units/nbkernel/transport"
)

const defaultShellQueue = 64

// Config holds initialization parameters for all kernel subsystems.
// Each section is handed to that subsystem's constructor.
type Config struct {
	// Backend names the interpreter in the backend registry.
	Backend   string           `json:"backend,omitempty" yaml:"backend,omitempty" toml:"backend,omitempty"`
	Session   session.Config   `json:"session" yaml:"session" toml:"session"`
	History   history.Config   `json:"history" yaml:"history" toml:"history"`
	Display   display.Config   `json:"display" yaml:"display" toml:"display"`
	Transport transport.Config `json:"transport" yaml:"transport" toml:"transport"`
	// ShellQueue is how many shell requests may wait behind the running one.
	ShellQueue int `json:"shell_queue,omitempty" yaml:"shell_queue,omitempty" toml:"shell_queue,omitempty"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Backend:    calc.Name,
		Session:    session.DefaultConfig(),
		History:    history.DefaultConfig(),
		Display:    display.DefaultConfig(),
		Transport:  transport.DefaultConfig(),
		ShellQueue: defaultShellQueue,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Session.Merge(&source.Session)
	c.History.Merge(&source.History)
	c.Display.Merge(&source.Display)
	c.Transport.Merge(&source.Transport)

	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.ShellQueue > 0 {
		c.ShellQueue = source.ShellQueue
	}
}

// LoadConfig reads a config file, merges it with defaults, and returns the
// result. The format follows the extension: .json, .yaml/.yml or .toml.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".json":
		err = json.Unmarshal(data, &loaded)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	case ".toml":
		err = toml.Unmarshal(data, &loaded)
	default:
		return nil, &Error{Kind: KindConfiguration, Op: "load config", Err: fmt.Errorf("unsupported config format %q", ext)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Merge(&loaded)
	return &cfg, nil
}
