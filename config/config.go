// Package config handles neuron.toml project configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/nnl/graph"
	"github.com/chazu/nnl/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "neuron.toml"

// ErrInvalidConfig wraps schema and value errors.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents a neuron.toml project configuration.
type Config struct {
	Project   Project   `toml:"project"`
	Modules   Modules   `toml:"modules"`
	Processor Processor `toml:"processor"`
	Logging   Logging   `toml:"logging"`
	GC        GC        `toml:"gc"`

	// Dir is the directory containing the neuron.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Modules configures where compiled modules are found and stored.
type Modules struct {
	Dirs      []string `toml:"dirs"`
	Store     string   `toml:"store"`
	CacheSize int      `toml:"cache-size"`
	Extension string   `toml:"extension"`
}

// Processor tunes the processor factory.
type Processor struct {
	PoolSize     int `toml:"pool-size"`
	StackReserve int `toml:"stack-reserve"`
}

// Logging configures commonlog and the suppressible warnings.
type Logging struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`

	// LogInvalidAddChildArgs defaults to true when absent.
	LogInvalidAddChildArgs *bool `toml:"log-invalid-add-child-args"`
}

// GC configures the temp sweeper.
type GC struct {
	TempSweepInterval Duration `toml:"temp-sweep-interval"`
	Disabled          bool     `toml:"disabled"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no neuron.toml exists.
func Default(dir string) *Config {
	c := &Config{Dir: dir}
	c.applyDefaults()
	return c
}

// Load parses a neuron.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// Parse decodes and validates configuration text. Unknown keys and values
// of the wrong type are rejected by the schema before decoding.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var c Config
	if _, err := toml.Decode(string(data), &c); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a neuron.toml file,
// then loads and returns the configuration. Returns nil if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if len(c.Modules.Dirs) == 0 {
		c.Modules.Dirs = []string{"modules"}
	}
	if c.Modules.Store == "" {
		c.Modules.Store = filepath.Join(".nnl", "modules.db")
	}
	if c.Modules.CacheSize == 0 {
		c.Modules.CacheSize = 64
	}
	if c.Modules.Extension == "" {
		c.Modules.Extension = ".nnm"
	}
	d := vm.DefaultSettings()
	if c.Processor.PoolSize == 0 {
		c.Processor.PoolSize = d.PoolSize
	}
	if c.Processor.StackReserve == 0 {
		c.Processor.StackReserve = d.StackReserve
	}
	if c.Logging.LogInvalidAddChildArgs == nil {
		v := d.LogInvalidAddChildArgs
		c.Logging.LogInvalidAddChildArgs = &v
	}
	if c.GC.TempSweepInterval.Duration == 0 {
		c.GC.TempSweepInterval.Duration = graph.DefaultTempSweepInterval
	}
}

// VMSettings returns the processor settings of the configuration.
func (c *Config) VMSettings() vm.Settings {
	s := vm.DefaultSettings()
	s.PoolSize = c.Processor.PoolSize
	s.StackReserve = c.Processor.StackReserve
	if c.Logging.LogInvalidAddChildArgs != nil {
		s.LogInvalidAddChildArgs = *c.Logging.LogInvalidAddChildArgs
	}
	return s
}

// ModuleDirPaths returns absolute paths for the configured module directories.
func (c *Config) ModuleDirPaths() []string {
	var paths []string
	for _, d := range c.Modules.Dirs {
		paths = append(paths, c.resolve(d))
	}
	return paths
}

// StorePath returns the path of the module database.
func (c *Config) StorePath() string {
	return c.resolve(c.Modules.Store)
}

// LogFile returns the configured log file, or nil for stderr.
func (c *Config) LogFile() *string {
	if c.Logging.File == "" {
		return nil
	}
	path := c.resolve(c.Logging.File)
	return &path
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
