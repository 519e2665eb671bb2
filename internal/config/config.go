package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the thicket configuration file
const ConfigFileName = "config.yaml"

// ConfigDirName is the name of the thicket configuration directory
const ConfigDirName = ".thicket"

// Config holds all thicket configuration
type Config struct {
	SearchPaths []string      `yaml:"search_paths"`
	Cache       CacheConfig   `yaml:"cache"`
	Brains      BrainsConfig  `yaml:"brains"`
	Preload     PreloadConfig `yaml:"preload"`
	Output      OutputConfig  `yaml:"output"`

	// Root is the directory relative paths are resolved against: the
	// parent of the .thicket directory the file was found in, or the
	// file's own directory for an explicit path. Empty for defaults.
	Root string `yaml:"-"`
}

// CacheConfig holds configuration for the SQLite tree cache
type CacheConfig struct {
	// Path is the database file. Empty disables the cache.
	Path string `yaml:"path"`
}

// BrainsConfig selects the brain plugins
type BrainsConfig struct {
	// Enabled lists brain names to load. Empty loads them all.
	Enabled []string `yaml:"enabled"`
	// Dir loads scripts and manifest from disk instead of the embedded set.
	Dir string `yaml:"dir"`
}

// PreloadConfig holds configuration for parallel parsing
type PreloadConfig struct {
	Workers int `yaml:"workers"`
}

// OutputConfig holds configuration for CLI output
type OutputConfig struct {
	Format string `yaml:"format"`
}

// ErrConfigNotFound is returned when no config file can be found
var ErrConfigNotFound = errors.New("config file not found")

// ErrInvalidConfig is returned when config validation fails
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidFormats lists the accepted output formats.
var ValidFormats = []string{"json", "text", "auto"}

// IsValidFormat reports whether format is an accepted output format.
func IsValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Load reads config from .thicket/config.yaml, falling back to defaults.
// It searches for the config directory starting from workDir and walking up
// the directory tree. If no config is found, returns defaults.
func Load(workDir string) (*Config, error) {
	configDir, err := FindConfigDir(workDir)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg, err := LoadFromPath(filepath.Join(configDir, ConfigFileName))
	if err != nil {
		return nil, err
	}
	cfg.Root = filepath.Dir(configDir)
	return cfg, nil
}

// LoadFromPath reads config from a specific path.
// Merges loaded config with defaults and validates the result.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	loaded := &Config{}
	if err := yaml.Unmarshal(data, loaded); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	merged := Merge(loaded, DefaultConfig())
	if err := Validate(merged); err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
		merged.Root = abs
	}
	return merged, nil
}

// FindConfigDir locates the .thicket directory by walking up from startDir.
// Returns the path to the .thicket directory if found.
func FindConfigDir(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	currentDir := absDir
	for {
		configDir := filepath.Join(currentDir, ConfigDirName)
		info, err := os.Stat(configDir)
		if err == nil && info.IsDir() {
			return configDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", ErrConfigNotFound
		}
		currentDir = parentDir
	}
}

// Validate checks that config values are valid.
// Returns an error if validation fails.
func Validate(cfg *Config) error {
	if !IsValidFormat(cfg.Output.Format) {
		return fmt.Errorf("%w: output.format must be one of %v, got %q",
			ErrInvalidConfig, ValidFormats, cfg.Output.Format)
	}

	if cfg.Preload.Workers <= 0 {
		return fmt.Errorf("%w: preload.workers must be positive, got %d",
			ErrInvalidConfig, cfg.Preload.Workers)
	}

	for _, p := range cfg.SearchPaths {
		if p == "" {
			return fmt.Errorf("%w: search_paths must not contain empty entries", ErrInvalidConfig)
		}
	}

	for _, name := range cfg.Brains.Enabled {
		if name == "" {
			return fmt.Errorf("%w: brains.enabled must not contain empty names", ErrInvalidConfig)
		}
	}

	return nil
}

// ResolvePath makes p absolute against the config root. Absolute paths
// and an empty root leave p unchanged.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

// ResolvedSearchPaths returns the search paths resolved against the root.
func (c *Config) ResolvedSearchPaths() []string {
	out := make([]string, len(c.SearchPaths))
	for i, p := range c.SearchPaths {
		out[i] = c.ResolvePath(p)
	}
	return out
}
