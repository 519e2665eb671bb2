package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	configDir := filepath.Join(dir, ConfigDirName)
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	path := filepath.Join(configDir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, []string{"."}, cfg.SearchPaths)
	assert.Empty(t, cfg.Cache.Path)
	assert.Empty(t, cfg.Brains.Enabled)
	assert.Empty(t, cfg.Brains.Dir)
	assert.Equal(t, 4, cfg.Preload.Workers)
	assert.Equal(t, "auto", cfg.Output.Format)
	require.NoError(t, Validate(cfg))
}

func TestIsValidFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format string
		valid  bool
	}{
		{"json", true},
		{"text", true},
		{"auto", true},
		{"yaml", false},
		{"", false},
		{"JSON", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValidFormat(tt.format), tt.format)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"invalid format", func(c *Config) { c.Output.Format = "xml" }, true},
		{"zero workers", func(c *Config) { c.Preload.Workers = 0 }, true},
		{"negative workers", func(c *Config) { c.Preload.Workers = -2 }, true},
		{"empty search path", func(c *Config) { c.SearchPaths = []string{"src", ""} }, true},
		{"empty brain name", func(c *Config) { c.Brains.Enabled = []string{""} }, true},
		{"named brains", func(c *Config) { c.Brains.Enabled = []string{"namedtuple"} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := Validate(cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()
	defaults := DefaultConfig()

	t.Run("empty loaded uses all defaults", func(t *testing.T) {
		merged := Merge(&Config{}, defaults)
		assert.Equal(t, defaults.SearchPaths, merged.SearchPaths)
		assert.Equal(t, defaults.Preload, merged.Preload)
		assert.Equal(t, defaults.Output, merged.Output)
	})

	t.Run("loaded values take precedence", func(t *testing.T) {
		loaded := &Config{
			SearchPaths: []string{"src", "lib"},
			Cache:       CacheConfig{Path: "cache.db"},
			Brains:      BrainsConfig{Enabled: []string{"namedtuple"}, Dir: "brains"},
			Output:      OutputConfig{Format: "json"},
		}
		merged := Merge(loaded, defaults)
		assert.Equal(t, []string{"src", "lib"}, merged.SearchPaths)
		assert.Equal(t, "cache.db", merged.Cache.Path)
		assert.Equal(t, []string{"namedtuple"}, merged.Brains.Enabled)
		assert.Equal(t, "brains", merged.Brains.Dir)
		assert.Equal(t, "json", merged.Output.Format)
		// Unset values use defaults.
		assert.Equal(t, defaults.Preload.Workers, merged.Preload.Workers)
	})
}

func TestLoad_WalksUp(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfig(t, root, `
search_paths: [src]
cache:
  path: .thicket/cache.db
preload:
  workers: 8
output:
  format: text
`)
	nested := filepath.Join(root, "src", "pkg", "deep")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := Load(nested)
	require.NoError(t, err)
	assert.Equal(t, []string{"src"}, cfg.SearchPaths)
	assert.Equal(t, 8, cfg.Preload.Workers)
	assert.Equal(t, "text", cfg.Output.Format)

	absRoot, err := filepath.Abs(root)
	require.NoError(t, err)
	assert.Equal(t, absRoot, cfg.Root)
	assert.Equal(t, []string{filepath.Join(absRoot, "src")}, cfg.ResolvedSearchPaths())
	assert.Equal(t, filepath.Join(absRoot, ".thicket", "cache.db"), cfg.ResolvePath(cfg.Cache.Path))
}

func TestLoad_NoConfigUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestFindConfigDir_NotFound(t *testing.T) {
	t.Parallel()
	_, err := FindConfigDir(t.TempDir())
	// A .thicket directory above the temp dir would be found instead; the
	// temp root is not expected to carry one.
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestLoadFromPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	t.Run("missing file gives defaults", func(t *testing.T) {
		cfg, err := LoadFromPath(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("search_paths: [unclosed\n"), 0o644))
		_, err := LoadFromPath(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("output:\n  format: html\n"), 0o644))
		_, err := LoadFromPath(path)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("negative workers rejected", func(t *testing.T) {
		path := filepath.Join(dir, "workers.yaml")
		require.NoError(t, os.WriteFile(path, []byte("preload:\n  workers: -1\n"), 0o644))
		_, err := LoadFromPath(path)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("root is the file's directory", func(t *testing.T) {
		path := filepath.Join(dir, "explicit.yaml")
		require.NoError(t, os.WriteFile(path, []byte("search_paths: [lib]\n"), 0o644))
		cfg, err := LoadFromPath(path)
		require.NoError(t, err)
		absDir, err := filepath.Abs(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(absDir, "lib")}, cfg.ResolvedSearchPaths())
	})
}
