package config

// DefaultConfig returns configuration with sensible defaults.
// These defaults are used when no config file exists or when
// config file is missing specific fields.
func DefaultConfig() *Config {
	return &Config{
		SearchPaths: []string{"."},
		Preload: PreloadConfig{
			Workers: 4,
		},
		Output: OutputConfig{
			Format: "auto",
		},
	}
}

// Merge merges loaded config with defaults.
// Values from loaded config take precedence over defaults.
// Returns a new Config with merged values.
func Merge(loaded, defaults *Config) *Config {
	result := &Config{Root: loaded.Root}

	if len(loaded.SearchPaths) > 0 {
		result.SearchPaths = append([]string(nil), loaded.SearchPaths...)
	} else {
		result.SearchPaths = append([]string(nil), defaults.SearchPaths...)
	}

	// The cache is off unless a path is given.
	result.Cache = defaults.Cache
	if loaded.Cache.Path != "" {
		result.Cache.Path = loaded.Cache.Path
	}

	result.Brains = mergeBrainsConfig(loaded.Brains, defaults.Brains)

	result.Preload = defaults.Preload
	if loaded.Preload.Workers != 0 {
		result.Preload.Workers = loaded.Preload.Workers
	}

	result.Output = defaults.Output
	if loaded.Output.Format != "" {
		result.Output.Format = loaded.Output.Format
	}

	return result
}

func mergeBrainsConfig(loaded, defaults BrainsConfig) BrainsConfig {
	result := BrainsConfig{}

	if len(loaded.Enabled) > 0 {
		result.Enabled = append([]string(nil), loaded.Enabled...)
	} else {
		result.Enabled = append([]string(nil), defaults.Enabled...)
	}

	if loaded.Dir != "" {
		result.Dir = loaded.Dir
	} else {
		result.Dir = defaults.Dir
	}

	return result
}
