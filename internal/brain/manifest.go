package brain

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest's path inside a brains filesystem.
const ManifestFile = "brains.yaml"

// KindCall marks a brain that replaces the result of calling its callee.
const KindCall = "call"

// ErrInvalidManifest is returned when the manifest fails validation.
var ErrInvalidManifest = errors.New("invalid brain manifest")

// Entry describes one brain.
type Entry struct {
	Name string `yaml:"name"`
	// Script is the .risor file relative to the brains root.
	Script string `yaml:"script"`
	// Callee is a dotted name ("collections.namedtuple") or a bare one.
	Callee string `yaml:"callee"`
	Kind   string `yaml:"kind"`
}

// Manifest is the parsed brains.yaml.
type Manifest struct {
	Brains []Entry `yaml:"brains"`
}

// LoadManifest reads and validates the manifest at the root of fsys.
func LoadManifest(fsys fs.FS) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("brain: reading manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("brain: parsing manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks every entry. Kind defaults to call.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Brains))
	for i := range m.Brains {
		e := &m.Brains[i]
		if e.Name == "" {
			return fmt.Errorf("%w: entry %d has no name", ErrInvalidManifest, i)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: duplicate brain %q", ErrInvalidManifest, e.Name)
		}
		seen[e.Name] = true
		if e.Script == "" {
			return fmt.Errorf("%w: brain %q has no script", ErrInvalidManifest, e.Name)
		}
		if e.Callee == "" {
			return fmt.Errorf("%w: brain %q has no callee", ErrInvalidManifest, e.Name)
		}
		if e.Kind == "" {
			e.Kind = KindCall
		}
		if e.Kind != KindCall {
			return fmt.Errorf("%w: brain %q has unknown kind %q", ErrInvalidManifest, e.Name, e.Kind)
		}
	}
	return nil
}

// Select returns the entries named in enabled, in manifest order. An empty
// enabled list selects every entry. Unknown names are an error.
func (m *Manifest) Select(enabled []string) ([]Entry, error) {
	if len(enabled) == 0 {
		return slices.Clone(m.Brains), nil
	}
	for _, name := range enabled {
		if !slices.ContainsFunc(m.Brains, func(e Entry) bool { return e.Name == name }) {
			return nil, fmt.Errorf("%w: unknown brain %q", ErrInvalidManifest, name)
		}
	}
	var out []Entry
	for _, e := range m.Brains {
		if slices.Contains(enabled, e.Name) {
			out = append(out, e)
		}
	}
	return out, nil
}
