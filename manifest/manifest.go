// Package manifest handles minnow.toml run configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a minnow.toml run configuration.
type Manifest struct {
	Program Program     `toml:"program"`
	Run     Run         `toml:"run"`
	Natives Natives     `toml:"natives"`
	Store   StoreConfig `toml:"store"`

	// Dir is the directory containing the minnow.toml file (set at load time).
	Dir string `toml:"-"`
}

// Program names the image to execute.
type Program struct {
	Path  string `toml:"path"`
	Entry uint32 `toml:"entry"`
}

// Run holds execution settings. Zero limits mean unlimited.
type Run struct {
	Trace     bool   `toml:"trace"`
	StepLimit uint64 `toml:"step-limit"`
	HeapLimit int    `toml:"heap-limit"`
}

// Natives toggles the builtin trees. Both default to on.
type Natives struct {
	IO  bool `toml:"io"`
	Sys bool `toml:"sys"`
}

// StoreConfig configures the program store location.
type StoreConfig struct {
	Path string `toml:"path"`
}

// Load parses a minnow.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "minnow.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	// Absent keys leave the pre-set values untouched, which is how the
	// native toggles default to on.
	m := Manifest{
		Natives: Natives{IO: true, Sys: true},
	}
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Program.Path == "" {
		m.Program.Path = "main.mni"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a minnow.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "minnow.toml")
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

// ProgramPath returns the absolute path of the configured program image.
func (m *Manifest) ProgramPath() string {
	if filepath.IsAbs(m.Program.Path) {
		return m.Program.Path
	}
	return filepath.Join(m.Dir, m.Program.Path)
}

// StorePath returns the absolute path of the program store database,
// defaulting to .minnow/programs.db beside the manifest.
func (m *Manifest) StorePath() string {
	if m.Store.Path == "" {
		return filepath.Join(m.Dir, ".minnow", "programs.db")
	}
	if filepath.IsAbs(m.Store.Path) {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}
