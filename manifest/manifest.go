// Package manifest handles babygc.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/babygc/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "babygc.toml"

// Manifest represents a babygc.toml configuration.
type Manifest struct {
	Collector Collector     `toml:"collector"`
	Log       LogConfig     `toml:"log"`
	Journal   JournalConfig `toml:"journal"`
	Image     ImageConfig   `toml:"image"`

	// Dir is the directory containing the babygc.toml file (set at load time).
	Dir string `toml:"-"`
}

// Collector configures the collection policy.
type Collector struct {
	// Both are nil when unset; zero is a valid threshold.
	InitialThreshold *int `toml:"initial-threshold"`
	GrowthFactor     *int `toml:"growth-factor"`
}

// LogConfig configures commonlog output.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// JournalConfig configures the collection journal.
type JournalConfig struct {
	Path string `toml:"path"`
}

// ImageConfig configures heap image output.
type ImageConfig struct {
	Output string `toml:"output"`
}

// Load parses a babygc.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes and validates babygc.toml content. Dir is left empty.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a babygc.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
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

// Validate rejects settings the collector cannot use.
func (m *Manifest) Validate() error {
	if t := m.Collector.InitialThreshold; t != nil && *t < 0 {
		return fmt.Errorf("collector.initial-threshold must be >= 0, got %d", *t)
	}
	if g := m.Collector.GrowthFactor; g != nil && *g < 1 {
		return fmt.Errorf("collector.growth-factor must be >= 1, got %d", *g)
	}
	return nil
}

// VMOptions maps the collector settings onto VM options. Unset values
// keep the VM defaults.
func (m *Manifest) VMOptions() []vm.Option {
	var opts []vm.Option
	if t := m.Collector.InitialThreshold; t != nil {
		opts = append(opts, vm.WithInitialThreshold(*t))
	}
	if g := m.Collector.GrowthFactor; g != nil {
		opts = append(opts, vm.WithGrowthFactor(*g))
	}
	return opts
}

// JournalPath returns the journal database path resolved against Dir,
// or "" if no journal is configured.
func (m *Manifest) JournalPath() string {
	return m.resolve(m.Journal.Path)
}

// ImageOutputPath returns the image output path resolved against Dir,
// or "" if none is configured.
func (m *Manifest) ImageOutputPath() string {
	return m.resolve(m.Image.Output)
}

// LogFilePath returns the log file path resolved against Dir, or "" to
// log to stderr.
func (m *Manifest) LogFilePath() string {
	return m.resolve(m.Log.File)
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
