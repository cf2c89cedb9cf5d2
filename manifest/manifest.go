// Package manifest handles clawr.toml runtime configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/clawr/vm"
)

// FileName is the name of the configuration file.
const FileName = "clawr.toml"

var log = commonlog.GetLogger("clawr.manifest")

// Manifest represents a clawr.toml configuration.
type Manifest struct {
	Project Project       `toml:"project"`
	Heap    HeapConfig    `toml:"heap"`
	Isolate IsolateConfig `toml:"isolate"`
	Log     LogConfig     `toml:"log"`

	// Path is the file the manifest was loaded from (empty for defaults).
	Path string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// HeapConfig configures the entity heap.
type HeapConfig struct {
	// MaxBytes caps live entity bytes. Zero means unlimited.
	MaxBytes     int64  `toml:"max-bytes"`
	OnExhaustion string `toml:"on-exhaustion"`
}

// IsolateConfig configures the copy-on-write contention backoff.
type IsolateConfig struct {
	SpinRetries *int     `toml:"spin-retries"`
	Backoff     Duration `toml:"backoff"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Duration is a time.Duration written as a string such as "100us".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no clawr.toml exists.
func Default() *Manifest {
	opts := vm.DefaultHeapOptions()
	spin := opts.SpinRetries
	return &Manifest{
		Heap:    HeapConfig{OnExhaustion: opts.OnExhaustion.String()},
		Isolate: IsolateConfig{SpinRetries: &spin, Backoff: Duration{opts.BackoffSleep}},
	}
}

// Load parses the clawr.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a configuration file. Settings missing from the file keep
// their defaults.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if _, err := m.HeapOptions(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("loaded %s", m.Path)
	return m, nil
}

// FindAndLoad walks up from startDir to find a clawr.toml file,
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

// HeapOptions converts the configuration to heap options.
func (m *Manifest) HeapOptions() (vm.HeapOptions, error) {
	opts := vm.DefaultHeapOptions()

	if m.Heap.MaxBytes < 0 {
		return opts, fmt.Errorf("heap.max-bytes must not be negative, got %d", m.Heap.MaxBytes)
	}
	opts.MaxBytes = m.Heap.MaxBytes

	policy, err := vm.ParseExhaustionPolicy(m.Heap.OnExhaustion)
	if err != nil {
		return opts, fmt.Errorf("heap.on-exhaustion: %w", err)
	}
	opts.OnExhaustion = policy

	if m.Isolate.SpinRetries != nil {
		if *m.Isolate.SpinRetries < 0 {
			return opts, fmt.Errorf("isolate.spin-retries must not be negative, got %d", *m.Isolate.SpinRetries)
		}
		opts.SpinRetries = *m.Isolate.SpinRetries
	}
	if m.Isolate.Backoff.Duration < 0 {
		return opts, fmt.Errorf("isolate.backoff must not be negative, got %s", m.Isolate.Backoff)
	}
	opts.BackoffSleep = m.Isolate.Backoff.Duration
	return opts, nil
}

// ConfigureLogging applies the log settings to the commonlog backend.
// extraVerbosity is added to the configured verbosity (command-line -v).
func (m *Manifest) ConfigureLogging(extraVerbosity int) {
	var path *string
	if m.Log.File != "" {
		path = &m.Log.File
	}
	commonlog.Configure(m.Log.Verbosity+extraVerbosity, path)
}
