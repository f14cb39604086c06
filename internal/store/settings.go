package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/leanprover/elan/internal/issue"
)

// MetadataVersion is the settings.toml schema version this build writes
// and the only version it reads. original_source/src/elan/settings.rs
// accepted a pair of legacy versions ("2", "12"); this build starts a
// fresh store format, so it recognizes only its own version and reports
// anything else as a schema mismatch rather than silently upgrading it.
const MetadataVersion = "13"

// DefaultOriginFallback is the default-origin setting used the first
// time settings.toml is created. See the Open Question decision in
// DESIGN.md: this is always an explicit, overridable setting, never
// inferred from a descriptor's shape.
const DefaultOriginFallback = "leanprover/lean4"

// Settings is the persisted shape of settings.toml, mirroring
// original_source/src/elan/settings.rs's Settings struct with the fields
// spec.md's C10 adds: DefaultOrigin, AutoSelfUpdate, and
// DefaultHostTriple.
type Settings struct {
	Version           string            `toml:"version"`
	DefaultToolchain  string            `toml:"default_toolchain,omitempty"`
	DefaultOrigin     string            `toml:"default_origin"`
	Overrides         map[string]string `toml:"overrides"`
	Links             map[string]string `toml:"links"`
	Telemetry         bool              `toml:"telemetry"`
	AutoSelfUpdate    bool              `toml:"auto_self_update"`
	DefaultHostTriple string            `toml:"default_host_triple,omitempty"`
}

func defaultSettings() Settings {
	return Settings{
		Version:        MetadataVersion,
		DefaultOrigin:  DefaultOriginFallback,
		Overrides:      map[string]string{},
		Links:          map[string]string{},
		Telemetry:      false,
		AutoSelfUpdate: false,
	}
}

// SettingsFile is a cached, mutex-guarded handle onto settings.toml.
// Mirrors SettingsFile in original_source/src/elan/settings.rs (a
// RefCell-cached table plus read/write helpers); Go's sync.Mutex
// replaces the RefCell since SettingsFile may be shared across the
// download/extract goroutines described in spec.md §5.
type SettingsFile struct {
	path string

	mu    sync.Mutex
	cache *Settings
}

// NewSettingsFile returns a handle onto the settings file at path. Call
// With or WithMut to read or mutate it; both lazily load and cache on
// first use, matching the original's read-on-first-access behavior.
func NewSettingsFile(path string) *SettingsFile {
	return &SettingsFile{path: path}
}

func (f *SettingsFile) load() error {
	if f.cache != nil {
		return nil
	}
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		s := defaultSettings()
		f.cache = &s
		return f.persistLocked()
	}
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("read settings").
			WithResource(f.path).
			Wrap(err).
			BuildError()
	}

	var s Settings
	if err := toml.Unmarshal(data, &s); err != nil {
		return issue.NewErrorContext().
			WithOperation("parse settings").
			WithResource(f.path).
			WithSuggestion("The file may be corrupt; remove it to regenerate defaults").
			Wrap(err).
			BuildError()
	}
	if s.Version != MetadataVersion {
		return issue.NewErrorContext().
			WithOperation("load settings").
			WithResource(f.path).
			WithSuggestion(fmt.Sprintf("Expected metadata version %s, found %s", MetadataVersion, s.Version)).
			BuildError()
	}
	if s.Overrides == nil {
		s.Overrides = map[string]string{}
	}
	if s.Links == nil {
		s.Links = map[string]string{}
	}
	if s.DefaultOrigin == "" {
		s.DefaultOrigin = DefaultOriginFallback
	}
	f.cache = &s
	return nil
}

// persistLocked writes the cached settings to disk. Caller must hold mu.
func (f *SettingsFile) persistLocked() error {
	data, err := toml.Marshal(*f.cache)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	return writeFileAtomic(f.path, data, 0o644)
}

// With runs fn against the current settings without persisting changes;
// use for read-only access.
func (f *SettingsFile) With(fn func(Settings) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	return fn(*f.cache)
}

// WithMut runs fn against a mutable copy of the settings and persists the
// result if fn returns nil, mirroring SettingsFile::with_mut's
// read-mutate-write contract in the original implementation.
func (f *SettingsFile) WithMut(fn func(*Settings) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	if err := fn(f.cache); err != nil {
		return err
	}
	return f.persistLocked()
}

// SetDefault sets the default toolchain descriptor text.
func (f *SettingsFile) SetDefault(descriptorText string) error {
	return f.WithMut(func(s *Settings) error {
		s.DefaultToolchain = descriptorText
		return nil
	})
}

// SetDefaultOrigin sets the explicit default-origin setting (see the
// Open Question decision in DESIGN.md).
func (f *SettingsFile) SetDefaultOrigin(origin string) error {
	return f.WithMut(func(s *Settings) error {
		s.DefaultOrigin = origin
		return nil
	})
}

// AddOverride records a directory-scoped override, keyed by the
// canonicalized directory path, mirroring Settings::add_override.
func (f *SettingsFile) AddOverride(dirKey, descriptorText string) error {
	return f.WithMut(func(s *Settings) error {
		if s.Overrides == nil {
			s.Overrides = map[string]string{}
		}
		s.Overrides[dirKey] = descriptorText
		return nil
	})
}

// RemoveOverride removes a directory-scoped override and reports whether
// one was present, mirroring Settings::remove_override.
func (f *SettingsFile) RemoveOverride(dirKey string) (removed bool, err error) {
	err = f.WithMut(func(s *Settings) error {
		if _, ok := s.Overrides[dirKey]; ok {
			delete(s.Overrides, dirKey)
			removed = true
		}
		return nil
	})
	return removed, err
}

// DirOverride looks up the override recorded for an exact directory key,
// mirroring Settings::dir_override. The override engine (C7) is
// responsible for the ancestor walk; this only does the exact-key
// lookup.
func (f *SettingsFile) DirOverride(dirKey string) (descriptorText string, ok bool, err error) {
	err = f.With(func(s Settings) error {
		descriptorText, ok = s.Overrides[dirKey]
		return nil
	})
	return descriptorText, ok, err
}

// ListOverrides returns a copy of all recorded overrides, for `elan
// override list`. The map is unordered; SortedOverrideKeys gives its
// keys in sorted order.
func (f *SettingsFile) ListOverrides() (map[string]string, error) {
	var out map[string]string
	err := f.With(func(s Settings) error {
		out = make(map[string]string, len(s.Overrides))
		for k, v := range s.Overrides {
			out[k] = v
		}
		return nil
	})
	return out, err
}

// AddLink registers a linked toolchain, mirroring `elan toolchain link`.
func (f *SettingsFile) AddLink(name, path string) error {
	return f.WithMut(func(s *Settings) error {
		if s.Links == nil {
			s.Links = map[string]string{}
		}
		s.Links[name] = path
		return nil
	})
}

// RemoveLink removes a linked toolchain registration and reports whether
// one was present.
func (f *SettingsFile) RemoveLink(name string) (removed bool, err error) {
	err = f.WithMut(func(s *Settings) error {
		if _, ok := s.Links[name]; ok {
			delete(s.Links, name)
			removed = true
		}
		return nil
	})
	return removed, err
}

// IsLinked implements descriptor.LinkedNames, so the descriptor parser
// can recognize a bare name as a Linked variant.
func (f *SettingsFile) IsLinked(name string) bool {
	_, ok, _ := f.linkPath(name)
	return ok
}

// LinkPath returns the directory a linked toolchain name points at.
func (f *SettingsFile) LinkPath(name string) (string, bool, error) {
	return f.linkPath(name)
}

func (f *SettingsFile) linkPath(name string) (path string, ok bool, err error) {
	err = f.With(func(s Settings) error {
		path, ok = s.Links[name]
		return nil
	})
	return path, ok, err
}

// ListLinks returns all registered linked toolchains.
func (f *SettingsFile) ListLinks() (map[string]string, error) {
	var out map[string]string
	err := f.With(func(s Settings) error {
		out = make(map[string]string, len(s.Links))
		for k, v := range s.Links {
			out[k] = v
		}
		return nil
	})
	return out, err
}

// SortedOverrideKeys is a small helper for deterministic CLI output.
func SortedOverrideKeys(overrides map[string]string) []string {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
