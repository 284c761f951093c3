package fusion

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/pcdfusion/internal/fsutil"
	"github.com/banshee-data/pcdfusion/internal/geometry"
	"github.com/banshee-data/pcdfusion/internal/pcd"
)

// Manifest describes a fusion run on disk. Relative source paths resolve
// against the manifest's directory.
//
//	mode: transform_filter
//	output: fused.pcd
//	encoding: binary_compressed
//	sources:
//	  - name: front
//	    path: front.pcd
//	    transform: [[1,0,0,1.2],[0,1,0,0],[0,0,1,1.8],[0,0,0,1]]
//	    ignore_areas:
//	      - {x: 0, y: 0, z: 0, length: 4.5, width: 2, height: 2, yaw: 0}
type Manifest struct {
	Mode       string           `yaml:"mode" json:"mode"`
	Output     string           `yaml:"output" json:"output"`
	Encoding   string           `yaml:"encoding" json:"encoding"`
	SkipFailed *bool            `yaml:"skip_failed" json:"skip_failed"`
	Sources    []ManifestSource `yaml:"sources" json:"sources"`

	dir string
}

// ManifestSource is one entry of Manifest.Sources.
type ManifestSource struct {
	Name        string                 `yaml:"name" json:"name"`
	Path        string                 `yaml:"path" json:"path"`
	Transform   [][]float64            `yaml:"transform" json:"transform"`
	IgnoreAreas []geometry.OrientedBox `yaml:"ignore_areas" json:"ignore_areas"`
}

// ParseManifest decodes manifest text. JSON is chosen for a ".json" name,
// YAML otherwise.
func ParseManifest(name string, data []byte) (*Manifest, error) {
	var m Manifest
	if strings.EqualFold(filepath.Ext(name), ".json") {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", name, err)
		}
	} else if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", name, err)
	}
	m.dir = filepath.Dir(name)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads and parses a manifest through fsys.
func LoadManifest(fsys fsutil.FileSystem, path string) (*Manifest, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(path, data)
}

// Validate checks everything that can be checked without reading sources.
func (m *Manifest) Validate() error {
	if _, err := m.FusionMode(); err != nil {
		return err
	}
	if m.Encoding != "" {
		if _, err := pcd.ParseEncoding(m.Encoding); err != nil {
			return err
		}
	}
	if len(m.Sources) == 0 {
		return pcd.Validationf(pcd.CodeEmptyInput, "manifest lists no sources")
	}
	for i, s := range m.Sources {
		if s.Path == "" {
			return pcd.Validationf(pcd.CodeEmptyInput, "source %d has no path", i)
		}
		if s.Transform != nil {
			if _, err := geometry.NewRigidTransform(s.Transform); err != nil {
				return fmt.Errorf("source %s: %w", s.label(), err)
			}
		}
		if err := geometry.ValidateBoxes(s.IgnoreAreas); err != nil {
			return fmt.Errorf("source %s: %w", s.label(), err)
		}
	}
	return nil
}

func (s ManifestSource) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Path
}

// FusionMode returns the manifest's mode, defaulting to transform.
func (m *Manifest) FusionMode() (Mode, error) {
	if m.Mode == "" {
		return ModeTransform, nil
	}
	return ParseMode(m.Mode)
}

// Options folds the manifest's settings over base.
func (m *Manifest) Options(base Options) Options {
	if m.SkipFailed != nil {
		base.SkipFailed = *m.SkipFailed
	}
	if m.Encoding != "" {
		base.Encoding = pcd.Encoding(m.Encoding)
	}
	return base
}

// OutputPath returns the output path resolved against the manifest's
// directory, or "" when none is set.
func (m *Manifest) OutputPath() string {
	if m.Output == "" {
		return ""
	}
	return m.resolve(m.Output)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.dir == "" {
		return p
	}
	return filepath.Join(m.dir, p)
}

// SourcePaths returns each source's path resolved against the manifest's
// directory, in manifest order.
func (m *Manifest) SourcePaths() []string {
	paths := make([]string, len(m.Sources))
	for i, s := range m.Sources {
		paths[i] = m.resolve(s.Path)
	}
	return paths
}

// Dir is the directory relative paths are resolved against.
func (m *Manifest) Dir() string {
	if m.dir == "" {
		return "."
	}
	return m.dir
}

// Load reads every source through fsys.
func (m *Manifest) Load(fsys fsutil.FileSystem) ([]Source, error) {
	out := make([]Source, 0, len(m.Sources))
	for _, s := range m.Sources {
		src := Source{Name: s.label(), IgnoreAreas: s.IgnoreAreas}
		if s.Transform != nil {
			t, err := geometry.NewRigidTransform(s.Transform)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.Name, err)
			}
			src.Transform = &t
		}
		data, err := fsutil.Ref{Path: m.resolve(s.Path)}.Resolve(fsys)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		src.Data = data
		out = append(out, src)
	}
	return out, nil
}
