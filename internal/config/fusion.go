package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/pcdfusion/internal/fsutil"
	"github.com/banshee-data/pcdfusion/internal/fusion"
	"github.com/banshee-data/pcdfusion/internal/pcd"
)

// DefaultConfigPath is where the CLI looks for settings when -config is
// not given. A missing file there is not an error.
const DefaultConfigPath = "pcdfusion.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// FusionConfig holds tool-wide settings. Every field is optional; the Get*
// methods supply defaults for fields the file leaves out.
type FusionConfig struct {
	// Output
	OutputEncoding *string `json:"output_encoding,omitempty"` // ascii | binary | binary_compressed
	FusionMode     *string `json:"fusion_mode,omitempty"`     // transform | filter | transform_filter

	// Fusion behaviour
	SkipFailedSources *bool `json:"skip_failed_sources,omitempty"`

	// Fixed-record conversion
	DefaultIntensity *float64 `json:"default_intensity,omitempty"`
	DefaultTime      *float64 `json:"default_time,omitempty"`

	// Previews
	PreviewMaxPoints *int `json:"preview_max_points,omitempty"`

	// Storage
	CalibrationDB *string `json:"calibration_db,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultFusionConfig returns a config with every field set to its default.
func DefaultFusionConfig() *FusionConfig {
	return &FusionConfig{
		OutputEncoding:    ptrString(string(pcd.BinaryCompressed)),
		FusionMode:        ptrString(string(fusion.ModeTransform)),
		SkipFailedSources: ptrBool(false),
		DefaultIntensity:  ptrFloat64(0),
		DefaultTime:       ptrFloat64(0),
		PreviewMaxPoints:  ptrInt(20000),
		CalibrationDB:     ptrString("pcdfusion.db"),
	}
}

// LoadFusionConfig loads a FusionConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to their defaults.
func LoadFusionConfig(fsys fsutil.FileSystem, path string) (*FusionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &FusionConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and returns the defaults
// otherwise.
func LoadOrDefault(fsys fsutil.FileSystem, path string) (*FusionConfig, error) {
	if !fsys.Exists(path) {
		return DefaultFusionConfig(), nil
	}
	return LoadFusionConfig(fsys, path)
}

// Validate checks that the configuration values are valid.
func (c *FusionConfig) Validate() error {
	if c.OutputEncoding != nil {
		if _, err := pcd.ParseEncoding(*c.OutputEncoding); err != nil {
			return fmt.Errorf("output_encoding: %w", err)
		}
	}
	if c.FusionMode != nil {
		if _, err := fusion.ParseMode(*c.FusionMode); err != nil {
			return fmt.Errorf("fusion_mode: %w", err)
		}
	}
	if c.DefaultIntensity != nil && !pcd.IsFinite(*c.DefaultIntensity) {
		return fmt.Errorf("default_intensity must be finite, got %v", *c.DefaultIntensity)
	}
	if c.DefaultTime != nil && !pcd.IsFinite(*c.DefaultTime) {
		return fmt.Errorf("default_time must be finite, got %v", *c.DefaultTime)
	}
	if c.PreviewMaxPoints != nil && *c.PreviewMaxPoints < 1 {
		return fmt.Errorf("preview_max_points must be positive, got %d", *c.PreviewMaxPoints)
	}
	if c.CalibrationDB != nil && *c.CalibrationDB == "" {
		return fmt.Errorf("calibration_db must not be empty")
	}
	return nil
}

// GetOutputEncoding returns the output encoding or binary_compressed.
func (c *FusionConfig) GetOutputEncoding() pcd.Encoding {
	if c.OutputEncoding == nil {
		return pcd.BinaryCompressed
	}
	return pcd.Encoding(*c.OutputEncoding)
}

// GetFusionMode returns the fusion mode or transform.
func (c *FusionConfig) GetFusionMode() fusion.Mode {
	if c.FusionMode == nil {
		return fusion.ModeTransform
	}
	return fusion.Mode(*c.FusionMode)
}

func (c *FusionConfig) GetSkipFailedSources() bool {
	if c.SkipFailedSources == nil {
		return false
	}
	return *c.SkipFailedSources
}

func (c *FusionConfig) GetDefaultIntensity() float64 {
	if c.DefaultIntensity == nil {
		return 0
	}
	return *c.DefaultIntensity
}

func (c *FusionConfig) GetDefaultTime() float64 {
	if c.DefaultTime == nil {
		return 0
	}
	return *c.DefaultTime
}

func (c *FusionConfig) GetPreviewMaxPoints() int {
	if c.PreviewMaxPoints == nil {
		return 20000
	}
	return *c.PreviewMaxPoints
}

func (c *FusionConfig) GetCalibrationDB() string {
	if c.CalibrationDB == nil {
		return "pcdfusion.db"
	}
	return *c.CalibrationDB
}

// FusionOptions builds fusion.Options from the config.
func (c *FusionConfig) FusionOptions() fusion.Options {
	return fusion.Options{
		SkipFailed: c.GetSkipFailedSources(),
		Encoding:   c.GetOutputEncoding(),
	}
}
