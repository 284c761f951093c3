// Package fusion merges point clouds from several sensors into one cloud.
//
// Each source is decoded, optionally mapped into a common frame and
// optionally stripped of points inside ignore areas. The surviving points
// are concatenated in source order as x, y, z, intensity float32 records.
package fusion

import (
	"fmt"

	"github.com/banshee-data/pcdfusion/internal/geometry"
	"github.com/banshee-data/pcdfusion/internal/monitoring"
	"github.com/banshee-data/pcdfusion/internal/pcd"
)

// Mode selects which per-source steps run.
type Mode string

const (
	// ModeTransform applies each source's transform; ignore areas are unused.
	ModeTransform Mode = "transform"
	// ModeFilter removes points inside ignore areas in the source frame;
	// transforms are unused.
	ModeFilter Mode = "filter"
	// ModeTransformFilter applies the transform, then removes points inside
	// ignore areas expressed in the common frame.
	ModeTransformFilter Mode = "transform_filter"
)

// ParseMode maps a configuration string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeTransform, ModeFilter, ModeTransformFilter:
		return m, nil
	}
	return "", pcd.Validationf(pcd.CodeUnknownMode, "%q", s)
}

func (m Mode) transforms() bool { return m == ModeTransform || m == ModeTransformFilter }
func (m Mode) filters() bool    { return m == ModeFilter || m == ModeTransformFilter }

// Source is one sensor's contribution.
type Source struct {
	Name        string
	Data        []byte                   // complete PCD file
	Transform   *geometry.RigidTransform // nil means identity
	IgnoreAreas []geometry.OrientedBox
}

// Options tune a fusion run.
type Options struct {
	// SkipFailed logs and skips sources that fail to decode instead of
	// failing the run.
	SkipFailed bool
	// Encoding is recorded in the fused cloud's header. Empty means
	// binary_compressed.
	Encoding pcd.Encoding
}

// SourceReport describes what happened to one source.
type SourceReport struct {
	Name     string
	Input    int   // records decoded
	Dropped  int   // records with a non-finite coordinate
	Filtered int   // records inside an ignore area
	Output   int   // records contributed
	Err      error // non-nil when the source was skipped
}

// Result is a fused cloud with its per-source accounting.
type Result struct {
	Mode    Mode
	Cloud   *pcd.PointCloud
	Sources []SourceReport
}

// Points is the number of fused records.
func (r Result) Points() int {
	if r.Cloud == nil {
		return 0
	}
	return r.Cloud.Points()
}

// TransformAndConcatenate maps every source into the common frame and
// concatenates the results.
func TransformAndConcatenate(sources []Source, opts Options) (Result, error) {
	return Fuse(ModeTransform, sources, opts)
}

// FilterAndConcatenate removes ignore-area points from every source in
// its own frame and concatenates the results.
func FilterAndConcatenate(sources []Source, opts Options) (Result, error) {
	return Fuse(ModeFilter, sources, opts)
}

// Fuse runs mode over sources. Transforms and ignore areas are validated
// before any source is decoded.
func Fuse(mode Mode, sources []Source, opts Options) (Result, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return Result{}, err
	}
	if len(sources) == 0 {
		return Result{}, pcd.Validationf(pcd.CodeEmptyInput, "no sources")
	}
	enc := opts.Encoding
	if enc == "" {
		enc = pcd.BinaryCompressed
	}
	if _, err := pcd.ParseEncoding(string(enc)); err != nil {
		return Result{}, err
	}
	if err := validateSources(mode, sources); err != nil {
		return Result{}, err
	}

	var points [][4]float32
	reports := make([]SourceReport, 0, len(sources))
	for _, src := range sources {
		rows, rep, err := process(mode, src)
		if err != nil {
			if !opts.SkipFailed {
				return Result{}, fmt.Errorf("source %s: %w", src.Name, err)
			}
			monitoring.Warnf("Failed to process %s: %v", src.Name, err)
			rep.Err = err
			reports = append(reports, rep)
			continue
		}
		if rep.Filtered > 0 {
			monitoring.Logf("Filtered %d points from %s", rep.Filtered, src.Name)
		}
		if rep.Output == 0 {
			monitoring.Warnf("No points remaining for %s", src.Name)
		} else {
			monitoring.Logf("Processed %s: %d points", src.Name, rep.Output)
		}
		reports = append(reports, rep)
		points = append(points, rows...)
	}

	if len(points) == 0 {
		return Result{}, pcd.Validationf(pcd.CodeNoValidSources, "%d sources contributed no points", len(sources))
	}
	cloud, err := geometry.XYZICloud(points)
	if err != nil {
		return Result{}, err
	}
	if cloud, err = cloud.WithEncoding(enc); err != nil {
		return Result{}, err
	}
	monitoring.Logf("Total fused points: %d", cloud.Points())
	return Result{Mode: mode, Cloud: cloud, Sources: reports}, nil
}

func validateSources(mode Mode, sources []Source) error {
	for _, src := range sources {
		if mode.transforms() && src.Transform != nil {
			if err := src.Transform.Validate(); err != nil {
				return fmt.Errorf("source %s: %w", src.Name, err)
			}
		}
		if mode.filters() {
			if err := geometry.ValidateBoxes(src.IgnoreAreas); err != nil {
				return fmt.Errorf("source %s: %w", src.Name, err)
			}
		}
	}
	return nil
}

// process decodes one source and returns its surviving rows.
func process(mode Mode, src Source) ([][4]float32, SourceReport, error) {
	rep := SourceReport{Name: src.Name}
	pc, err := pcd.FromBytes(src.Data)
	if err != nil {
		return nil, rep, err
	}
	rep.Input = pc.Points()

	t := geometry.Identity()
	if mode.transforms() && src.Transform != nil {
		t = *src.Transform
	}
	res, err := geometry.ApplyTransform(pc, t)
	if err != nil {
		return nil, rep, err
	}
	rep.Dropped = res.Dropped

	rows := res.Points
	if mode.filters() && len(src.IgnoreAreas) > 0 {
		kept := rows[:0]
		for _, p := range rows {
			if inAny(src.IgnoreAreas, p) {
				rep.Filtered++
				continue
			}
			kept = append(kept, p)
		}
		rows = kept
	}
	rep.Output = len(rows)
	return rows, rep, nil
}

func inAny(boxes []geometry.OrientedBox, p [4]float32) bool {
	for _, b := range boxes {
		if b.Contains(float64(p[0]), float64(p[1]), float64(p[2])) {
			return true
		}
	}
	return false
}

// Encode serializes a fused cloud with enc, or with the encoding recorded
// in the result when enc is empty.
func Encode(r Result, enc pcd.Encoding) ([]byte, error) {
	if r.Cloud == nil {
		return nil, pcd.Validationf(pcd.CodeEmptyInput, "no fused cloud")
	}
	if enc == "" {
		return r.Cloud.MarshalBinary()
	}
	return pcd.ToBytes(r.Cloud, enc)
}
