// Package binrec converts point clouds to and from headerless
// little-endian float32 record streams (KITTI style .bin files).
//
// A stream carries no magic number and no schema, so readers must be told
// the record layout.
package binrec

import (
	"encoding/binary"
	"math"

	"github.com/banshee-data/pcdfusion/internal/monitoring"
	"github.com/banshee-data/pcdfusion/internal/pcd"
)

// Format names a record layout.
type Format string

const (
	XYZ   Format = "xyz"   // x y z
	XYZI  Format = "xyzi"  // x y z intensity
	XYZIT Format = "xyzit" // x y z intensity t
	Auto  Format = ""      // infer from the cloud's fields
)

// Canonical field names, in record order.
var columns = map[Format][]string{
	XYZ:   {"x", "y", "z"},
	XYZI:  {"x", "y", "z", "intensity"},
	XYZIT: {"x", "y", "z", "intensity", "t"},
}

// ParseFormat maps a name onto a Format. The empty string is Auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case XYZ, XYZI, XYZIT, Auto:
		return f, nil
	}
	return "", pcd.Validationf(pcd.CodeUnknownFormat, "%q", s)
}

// Columns returns the field names of f in record order.
func (f Format) Columns() []string { return append([]string(nil), columns[f]...) }

// RecordSize is the number of bytes per record.
func (f Format) RecordSize() int { return 4 * len(columns[f]) }

// Options control Encode.
type Options struct {
	Format           Format
	DefaultIntensity float32 // used when a forced format needs a missing intensity
	DefaultTime      float32 // used when a forced format needs a missing time
}

// Report describes an Encode call.
type Report struct {
	Format   Format
	Records  int      // records written
	Dropped  int      // records with a NaN or infinite selected value
	Filled   []string // columns filled with a default value
	Warnings []string
}

// canonical maps a source field name onto the column it feeds, or "".
func canonical(name string) string {
	switch name {
	case "x", "y", "z":
		return name
	}
	for _, a := range pcd.IntensityAliases {
		if name == a {
			return "intensity"
		}
	}
	for _, a := range pcd.TimeAliases {
		if name == a {
			return "t"
		}
	}
	return ""
}

// inferFormat picks the format whose column set equals the cloud's field
// set. Anything else with x, y, z and an intensity field falls back to
// xyzi with a warning.
func inferFormat(pc *pcd.PointCloud) (Format, string, error) {
	seen := make(map[string]int)
	extra := 0
	for _, f := range pc.Fields() {
		if c := canonical(f.Name); c != "" {
			seen[c]++
		} else {
			extra++
		}
	}
	exact := func(f Format) bool {
		if extra != 0 || len(pc.Fields()) != len(columns[f]) {
			return false
		}
		for _, c := range columns[f] {
			if seen[c] != 1 {
				return false
			}
		}
		return true
	}
	for _, f := range []Format{XYZ, XYZI, XYZIT} {
		if exact(f) {
			return f, "", nil
		}
	}
	if seen["x"] > 0 && seen["y"] > 0 && seen["z"] > 0 && seen["intensity"] > 0 {
		return XYZI, "fields do not match a record format exactly; writing xyzi", nil
	}
	return "", "", pcd.Validationf(pcd.CodeNoInferableFormat, "fields %v", names(pc))
}

func names(pc *pcd.PointCloud) []string {
	fields := pc.Fields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

// Encode writes pc as fixed records. Records with a NaN or infinite value
// in any selected column are dropped as a whole.
func Encode(pc *pcd.PointCloud, opts Options) ([]byte, Report, error) {
	format, err := ParseFormat(string(opts.Format))
	if err != nil {
		return nil, Report{}, err
	}
	var rep Report
	if format == Auto {
		var warning string
		if format, warning, err = inferFormat(pc); err != nil {
			return nil, Report{}, err
		}
		if warning != "" {
			monitoring.Warnf("binrec: %s (fields %v)", warning, names(pc))
			rep.Warnings = append(rep.Warnings, warning)
		}
	}
	rep.Format = format

	// Source field per column; -1 means fill with a default.
	cols := columns[format]
	src := make([]int, len(cols))
	defaults := make([]float32, len(cols))
	for i, c := range cols {
		switch c {
		case "intensity":
			src[i], _ = pc.Lookup(pcd.IntensityAliases...)
			defaults[i] = opts.DefaultIntensity
		case "t":
			src[i], _ = pc.Lookup(pcd.TimeAliases...)
			defaults[i] = opts.DefaultTime
		default:
			if src[i] = pc.FieldIndex(c); src[i] < 0 {
				return nil, Report{}, pcd.Validationf(pcd.CodeMissingCoordinates, "no %q field in %v", c, names(pc))
			}
		}
		if src[i] < 0 {
			rep.Filled = append(rep.Filled, c)
		}
	}

	rs := format.RecordSize()
	out := make([]byte, 0, pc.Points()*rs)
	rec := make([]byte, rs)
	for r := 0; r < pc.Points(); r++ {
		ok := true
		for i := range cols {
			v := defaults[i]
			if src[i] >= 0 {
				v = float32(pc.Value(r, src[i], 0))
			}
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				ok = false
				break
			}
			binary.LittleEndian.PutUint32(rec[4*i:], math.Float32bits(v))
		}
		if !ok {
			rep.Dropped++
			continue
		}
		out = append(out, rec...)
	}
	rep.Records = len(out) / rs
	return out, rep, nil
}

// Decode reads fixed records of the given format into a cloud with float32
// fields named after the format's columns. The format must be explicit.
func Decode(data []byte, format Format) (*pcd.PointCloud, error) {
	f, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	if f == Auto {
		return nil, pcd.Validationf(pcd.CodeUnknownFormat, "decoding needs an explicit format")
	}
	rs := f.RecordSize()
	if len(data)%rs != 0 {
		return nil, pcd.Formatf(pcd.CodeTruncatedRecord, "%d bytes is not a multiple of the %d byte %s record", len(data), rs, f)
	}
	n := len(data) / rs
	h := pcd.Header{
		Version:   pcd.DefaultVersion,
		Width:     n,
		Height:    1,
		Viewpoint: pcd.DefaultViewpoint,
		Points:    n,
		Data:      pcd.Binary,
	}
	for _, c := range columns[f] {
		h.Fields = append(h.Fields, pcd.Float32Field(c))
	}
	return pcd.New(h, data)
}
