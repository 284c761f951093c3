package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/banshee-data/pcdfusion/internal/binrec"
	"github.com/banshee-data/pcdfusion/internal/config"
	"github.com/banshee-data/pcdfusion/internal/geometry"
	"github.com/banshee-data/pcdfusion/internal/monitoring"
	"github.com/banshee-data/pcdfusion/internal/pcd"
)

type cloudInfo struct {
	Path     string     `json:"path"`
	Encoding string     `json:"encoding"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Points   int        `json:"points"`
	Fields   []string   `json:"fields"`
	Finite   int        `json:"finite_points"`
	Min      [3]float64 `json:"min,omitempty"`
	Max      [3]float64 `json:"max,omitempty"`
}

func runInfo(args []string) error {
	fs := newFlagSet("info")
	in := fs.String("in", "", "Input PCD file (required)")
	asJSON := fs.Bool("json", false, "Print as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("in", *in); err != nil {
		return err
	}

	pc, err := pcd.FromPath(fsys, *in)
	if err != nil {
		return err
	}
	h := pc.Header()
	info := cloudInfo{
		Path:     *in,
		Encoding: string(h.Data),
		Width:    h.Width,
		Height:   h.Height,
		Points:   h.Points,
	}
	for _, f := range h.Fields {
		info.Fields = append(info.Fields, fmt.Sprintf("%s:%s%d", f.Name, f.Kind, f.Size))
		if f.Count > 1 {
			info.Fields[len(info.Fields)-1] += fmt.Sprintf("x%d", f.Count)
		}
	}
	if b, n, ok := geometry.BoundsOf(pc); ok {
		info.Finite = n
		info.Min, info.Max = b.Min, b.Max
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintf(stdout, "file:     %s\n", info.Path)
	fmt.Fprintf(stdout, "encoding: %s\n", info.Encoding)
	fmt.Fprintf(stdout, "size:     %d x %d (%d points)\n", info.Width, info.Height, info.Points)
	fmt.Fprintf(stdout, "fields:   %s\n", strings.Join(info.Fields, " "))
	if info.Finite > 0 {
		fmt.Fprintf(stdout, "finite:   %d\n", info.Finite)
		fmt.Fprintf(stdout, "min:      %g %g %g\n", info.Min[0], info.Min[1], info.Min[2])
		fmt.Fprintf(stdout, "max:      %g %g %g\n", info.Max[0], info.Max[1], info.Max[2])
	}
	return nil
}

func encodingFlag(cfg *config.FusionConfig, value string) (pcd.Encoding, error) {
	if value == "" {
		return cfg.GetOutputEncoding(), nil
	}
	return pcd.ParseEncoding(value)
}

func runConvert(cfg *config.FusionConfig, args []string) error {
	fs := newFlagSet("convert")
	in := fs.String("in", "", "Input PCD file (required)")
	out := fs.String("out", "", "Output PCD file (required)")
	encoding := fs.String("encoding", "", "Output encoding (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("in", *in); err != nil {
		return err
	}
	if err := required("out", *out); err != nil {
		return err
	}
	enc, err := encodingFlag(cfg, *encoding)
	if err != nil {
		return err
	}

	pc, err := pcd.FromPath(fsys, *in)
	if err != nil {
		return err
	}
	if err := pcd.WriteFile(fsys, *out, pc, enc); err != nil {
		return err
	}
	monitoring.Logf("Converted %s (%s) to %s (%s): %d points", *in, pc.Encoding(), *out, enc, pc.Points())
	return nil
}

func runTransform(cfg *config.FusionConfig, args []string) error {
	fs := newFlagSet("transform")
	in := fs.String("in", "", "Input PCD file (required)")
	out := fs.String("out", "", "Output PCD file (required)")
	encoding := fs.String("encoding", "", "Output encoding (default from config)")
	tf := addTransformFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("in", *in); err != nil {
		return err
	}
	if err := required("out", *out); err != nil {
		return err
	}
	enc, err := encodingFlag(cfg, *encoding)
	if err != nil {
		return err
	}
	t, err := tf.build()
	if err != nil {
		return err
	}
	if !t.IsRigid() {
		monitoring.Warnf("transform is not rigid within %g", geometry.RigidTolerance)
	}

	pc, err := pcd.FromPath(fsys, *in)
	if err != nil {
		return err
	}
	moved, dropped, err := geometry.TransformCloud(pc, t)
	if err != nil {
		return err
	}
	if dropped > 0 {
		monitoring.Logf("Dropped %d non-finite points from %s", dropped, *in)
	}
	if err := pcd.WriteFile(fsys, *out, moved, enc); err != nil {
		return err
	}
	monitoring.Logf("Transformed %s: %d points", *in, moved.Points())
	return nil
}

func runCrop(cfg *config.FusionConfig, args []string) error {
	fs := newFlagSet("crop")
	in := fs.String("in", "", "Input PCD file (required)")
	out := fs.String("out", "", "Output PCD file (required)")
	minStr := fs.String("min", "", "Lower corner x,y,z (required)")
	maxStr := fs.String("max", "", "Upper corner x,y,z (required)")
	encoding := fs.String("encoding", "", "Output encoding (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireAll("in", *in, "out", *out, "min", *minStr, "max", *maxStr); err != nil {
		return err
	}
	enc, err := encodingFlag(cfg, *encoding)
	if err != nil {
		return err
	}
	var b geometry.Bounds
	if b.Min, err = parseVec3(*minStr); err != nil {
		return err
	}
	if b.Max, err = parseVec3(*maxStr); err != nil {
		return err
	}

	pc, err := pcd.FromPath(fsys, *in)
	if err != nil {
		return err
	}
	cropped, err := geometry.Crop(pc, b)
	if err != nil {
		return err
	}
	if err := pcd.WriteFile(fsys, *out, cropped, enc); err != nil {
		return err
	}
	monitoring.Logf("Cropped %s: kept %d of %d points", *in, cropped.Points(), pc.Points())
	return nil
}

func runToBin(cfg *config.FusionConfig, args []string) error {
	fs := newFlagSet("tobin")
	in := fs.String("in", "", "Input PCD file (required)")
	out := fs.String("out", "", "Output .bin file (required)")
	format := fs.String("format", "", "Record layout: xyz, xyzi, xyzit (default: infer)")
	intensity := fs.Float64("default-intensity", cfg.GetDefaultIntensity(), "Intensity for clouds without one")
	tval := fs.Float64("default-time", cfg.GetDefaultTime(), "Time for clouds without one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("in", *in); err != nil {
		return err
	}
	if err := required("out", *out); err != nil {
		return err
	}
	f, err := binrec.ParseFormat(*format)
	if err != nil {
		return err
	}

	pc, err := pcd.FromPath(fsys, *in)
	if err != nil {
		return err
	}
	data, rep, err := binrec.Encode(pc, binrec.Options{
		Format:           f,
		DefaultIntensity: float32(*intensity),
		DefaultTime:      float32(*tval),
	})
	if err != nil {
		return err
	}
	if err := fsys.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Fprintf(stdout, "wrote %d %s records to %s (dropped %d)\n", rep.Records, rep.Format, *out, rep.Dropped)
	if len(rep.Filled) > 0 {
		fmt.Fprintf(stdout, "filled with defaults: %s\n", strings.Join(rep.Filled, ", "))
	}
	return nil
}

func runFromBin(cfg *config.FusionConfig, args []string) error {
	fs := newFlagSet("frombin")
	in := fs.String("in", "", "Input .bin file (required)")
	out := fs.String("out", "", "Output PCD file (required)")
	format := fs.String("format", "", "Record layout: xyz, xyzi, xyzit (required)")
	encoding := fs.String("encoding", "", "Output encoding (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireAll("in", *in, "out", *out, "format", *format); err != nil {
		return err
	}
	f, err := binrec.ParseFormat(*format)
	if err != nil {
		return err
	}
	enc, err := encodingFlag(cfg, *encoding)
	if err != nil {
		return err
	}

	data, err := fsys.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read %s: %w", *in, err)
	}
	pc, err := binrec.Decode(data, f)
	if err != nil {
		return err
	}
	if err := pcd.WriteFile(fsys, *out, pc, enc); err != nil {
		return err
	}
	monitoring.Logf("Read %d %s records from %s", pc.Points(), f, *in)
	return nil
}
