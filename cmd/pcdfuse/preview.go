package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/pcdfusion/internal/config"
	"github.com/banshee-data/pcdfusion/internal/pcd"
	"github.com/banshee-data/pcdfusion/internal/preview"
	"github.com/banshee-data/pcdfusion/internal/security"
)

func runPreview(cfg *config.FusionConfig, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("preview needs a kind (png, html, glb): %w", errUsage)
	}
	kind, args := args[0], args[1:]

	fs := newFlagSet("preview " + kind)
	in := fs.String("in", "", "Input PCD file (required)")
	out := fs.String("out", "", "Output file (default: input name with the kind's extension)")
	title := fs.String("title", "", "Title shown on the preview")
	maxPoints := fs.Int("max-points", cfg.GetPreviewMaxPoints(), "Downsample to at most this many points")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("in", *in); err != nil {
		return err
	}
	if *out == "" {
		stem := strings.TrimSuffix(filepath.Base(*in), filepath.Ext(*in))
		*out = filepath.Join(filepath.Dir(*in), security.SanitizeFilename(stem)+"."+kind)
	}

	var render func(*pcd.PointCloud, io.Writer, preview.Options) error
	opts := preview.Options{Title: *title, MaxPoints: *maxPoints}
	switch kind {
	case "png":
		render = preview.TopDownPNG
	case "html":
		render = preview.ScatterHTML
	case "glb":
		// Exports keep every point unless asked otherwise.
		if !flagSet(fs, "max-points") {
			opts.MaxPoints = 0
		}
		render = preview.WriteGLB
	default:
		return fmt.Errorf("unknown preview kind %q: %w", kind, errUsage)
	}

	pc, err := pcd.FromPath(fsys, *in)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := render(pc, &buf, opts); err != nil {
		return err
	}
	if err := fsys.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Fprintf(stdout, "wrote %s preview to %s\n", kind, *out)
	return nil
}

// flagSet reports whether name was given on the command line.
func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
