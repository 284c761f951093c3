package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/pcdfusion/internal/calibdb"
	"github.com/banshee-data/pcdfusion/internal/config"
	"github.com/banshee-data/pcdfusion/internal/fusion"
	"github.com/banshee-data/pcdfusion/internal/geometry"
	"github.com/banshee-data/pcdfusion/internal/monitoring"
	"github.com/banshee-data/pcdfusion/internal/security"
)

func runFuse(cfg *config.FusionConfig, args []string) error {
	fs := newFlagSet("fuse")
	manifestPath := fs.String("manifest", "", "YAML or JSON fusion manifest (required)")
	out := fs.String("out", "", "Output PCD file (overrides the manifest)")
	mode := fs.String("mode", "", "transform, filter or transform_filter (overrides the manifest)")
	encoding := fs.String("encoding", "", "Output encoding (overrides the manifest)")
	skipFailed := fs.Bool("skip-failed", cfg.GetSkipFailedSources(), "Skip sources that fail to decode")
	dbPath := fs.String("db", "", "Calibration database; fills missing transforms and records the run")
	snapshot := fs.Bool("snapshot", false, "Store a compressed copy of the output with the run")
	notes := fs.String("notes", "", "Free-form notes stored with the run")
	confine := fs.Bool("confine", false, "Reject source paths outside the manifest's directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("manifest", *manifestPath); err != nil {
		return err
	}

	m, err := fusion.LoadManifest(fsys, *manifestPath)
	if err != nil {
		return err
	}
	fm := cfg.GetFusionMode()
	if m.Mode != "" {
		if fm, err = m.FusionMode(); err != nil {
			return err
		}
	}
	if *mode != "" {
		if fm, err = fusion.ParseMode(*mode); err != nil {
			return err
		}
	}

	base := cfg.FusionOptions()
	base.SkipFailed = *skipFailed
	opts := m.Options(base)
	if *encoding != "" {
		if opts.Encoding, err = encodingFlag(cfg, *encoding); err != nil {
			return err
		}
	}

	outPath := *out
	if outPath == "" {
		outPath = m.OutputPath()
	}
	if outPath == "" {
		return fmt.Errorf("no output path: set --out or output in the manifest")
	}

	if *confine {
		for _, p := range m.SourcePaths() {
			if err := security.WithinDir(p, m.Dir()); err != nil {
				return err
			}
		}
	}

	sources, err := m.Load(fsys)
	if err != nil {
		return err
	}

	var db *calibdb.DB
	if *dbPath != "" {
		if db, err = calibdb.Open(*dbPath); err != nil {
			return err
		}
		defer db.Close()
		if sources, err = db.Calibration().ApplyTo(sources); err != nil {
			return err
		}
	}

	start := time.Now()
	res, err := fusion.Fuse(fm, sources, opts)
	if err != nil {
		return err
	}
	data, err := fusion.Encode(res, "")
	if err != nil {
		return err
	}
	if err := writeOutput(outPath, data); err != nil {
		return err
	}
	monitoring.Logf("Wrote %s: %d points in %v", outPath, res.Points(), time.Since(start).Round(time.Millisecond))

	if db != nil {
		run, err := db.Runs().RecordRun(res, sources, data, *snapshot, *notes)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "run %s\n", run.RunID)
	}
	return nil
}

func openDB(cfg *config.FusionConfig, path string) (*calibdb.DB, error) {
	if path == "" {
		path = cfg.GetCalibrationDB()
	}
	return calibdb.Open(path)
}

func runCalib(cfg *config.FusionConfig, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("calib needs a subcommand (set, list, add-area, areas, rm-area): %w", errUsage)
	}
	sub, args := args[0], args[1:]

	fs := newFlagSet("calib " + sub)
	dbPath := fs.String("db", "", "Calibration database (default from config)")
	sensor := fs.String("sensor", "", "Sensor name")

	switch sub {
	case "set":
		tf := addTransformFlags(fs)
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("sensor", *sensor); err != nil {
			return err
		}
		t, err := tf.build()
		if err != nil {
			return err
		}
		db, err := openDB(cfg, *dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Calibration().PutExtrinsics(*sensor, t)

	case "list":
		if err := fs.Parse(args); err != nil {
			return err
		}
		db, err := openDB(cfg, *dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		store := db.Calibration()
		sensors, err := store.ListSensors()
		if err != nil {
			return err
		}
		for _, s := range sensors {
			e, err := store.GetExtrinsics(s)
			if err != nil {
				return err
			}
			rows, _ := json.Marshal(e.Transform.Rows())
			fmt.Fprintf(stdout, "%s\t%s\n", s, rows)
		}
		return nil

	case "add-area":
		var box geometry.OrientedBox
		center := fs.String("center", "0,0,0", "Box centre x,y,z")
		fs.Float64Var(&box.Length, "length", 0, "Extent along the box x axis (m)")
		fs.Float64Var(&box.Width, "width", 0, "Extent along the box y axis (m)")
		fs.Float64Var(&box.Height, "height", 0, "Extent along z (m)")
		fs.Float64Var(&box.Yaw, "yaw", 0, "Rotation about z (radians)")
		label := fs.String("label", "", "Optional label")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("sensor", *sensor); err != nil {
			return err
		}
		c, err := parseVec3(*center)
		if err != nil {
			return err
		}
		box.X, box.Y, box.Z = c[0], c[1], c[2]
		db, err := openDB(cfg, *dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		area, err := db.Calibration().AddIgnoreArea(*sensor, box, *label)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, area.AreaID)
		return nil

	case "areas":
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("sensor", *sensor); err != nil {
			return err
		}
		db, err := openDB(cfg, *dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		areas, err := db.Calibration().ListIgnoreAreas(*sensor)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if areas == nil {
			areas = []*calibdb.IgnoreArea{}
		}
		return enc.Encode(areas)

	case "rm-area":
		id := fs.String("id", "", "Area ID (required)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("id", *id); err != nil {
			return err
		}
		db, err := openDB(cfg, *dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Calibration().DeleteIgnoreArea(*id)
	}
	return fmt.Errorf("unknown calib subcommand %q: %w", sub, errUsage)
}

func runRuns(cfg *config.FusionConfig, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("runs needs a subcommand (list, show, export): %w", errUsage)
	}
	sub, args := args[0], args[1:]

	fs := newFlagSet("runs " + sub)
	dbPath := fs.String("db", "", "Calibration database (default from config)")

	switch sub {
	case "list":
		limit := fs.Int("limit", 20, "Maximum runs to list (0 for all)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		db, err := openDB(cfg, *dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		runs, err := db.Runs().ListRuns(*limit)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(stdout, "%s\t%s\t%s\t%d\t%s\n",
				r.RunID, time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339), r.Mode, r.TotalPoints, r.OutputDigest)
		}
		return nil

	case "show":
		id := fs.String("id", "", "Run ID (required)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("id", *id); err != nil {
			return err
		}
		db, err := openDB(cfg, *dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		run, err := db.Runs().GetRun(*id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)

	case "export":
		id := fs.String("id", "", "Run ID (required)")
		out := fs.String("out", "", "Output PCD file (default run_<id>.pcd)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := required("id", *id); err != nil {
			return err
		}
		if *out == "" {
			*out = "run_" + security.SanitizeFilename(*id) + ".pcd"
		}
		db, err := openDB(cfg, *dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		data, err := db.Runs().LoadSnapshot(*id)
		if err != nil {
			return err
		}
		if err := writeOutput(*out, data); err != nil {
			return err
		}
		monitoring.Logf("Exported run %s to %s (%d bytes)", *id, *out, len(data))
		return nil
	}
	return fmt.Errorf("unknown runs subcommand %q: %w", sub, errUsage)
}

// writeOutput writes encoded bytes to path, creating its directory first.
func writeOutput(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := fsys.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
