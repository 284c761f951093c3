// Command pcdfuse inspects, converts and fuses PCD point clouds.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/pcdfusion/internal/config"
	"github.com/banshee-data/pcdfusion/internal/fsutil"
	"github.com/banshee-data/pcdfusion/internal/geometry"
	"github.com/banshee-data/pcdfusion/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to JSON tool configuration")
	quiet      = flag.Bool("quiet", false, "Suppress progress logging")
)

// Swapped out by tests.
var (
	fsys   fsutil.FileSystem = fsutil.OSFileSystem{}
	stdout io.Writer         = os.Stdout
)

var errUsage = errors.New("usage")

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}
	if *quiet {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.LoadOrDefault(fsys, *configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := run(cfg, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
			os.Exit(2)
		}
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func run(cfg *config.FusionConfig, command string, args []string) error {
	switch command {
	case "info":
		return runInfo(args)
	case "convert":
		return runConvert(cfg, args)
	case "transform":
		return runTransform(cfg, args)
	case "crop":
		return runCrop(cfg, args)
	case "fuse":
		return runFuse(cfg, args)
	case "tobin":
		return runToBin(cfg, args)
	case "frombin":
		return runFromBin(cfg, args)
	case "preview":
		return runPreview(cfg, args)
	case "calib":
		return runCalib(cfg, args)
	case "runs":
		return runRuns(cfg, args)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}
}

func printUsage() {
	fmt.Println(`pcdfuse - point cloud conversion and multi-sensor fusion

Usage: pcdfuse [--config pcdfusion.json] <command> [options]

Commands:
  info       Print the header and extent of a PCD file
  convert    Re-encode a PCD file (ascii, binary, binary_compressed)
  transform  Apply a rigid transform to a PCD file
  crop       Keep the points inside an axis-aligned box
  fuse       Fuse the sources listed in a YAML or JSON manifest
  tobin      Write a PCD file as headerless float32 records
  frombin    Read headerless float32 records into a PCD file
  preview    Render a cloud as png, html or glb
  calib      Manage stored extrinsics and ignore areas
  runs       List or export recorded fusion runs
  version    Show pcdfuse version
  help       Show this help message

Examples:
  pcdfuse info -in scan.pcd
  pcdfuse convert -in scan.pcd -out scan_ascii.pcd -encoding ascii
  pcdfuse transform -in front.pcd -out front_world.pcd -tx 1.2 -tz 1.8 -yaw 0.05
  pcdfuse fuse -manifest rig.yaml -db pcdfusion.db
  pcdfuse tobin -in scan.pcd -out scan.bin -format xyzi
  pcdfuse preview png -in fused.pcd -out fused.png`)
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func required(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

// requireAll checks name/value pairs in order.
func requireAll(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := required(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// parseVec3 parses "x,y,z".
func parseVec3(s string) ([3]float64, error) {
	var v [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z, got %q", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return v, fmt.Errorf("parse %q: %w", s, err)
		}
		v[i] = f
	}
	return v, nil
}

// transformFlags are shared by transform and calib set.
type transformFlags struct {
	matrix     *string
	tx, ty, tz *float64
	yaw        *float64
	inverse    *bool
}

func addTransformFlags(fs *flag.FlagSet) *transformFlags {
	return &transformFlags{
		matrix:  fs.String("matrix", "", "4x4 row-major matrix as JSON, e.g. [[1,0,0,0],[0,1,0,0],[0,0,1,0],[0,0,0,1]]"),
		tx:      fs.Float64("tx", 0, "Translation along x (m)"),
		ty:      fs.Float64("ty", 0, "Translation along y (m)"),
		tz:      fs.Float64("tz", 0, "Translation along z (m)"),
		yaw:     fs.Float64("yaw", 0, "Rotation about z (radians), applied before translation"),
		inverse: fs.Bool("inverse", false, "Apply the inverse transform"),
	}
}

func (f *transformFlags) build() (geometry.RigidTransform, error) {
	var t geometry.RigidTransform
	if *f.matrix != "" {
		var rows [][]float64
		if err := json.Unmarshal([]byte(*f.matrix), &rows); err != nil {
			return t, fmt.Errorf("parse --matrix: %w", err)
		}
		var err error
		if t, err = geometry.NewRigidTransform(rows); err != nil {
			return t, err
		}
	} else {
		t = geometry.Compose(geometry.Translation(*f.tx, *f.ty, *f.tz), geometry.RotationZ(*f.yaw))
	}
	if *f.inverse {
		return t.Inverse()
	}
	return t, nil
}
