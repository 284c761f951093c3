package geometry

import (
	"math"

	"github.com/banshee-data/pcdfusion/internal/pcd"
)

// OrientedBox is a 7-DOF region: a centre, full extents along the box's
// own axes and a yaw about z. Field names match the ignore-area entries of
// calibration files.
//
//   - X/Y/Z: centre (metres, same frame as the points tested)
//   - Length: extent along the heading direction
//   - Width: extent perpendicular to the heading
//   - Height: extent along z
//   - Yaw: rotation about z (radians)
type OrientedBox struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Z      float64 `json:"z" yaml:"z"`
	Length float64 `json:"length" yaml:"length"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Yaw    float64 `json:"yaw" yaml:"yaw"`
}

// Validate rejects non-finite values and negative extents.
func (b OrientedBox) Validate() error {
	for _, v := range []float64{b.X, b.Y, b.Z, b.Length, b.Width, b.Height, b.Yaw} {
		if !pcd.IsFinite(v) {
			return pcd.Validationf(pcd.CodeBadBox, "%+v", b)
		}
	}
	if b.Length < 0 || b.Width < 0 || b.Height < 0 {
		return pcd.Validationf(pcd.CodeBadBox, "negative extent in %+v", b)
	}
	return nil
}

// Contains reports whether (x,y,z) lies inside b, boundary included. The
// point is moved into the box frame (translate by -centre, rotate by -yaw)
// and compared against the half extents.
func (b OrientedBox) Contains(x, y, z float64) bool {
	dx, dy, dz := x-b.X, y-b.Y, z-b.Z
	if b.Yaw != 0 {
		c, s := math.Cos(-b.Yaw), math.Sin(-b.Yaw)
		dx, dy = c*dx-s*dy, s*dx+c*dy
	}
	return math.Abs(dx) <= b.Length/2 &&
		math.Abs(dy) <= b.Width/2 &&
		math.Abs(dz) <= b.Height/2
}

// ValidateBoxes validates every box, reporting the first failure.
func ValidateBoxes(boxes []OrientedBox) error {
	for i, b := range boxes {
		if err := b.Validate(); err != nil {
			return pcd.Validationf(pcd.CodeBadBox, "box %d: %+v", i, b)
		}
	}
	return nil
}

// IgnoreMask marks the records of pc that fall inside any box. An empty
// box list marks nothing.
func IgnoreMask(pc *pcd.PointCloud, boxes []OrientedBox) ([]bool, error) {
	if err := ValidateBoxes(boxes); err != nil {
		return nil, err
	}
	xi, yi, zi, _, err := coords(pc)
	if err != nil {
		return nil, err
	}
	mask := make([]bool, pc.Points())
	if len(boxes) == 0 {
		return mask, nil
	}
	for r := range mask {
		x, y, z := pc.Value(r, xi, 0), pc.Value(r, yi, 0), pc.Value(r, zi, 0)
		for _, b := range boxes {
			if b.Contains(x, y, z) {
				mask[r] = true
				break
			}
		}
	}
	return mask, nil
}

// FilterByIgnoreAreas returns the records outside every box, in their
// original order, and the number excluded. All fields are kept.
func FilterByIgnoreAreas(pc *pcd.PointCloud, boxes []OrientedBox) (*pcd.PointCloud, int, error) {
	mask, err := IgnoreMask(pc, boxes)
	if err != nil {
		return nil, 0, err
	}
	keep := make([]bool, len(mask))
	excluded := 0
	for i, m := range mask {
		keep[i] = !m
		if m {
			excluded++
		}
	}
	out, err := pc.Select(keep)
	if err != nil {
		return nil, 0, err
	}
	return out, excluded, nil
}

// Bounds is an inclusive axis-aligned region.
type Bounds struct {
	Min [3]float64 `json:"min" yaml:"min"`
	Max [3]float64 `json:"max" yaml:"max"`
}

// Validate requires finite corners with Min <= Max on every axis.
func (b Bounds) Validate() error {
	for i := 0; i < 3; i++ {
		if !pcd.IsFinite(b.Min[i]) || !pcd.IsFinite(b.Max[i]) || b.Min[i] > b.Max[i] {
			return pcd.Validationf(pcd.CodeBadBox, "bounds %v..%v", b.Min, b.Max)
		}
	}
	return nil
}

// Contains reports whether every coordinate lies within the bounds.
func (b Bounds) Contains(x, y, z float64) bool {
	return x >= b.Min[0] && x <= b.Max[0] &&
		y >= b.Min[1] && y <= b.Max[1] &&
		z >= b.Min[2] && z <= b.Max[2]
}

// Crop keeps the records inside b. Unlike FilterByIgnoreAreas this is an
// inclusion test. Records with non-finite coordinates never pass.
func Crop(pc *pcd.PointCloud, b Bounds) (*pcd.PointCloud, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	xi, yi, zi, _, err := coords(pc)
	if err != nil {
		return nil, err
	}
	keep := make([]bool, pc.Points())
	for r := range keep {
		keep[r] = b.Contains(pc.Value(r, xi, 0), pc.Value(r, yi, 0), pc.Value(r, zi, 0))
	}
	return pc.Select(keep)
}

// BoundsOf returns the tightest Bounds around the finite records of pc and
// the number of records considered. ok is false when there are none.
func BoundsOf(pc *pcd.PointCloud) (b Bounds, n int, ok bool) {
	xi, yi, zi, _, err := coords(pc)
	if err != nil {
		return Bounds{}, 0, false
	}
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Inf(1)
		b.Max[i] = math.Inf(-1)
	}
	for r := 0; r < pc.Points(); r++ {
		p := [3]float64{pc.Value(r, xi, 0), pc.Value(r, yi, 0), pc.Value(r, zi, 0)}
		if !pcd.IsFinite(p[0]) || !pcd.IsFinite(p[1]) || !pcd.IsFinite(p[2]) {
			continue
		}
		for i := 0; i < 3; i++ {
			b.Min[i] = math.Min(b.Min[i], p[i])
			b.Max[i] = math.Max(b.Max[i], p[i])
		}
		n++
	}
	if n == 0 {
		return Bounds{}, 0, false
	}
	return b, n, true
}
