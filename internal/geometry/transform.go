// Package geometry applies rigid transforms to point clouds and filters
// them against oriented and axis-aligned boxes.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pcdfusion/internal/pcd"
)

// RigidTolerance bounds the determinant and bottom-row checks in IsRigid.
const RigidTolerance = 0.01

// singularEpsilon is the smallest |det| Inverse accepts.
const singularEpsilon = 1e-12

// RigidTransform is a 4x4 row-major matrix mapping homogeneous sensor
// coordinates into a common frame: m00,m01,m02,m03, m10,...
// Any finite matrix is accepted; orthogonality is not enforced.
type RigidTransform [16]float64

// NewRigidTransform builds a transform from four rows of four values.
func NewRigidTransform(rows [][]float64) (RigidTransform, error) {
	var t RigidTransform
	if len(rows) != 4 {
		return t, pcd.Validationf(pcd.CodeBadMatrix, "want 4 rows, got %d", len(rows))
	}
	for i, r := range rows {
		if len(r) != 4 {
			return t, pcd.Validationf(pcd.CodeBadMatrix, "row %d has %d values, want 4", i, len(r))
		}
		copy(t[i*4:], r)
	}
	if err := t.Validate(); err != nil {
		return RigidTransform{}, err
	}
	return t, nil
}

// Validate rejects matrices with NaN or infinite entries.
func (t RigidTransform) Validate() error {
	for i, v := range t {
		if !pcd.IsFinite(v) {
			return pcd.Validationf(pcd.CodeBadMatrix, "entry (%d,%d) is %v", i/4, i%4, v)
		}
	}
	return nil
}

// Identity returns the identity transform.
func Identity() RigidTransform {
	return RigidTransform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a pure translation by (x, y, z).
func Translation(x, y, z float64) RigidTransform {
	t := Identity()
	t[3], t[7], t[11] = x, y, z
	return t
}

// RotationZ returns a rotation of yaw radians about the z axis.
func RotationZ(yaw float64) RigidTransform {
	c, s := math.Cos(yaw), math.Sin(yaw)
	return RigidTransform{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Rows returns the matrix as four rows, the layout NewRigidTransform and
// the manifest files use.
func (t RigidTransform) Rows() [][]float64 {
	rows := make([][]float64, 4)
	for i := range rows {
		rows[i] = append([]float64(nil), t[i*4:i*4+4]...)
	}
	return rows
}

// Apply maps (x,y,z) through t. The bottom row is ignored: the result is
// the first three components of t·(x,y,z,1) with no perspective divide.
func (t RigidTransform) Apply(x, y, z float64) (wx, wy, wz float64) {
	wx = t[0]*x + t[1]*y + t[2]*z + t[3]
	wy = t[4]*x + t[5]*y + t[6]*z + t[7]
	wz = t[8]*x + t[9]*y + t[10]*z + t[11]
	return
}

func (t RigidTransform) dense() *mat.Dense {
	return mat.NewDense(4, 4, append([]float64(nil), t[:]...))
}

func fromDense(m mat.Matrix) RigidTransform {
	var t RigidTransform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			t[i*4+j] = m.At(i, j)
		}
	}
	return t
}

// Compose returns outer·inner: applying the result equals applying inner
// first and then outer.
func Compose(outer, inner RigidTransform) RigidTransform {
	var m mat.Dense
	m.Mul(outer.dense(), inner.dense())
	return fromDense(&m)
}

// Inverse returns t⁻¹, or a singular-matrix error when t has no inverse.
func (t RigidTransform) Inverse() (RigidTransform, error) {
	if err := t.Validate(); err != nil {
		return RigidTransform{}, err
	}
	d := t.dense()
	if math.Abs(mat.Det(d)) < singularEpsilon {
		return RigidTransform{}, pcd.Validationf(pcd.CodeSingularMatrix, "determinant %g", mat.Det(d))
	}
	var inv mat.Dense
	if err := inv.Inverse(d); err != nil {
		return RigidTransform{}, pcd.Validationf(pcd.CodeSingularMatrix, "%v", err)
	}
	return fromDense(&inv), nil
}

// IsRigid reports whether the upper 3x3 block is a proper rotation
// (det ≈ 1) and the bottom row is [0 0 0 1]. Transforms that fail this
// are still usable; callers may warn about them.
func (t RigidTransform) IsRigid() bool {
	r00, r01, r02 := t[0], t[1], t[2]
	r10, r11, r12 := t[4], t[5], t[6]
	r20, r21, r22 := t[8], t[9], t[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > RigidTolerance {
		return false
	}
	if t[12] != 0 || t[13] != 0 || t[14] != 0 || math.Abs(t[15]-1.0) > 0.001 {
		return false
	}
	return true
}

// TransformResult is the dense output of ApplyTransform: one
// (x, y, z, intensity) row per surviving record. Intensity is 0 when the
// source has no intensity field.
type TransformResult struct {
	Points  [][4]float32
	Dropped int // records removed for a non-finite coordinate
}

// coords locates the x, y, z and optional intensity fields of pc.
func coords(pc *pcd.PointCloud) (xi, yi, zi, ii int, err error) {
	xi, yi, zi = pc.FieldIndex("x"), pc.FieldIndex("y"), pc.FieldIndex("z")
	if xi < 0 || yi < 0 || zi < 0 {
		return 0, 0, 0, 0, pcd.Validationf(pcd.CodeMissingCoordinates, "fields %v", fieldNames(pc))
	}
	ii, _ = pc.Lookup(pcd.IntensityAliases...)
	return xi, yi, zi, ii, nil
}

func fieldNames(pc *pcd.PointCloud) []string {
	fields := pc.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// ApplyTransform maps every record of pc through t. Records with a NaN or
// infinite coordinate are dropped and counted, never reported as errors.
func ApplyTransform(pc *pcd.PointCloud, t RigidTransform) (TransformResult, error) {
	if err := t.Validate(); err != nil {
		return TransformResult{}, err
	}
	xi, yi, zi, ii, err := coords(pc)
	if err != nil {
		return TransformResult{}, err
	}

	res := TransformResult{Points: make([][4]float32, 0, pc.Points())}
	for r := 0; r < pc.Points(); r++ {
		x, y, z := pc.Value(r, xi, 0), pc.Value(r, yi, 0), pc.Value(r, zi, 0)
		if !pcd.IsFinite(x) || !pcd.IsFinite(y) || !pcd.IsFinite(z) {
			res.Dropped++
			continue
		}
		wx, wy, wz := t.Apply(x, y, z)
		var intensity float32
		if ii >= 0 {
			intensity = float32(pc.Value(r, ii, 0))
		}
		res.Points = append(res.Points, [4]float32{float32(wx), float32(wy), float32(wz), intensity})
	}
	return res, nil
}

// Points extracts the dense (x, y, z, intensity) rows of pc without a
// transform, dropping records with a non-finite coordinate.
func Points(pc *pcd.PointCloud) (TransformResult, error) {
	return ApplyTransform(pc, Identity())
}

// TransformCloud is ApplyTransform wrapped back into an x,y,z,intensity
// cloud.
func TransformCloud(pc *pcd.PointCloud, t RigidTransform) (*pcd.PointCloud, int, error) {
	res, err := ApplyTransform(pc, t)
	if err != nil {
		return nil, 0, err
	}
	out, err := XYZICloud(res.Points)
	if err != nil {
		return nil, 0, err
	}
	return out, res.Dropped, nil
}

// XYZICloud packs dense rows into a cloud with float32 fields x, y, z and
// intensity.
func XYZICloud(points [][4]float32) (*pcd.PointCloud, error) {
	cols := [4][]float64{}
	for c := range cols {
		cols[c] = make([]float64, len(points))
	}
	for i, p := range points {
		for c := range cols {
			cols[c][i] = float64(p[c])
		}
	}
	return pcd.FromColumns(
		pcd.Column{Field: pcd.Float32Field("x"), Values: cols[0]},
		pcd.Column{Field: pcd.Float32Field("y"), Values: cols[1]},
		pcd.Column{Field: pcd.Float32Field("z"), Values: cols[2]},
		pcd.Column{Field: pcd.Float32Field("intensity"), Values: cols[3]},
	)
}
