package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/banshee-data/pcdfusion/internal/pcd"
)

const tol = 1e-9

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func mustCloud(t *testing.T, cols ...pcd.Column) *pcd.PointCloud {
	t.Helper()
	pc, err := pcd.FromColumns(cols...)
	if err != nil {
		t.Fatalf("FromColumns: %v", err)
	}
	return pc
}

func xyzCloud(t *testing.T, pts [][3]float64) *pcd.PointCloud {
	t.Helper()
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	zs := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i], zs[i] = p[0], p[1], p[2]
	}
	return mustCloud(t,
		pcd.Column{Field: pcd.Float32Field("x"), Values: xs},
		pcd.Column{Field: pcd.Float32Field("y"), Values: ys},
		pcd.Column{Field: pcd.Float32Field("z"), Values: zs},
	)
}

func TestNewRigidTransform(t *testing.T) {
	tests := []struct {
		name    string
		rows    [][]float64
		wantErr string
	}{
		{"identity", Identity().Rows(), ""},
		{"scale accepted", [][]float64{{2, 0, 0, 0}, {0, 2, 0, 0}, {0, 0, 2, 0}, {0, 0, 0, 1}}, ""},
		{"three rows", [][]float64{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}, pcd.CodeBadMatrix},
		{"short row", [][]float64{{1, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}, pcd.CodeBadMatrix},
		{"nan", [][]float64{{1, 0, 0, math.NaN()}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}, pcd.CodeBadMatrix},
		{"inf", [][]float64{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, math.Inf(-1), 1}}, pcd.CodeBadMatrix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRigidTransform(tt.rows)
			if got := pcd.ErrorCode(err); got != tt.wantErr {
				t.Errorf("ErrorCode = %q, want %q (err %v)", got, tt.wantErr, err)
			}
		})
	}
}

func TestApply_NoBottomRowNormalization(t *testing.T) {
	tr := Translation(1, 2, 3)
	tr[15] = 5
	tr[12] = 7
	x, y, z := tr.Apply(1, 1, 1)
	if x != 2 || y != 3 || z != 4 {
		t.Errorf("Apply = (%v,%v,%v), want (2,3,4)", x, y, z)
	}
}

func randomTransform(rng *rand.Rand) RigidTransform {
	tr := Compose(Translation(rng.Float64()*10-5, rng.Float64()*10-5, rng.Float64()*10-5), RotationZ(rng.Float64()*2*math.Pi))
	// Shear and scale keep it affine but not rigid.
	tr[1] += rng.Float64() * 0.5
	tr[10] *= 1 + rng.Float64()
	return tr
}

func TestCompose_EqualsSequentialApply(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		t1, t2 := randomTransform(rng), randomTransform(rng)
		both := Compose(t2, t1)
		x, y, z := rng.Float64()*20-10, rng.Float64()*20-10, rng.Float64()*20-10

		ax, ay, az := t1.Apply(x, y, z)
		ax, ay, az = t2.Apply(ax, ay, az)
		bx, by, bz := both.Apply(x, y, z)

		if !near(ax, bx, 1e-9) || !near(ay, by, 1e-9) || !near(az, bz, 1e-9) {
			t.Fatalf("iteration %d: sequential (%v,%v,%v) != composed (%v,%v,%v)", i, ax, ay, az, bx, by, bz)
		}
	}
}

func TestInverse(t *testing.T) {
	tr := Compose(Translation(3, -2, 1), RotationZ(0.7))
	inv, err := tr.Inverse()
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	id := Compose(inv, tr)
	want := Identity()
	for i := range id {
		if !near(id[i], want[i], tol) {
			t.Fatalf("inv·t = %v, want identity", id)
		}
	}

	var zero RigidTransform
	if _, err := zero.Inverse(); pcd.ErrorCode(err) != pcd.CodeSingularMatrix {
		t.Errorf("expected singular-matrix, got %v", err)
	}
}

func TestIsRigid(t *testing.T) {
	if !Compose(Translation(1, 2, 3), RotationZ(1.2)).IsRigid() {
		t.Error("rotation+translation should be rigid")
	}
	scaled := Identity()
	scaled[0] = 2
	if scaled.IsRigid() {
		t.Error("scaled matrix should not be rigid")
	}
	projective := Identity()
	projective[14] = 0.5
	if projective.IsRigid() {
		t.Error("projective bottom row should not be rigid")
	}
}

func TestApplyTransform(t *testing.T) {
	pc := mustCloud(t,
		pcd.Column{Field: pcd.Float32Field("x"), Values: []float64{1, math.NaN(), 3, 4}},
		pcd.Column{Field: pcd.Float32Field("y"), Values: []float64{0, 0, math.Inf(1), 1}},
		pcd.Column{Field: pcd.Float32Field("z"), Values: []float64{0, 0, 0, 2}},
		pcd.Column{Field: pcd.Float32Field("i"), Values: []float64{10, 20, 30, 40}},
	)

	res, err := ApplyTransform(pc, Translation(1, 0, -1))
	if err != nil {
		t.Fatalf("ApplyTransform: %v", err)
	}
	if res.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", res.Dropped)
	}
	want := [][4]float32{{2, 0, -1, 10}, {5, 1, 1, 40}}
	if len(res.Points) != len(want) {
		t.Fatalf("got %d points, want %d", len(res.Points), len(want))
	}
	for i := range want {
		if res.Points[i] != want[i] {
			t.Errorf("point %d = %v, want %v", i, res.Points[i], want[i])
		}
	}
}

func TestApplyTransform_NoIntensity(t *testing.T) {
	pc := xyzCloud(t, [][3]float64{{1, 2, 3}})
	res, err := ApplyTransform(pc, RotationZ(math.Pi/2))
	if err != nil {
		t.Fatalf("ApplyTransform: %v", err)
	}
	p := res.Points[0]
	if !near(float64(p[0]), -2, 1e-6) || !near(float64(p[1]), 1, 1e-6) || p[2] != 3 || p[3] != 0 {
		t.Errorf("got %v, want (-2, 1, 3, 0)", p)
	}
}

func TestApplyTransform_Errors(t *testing.T) {
	pc := xyzCloud(t, [][3]float64{{1, 2, 3}})
	bad := Identity()
	bad[5] = math.NaN()
	if _, err := ApplyTransform(pc, bad); pcd.ErrorCode(err) != pcd.CodeBadMatrix {
		t.Errorf("expected bad-matrix, got %v", err)
	}

	noZ := mustCloud(t,
		pcd.Column{Field: pcd.Float32Field("x"), Values: []float64{1}},
		pcd.Column{Field: pcd.Float32Field("y"), Values: []float64{1}},
	)
	if _, err := ApplyTransform(noZ, Identity()); pcd.ErrorCode(err) != pcd.CodeMissingCoordinates {
		t.Errorf("expected missing-coordinates, got %v", err)
	}
}

func TestTransformCloud(t *testing.T) {
	pc := xyzCloud(t, [][3]float64{{0, 0, 0}, {1, 1, 1}, {math.NaN(), 0, 0}})
	out, dropped, err := TransformCloud(pc, Translation(0, 0, 10))
	if err != nil {
		t.Fatalf("TransformCloud: %v", err)
	}
	if dropped != 1 || out.Points() != 2 {
		t.Errorf("dropped=%d points=%d, want 1 and 2", dropped, out.Points())
	}
	h := out.Header()
	if h.Width != 2 || h.Height != 1 {
		t.Errorf("header width=%d height=%d", h.Width, h.Height)
	}
	zs, _ := out.Column("z")
	if zs.Values[0] != 10 || zs.Values[1] != 11 {
		t.Errorf("z = %v", zs.Values)
	}
	if !out.HasField("intensity") {
		t.Error("expected intensity field")
	}
}
