// Package preview renders point clouds for quick inspection: a bird's-eye
// PNG, an interactive HTML scatter and a binary glTF point export.
package preview

import (
	"math"

	"github.com/banshee-data/pcdfusion/internal/geometry"
	"github.com/banshee-data/pcdfusion/internal/pcd"
)

// DefaultMaxPoints caps how many records a preview draws.
const DefaultMaxPoints = 20000

// Options tune a preview.
type Options struct {
	Title     string
	MaxPoints int // <= 0 means DefaultMaxPoints
}

func (o Options) maxPoints() int {
	if o.MaxPoints <= 0 {
		return DefaultMaxPoints
	}
	return o.MaxPoints
}

// sample holds the downsampled finite points of a cloud.
type sample struct {
	points [][4]float32
	stride int
	total  int
	minI   float64
	maxI   float64
	maxAbs float64
}

// downsample keeps every stride'th finite point so at most maxPoints remain.
func downsample(pc *pcd.PointCloud, maxPoints int) (sample, error) {
	res, err := geometry.Points(pc)
	if err != nil {
		return sample{}, err
	}
	s := sample{stride: 1, total: len(res.Points), minI: math.Inf(1), maxI: math.Inf(-1)}
	if len(res.Points) > maxPoints {
		s.stride = int(math.Ceil(float64(len(res.Points)) / float64(maxPoints)))
	}

	s.points = make([][4]float32, 0, len(res.Points)/s.stride+1)
	for i := 0; i < len(res.Points); i += s.stride {
		p := res.Points[i]
		s.points = append(s.points, p)
		s.minI = math.Min(s.minI, float64(p[3]))
		s.maxI = math.Max(s.maxI, float64(p[3]))
		s.maxAbs = math.Max(s.maxAbs, math.Max(math.Abs(float64(p[0])), math.Abs(float64(p[1]))))
	}
	if len(s.points) == 0 {
		s.minI, s.maxI = 0, 0
	}
	return s, nil
}

// norm maps an intensity onto [0,1] within the sample's range.
func (s sample) norm(v float32) float64 {
	if s.maxI <= s.minI {
		return 1
	}
	return (float64(v) - s.minI) / (s.maxI - s.minI)
}
