package preview

import (
	"fmt"
	"io"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/banshee-data/pcdfusion/internal/pcd"
	"github.com/banshee-data/pcdfusion/internal/version"
)

// WriteGLB exports pc as a binary glTF with a single POINTS primitive.
// Intensity becomes a grey vertex colour. Unlike the image previews every
// finite point is written unless opts.MaxPoints is set.
func WriteGLB(pc *pcd.PointCloud, w io.Writer, opts Options) error {
	limit := opts.MaxPoints
	if limit <= 0 {
		limit = pc.Points()
	}
	s, err := downsample(pc, max(limit, 1))
	if err != nil {
		return err
	}
	if len(s.points) == 0 {
		return pcd.Validationf(pcd.CodeEmptyInput, "no finite points to export")
	}

	positions := make([][3]float32, len(s.points))
	colors := make([][4]float32, len(s.points))
	for i, p := range s.points {
		positions[i] = [3]float32{p[0], p[1], p[2]}
		g := float32(s.norm(p[3]))
		colors[i] = [4]float32{g, g, g, 1}
	}

	doc := gltf.NewDocument()
	doc.Asset.Generator = "pcdfuse " + version.Version

	posAccessor := modeler.WritePosition(doc, positions)
	colorAccessor := modeler.WriteColor(doc, colors)

	prim := &gltf.Primitive{
		Attributes: gltf.PrimitiveAttributes{
			gltf.POSITION: posAccessor,
			gltf.COLOR_0:  colorAccessor,
		},
		Mode: gltf.PrimitivePoints,
	}
	name := opts.Title
	if name == "" {
		name = "PointCloud"
	}
	doc.Meshes = []*gltf.Mesh{{Name: name, Primitives: []*gltf.Primitive{prim}}}
	doc.Nodes = []*gltf.Node{{Name: name, Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode glb: %w", err)
	}
	return nil
}
