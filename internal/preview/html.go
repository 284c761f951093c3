package preview

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pcdfusion/internal/pcd"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// ScatterHTML renders an interactive x/y scatter of pc with intensity on
// a visual map.
func ScatterHTML(pc *pcd.PointCloud, w io.Writer, o Options) error {
	s, err := downsample(pc, o.maxPoints())
	if err != nil {
		return err
	}

	data := make([]opts.ScatterData, 0, len(s.points))
	for _, p := range s.points {
		data = append(data, opts.ScatterData{Value: []interface{}{p[0], p[1], p[3]}})
	}

	pad := s.maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	title := o.Title
	if title == "" {
		title = "Point cloud"
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("points=%d of %d stride=%d", len(data), s.total, s.stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(s.minI),
			Max:        float32(s.maxI),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
