package heatmap

import (
	"fmt"
	"io"

	"github.com/banshee-data/trajectory.replay/internal/fsutil"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	// maxPreviewCells bounds the edge of a preview grid; larger rasters are
	// block-averaged down to it.
	maxPreviewCells = 256

	// maxScatterPoints bounds the points in an HTML preview.
	maxScatterPoints = 20000
)

// previewGrid is a block-averaged view of a raster. It implements
// plotter.GridXYZ.
type previewGrid struct {
	n      int
	cellW  float64
	cellD  float64
	bounds Bounds
	values []float64
}

func newPreviewGrid(r *Raster, maxCells int) *previewGrid {
	stride := (r.Size + maxCells - 1) / maxCells
	n := (r.Size + stride - 1) / stride
	g := &previewGrid{
		n:      n,
		cellW:  r.Bounds.Width() / float64(r.Size) * float64(stride),
		cellD:  r.Bounds.Depth() / float64(r.Size) * float64(stride),
		bounds: r.Bounds,
		values: make([]float64, n*n),
	}
	counts := make([]int, n*n)
	for y := 0; y < r.Size; y++ {
		for x := 0; x < r.Size; x++ {
			i := (y/stride)*n + x/stride
			g.values[i] += r.Values[y*r.Size+x]
			counts[i]++
		}
	}
	for i, c := range counts {
		if c > 0 {
			g.values[i] /= float64(c)
		}
	}
	return g
}

func (g *previewGrid) Dims() (c, r int)   { return g.n, g.n }
func (g *previewGrid) Z(c, r int) float64 { return g.values[r*g.n+c] }
func (g *previewGrid) X(c int) float64 {
	return g.bounds.MinX + (float64(c)+0.5)*g.cellW
}
func (g *previewGrid) Y(r int) float64 {
	return g.bounds.MinZ + (float64(r)+0.5)*g.cellD
}

// RenderPlot writes a colour PNG of the raster with world axes.
func (r *Raster) RenderPlot(fsys fsutil.FileSystem, path, title string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Z (m)"

	h := plotter.NewHeatMap(newPreviewGrid(r, maxPreviewCells), palette.Heat(32, 1))
	if h.Max <= h.Min {
		h.Max = h.Min + 1
	}
	p.Add(h)

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render heatmap plot: %w", err)
	}
	return fsutil.WriteAtomic(fsys, path, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return err
	})
}

// RenderHTML writes an interactive scatter of the non-zero cells.
func (r *Raster) RenderHTML(w io.Writer, title string) error {
	grid := newPreviewGrid(r, maxPreviewCells)
	data := make([]opts.ScatterData, 0, 1024)
	peak := 0.0
	for row := 0; row < grid.n && len(data) < maxScatterPoints; row++ {
		for col := 0; col < grid.n && len(data) < maxScatterPoints; col++ {
			v := grid.Z(col, row)
			if v <= 0 {
				continue
			}
			peak = max(peak, v)
			data = append(data, opts.ScatterData{Value: []interface{}{grid.X(col), grid.Y(row), v}})
		}
	}
	if peak == 0 {
		peak = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("cells=%d samples=%d max=%g", len(data), r.Samples, r.Max)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: r.Bounds.MinX, Max: r.Bounds.MaxX, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: r.Bounds.MinZ, Max: r.Bounds.MaxZ, Name: "Z (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(peak),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#000004", "#320a5e", "#781c6d", "#bb3754", "#ed6925", "#fbb61a", "#fcffa4"}},
		}),
	)
	scatter.AddSeries("density", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render heatmap html: %w", err)
	}
	return nil
}
