package config

import (
	"fmt"

	"github.com/banshee-data/trajectory.replay/internal/catalog"
	"github.com/banshee-data/trajectory.replay/internal/heatmap"
	"github.com/banshee-data/trajectory.replay/internal/trajlog"
	"gonum.org/v1/gonum/spatial/r3"
)

// TextOptions returns the ingestion options for text exports.
func (c *ReplayConfig) TextOptions() trajlog.TextOptions {
	return trajlog.TextOptions{
		BuilderOptions: trajlog.BuilderOptions{
			Interval:     c.GetIntervalMs(),
			AbsoluteTime: !c.GetFirstFrameIsStartTime(),
			StrictTypes:  c.GetStrictTypes(),
			MaxEntityID:  c.GetMaxEntityID(),
		},
		ColumnSeparator: c.GetColumnSeparator(),
		VectorSeparator: c.GetVectorSeparator(),
	}
}

// Catalog builds the asset catalog from the assets section.
func (c *ReplayConfig) Catalog() (*catalog.Assets, error) {
	return catalog.FromNames(c.Assets, c.GetDefaultAsset(), c.GetSeed())
}

// Options returns the heatmap options shared by every pass. Without
// configured bounds the caller must fill them in.
func (h *HeatmapConfig) Options() heatmap.Options {
	o := h.GetOrigin()
	opts := heatmap.Options{
		Origin:      r3.Vec{X: o[0], Y: o[1], Z: o[2]},
		Resolution:  h.GetResolution(),
		Radius:      h.GetPointRadius(),
		Logarithmic: h.GetLogarithmic(),
	}
	if h.Bounds != nil {
		opts.Bounds = heatmap.Bounds{MinX: h.Bounds.MinX, MinZ: h.Bounds.MinZ, MaxX: h.Bounds.MaxX, MaxZ: h.Bounds.MaxZ}
	}
	return opts
}

// Filter resolves the pass's type names.
func (p HeatmapPass) Filter() (*heatmap.TypeFilter, error) {
	types, err := catalog.ParseTypes(p.Types)
	if err != nil {
		return nil, fmt.Errorf("heatmap pass %q: %w", p.Name, err)
	}
	return &heatmap.TypeFilter{Types: types, Include: p.Include}, nil
}
