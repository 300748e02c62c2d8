package heatmap

import (
	"context"
	"fmt"

	"github.com/banshee-data/trajectory.replay/internal/trajlog"
)

// Pass is one named raster over a log. Filter overrides Options.Filter.
type Pass struct {
	Name   string
	Log    *trajlog.Log
	Filter *TypeFilter
}

// PassResult pairs a pass with its raster.
type PassResult struct {
	Name   string
	Raster *Raster
}

// GeneratePasses runs each pass with the shared options. Progress spans all
// passes and messages are prefixed with the pass name. Cancellation or an
// error stops the run and discards every raster.
func GeneratePasses(ctx context.Context, passes []Pass, opts Options) ([]PassResult, error) {
	results := make([]PassResult, 0, len(passes))
	share := 1 / float64(max(len(passes), 1))
	for i, pass := range passes {
		if pass.Log == nil {
			return nil, fmt.Errorf("heatmap pass %q has no log", pass.Name)
		}
		o := opts
		o.Filter = pass.Filter
		p := progress{
			ctx:    ctx,
			fn:     opts.Progress,
			base:   float64(i) * share,
			share:  share,
			prefix: pass.Name + ": ",
		}
		r, err := generate(pass.Log, o, p)
		if err != nil {
			return nil, fmt.Errorf("heatmap pass %q: %w", pass.Name, err)
		}
		results = append(results, PassResult{Name: pass.Name, Raster: r})
	}
	return results, nil
}
