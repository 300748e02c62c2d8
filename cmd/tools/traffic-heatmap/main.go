// Command traffic-heatmap renders one density raster per configured pass
// (by default vehicles, cyclists and pedestrians) from a trajectory log.
// Nothing is written unless every pass succeeds.
//
// Usage:
//
//	go run ./cmd/tools/traffic-heatmap -log exports/junction.bv -out heatmaps [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"

	"github.com/banshee-data/trajectory.replay/internal/config"
	"github.com/banshee-data/trajectory.replay/internal/fsutil"
	"github.com/banshee-data/trajectory.replay/internal/heatmap"
	"github.com/banshee-data/trajectory.replay/internal/security"
	"github.com/banshee-data/trajectory.replay/internal/store"
	"github.com/banshee-data/trajectory.replay/internal/trajlog"
	"github.com/banshee-data/trajectory.replay/internal/version"
)

// fitMargin pads fitted bounds, in metres.
const fitMargin = 5

func main() {
	configPath := flag.String("config", "", "Path to replay config JSON (optional)")
	logPath := flag.String("log", "", "Trajectory log used by passes that name none")
	outDir := flag.String("out", "heatmaps", "Output directory")
	resolution := flag.Int("resolution", 0, "Raster edge in cells; overrides the config when set")
	logarithmic := flag.Bool("log-scale", false, "Use logarithmic normalization")
	preview := flag.Bool("preview", false, "Also write a colour preview PNG per pass")
	html := flag.Bool("html", false, "Also write an interactive HTML preview per pass")
	dbPath := flag.String("db", "", "Record runs in this SQLite database (optional)")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("traffic-heatmap"))
		return
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Heatmap == nil {
		cfg.Heatmap = &config.HeatmapConfig{}
	}
	hc := cfg.Heatmap
	if *resolution > 0 {
		hc.Resolution = resolution
	}
	if *logarithmic {
		hc.Logarithmic = logarithmic
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fsys := fsutil.OSFileSystem{}
	passes, err := loadPasses(ctx, fsys, cfg, hc, *logPath)
	if err != nil {
		log.Fatalf("Failed to prepare passes: %v", err)
	}

	opts := hc.Options()
	if hc.Bounds == nil {
		opts.Bounds = heatmap.Fit(passes[0].Log, opts.Origin, fitMargin)
		log.Printf("Fitted bounds to %s: %+v", logFor(hc.GetPasses()[0], *logPath), opts.Bounds)
	}
	last := -10
	opts.Progress = func(msg string, f float64) bool {
		if pct := int(f * 100); pct/10 != last/10 {
			last = pct
			log.Printf("%3d%% %s", pct, msg)
		}
		return false
	}

	var history *store.Store
	var runIDs []string
	if *dbPath != "" {
		history, err = store.Open(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer history.Close()
		for i, p := range passes {
			id, err := history.StartHeatmapRun(store.HeatmapRun{
				LogPath:     logFor(hc.GetPasses()[i], *logPath),
				PassName:    p.Name,
				Resolution:  opts.Resolution,
				Radius:      opts.Radius,
				Logarithmic: opts.Logarithmic,
			})
			if err != nil {
				log.Fatalf("Failed to record run: %v", err)
			}
			runIDs = append(runIDs, id)
		}
	}
	finish := func(status store.RunStatus, results []heatmap.PassResult, outputs []string, runErr error) {
		for i, id := range runIDs {
			res := store.RunResult{Err: runErr}
			if i < len(results) {
				res.Samples = results[i].Raster.Samples
				res.MaxValue = results[i].Raster.Max
			}
			if i < len(outputs) {
				res.OutputPath = outputs[i]
			}
			if err := history.FinishHeatmapRun(id, status, res); err != nil {
				log.Printf("Failed to record run result: %v", err)
			}
		}
	}

	results, err := heatmap.GeneratePasses(ctx, passes, opts)
	if err != nil {
		status := runStatus(err)
		finish(status, nil, nil, err)
		if status == store.StatusCancelled {
			log.Printf("Heatmap generation cancelled; no images written")
			return
		}
		stop()
		log.Fatalf("Heatmap generation failed: %v", err)
	}

	outputs, err := write(fsys, *outDir, results, *preview, *html)
	if err != nil {
		finish(store.StatusFailed, results, outputs, err)
		stop()
		log.Fatalf("Failed to write heatmaps: %v", err)
	}
	finish(store.StatusCompleted, results, outputs, nil)

	for i, r := range results {
		log.Printf("%s: %d samples, max %.2f -> %s", r.Name, r.Raster.Samples, r.Raster.Max, outputs[i])
	}
}

// runStatus maps a generation error onto the recorded run status.
func runStatus(err error) store.RunStatus {
	switch {
	case err == nil:
		return store.StatusCompleted
	case errors.Is(err, heatmap.ErrCancelled), errors.Is(err, context.Canceled):
		return store.StatusCancelled
	}
	return store.StatusFailed
}

func logFor(p config.HeatmapPass, fallback string) string {
	if p.Log != "" {
		return p.Log
	}
	return fallback
}

// loadPasses resolves every pass's filter and loads each distinct log once.
func loadPasses(ctx context.Context, fsys fsutil.FileSystem, cfg *config.ReplayConfig, hc *config.HeatmapConfig, fallback string) ([]heatmap.Pass, error) {
	logs := make(map[string]*trajlog.Log)
	var passes []heatmap.Pass
	for _, pc := range hc.GetPasses() {
		path := logFor(pc, fallback)
		if path == "" {
			return nil, errors.New("pass " + pc.Name + " has no log; set -log")
		}
		filter, err := pc.Filter()
		if err != nil {
			return nil, err
		}
		l, ok := logs[path]
		if !ok {
			log.Printf("Loading %s", path)
			if l, _, err = trajlog.Open(ctx, fsys, path, cfg.TextOptions()); err != nil {
				return nil, err
			}
			logs[path] = l
		}
		passes = append(passes, heatmap.Pass{Name: pc.Name, Log: l, Filter: filter})
	}
	return passes, nil
}

// write saves every raster and the requested previews, returning the raster
// paths written so far. File names come from the sanitized pass names.
func write(fsys fsutil.FileSystem, dir string, results []heatmap.PassResult, preview, html bool) ([]string, error) {
	outputs := make([]string, 0, len(results))
	for _, r := range results {
		path, err := security.OutputPath(dir, r.Name, ".png")
		if err != nil {
			return outputs, err
		}
		if err := r.Raster.Save(fsys, path); err != nil {
			return outputs, err
		}
		outputs = append(outputs, path)

		if preview {
			path, err := security.OutputPath(dir, r.Name, "_preview.png")
			if err != nil {
				return outputs, err
			}
			if err := r.Raster.RenderPlot(fsys, path, r.Name); err != nil {
				return outputs, err
			}
		}
		if html {
			path, err := security.OutputPath(dir, r.Name, ".html")
			if err != nil {
				return outputs, err
			}
			err = fsutil.WriteAtomic(fsys, path, func(w io.Writer) error {
				return r.Raster.RenderHTML(w, r.Name)
			})
			if err != nil {
				return outputs, err
			}
		}
	}
	return outputs, nil
}
