// Command replay plays a trajectory log in real time, logging spawn and
// despawn events and exposing playback metrics.
//
// Usage:
//
//	go run ./cmd/replay -log exports/junction.bv [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/trajectory.replay/internal/catalog"
	"github.com/banshee-data/trajectory.replay/internal/config"
	"github.com/banshee-data/trajectory.replay/internal/fsutil"
	"github.com/banshee-data/trajectory.replay/internal/monitoring"
	"github.com/banshee-data/trajectory.replay/internal/playback"
	"github.com/banshee-data/trajectory.replay/internal/timeutil"
	"github.com/banshee-data/trajectory.replay/internal/trajlog"
	"github.com/banshee-data/trajectory.replay/internal/units"
	"github.com/banshee-data/trajectory.replay/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	configPath = flag.String("config", "", "Path to replay config JSON (optional)")
	logPath    = flag.String("log", "", "Trajectory log to play (.fzp, .pp, .bv or .bp)")
	listen     = flag.String("listen", "", "Serve /metrics on this address (disabled when empty)")
	scale      = flag.Float64("scale", 0, "Playback rate; overrides the config when set")
	seed       = flag.Uint64("seed", 0, "Asset selection seed; overrides the config when set")
	duration   = flag.Duration("duration", 0, "Stop after this much wall time (0 runs until interrupted)")
	verbose    = flag.Bool("v", false, "Log every spawn and despawn")
	speedUnits = flag.String("units", units.KPH, "Speed units for status lines: "+strings.Join(units.ValidUnits, ", "))
	status     = flag.Duration("status", 5*time.Second, "Interval between status lines (0 disables them)")
	showVer    = flag.Bool("version", false, "Print the version and exit")
)

// statusMeter feeds the periodic status line. Ticks and status lines run on
// the same goroutine.
type statusMeter struct {
	units.SpeedMeter
	spawns, despawns int
}

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version.String("replay"))
		return
	}
	if _, err := units.Parse(*speedUnits); err != nil {
		log.Fatalf("Error: %v", err)
	}
	if *logPath == "" {
		log.Fatal("Error: -log flag is required")
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *scale > 0 {
		cfg.TimeScale = scale
	}
	if *seed != 0 {
		cfg.Seed = seed
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	opts := cfg.TextOptions()
	pending := trajlog.LoadAsync(ctx, func(ctx context.Context) (*trajlog.Log, *trajlog.IngestReport, error) {
		return trajlog.Open(ctx, fsutil.OSFileSystem{}, *logPath, opts)
	})
	log.Printf("Loading %s", *logPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := monitoring.NewPlaybackMetrics(reg)

	var wg sync.WaitGroup
	if *listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: *listen, Handler: mux}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server failed: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("metrics server shutdown: %v", err)
			}
		}()
		log.Printf("Serving metrics on %s/metrics", *listen)
	}

	cat, err := cfg.Catalog()
	if err != nil {
		log.Fatalf("Failed to build asset catalog: %v", err)
	}

	traj, report, err := pending.Wait(ctx)
	if err != nil {
		if traj == nil {
			log.Fatalf("Failed to load %s: %v", *logPath, err)
		}
		log.Printf("Loaded a partial log from %s: %v", *logPath, err)
	}
	if report != nil && report.SkippedCount > 0 {
		log.Printf("Skipped %d of %d records", report.SkippedCount, report.Records+report.SkippedCount)
	}
	stats := traj.Stats()
	log.Printf("Log info: %d keyframes, %d frames, %d entities, %.2f seconds",
		stats.Keyframes, stats.Frames, stats.Entities, stats.DurationMs/1000)

	if missing := cat.ValidateTypes(traj.PresentTypes(), cfg.GetAddMissing()); len(missing) > 0 {
		log.Printf("%d entity types have no asset and will not appear", len(missing))
	}

	meter := &statusMeter{}
	consumer := playback.Multi{newEventLogger(*verbose), playback.ConsumerFuncs{
		Spawn:   func(int32, trajlog.EntityType, catalog.Handle, trajlog.Pose) { meter.spawns++ },
		Update:  func(_ int32, _ trajlog.Pose, speed float64) { meter.Add(speed) },
		Despawn: func(int32) { meter.despawns++ },
	}}
	engine, err := playback.NewEngine(traj, cat, consumer, playback.WithMetrics(metrics))
	if err != nil {
		log.Fatalf("Failed to create playback engine: %v", err)
	}

	run(ctx, timeutil.RealClock{}, engine, cfg, meter, *status)
	engine.Reset()
	stop()
	wg.Wait()
	log.Printf("Replay stopped")
}

// run ticks the engine until ctx is done or, without looping, the log ends.
// Ticks and status lines are driven by clock. A zero statusEvery disables
// status lines.
func run(ctx context.Context, clock timeutil.Clock, engine *playback.Engine, cfg *config.ReplayConfig, meter *statusMeter, statusEvery time.Duration) {
	traj := engine.Log()
	playClock := timeutil.NewPlaybackClock(clock)
	playClock.SetScale(cfg.GetTimeScale())

	ticker := clock.NewTicker(cfg.GetTickInterval())
	defer ticker.Stop()

	var statusC <-chan time.Time
	if statusEvery > 0 {
		st := clock.NewTicker(statusEvery)
		defer st.Stop()
		statusC = st.C()
	}

	loop := cfg.GetLoop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-statusC:
			log.Printf("t=%.1fs active=%d spawned=%d despawned=%d mean speed %.1f %s",
				playClock.ElapsedMillis()/1000, engine.ActiveCount(), meter.spawns, meter.despawns,
				meter.Mean(*speedUnits), units.Label(*speedUnits))
			continue
		case <-ticker.C():
		}

		elapsed := playClock.ElapsedMillis()
		t := traj.Wrap(elapsed)
		if !loop {
			if elapsed > traj.Duration() {
				log.Printf("Reached the end of the log")
				return
			}
			t = float64(traj.StartTime()) + elapsed
		}
		if err := engine.Tick(t); err != nil {
			log.Printf("tick at %.0f ms: %v", t, err)
		}
	}
}

func newEventLogger(verbose bool) playback.Consumer {
	if !verbose {
		return playback.ConsumerFuncs{}
	}
	return playback.ConsumerFuncs{
		Spawn: func(id int32, typ trajlog.EntityType, h catalog.Handle, pose trajlog.Pose) {
			log.Printf("spawn %d %s %s at (%.2f, %.2f, %.2f)", id, catalog.TypeName(typ), h.Asset,
				pose.Position.X, pose.Position.Y, pose.Position.Z)
		},
		Despawn: func(id int32) {
			log.Printf("despawn %d", id)
		},
	}
}
