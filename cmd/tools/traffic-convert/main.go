// Command traffic-convert converts text trajectory exports (.fzp, .pp) into
// the binary log format (.bv, .bp) next to the source.
//
// Usage:
//
//	go run ./cmd/tools/traffic-convert [flags] export.fzp [more.pp ...]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/trajectory.replay/internal/config"
	"github.com/banshee-data/trajectory.replay/internal/fsutil"
	"github.com/banshee-data/trajectory.replay/internal/store"
	"github.com/banshee-data/trajectory.replay/internal/trajlog"
	"github.com/banshee-data/trajectory.replay/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to replay config JSON (optional)")
	strict := flag.Bool("strict", false, "Reject records that change an entity's type")
	dbPath := flag.String("db", "", "Record imports in this SQLite database (optional)")
	quiet := flag.Bool("q", false, "Do not print progress")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] export.fzp [more.pp ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("traffic-convert"))
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *strict {
		cfg.StrictTypes = strict
	}

	var history *store.Store
	if *dbPath != "" {
		history, err = store.Open(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer history.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fsys := fsutil.OSFileSystem{}
	failed := 0
	for _, src := range flag.Args() {
		if err := convert(ctx, fsys, src, cfg, history, *quiet); err != nil {
			log.Printf("%s: %v", src, err)
			failed++
		}
		if ctx.Err() != nil {
			break
		}
	}
	if failed > 0 {
		stop()
		log.Fatalf("%d of %d conversions failed", failed, flag.NArg())
	}
}

func convert(ctx context.Context, fsys fsutil.FileSystem, src string, cfg *config.ReplayConfig, history *store.Store, quiet bool) error {
	if !trajlog.IsText(src) {
		return fmt.Errorf("%w: expected a .fzp or .pp export", trajlog.ErrUnknownFormat)
	}

	opts := cfg.TextOptions()
	last := -10
	if !quiet {
		opts.Progress = func(f float64) bool {
			if pct := int(f * 100); pct/10 != last/10 {
				last = pct
				log.Printf("%s: %d%%", src, pct)
			}
			return false
		}
	}

	traj, report, err := trajlog.Open(ctx, fsys, src, opts)
	if err != nil {
		return err
	}

	dst := trajlog.BinaryPath(src)
	if err := trajlog.Save(fsys, dst, traj); err != nil {
		return err
	}

	stats := traj.Stats()
	log.Printf("%s -> %s: %d keyframes, %d frames, %d entities, %d skipped",
		src, dst, stats.Keyframes, stats.Frames, stats.Entities, report.SkippedCount)

	if history == nil {
		return nil
	}
	_, err = history.RecordImport(store.Import{
		SourcePath: src,
		BinaryPath: dst,
		Keyframes:  stats.Keyframes,
		Frames:     stats.Frames,
		Entities:   stats.Entities,
		Skipped:    report.SkippedCount,
		StartTime:  stats.StartTime,
		Interval:   traj.Interval(),
	})
	return err
}
