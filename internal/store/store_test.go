package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/trajectory.replay/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	s, err := Open(filepath.Join(t.TempDir(), "history.db"), WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func TestOpen_Migrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)

	version, dirty, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	require.NoError(t, s.Close())

	// Reopening an up-to-date database is a no-op.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	version, _, err = s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestImports(t *testing.T) {
	s, clock := openTestStore(t)

	id, err := s.RecordImport(Import{
		SourcePath: "exports/a.fzp",
		BinaryPath: "exports/a.bv",
		Keyframes:  1200,
		Frames:     48,
		Entities:   31,
		Skipped:    2,
		StartTime:  1000,
		Interval:   250,
	})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	clock.Advance(time.Minute)
	_, err = s.RecordImport(Import{ID: "fixed", SourcePath: "exports/b.pp", BinaryPath: "exports/b.bp", Interval: 250})
	require.NoError(t, err)

	imports, err := s.ListImports(0)
	require.NoError(t, err)
	require.Len(t, imports, 2)
	assert.Equal(t, "fixed", imports[0].ID)
	assert.Equal(t, epoch.Add(time.Minute), imports[0].ImportedAt)

	got := imports[1]
	assert.Equal(t, Import{
		ID:         id,
		SourcePath: "exports/a.fzp",
		BinaryPath: "exports/a.bv",
		Keyframes:  1200,
		Frames:     48,
		Entities:   31,
		Skipped:    2,
		StartTime:  1000,
		Interval:   250,
		ImportedAt: epoch,
	}, got)

	limited, err := s.ListImports(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = s.RecordImport(Import{ID: "fixed"})
	assert.Error(t, err, "duplicate ID")
}

func TestHeatmapRuns(t *testing.T) {
	s, clock := openTestStore(t)

	id, err := s.StartHeatmapRun(HeatmapRun{
		LogPath:     "exports/a.bv",
		PassName:    "vehicles",
		Resolution:  4096,
		Radius:      2,
		Logarithmic: true,
	})
	require.NoError(t, err)

	run, err := s.GetHeatmapRun(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)
	assert.True(t, run.Logarithmic)
	assert.Equal(t, epoch, run.StartedAt)

	clock.Advance(3 * time.Second)
	require.NoError(t, s.FinishHeatmapRun(id, StatusCompleted, RunResult{
		Samples:    900,
		MaxValue:   17.5,
		OutputPath: "out/vehicles.png",
	}))

	run, err = s.GetHeatmapRun(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 900, run.Samples)
	assert.Equal(t, 17.5, run.MaxValue)
	assert.Equal(t, "out/vehicles.png", run.OutputPath)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, epoch.Add(3*time.Second), *run.FinishedAt)

	err = s.FinishHeatmapRun(id, StatusFailed, RunResult{})
	assert.ErrorIs(t, err, ErrRunFinished)

	err = s.FinishHeatmapRun("missing", StatusFailed, RunResult{})
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = s.FinishHeatmapRun(id, StatusRunning, RunResult{})
	assert.Error(t, err)

	_, err = s.GetHeatmapRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestHeatmapRuns_CancelledAndFailed(t *testing.T) {
	s, clock := openTestStore(t)

	cancelled, err := s.StartHeatmapRun(HeatmapRun{LogPath: "a.bv", PassName: "cyclists", Resolution: 64, Radius: 1})
	require.NoError(t, err)
	clock.Advance(time.Second)
	failed, err := s.StartHeatmapRun(HeatmapRun{LogPath: "a.bv", PassName: "pedestrians", Resolution: 64, Radius: 1})
	require.NoError(t, err)

	require.NoError(t, s.FinishHeatmapRun(cancelled, StatusCancelled, RunResult{}))
	require.NoError(t, s.FinishHeatmapRun(failed, StatusFailed, RunResult{Err: errors.New("disk full")}))

	runs, err := s.ListHeatmapRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, failed, runs[0].ID)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "disk full", runs[0].Error)
	assert.Equal(t, StatusCancelled, runs[1].Status)
	assert.Empty(t, runs[1].Error)
}

func TestRunStatus(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	for _, s := range []RunStatus{StatusCompleted, StatusCancelled, StatusFailed} {
		assert.True(t, s.Terminal(), s)
	}
}
