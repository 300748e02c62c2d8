package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/banshee-data/trajectory.replay/internal/fsutil"
	"github.com/banshee-data/trajectory.replay/internal/heatmap"
	"github.com/banshee-data/trajectory.replay/internal/spatial"
	"github.com/banshee-data/trajectory.replay/internal/store"
	"github.com/banshee-data/trajectory.replay/internal/trajlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func testPasses(t *testing.T) []heatmap.Pass {
	t.Helper()
	b := trajlog.NewBuilder(trajlog.BuilderOptions{})
	require.NoError(t, b.Append(0, 1, 10, r3.Vec{}, spatial.Identity))
	require.NoError(t, b.Append(250, 1, 10, r3.Vec{X: 1}, spatial.Identity))
	return []heatmap.Pass{{Name: "cyclists", Log: b.Build()}}
}

func testOptions() heatmap.Options {
	return heatmap.Options{
		Bounds:     heatmap.Bounds{MinX: -2, MinZ: -2, MaxX: 2, MaxZ: 2},
		Resolution: 8,
		Radius:     1,
	}
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want store.RunStatus
	}{
		{"success", nil, store.StatusCompleted},
		{"cancelled", fmt.Errorf("heatmap pass %q: %w", "cyclists", heatmap.ErrCancelled), store.StatusCancelled},
		{"context", context.Canceled, store.StatusCancelled},
		{"failed", errors.New("disk full"), store.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runStatus(tt.err))
		})
	}
}

func TestRunStatus_CancelledGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := heatmap.GeneratePasses(ctx, testPasses(t), testOptions())
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Equal(t, store.StatusCancelled, runStatus(err))
}

func TestWrite(t *testing.T) {
	results, err := heatmap.GeneratePasses(context.Background(), testPasses(t), testOptions())
	require.NoError(t, err)

	fsys := fsutil.NewMemoryFileSystem()
	outputs, err := write(fsys, "out", results, true, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"out/cyclists.png"}, outputs)
	assert.Equal(t, []string{"out/cyclists.html", "out/cyclists.png", "out/cyclists_preview.png"}, fsys.Files(""))
}
