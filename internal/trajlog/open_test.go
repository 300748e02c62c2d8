package trajlog

import (
	"context"
	"testing"
	"time"

	"github.com/banshee-data/trajectory.replay/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("data/run.fzp", []byte(vehicleExport))
	fsys.WriteFile("data/walk.PP", []byte("0;1;1;0 1 0;0 0 0\n"))
	fsys.WriteFile("data/notes.txt", []byte("hello"))

	ctx := context.Background()

	l, report, err := Open(ctx, fsys, "data/run.fzp", TextOptions{})
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 4, l.Len())

	require.NoError(t, Save(fsys, BinaryPath("data/run.fzp"), l))
	bin, report, err := Open(ctx, fsys, "data/run.bv", TextOptions{})
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, l.FrameOffsets(), bin.FrameOffsets())

	l, _, err = Open(ctx, fsys, "data/walk.PP", TextOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())

	_, _, err = Open(ctx, fsys, "data/notes.txt", TextOptions{})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, _, err = Open(ctx, fsys, "data/missing.fzp", TextOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = Open(ctx, fsys, "data/missing.bp", TextOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_ProgressUsesFileSize(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("run.fzp", []byte(vehicleExport))

	var last float64
	_, _, err := Open(context.Background(), fsys, "run.fzp", TextOptions{
		Progress: func(f float64) bool { last = f; return false },
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, last)
}

func TestPaths(t *testing.T) {
	assert.True(t, IsBinary("a/b.BV"))
	assert.True(t, IsBinary("x.bp"))
	assert.False(t, IsBinary("x.fzp"))
	assert.True(t, IsText("x.fzp"))
	assert.True(t, IsText("x.pp"))
	assert.False(t, IsText("x.bv"))

	assert.Equal(t, "dir/run.bv", BinaryPath("dir/run.fzp"))
	assert.Equal(t, "dir/walk.bp", BinaryPath("dir/walk.pp"))
	assert.Equal(t, "dir/walk.bp", BinaryPath("dir/walk.PP"))
}

func TestLoadAsync(t *testing.T) {
	release := make(chan struct{})
	want := buildLog(t, BuilderOptions{}, sample{t: 0, id: 0})

	p := LoadAsync(context.Background(), func(ctx context.Context) (*Log, *IngestReport, error) {
		<-release
		return want, &IngestReport{Records: 1}, nil
	})

	_, _, err := p.Result()
	assert.ErrorIs(t, err, ErrNotReady)
	select {
	case <-p.Ready():
		t.Fatal("Ready closed before the load finished")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err = p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	select {
	case <-p.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("load did not finish")
	}

	l, report, err := p.Result()
	require.NoError(t, err)
	assert.Same(t, want, l)
	assert.Equal(t, 1, report.Records)

	l, _, err = p.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, l)
}

func TestLoadAsync_Error(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	p := LoadAsync(context.Background(), func(ctx context.Context) (*Log, *IngestReport, error) {
		return Open(ctx, fsys, "gone.bv", TextOptions{})
	})
	l, _, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, l)
}
