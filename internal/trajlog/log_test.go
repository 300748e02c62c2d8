package trajlog

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/trajectory.replay/internal/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNew_Invariants(t *testing.T) {
	kf := []Keyframe{{EntityID: 0}, {EntityID: 2}}
	types := []EntityType{1, 0, 3}

	tests := []struct {
		name      string
		interval  uint32
		keyframes []Keyframe
		offsets   []int32
		types     []EntityType
	}{
		{"zero interval", 0, kf, []int32{0, 2}, types},
		{"empty index", 250, kf, nil, types},
		{"index not at zero", 250, kf, []int32{1, 2}, types},
		{"index decreases", 250, kf, []int32{0, 2, 1, 2}, types},
		{"sentinel mismatch", 250, kf, []int32{0, 1}, types},
		{"id outside table", 250, kf, []int32{0, 2}, types[:2]},
		{"negative id", 250, []Keyframe{{EntityID: -1}}, []int32{0, 1}, types},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(0, tt.interval, tt.keyframes, tt.offsets, tt.types)
			assert.ErrorIs(t, err, ErrCorruptData)
		})
	}

	l, err := New(5, 250, kf, []int32{0, 1, 1, 2}, types)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Frames())
	assert.Equal(t, uint32(5), l.StartTime())
}

// Example: entity 1 moves from the origin to (10,0,0) over one interval
// while turning a quarter turn; halfway through it is at (5,0,0) with the
// rotation exactly half way.
func TestPoseAt_Interpolates(t *testing.T) {
	turn := spatial.AxisAngle(spatial.Up, math.Pi/2)
	l := buildLog(t, BuilderOptions{},
		sample{t: 0, id: 1, typ: 20},
		sample{t: 250, id: 1, typ: 20, pos: r3.Vec{X: 10}, rot: turn},
	)
	require.Equal(t, uint32(0), l.StartTime())
	require.Equal(t, []int32{0, 1, 2}, l.FrameOffsets())

	pose, found, err := l.PoseAt(1, 125)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 5.0, pose.Position.X, 1e-6)
	assert.InDelta(t, 0.0, pose.Position.Y, 1e-6)
	assert.InDelta(t, 0.0, pose.Position.Z, 1e-6)

	half := spatial.AxisAngle(spatial.Up, math.Pi/4)
	assert.InDelta(t, half.Real, pose.Orientation.Real, 1e-6)
	assert.InDelta(t, half.Imag, pose.Orientation.Imag, 1e-6)
	assert.InDelta(t, half.Jmag, pose.Orientation.Jmag, 1e-6)
	assert.InDelta(t, half.Kmag, pose.Orientation.Kmag, 1e-6)

	pose, found, err = l.PoseAt(1, 250)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 10.0, pose.Position.X, 1e-6)

	_, found, err = l.PoseAt(2, 125)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPoseAt_HoldsWhenAbsentLater(t *testing.T) {
	l := buildLog(t, BuilderOptions{},
		sample{t: 0, id: 1, pos: r3.Vec{X: 3}},
		sample{t: 0, id: 2},
		sample{t: 250, id: 2},
	)
	pose, found, err := l.PoseAt(1, 200)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 3.0, pose.Position.X, 1e-6)
}

func TestPositionAt(t *testing.T) {
	l := buildLog(t, BuilderOptions{},
		sample{t: 1000, id: 4, pos: r3.Vec{X: 1, Y: 2, Z: 3}},
		sample{t: 1250, id: 4, pos: r3.Vec{X: 4, Y: 5, Z: 6}},
	)

	pos, found, err := l.PositionAt(4, 1100)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, pos)

	pos, found, err = l.PositionAt(4, 1250)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, r3.Vec{X: 4, Y: 5, Z: 6}, pos)

	for _, tm := range []float64{999, 1500, 1e9, math.NaN()} {
		_, _, err := l.PositionAt(4, tm)
		assert.True(t, errors.Is(err, ErrOutOfRange), "t=%v: %v", tm, err)
	}
}

func TestConcurrentQueries(t *testing.T) {
	l := buildLog(t, BuilderOptions{}, randomSamples(3, 2000)...)
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 500; i++ {
				tm := l.Wrap(float64(i * 37))
				if _, _, err := l.PositionAt(int32(i%200), tm); err != nil {
					t.Errorf("PositionAt() error = %v", err)
					return
				}
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}

func TestWrapAndDuration(t *testing.T) {
	l := buildLog(t, BuilderOptions{},
		sample{t: 100, id: 0},
		sample{t: 350, id: 0},
		sample{t: 600, id: 0},
	)
	require.Equal(t, 3, l.Frames())
	assert.Equal(t, 500.0, l.Duration())

	assert.Equal(t, 100.0, l.Wrap(0))
	assert.Equal(t, 200.0, l.Wrap(100))
	assert.Equal(t, 200.0, l.Wrap(600))
	assert.Equal(t, 500.0, l.Wrap(-100))

	single := buildLog(t, BuilderOptions{}, sample{t: 42, id: 0})
	assert.Equal(t, 0.0, single.Duration())
	assert.Equal(t, 42.0, single.Wrap(1234))
}

func TestBucketAccess(t *testing.T) {
	l := buildLog(t, BuilderOptions{},
		sample{t: 0, id: 0},
		sample{t: 0, id: 1},
		sample{t: 250, id: 1},
	)
	b, err := l.Bucket(0)
	require.NoError(t, err)
	assert.Len(t, b, 2)

	lo, hi, err := l.BucketRange(1)
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 3}, [2]int{lo, hi})

	_, err = l.Bucket(2)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = l.Bucket(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestTypesAndStats(t *testing.T) {
	l := buildLog(t, BuilderOptions{},
		sample{t: 0, id: 3, typ: 20},
		sample{t: 0, id: 5, typ: 10},
		sample{t: 250, id: 3, typ: 20},
	)
	assert.Equal(t, []EntityType{0, 0, 0, 20, 0, 10}, l.TypeTable())
	assert.Equal(t, EntityType(20), l.TypeOf(3))
	assert.Equal(t, TypeNone, l.TypeOf(4))
	assert.Equal(t, TypeNone, l.TypeOf(99))
	assert.Equal(t, []EntityType{10, 20}, l.PresentTypes())

	assert.Equal(t, Stats{Keyframes: 3, Frames: 2, Entities: 2, StartTime: 0, DurationMs: 250}, l.Stats())
}

func TestAccessorsCopy(t *testing.T) {
	l := buildLog(t, BuilderOptions{}, sample{t: 0, id: 0, typ: 1})
	offsets := l.FrameOffsets()
	offsets[0] = 99
	types := l.TypeTable()
	types[0] = 99
	assert.Equal(t, int32(0), l.FrameOffsets()[0])
	assert.Equal(t, EntityType(1), l.TypeOf(0))
}
