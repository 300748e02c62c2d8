// Package trajlog holds recorded entity trajectories in memory together with
// the frame index that maps a playback time to its keyframes in O(1), and the
// binary and delimited-text codecs for them.
//
// A Log is immutable after construction and may be shared by any number of
// readers.
package trajlog

import (
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/trajectory.replay/internal/spatial"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultInterval is the frame bucket length in milliseconds.
const DefaultInterval uint32 = 250

// EntityType is the recorded type code of an entity. Zero means none.
type EntityType uint8

// TypeNone marks entity IDs that never appeared with a type.
const TypeNone EntityType = 0

// Keyframe is one timestamped pose sample for one entity. Components are kept
// at the on-disk float32 width so binary round trips are bit-exact.
type Keyframe struct {
	EntityID    int32
	Position    [3]float32
	Orientation [4]float32 // x, y, z, w
}

// NewKeyframe builds a keyframe from float64 math types.
func NewKeyframe(id int32, pos r3.Vec, rot quat.Number) Keyframe {
	return Keyframe{
		EntityID:    id,
		Position:    [3]float32{float32(pos.X), float32(pos.Y), float32(pos.Z)},
		Orientation: [4]float32{float32(rot.Imag), float32(rot.Jmag), float32(rot.Kmag), float32(rot.Real)},
	}
}

// Pos returns the keyframe position.
func (k Keyframe) Pos() r3.Vec {
	return r3.Vec{X: float64(k.Position[0]), Y: float64(k.Position[1]), Z: float64(k.Position[2])}
}

// Rot returns the keyframe orientation.
func (k Keyframe) Rot() quat.Number {
	return quat.Number{
		Real: float64(k.Orientation[3]),
		Imag: float64(k.Orientation[0]),
		Jmag: float64(k.Orientation[1]),
		Kmag: float64(k.Orientation[2]),
	}
}

// Pose is a position and orientation.
type Pose struct {
	Position    r3.Vec
	Orientation quat.Number
}

// Pose returns the keyframe's raw pose.
func (k Keyframe) Pose() Pose {
	return Pose{Position: k.Pos(), Orientation: k.Rot()}
}

// Blend interpolates between two poses: linear for position, spherical for
// orientation.
func Blend(from, to Pose, t float64) Pose {
	return Pose{
		Position:    spatial.Lerp(from.Position, to.Position, t),
		Orientation: spatial.Slerp(from.Orientation, to.Orientation, t),
	}
}

// Log is an immutable trajectory recording.
type Log struct {
	startTime uint32
	interval  uint32
	keyframes []Keyframe
	offsets   []int32
	types     []EntityType
}

// New validates the parts of a log and assembles it. The slices are owned by
// the returned Log and must not be modified afterwards.
func New(startTime, interval uint32, keyframes []Keyframe, offsets []int32, types []EntityType) (*Log, error) {
	if interval == 0 {
		return nil, corrupt("interval must be positive")
	}
	if len(offsets) == 0 {
		return nil, corrupt("frame index is empty")
	}
	if offsets[0] != 0 {
		return nil, corrupt("frame index starts at %d, want 0", offsets[0])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return nil, corrupt("frame index decreases at entry %d (%d < %d)", i, offsets[i], offsets[i-1])
		}
	}
	if last := offsets[len(offsets)-1]; int(last) != len(keyframes) {
		return nil, corrupt("frame index ends at %d, want keyframe count %d", last, len(keyframes))
	}
	for i, k := range keyframes {
		if k.EntityID < 0 || int(k.EntityID) >= len(types) {
			return nil, corrupt("keyframe %d references entity %d outside type table of length %d", i, k.EntityID, len(types))
		}
	}

	return &Log{
		startTime: startTime,
		interval:  interval,
		keyframes: keyframes,
		offsets:   offsets,
		types:     types,
	}, nil
}

// StartTime returns the origin of the frame index in milliseconds.
func (l *Log) StartTime() uint32 { return l.startTime }

// Interval returns the bucket length in milliseconds.
func (l *Log) Interval() uint32 { return l.interval }

// Len returns the number of keyframes.
func (l *Log) Len() int { return len(l.keyframes) }

// Keyframe returns the i-th keyframe in capture order.
func (l *Log) Keyframe(i int) Keyframe { return l.keyframes[i] }

// Frames returns the number of time buckets.
func (l *Log) Frames() int { return len(l.offsets) - 1 }

// FrameOffsets returns a copy of the frame index, sentinel included.
func (l *Log) FrameOffsets() []int32 { return slices.Clone(l.offsets) }

// TypeTable returns a copy of the entity type table.
func (l *Log) TypeTable() []EntityType { return slices.Clone(l.types) }

// TypeOf returns the recorded type of id, or TypeNone if it is unknown.
func (l *Log) TypeOf(id int32) EntityType {
	if id < 0 || int(id) >= len(l.types) {
		return TypeNone
	}
	return l.types[id]
}

// PresentTypes returns the distinct non-none types in the type table in
// ascending order.
func (l *Log) PresentTypes() []EntityType {
	var seen [256]bool
	for _, t := range l.types {
		seen[t] = true
	}
	var out []EntityType
	for t := 1; t < len(seen); t++ {
		if seen[t] {
			out = append(out, EntityType(t))
		}
	}
	return out
}

// Bucket returns the keyframes of one frame bucket. The returned slice
// aliases the log and must not be modified.
func (l *Log) Bucket(frame int) ([]Keyframe, error) {
	lo, hi, err := l.bucketRange(frame)
	if err != nil {
		return nil, err
	}
	return l.keyframes[lo:hi:hi], nil
}

// BucketRange returns the keyframe index range [lo, hi) of a frame bucket.
func (l *Log) BucketRange(frame int) (lo, hi int, err error) {
	return l.bucketRange(frame)
}

func (l *Log) bucketRange(frame int) (int, int, error) {
	if frame < 0 || frame > len(l.offsets)-2 {
		return 0, 0, fmt.Errorf("%w: frame %d not in [0, %d]", ErrOutOfRange, frame, len(l.offsets)-2)
	}
	return int(l.offsets[frame]), int(l.offsets[frame+1]), nil
}

// FrameAt converts a log time in milliseconds to a fractional frame number.
func (l *Log) FrameAt(t float64) float64 {
	return (t - float64(l.startTime)) / float64(l.interval)
}

// Duration returns the playable length of the log in milliseconds.
func (l *Log) Duration() float64 {
	n := len(l.offsets) - 2
	if n <= 0 {
		return 0
	}
	return float64(n) * float64(l.interval)
}

// Wrap maps a free-running playback time in milliseconds onto the log,
// looping: the result lies in [StartTime, StartTime+Duration).
func (l *Log) Wrap(elapsed float64) float64 {
	d := l.Duration()
	if d == 0 {
		return float64(l.startTime)
	}
	m := math.Mod(elapsed, d)
	if m < 0 {
		m += d
	}
	return float64(l.startTime) + m
}

// PositionAt returns the raw recorded position of id in the bucket that
// contains t. It has no side effects and is safe for concurrent use. found is
// false when the entity has no keyframe in that bucket.
func (l *Log) PositionAt(id int32, t float64) (pos r3.Vec, found bool, err error) {
	frame := l.FrameAt(t)
	if math.IsNaN(frame) {
		return r3.Vec{}, false, fmt.Errorf("%w: time is NaN", ErrOutOfRange)
	}
	k, ok, err := l.find(id, int(math.Floor(frame)))
	if err != nil || !ok {
		return r3.Vec{}, false, err
	}
	return k.Pos(), true, nil
}

// PoseAt returns the pose of id at t, interpolated between the bucket at or
// before t and the bucket after it. If the entity is absent from the later
// bucket its earlier pose is held.
func (l *Log) PoseAt(id int32, t float64) (pose Pose, found bool, err error) {
	frame := l.FrameAt(t)
	if math.IsNaN(frame) {
		return Pose{}, false, fmt.Errorf("%w: time is NaN", ErrOutOfRange)
	}
	low := math.Floor(frame)
	high := math.Ceil(frame)

	from, ok, err := l.find(id, int(low))
	if err != nil || !ok {
		return Pose{}, false, err
	}
	to, ok, err := l.find(id, int(high))
	if err != nil {
		return Pose{}, false, err
	}
	if !ok {
		return from.Pose(), true, nil
	}
	return Blend(from.Pose(), to.Pose(), frame-low), true, nil
}

func (l *Log) find(id int32, frame int) (Keyframe, bool, error) {
	lo, hi, err := l.bucketRange(frame)
	if err != nil {
		return Keyframe{}, false, err
	}
	for i := lo; i < hi; i++ {
		if l.keyframes[i].EntityID == id {
			return l.keyframes[i], true, nil
		}
	}
	return Keyframe{}, false, nil
}

// Stats summarises a log.
type Stats struct {
	Keyframes  int     `json:"keyframes"`
	Frames     int     `json:"frames"`
	Entities   int     `json:"entities"`
	StartTime  uint32  `json:"start_time_ms"`
	DurationMs float64 `json:"duration_ms"`
}

// Stats counts keyframes, buckets, and distinct entity IDs.
func (l *Log) Stats() Stats {
	seen := make([]bool, len(l.types))
	entities := 0
	for _, k := range l.keyframes {
		if !seen[k.EntityID] {
			seen[k.EntityID] = true
			entities++
		}
	}
	return Stats{
		Keyframes:  len(l.keyframes),
		Frames:     l.Frames(),
		Entities:   entities,
		StartTime:  l.startTime,
		DurationMs: l.Duration(),
	}
}
