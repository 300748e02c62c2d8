package trajlog

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultMaxEntityID bounds the type table so a stray ID cannot force a
	// huge allocation.
	DefaultMaxEntityID int32 = 1<<24 - 1

	// DefaultMaxFrames bounds the frame index (about 12 days at 250 ms).
	DefaultMaxFrames = 1 << 22
)

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// Interval is the bucket length in milliseconds (default DefaultInterval).
	Interval uint32

	// AbsoluteTime anchors the frame index at time zero instead of the first
	// record's time. The log's StartTime is then 0.
	AbsoluteTime bool

	// StrictTypes rejects records that change an entity's type. By default
	// the last recorded type wins.
	StrictTypes bool

	MaxEntityID int32
	MaxFrames   int
}

func (o BuilderOptions) withDefaults() BuilderOptions {
	if o.Interval == 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxEntityID <= 0 {
		o.MaxEntityID = DefaultMaxEntityID
	}
	if o.MaxFrames <= 0 {
		o.MaxFrames = DefaultMaxFrames
	}
	return o
}

// Builder accumulates keyframes in capture order and maintains the frame
// index as it goes: whenever a record's time passes the running bucket
// boundary, the current keyframe count is pushed and the boundary advances
// by one interval.
type Builder struct {
	opts BuilderOptions

	started   bool
	startTime uint32
	boundary  uint64

	keyframes []Keyframe
	offsets   []int32
	types     []EntityType
	typed     []bool // entity has had its type set by a record
}

// NewBuilder returns an empty Builder.
func NewBuilder(opts BuilderOptions) *Builder {
	return &Builder{
		opts:      opts.withDefaults(),
		keyframes: make([]Keyframe, 0, 4096),
		offsets:   append(make([]int32, 0, 1024), 0),
	}
}

// Len returns the number of keyframes appended so far.
func (b *Builder) Len() int { return len(b.keyframes) }

// Append adds one sample taken at timeMs. A rejected sample leaves the
// builder unchanged.
func (b *Builder) Append(timeMs uint32, id int32, typ EntityType, pos r3.Vec, rot quat.Number) error {
	if id < 0 || id > b.opts.MaxEntityID {
		return fmt.Errorf("%w: %d", ErrInvalidEntity, id)
	}
	if b.opts.StrictTypes && int(id) < len(b.types) && b.typed[id] && b.types[id] != typ {
		return fmt.Errorf("%w: entity %d was type %d, now %d", ErrTypeConflict, id, b.types[id], typ)
	}

	boundary := b.boundary
	if !b.started {
		boundary = 0
		if !b.opts.AbsoluteTime {
			boundary = uint64(timeMs)
		}
	}
	closes := 0
	if t := uint64(timeMs); t > boundary {
		step := uint64(b.opts.Interval)
		closes = int((t - boundary + step - 1) / step)
	}
	if len(b.offsets)+closes+1 > b.opts.MaxFrames {
		return fmt.Errorf("%w: time %d ms needs %d frames (max %d)", ErrTooManyFrames, timeMs, len(b.offsets)+closes+1, b.opts.MaxFrames)
	}

	if !b.started {
		b.started = true
		if !b.opts.AbsoluteTime {
			b.startTime = timeMs
		}
	}
	count := int32(len(b.keyframes))
	for i := 0; i < closes; i++ {
		b.offsets = append(b.offsets, count)
	}
	b.boundary = boundary + uint64(closes)*uint64(b.opts.Interval)

	if int(id) >= len(b.types) {
		b.types = append(b.types, make([]EntityType, int(id)+1-len(b.types))...)
		b.typed = append(b.typed, make([]bool, int(id)+1-len(b.typed))...)
	}
	b.types[id] = typ
	b.typed[id] = true

	b.keyframes = append(b.keyframes, NewKeyframe(id, pos, rot))
	return nil
}

// Build returns the log accumulated so far, closing the frame index with the
// keyframe count. The builder may keep accepting samples afterwards.
func (b *Builder) Build() *Log {
	offsets := append(slices.Clone(b.offsets), int32(len(b.keyframes)))
	return &Log{
		startTime: b.startTime,
		interval:  b.opts.Interval,
		keyframes: slices.Clone(b.keyframes),
		offsets:   offsets,
		types:     slices.Clone(b.types),
	}
}
