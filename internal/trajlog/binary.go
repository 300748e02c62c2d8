package trajlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"

	"github.com/banshee-data/trajectory.replay/internal/fsutil"
)

// Binary layout, little-endian, IEEE-754 float32:
//
//	uint32 startTime
//	int32  keyframeCount
//	keyframeCount × { int32 entityId, float32 x,y,z, float32 qx,qy,qz,qw }
//	int32  frameOffsetCount
//	frameOffsetCount × int32 offset
//	int32  typeTableLength
//	typeTableLength × uint8 type
const (
	keyframeSize = 4 + 3*4 + 4*4
	headerSize   = 4 + 4
)

// BinarySize returns the exact encoded size of l in bytes.
func (l *Log) BinarySize() int {
	return headerSize + len(l.keyframes)*keyframeSize + 4 + len(l.offsets)*4 + 4 + len(l.types)
}

// MarshalBinary encodes l in the binary trajectory format.
func (l *Log) MarshalBinary() ([]byte, error) {
	le := binary.LittleEndian
	buf := make([]byte, 0, l.BinarySize())

	buf = le.AppendUint32(buf, l.startTime)
	buf = le.AppendUint32(buf, uint32(len(l.keyframes)))
	for _, k := range l.keyframes {
		buf = le.AppendUint32(buf, uint32(k.EntityID))
		for _, v := range k.Position {
			buf = le.AppendUint32(buf, math.Float32bits(v))
		}
		for _, v := range k.Orientation {
			buf = le.AppendUint32(buf, math.Float32bits(v))
		}
	}

	buf = le.AppendUint32(buf, uint32(len(l.offsets)))
	for _, o := range l.offsets {
		buf = le.AppendUint32(buf, uint32(o))
	}

	buf = le.AppendUint32(buf, uint32(len(l.types)))
	for _, t := range l.types {
		buf = append(buf, byte(t))
	}
	return buf, nil
}

// Encode writes l to w in the binary trajectory format.
func Encode(w io.Writer, l *Log) error {
	data, err := l.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write trajectory log: %w", err)
	}
	return nil
}

// decoder reads little-endian fields from a byte slice.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) u32(field string) (uint32, error) {
	if d.remaining() < 4 {
		return 0, corrupt("truncated at %s (offset %d)", field, d.off)
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) count(field string, elemSize int) (int, error) {
	v, err := d.u32(field)
	if err != nil {
		return 0, err
	}
	n := int32(v)
	if n < 0 {
		return 0, corrupt("negative %s %d", field, n)
	}
	if int64(n)*int64(elemSize) > int64(d.remaining()) {
		return 0, corrupt("%s %d needs %d bytes, only %d remain", field, n, int64(n)*int64(elemSize), d.remaining())
	}
	return int(n), nil
}

// Decode parses a binary trajectory log. The binary format does not carry the
// bucket interval, so the caller supplies it (0 selects DefaultInterval).
// Truncated payloads, trailing bytes, and invariant violations all yield
// ErrCorruptData.
func Decode(data []byte, interval uint32) (*Log, error) {
	if interval == 0 {
		interval = DefaultInterval
	}
	d := &decoder{buf: data}
	le := binary.LittleEndian

	startTime, err := d.u32("start time")
	if err != nil {
		return nil, err
	}

	n, err := d.count("keyframe count", keyframeSize)
	if err != nil {
		return nil, err
	}
	keyframes := make([]Keyframe, n)
	for i := range keyframes {
		b := d.buf[d.off : d.off+keyframeSize]
		k := &keyframes[i]
		k.EntityID = int32(le.Uint32(b))
		for j := range k.Position {
			k.Position[j] = math.Float32frombits(le.Uint32(b[4+4*j:]))
		}
		for j := range k.Orientation {
			k.Orientation[j] = math.Float32frombits(le.Uint32(b[16+4*j:]))
		}
		d.off += keyframeSize
	}

	n, err = d.count("frame offset count", 4)
	if err != nil {
		return nil, err
	}
	offsets := make([]int32, n)
	for i := range offsets {
		offsets[i] = int32(le.Uint32(d.buf[d.off:]))
		d.off += 4
	}

	n, err = d.count("type table length", 1)
	if err != nil {
		return nil, err
	}
	types := make([]EntityType, n)
	for i := range types {
		types[i] = EntityType(d.buf[d.off+i])
	}
	d.off += n

	if d.remaining() != 0 {
		return nil, corrupt("%d trailing bytes after type table", d.remaining())
	}
	return New(startTime, interval, keyframes, offsets, types)
}

// ReadBinary loads a binary log from fsys.
func ReadBinary(fsys fsutil.FileSystem, path string, interval uint32) (*Log, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, notFound(path, err)
	}
	l, err := Decode(data, interval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Save writes l to path atomically: readers never observe a partial file.
func Save(fsys fsutil.FileSystem, path string, l *Log) error {
	return fsutil.WriteAtomic(fsys, path, func(w io.Writer) error {
		return Encode(w, l)
	})
}

func notFound(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
}
