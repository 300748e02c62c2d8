package trajlog

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/banshee-data/trajectory.replay/internal/fsutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestMarshalBinary_Layout(t *testing.T) {
	l := buildLog(t, BuilderOptions{}, sample{t: 7, id: 0, typ: 5, pos: r3.Vec{X: 1, Y: 2, Z: 3}})

	le := binary.LittleEndian
	var want []byte
	want = le.AppendUint32(want, 7) // start time
	want = le.AppendUint32(want, 1) // keyframe count
	want = le.AppendUint32(want, 0) // entity id
	for _, f := range []float32{1, 2, 3, 0, 0, 0, 1} {
		want = le.AppendUint32(want, math.Float32bits(f))
	}
	want = le.AppendUint32(want, 2) // offset count
	want = le.AppendUint32(want, 0)
	want = le.AppendUint32(want, 1)
	want = le.AppendUint32(want, 1) // type table length
	want = append(want, 5)

	got, err := l.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, len(want), l.BinarySize())
}

func TestBinaryRoundTrip(t *testing.T) {
	for seed := uint64(1); seed <= 10; seed++ {
		orig := buildLog(t, BuilderOptions{}, randomSamples(seed, 300)...)

		data, err := orig.MarshalBinary()
		require.NoError(t, err)

		decoded, err := Decode(data, DefaultInterval)
		if err != nil {
			t.Fatalf("seed %d: Decode() error = %v", seed, err)
		}
		if diff := cmp.Diff(orig, decoded, cmp.AllowUnexported(Log{})); diff != "" {
			t.Errorf("seed %d: decoded log mismatch (-want +got):\n%s", seed, diff)
		}

		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, decoded))
		assert.True(t, bytes.Equal(data, buf.Bytes()), "seed %d: re-encoded bytes differ", seed)
	}
}

func TestBinaryRoundTrip_BitExact(t *testing.T) {
	le := binary.LittleEndian
	var data []byte
	data = le.AppendUint32(data, 0xFFFFFFF0)
	data = le.AppendUint32(data, 1)
	data = le.AppendUint32(data, 0)
	// NaN with payload, negative zero, subnormal, infinity.
	for _, bits := range []uint32{0x7FC00001, 0x80000000, 0x00000001, 0x7F800000, 0, 0, 0x3F800000} {
		data = le.AppendUint32(data, bits)
	}
	data = le.AppendUint32(data, 2)
	data = le.AppendUint32(data, 0)
	data = le.AppendUint32(data, 1)
	data = le.AppendUint32(data, 1)
	data = append(data, 0xFF)

	l, err := Decode(data, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, l.Interval())
	assert.Equal(t, uint32(0xFFFFFFF0), l.StartTime())

	got, err := l.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDecode_Corrupt(t *testing.T) {
	good, err := buildLog(t, BuilderOptions{},
		sample{t: 0, id: 0, typ: 1},
		sample{t: 250, id: 1, typ: 2},
	).MarshalBinary()
	require.NoError(t, err)

	patch := func(off int, v uint32) []byte {
		b := bytes.Clone(good)
		binary.LittleEndian.PutUint32(b[off:], v)
		return b
	}
	offsetsAt := 8 + 2*keyframeSize

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", good[:3]},
		{"truncated keyframes", good[:8+keyframeSize]},
		{"truncated type table", good[:len(good)-1]},
		{"trailing bytes", append(bytes.Clone(good), 0)},
		{"negative keyframe count", patch(4, 0xFFFFFFFF)},
		{"oversized keyframe count", patch(4, 1000)},
		{"oversized offset count", patch(offsetsAt, 1<<20)},
		{"offset not zero", patch(offsetsAt+4, 1)},
		{"offset sentinel wrong", patch(offsetsAt+12, 1)},
		{"entity outside type table", patch(8+keyframeSize, 9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, DefaultInterval)
			assert.ErrorIs(t, err, ErrCorruptData)
		})
	}
}

func TestSaveAndReadBinary(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	orig := buildLog(t, BuilderOptions{}, randomSamples(5, 100)...)

	if err := Save(fsys, "out/run.bv", orig); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	assert.Equal(t, []string{"out/run.bv"}, fsys.Files(""))

	loaded, err := ReadBinary(fsys, "out/run.bv", DefaultInterval)
	require.NoError(t, err)
	if diff := cmp.Diff(orig, loaded, cmp.AllowUnexported(Log{})); diff != "" {
		t.Errorf("loaded log mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadBinary(fsys, "out/missing.bv", DefaultInterval)
	assert.ErrorIs(t, err, ErrNotFound)

	fsys.WriteFile("bad.bv", []byte{1, 2, 3})
	_, err = ReadBinary(fsys, "bad.bv", DefaultInterval)
	assert.ErrorIs(t, err, ErrCorruptData)
}

func TestSave_OSFileSystem(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/nested/run.bp"
	orig := buildLog(t, BuilderOptions{}, randomSamples(9, 50)...)

	require.NoError(t, Save(fsutil.OSFileSystem{}, path, orig))
	loaded, err := ReadBinary(fsutil.OSFileSystem{}, path, DefaultInterval)
	require.NoError(t, err)
	assert.Equal(t, orig.Len(), loaded.Len())
}
