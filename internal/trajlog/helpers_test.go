package trajlog

import (
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/trajectory.replay/internal/monitoring"
	"github.com/banshee-data/trajectory.replay/internal/spatial"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

type sample struct {
	t   uint32
	id  int32
	typ EntityType
	pos r3.Vec
	rot quat.Number
}

func buildLog(t *testing.T, opts BuilderOptions, samples ...sample) *Log {
	t.Helper()
	b := NewBuilder(opts)
	for _, s := range samples {
		rot := s.rot
		if rot == (quat.Number{}) {
			rot = spatial.Identity
		}
		if err := b.Append(s.t, s.id, s.typ, s.pos, rot); err != nil {
			t.Fatalf("Append(%+v) error = %v", s, err)
		}
	}
	return b.Build()
}

// randomSamples produces n samples in capture order, several entities per
// timestamp, with occasional gaps longer than one interval.
func randomSamples(seed uint64, n int) []sample {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]sample, 0, n)
	t := uint32(rng.IntN(10000))
	for len(out) < n {
		perStep := 1 + rng.IntN(6)
		for j := 0; j < perStep && len(out) < n; j++ {
			out = append(out, sample{
				t:   t,
				id:  int32(rng.IntN(200)),
				typ: EntityType(rng.IntN(40)),
				pos: r3.Vec{X: rng.NormFloat64() * 100, Y: rng.Float64(), Z: rng.NormFloat64() * 100},
				rot: spatial.AxisAngle(spatial.Up, rng.Float64()*6.28),
			})
		}
		switch rng.IntN(10) {
		case 0:
			t += 250 * uint32(2+rng.IntN(4))
		case 1:
			t += uint32(rng.IntN(250))
		default:
			t += 250
		}
	}
	return out
}

func muteLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}
