// Package heatmap accumulates where entities spent time in a trajectory log
// into a square intensity raster on the ground (X/Z) plane.
package heatmap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/trajectory.replay/internal/spatial"
	"github.com/banshee-data/trajectory.replay/internal/trajlog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrCancelled is returned when generation is cancelled through the
// progress callback or the context.
var ErrCancelled = errors.New("heatmap generation cancelled")

const (
	sampleChunk = 1 << 14
	rowChunk    = 64

	// accumulateShare is the part of the progress range spent on samples.
	accumulateShare = 0.9
)

// Bounds is the world rectangle the raster covers. Samples on the max edges
// are outside.
type Bounds struct {
	MinX, MinZ float64
	MaxX, MaxZ float64
}

// Width returns the X extent.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Depth returns the Z extent.
func (b Bounds) Depth() float64 { return b.MaxZ - b.MinZ }

// Center returns the middle of the rectangle.
func (b Bounds) Center() (x, z float64) {
	return (b.MinX + b.MaxX) / 2, (b.MinZ + b.MaxZ) / 2
}

func (b Bounds) validate() error {
	for _, v := range []float64{b.MinX, b.MinZ, b.MaxX, b.MaxZ} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bounds must be finite, got %+v", b)
		}
	}
	if b.Width() <= 0 || b.Depth() <= 0 {
		return fmt.Errorf("bounds must have positive size, got %+v", b)
	}
	return nil
}

// TypeFilter selects keyframes by the entity's recorded type. With Include
// only the listed types pass; otherwise the listed types are dropped.
type TypeFilter struct {
	Types   []trajlog.EntityType
	Include bool
}

// Allows reports whether typ passes the filter. A nil filter allows all.
func (f *TypeFilter) Allows(typ trajlog.EntityType) bool {
	if f == nil {
		return true
	}
	return slices.Contains(f.Types, typ) == f.Include
}

// Options configures Generate.
type Options struct {
	Bounds Bounds

	// Origin is added to every keyframe position before binning, placing
	// the log in world space.
	Origin r3.Vec

	// Resolution is the raster edge length in cells.
	Resolution int

	// Radius is the splat radius in cells. At 1 or below each sample adds 1
	// to the single cell it falls in.
	Radius float64

	Filter      *TypeFilter
	Logarithmic bool

	// Progress, if set, is called as generation advances. Returning true
	// cancels it.
	Progress func(message string, fraction float64) (cancel bool)
}

func (o Options) validate() error {
	if o.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %d", o.Resolution)
	}
	if math.IsNaN(o.Radius) || math.IsInf(o.Radius, 0) {
		return fmt.Errorf("radius must be finite, got %v", o.Radius)
	}
	return o.Bounds.validate()
}

type progress struct {
	ctx    context.Context
	fn     func(string, float64) bool
	base   float64
	share  float64
	prefix string
}

func (p progress) report(msg string, f float64) error {
	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if p.fn != nil && p.fn(p.prefix+msg, p.base+p.share*f) {
		return ErrCancelled
	}
	return nil
}

// Generate bins every keyframe of l that passes the filter and normalizes the
// result to [0, 1]. On cancellation it returns ErrCancelled and no raster.
func Generate(ctx context.Context, l *trajlog.Log, opts Options) (*Raster, error) {
	return generate(l, opts, progress{ctx: ctx, fn: opts.Progress, share: 1})
}

func generate(l *trajlog.Log, opts Options, p progress) (*Raster, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid heatmap options: %w", err)
	}

	n := opts.Resolution
	r := &Raster{
		Size:   n,
		Bounds: opts.Bounds,
		Raw:    make([]float64, n*n),
	}
	acc := accumulator{
		raw:    r.Raw,
		n:      n,
		b:      opts.Bounds,
		sx:     float64(n) / opts.Bounds.Width(),
		sz:     float64(n) / opts.Bounds.Depth(),
		radius: opts.Radius,
	}

	total := l.Len()
	for start := 0; start < total; start += sampleChunk {
		if err := p.report("Accumulating samples", accumulateShare*float64(start)/float64(total)); err != nil {
			return nil, err
		}
		end := min(start+sampleChunk, total)
		for i := start; i < end; i++ {
			k := l.Keyframe(i)
			if !opts.Filter.Allows(l.TypeOf(k.EntityID)) {
				continue
			}
			if acc.add(r3.Add(k.Pos(), opts.Origin)) {
				r.Samples++
			}
		}
	}

	r.Max = acc.max
	r.Values = make([]float64, n*n)
	for row := 0; row < n; row += rowChunk {
		if err := p.report("Normalizing", accumulateShare+(1-accumulateShare)*float64(row)/float64(n)); err != nil {
			return nil, err
		}
		end := min(row+rowChunk, n)
		normalize(r.Values[row*n:end*n], r.Raw[row*n:end*n], r.Max, opts.Logarithmic)
	}
	if err := p.report("Done", 1); err != nil {
		return nil, err
	}
	return r, nil
}

type accumulator struct {
	raw    []float64
	n      int
	b      Bounds
	sx, sz float64
	radius float64
	max    float64
}

// add bins one world position. It reports whether the position was inside
// the bounds.
func (a *accumulator) add(pos r3.Vec) bool {
	u := (pos.X - a.b.MinX) * a.sx
	v := (pos.Z - a.b.MinZ) * a.sz
	fn := float64(a.n)
	if !(u >= 0 && v >= 0 && u < fn && v < fn) {
		return false
	}

	if a.radius <= 1 {
		i := int(v)*a.n + int(u)
		a.raw[i]++
		a.max = math.Max(a.max, a.raw[i])
		return true
	}

	x0 := max(int(math.RoundToEven(u-a.radius)), 0)
	x1 := min(int(math.RoundToEven(u+a.radius)), a.n)
	y0 := max(int(math.RoundToEven(v-a.radius)), 0)
	y1 := min(int(math.RoundToEven(v+a.radius)), a.n)
	for y := y0; y < y1; y++ {
		row := a.raw[y*a.n : (y+1)*a.n]
		for x := x0; x < x1; x++ {
			w := spatial.Clamp01(1 - math.Hypot(float64(x)-u, float64(y)-v)/a.radius)
			if w == 0 {
				continue
			}
			row[x] += w
			a.max = math.Max(a.max, row[x])
		}
	}
	return true
}

// normalize writes raw scaled into [0, 1] to dst. Logarithmic mode spreads
// the low end of skewed distributions; it needs a maximum above 1 and falls
// back to linear otherwise.
func normalize(dst, raw []float64, peak float64, logarithmic bool) {
	if peak <= 0 {
		clear(dst)
		return
	}
	invMax := 1 / peak
	if !logarithmic || peak <= 1 {
		copy(dst, raw)
		floats.Scale(invMax, dst)
		for i, v := range dst {
			dst[i] = spatial.Clamp01(v)
		}
		return
	}
	minLog := math.Log10(invMax)
	for i, v := range raw {
		if v <= 0 {
			dst[i] = 0
			continue
		}
		dst[i] = spatial.Clamp01((minLog - math.Log10(v*invMax)) / minLog)
	}
}

// Fit returns the smallest square, centred on the data, that holds every
// keyframe of l after adding origin, grown by margin on each side. Keyframes
// on the max edges fall outside unless margin is positive. A log without
// finite positions gives unit bounds around origin.
func Fit(l *trajlog.Log, origin r3.Vec, margin float64) Bounds {
	minX, minZ := math.Inf(1), math.Inf(1)
	maxX, maxZ := math.Inf(-1), math.Inf(-1)
	for i := 0; i < l.Len(); i++ {
		p := r3.Add(l.Keyframe(i).Pos(), origin)
		if math.IsNaN(p.X) || math.IsNaN(p.Z) || math.IsInf(p.X, 0) || math.IsInf(p.Z, 0) {
			continue
		}
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minZ, maxZ = math.Min(minZ, p.Z), math.Max(maxZ, p.Z)
	}
	if minX > maxX {
		return Bounds{MinX: origin.X - 0.5, MinZ: origin.Z - 0.5, MaxX: origin.X + 0.5, MaxZ: origin.Z + 0.5}
	}
	half := math.Max(maxX-minX, maxZ-minZ)/2 + margin
	if half <= 0 {
		half = 0.5
	}
	cx, cz := (minX+maxX)/2, (minZ+maxZ)/2
	return Bounds{MinX: cx - half, MinZ: cz - half, MaxX: cx + half, MaxZ: cz + half}
}
