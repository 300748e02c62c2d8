package heatmap

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"github.com/banshee-data/trajectory.replay/internal/fsutil"
	"github.com/banshee-data/trajectory.replay/internal/spatial"
	"gonum.org/v1/gonum/floats"
)

// Raster is a square grid of cells, row-major with row 0 at Bounds.MinZ and
// column 0 at Bounds.MinX.
type Raster struct {
	Size   int
	Bounds Bounds

	// Values are normalized to [0, 1].
	Values []float64

	// Raw holds the accumulated sums before normalization and Max their
	// largest value.
	Raw []float64
	Max float64

	// Samples counts the keyframes that landed inside Bounds.
	Samples int
}

// At returns the normalized value of cell (x, y).
func (r *Raster) At(x, y int) float64 { return r.Values[y*r.Size+x] }

// Total returns the sum of the raw cells.
func (r *Raster) Total() float64 { return floats.Sum(r.Raw) }

// CellCenter returns the world X/Z coordinates of the middle of cell (x, y).
func (r *Raster) CellCenter(x, y int) (float64, float64) {
	return r.Bounds.MinX + (float64(x)+0.5)*r.Bounds.Width()/float64(r.Size),
		r.Bounds.MinZ + (float64(y)+0.5)*r.Bounds.Depth()/float64(r.Size)
}

// Image renders the raster as 8-bit grayscale. Row 0 is placed at the bottom
// so +Z points up in the picture.
func (r *Raster) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, r.Size, r.Size))
	for y := 0; y < r.Size; y++ {
		dst := img.Pix[(r.Size-1-y)*img.Stride:]
		for x, v := range r.Values[y*r.Size : (y+1)*r.Size] {
			dst[x] = grayLevel(v)
		}
	}
	return img
}

func grayLevel(v float64) uint8 {
	return uint8(math.Round(spatial.Clamp01(v) * 255))
}

// EncodePNG writes the grayscale image to w.
func (r *Raster) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, r.Image()); err != nil {
		return fmt.Errorf("failed to encode heatmap png: %w", err)
	}
	return nil
}

// Save writes the grayscale PNG to path atomically.
func (r *Raster) Save(fsys fsutil.FileSystem, path string) error {
	return fsutil.WriteAtomic(fsys, path, r.EncodePNG)
}
