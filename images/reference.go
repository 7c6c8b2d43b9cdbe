package images

import (
	"image"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// ReferenceNFNT resizes b to width x height with github.com/nfnt/resize's bilinear
// filter. It is an independent implementation used to cross-check results.
func ReferenceNFNT[T Element](b *Buffer[T], width, height int) (*Buffer[uint8], error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrDimensions, "%dx%d", width, height)
	}
	img, err := ToImage(b)
	if err != nil {
		return nil, err
	}
	out := resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	return FromImage(out, b.Channels)
}

// ReferenceXDraw resizes b to width x height with golang.org/x/image/draw's
// BiLinear scaler.
func ReferenceXDraw[T Element](b *Buffer[T], width, height int) (*Buffer[uint8], error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrDimensions, "%dx%d", width, height)
	}
	src, err := ToImage(b)
	if err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, width, height)
	var dst draw.Image
	if b.Channels == 1 {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewNRGBA(rect)
	}
	draw.BiLinear.Scale(dst, rect, src, src.Bounds(), draw.Src, nil)
	return FromImage(dst, b.Channels)
}

// Diff summarises the per-sample difference between two buffers.
type Diff struct {
	// Total is the sum of absolute differences.
	Total float64 `json:"total" yaml:"total"`
	// Max is the largest absolute difference.
	Max float64 `json:"max" yaml:"max"`
	// Mismatched is the number of samples that differ.
	Mismatched int `json:"mismatched" yaml:"mismatched"`
}

// AbsDiff compares two buffers of equal geometry sample by sample.
//
// Arguments:
//   - a, b: The buffers. Strides may differ.
//
// Returns:
//   - Diff: The total and maximum absolute difference and the mismatch count.
//   - error: ErrDimensions when the geometries differ.
func AbsDiff[T Element](a, b *Buffer[T]) (Diff, error) {
	if a == nil || b == nil {
		return Diff{}, errors.Wrap(ErrDimensions, "nil buffer")
	}
	if a.Width != b.Width || a.Height != b.Height || a.Channels != b.Channels {
		return Diff{}, errors.Wrapf(ErrDimensions, "%s vs %s", a.Descriptor(), b.Descriptor())
	}
	var d Diff
	for y := 0; y < a.Height; y++ {
		ra, rb := a.Row(y), b.Row(y)
		for i := range ra {
			delta := math.Abs(float64(ra[i]) - float64(rb[i]))
			if delta == 0 {
				continue
			}
			d.Total += delta
			d.Mismatched++
			if delta > d.Max {
				d.Max = delta
			}
		}
	}
	return d, nil
}
