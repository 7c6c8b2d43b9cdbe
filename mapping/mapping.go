// Package mapping defines inverse coordinate mappings: for every output pixel a
// mapper yields the fractional source coordinate to sample and whether that
// coordinate lies outside the region the mapper considers valid.
package mapping

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ErrInvalidGeometry is returned by constructors given non-positive sizes or radii.
var ErrInvalidGeometry = errors.New("invalid mapping geometry")

// Mapper maps an output pixel to a source coordinate. Map must be a pure function
// of (x, y).
type Mapper interface {
	// Map returns the source coordinate for output pixel (x, y) and whether it is
	// out of bounds. Mappers that never invalidate always return false.
	Map(x, y int) (srcX, srcY float32, outOfBound bool)
	// Bounded reports whether Map can return outOfBound == true, i.e. whether the
	// resampler must apply the fill value.
	Bounded() bool
}

// Separable is implemented by mappers whose source X depends only on the output
// column and source Y only on the output row. Such mappers are tabulated per axis
// instead of per pixel.
type Separable interface {
	Mapper
	MapX(x int) float32
	MapY(y int) float32
}

// Resize maps a Dw x Dh output onto a Sw x Sh source with pixel-centre alignment.
type Resize struct {
	ScaleX float32
	ScaleY float32
}

// NewResize returns the mapping that rescales a srcW x srcH raster to dstW x dstH.
//
// Arguments:
//   - srcW, srcH: The source dimensions.
//   - dstW, dstH: The destination dimensions.
//
// Returns:
//   - Resize: The mapping.
//   - error: ErrInvalidGeometry if any dimension is not positive.
func NewResize(srcW, srcH, dstW, dstH int) (Resize, error) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return Resize{}, errors.Wrapf(ErrInvalidGeometry, "resize %dx%d -> %dx%d", srcW, srcH, dstW, dstH)
	}
	return Resize{
		ScaleX: float32(srcW) / float32(dstW),
		ScaleY: float32(srcH) / float32(dstH),
	}, nil
}

// MapX returns (x+0.5)*ScaleX - 0.5.
func (r Resize) MapX(x int) float32 {
	return (float32(x)+0.5)*r.ScaleX - 0.5
}

// MapY returns (y+0.5)*ScaleY - 0.5.
func (r Resize) MapY(y int) float32 {
	return (float32(y)+0.5)*r.ScaleY - 0.5
}

// Map implements Mapper. Resize never invalidates; coordinates past the border are
// resolved by edge clamping during sampling.
func (r Resize) Map(x, y int) (float32, float32, bool) {
	return r.MapX(x), r.MapY(y), false
}

// Bounded implements Mapper.
func (Resize) Bounded() bool { return false }

// WarpPolar unwarps a polar image: the source X axis is radius, the source Y axis is
// angle. Each output pixel is converted to polar coordinates around (CenterX, CenterY).
type WarpPolar struct {
	SrcWidth  int
	SrcHeight int
	CenterX   float32
	CenterY   float32
	MaxRadius float32
}

// NewWarpPolar returns the inverse polar mapping for a srcW x srcH polar source.
//
// Arguments:
//   - srcW, srcH: The source dimensions (radius bins x angle bins).
//   - cx, cy: The centre of the Cartesian output in output pixels.
//   - maxRadius: The radius, in output pixels, that maps to source column srcW.
//
// Returns:
//   - WarpPolar: The mapping.
//   - error: ErrInvalidGeometry for non-positive sizes or radius.
func NewWarpPolar(srcW, srcH int, cx, cy, maxRadius float32) (WarpPolar, error) {
	if srcW <= 0 || srcH <= 0 {
		return WarpPolar{}, errors.Wrapf(ErrInvalidGeometry, "warp-polar source %dx%d", srcW, srcH)
	}
	if !(maxRadius > 0) {
		return WarpPolar{}, errors.Wrapf(ErrInvalidGeometry, "warp-polar radius %v", maxRadius)
	}
	return WarpPolar{
		SrcWidth:  srcW,
		SrcHeight: srcH,
		CenterX:   cx,
		CenterY:   cy,
		MaxRadius: maxRadius,
	}, nil
}

// Map implements Mapper. Only the radial axis is bounds-checked: the angle is
// periodic and is left to the sampler's edge policy.
func (w WarpPolar) Map(x, y int) (float32, float32, bool) {
	dx := float32(x) - w.CenterX
	dy := float32(y) - w.CenterY
	radius := math32.Sqrt(dx*dx + dy*dy)
	angle := math32.Atan2(dy, dx)

	normRadius := radius / w.MaxRadius
	normAngle := (angle + math32.Pi) / (2 * math32.Pi)

	sw := float32(w.SrcWidth)
	srcX := normRadius * sw
	srcY := normAngle * float32(w.SrcHeight)
	return srcX, srcY, srcX < 0 || srcX >= sw
}

// Bounded implements Mapper.
func (WarpPolar) Bounded() bool { return true }
