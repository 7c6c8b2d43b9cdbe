// Package images - raster buffers consumed by the resampling engine plus adapters
// to and from the Go image ecosystem.
package images

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

var (
	// ErrNotContiguous is returned when a buffer has gaps between rows or a backing
	// store shorter than its declared geometry.
	ErrNotContiguous = errors.New("buffer is not contiguous")
	// ErrUnsupportedChannels is returned when the channel count is not 1 or 3.
	ErrUnsupportedChannels = errors.New("unsupported number of channels")
	// ErrDimensions is returned for non-positive widths or heights.
	ErrDimensions = errors.New("invalid buffer dimensions")
	// ErrElementType is returned when a buffer does not carry the expected element type.
	ErrElementType = errors.New("element type mismatch")
)

// Element is the set of sample types a Buffer can hold.
type Element interface {
	~uint8 | ~uint16 | ~float32
}

// ElementType identifies the sample type of a buffer at runtime.
type ElementType string

const (
	// Uint8 is an 8-bit unsigned integer sample.
	Uint8 ElementType = "uint8"
	// Uint16 is a 16-bit unsigned integer sample.
	Uint16 ElementType = "uint16"
	// Float32 is a 32-bit floating point sample.
	Float32 ElementType = "float32"
)

// Integer reports whether samples of this type are integers.
func (t ElementType) Integer() bool {
	return t == Uint8 || t == Uint16
}

// TypeOf returns the ElementType of T.
func TypeOf[T Element]() ElementType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case float32:
		return Float32
	}
	// Named types built on the basic ones fall through the switch above.
	one, two := T(1), T(2)
	if float32(one/two) != 0 {
		return Float32
	}
	if unsafe.Sizeof(zero) == 1 {
		return Uint8
	}
	return Uint16
}

// Descriptor describes the geometry and sample type of a raster without carrying
// any pixel data.
type Descriptor struct {
	// Width of the raster in pixels.
	Width int `json:"width" yaml:"width"`
	// Height of the raster in pixels.
	Height int `json:"height" yaml:"height"`
	// Channels is the number of interleaved samples per pixel (1 or 3).
	Channels int `json:"channels" yaml:"channels"`
	// Type is the sample type.
	Type ElementType `json:"type" yaml:"type"`
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	return fmt.Sprintf("%dx%dx%d/%s", d.Width, d.Height, d.Channels, d.Type)
}

// Validate checks the dimensions and channel count of the descriptor.
func (d Descriptor) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return errors.Wrapf(ErrDimensions, "%dx%d", d.Width, d.Height)
	}
	return ValidateChannels(d.Channels)
}

// ValidateChannels returns ErrUnsupportedChannels unless c is 1 or 3.
func ValidateChannels(c int) error {
	if c != 1 && c != 3 {
		return errors.Wrapf(ErrUnsupportedChannels, "got %d, want 1 or 3", c)
	}
	return nil
}

// Buffer is an interleaved raster: sample (x, y, c) lives at Pix[y*Stride+x*Channels+c].
type Buffer[T Element] struct {
	// Width of the raster in pixels.
	Width int
	// Height of the raster in pixels.
	Height int
	// Channels is the number of interleaved samples per pixel.
	Channels int
	// Stride is the distance in elements between the starts of two adjacent rows.
	Stride int
	// Pix is the backing store.
	Pix []T
}

// NewBuffer allocates a zeroed, contiguous buffer.
//
// Arguments:
//   - width: The width in pixels.
//   - height: The height in pixels.
//   - channels: The number of channels, 1 or 3.
//
// Returns:
//   - *Buffer[T]: The new buffer.
//   - error: ErrDimensions or ErrUnsupportedChannels.
func NewBuffer[T Element](width, height, channels int) (*Buffer[T], error) {
	d := Descriptor{Width: width, Height: height, Channels: channels, Type: TypeOf[T]()}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Buffer[T]{
		Width:    width,
		Height:   height,
		Channels: channels,
		Stride:   width * channels,
		Pix:      make([]T, width*height*channels),
	}, nil
}

// NewBufferFor allocates a buffer matching the descriptor's geometry.
func NewBufferFor[T Element](d Descriptor) (*Buffer[T], error) {
	if d.Type != "" && d.Type != TypeOf[T]() {
		return nil, errors.Wrapf(ErrElementType, "descriptor has %s, buffer holds %s", d.Type, TypeOf[T]())
	}
	return NewBuffer[T](d.Width, d.Height, d.Channels)
}

// Wrap views caller-owned memory as a buffer without copying. The result is not
// validated; call Validate before handing it to a pipeline.
func Wrap[T Element](pix []T, width, height, channels, stride int) *Buffer[T] {
	return &Buffer[T]{
		Width:    width,
		Height:   height,
		Channels: channels,
		Stride:   stride,
		Pix:      pix,
	}
}

// Descriptor returns the geometry and sample type of the buffer.
func (b *Buffer[T]) Descriptor() Descriptor {
	return Descriptor{Width: b.Width, Height: b.Height, Channels: b.Channels, Type: TypeOf[T]()}
}

// Contiguous reports whether rows are packed back to back with no padding and the
// backing store covers the whole raster.
func (b *Buffer[T]) Contiguous() bool {
	return b.Stride == b.Width*b.Channels && len(b.Pix) >= b.Stride*b.Height
}

// Validate checks dimensions, channel count and contiguity.
func (b *Buffer[T]) Validate() error {
	if b == nil {
		return errors.Wrap(ErrDimensions, "nil buffer")
	}
	if err := b.Descriptor().Validate(); err != nil {
		return err
	}
	if !b.Contiguous() {
		return errors.Wrapf(ErrNotContiguous, "stride %d for %d samples per row, %d of %d elements",
			b.Stride, b.Width*b.Channels, len(b.Pix), b.Width*b.Channels*b.Height)
	}
	return nil
}

// Row returns the samples of row y, limited to the raster width.
func (b *Buffer[T]) Row(y int) []T {
	start := y * b.Stride
	return b.Pix[start : start+b.Width*b.Channels]
}

// At returns sample c of pixel (x, y).
func (b *Buffer[T]) At(x, y, c int) T {
	return b.Pix[y*b.Stride+x*b.Channels+c]
}

// Set stores sample c of pixel (x, y).
func (b *Buffer[T]) Set(x, y, c int, v T) {
	b.Pix[y*b.Stride+x*b.Channels+c] = v
}

// Fill sets every sample of the raster to v.
func (b *Buffer[T]) Fill(v T) {
	for y := 0; y < b.Height; y++ {
		row := b.Row(y)
		for i := range row {
			row[i] = v
		}
	}
}

// Clone returns a contiguous deep copy of the buffer.
func (b *Buffer[T]) Clone() *Buffer[T] {
	out := &Buffer[T]{
		Width:    b.Width,
		Height:   b.Height,
		Channels: b.Channels,
		Stride:   b.Width * b.Channels,
		Pix:      make([]T, b.Width*b.Height*b.Channels),
	}
	for y := 0; y < b.Height; y++ {
		copy(out.Row(y), b.Row(y))
	}
	return out
}

// Floats copies the raster into a packed float32 slice.
func (b *Buffer[T]) Floats(dst []float32) []float32 {
	n := b.Width * b.Height * b.Channels
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	i := 0
	for y := 0; y < b.Height; y++ {
		for _, v := range b.Row(y) {
			dst[i] = float32(v)
			i++
		}
	}
	return dst
}

// SetFloats stores packed float32 samples into the raster, converting with FromFloat.
func (b *Buffer[T]) SetFloats(src []float32) {
	i := 0
	for y := 0; y < b.Height; y++ {
		row := b.Row(y)
		for x := range row {
			row[x] = FromFloat[T](src[i])
			i++
		}
	}
}

// FromFloat converts an interpolated value to T. Integer types round half away
// from zero and saturate to their range.
func FromFloat[T Element](v float32) T {
	switch TypeOf[T]() {
	case Uint8:
		return T(saturate(v, math.MaxUint8))
	case Uint16:
		return T(saturate(v, math.MaxUint16))
	default:
		return T(v)
	}
}

func saturate(v float32, hi float32) float32 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= hi {
		return hi
	}
	return math32.Round(v)
}
