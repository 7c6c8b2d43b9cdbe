// Package resample implements bilinear sampling of a source raster at fractional
// coordinates, with per-axis edge policies and a fill value for coordinates a
// mapper has marked out of bounds.
package resample

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-resample/images"
)

// MaxLanes is the widest lane block the kernel processes at once.
const MaxLanes = 64

// Sample is the four-neighbour footprint of a fractional source coordinate: the
// edge-resolved integer neighbours and the fractional weights that blend them.
type Sample struct {
	X0, Y0 int
	X1, Y1 int
	XF, YF float32
}

// NewSample resolves (srcX, srcY) against a width x height source.
func NewSample(srcX, srcY float32, width, height int, policy Policy) Sample {
	fx := math32.Floor(srcX)
	fy := math32.Floor(srcY)
	x0, x1 := neighbours(int(fx), width, policy.X)
	y0, y1 := neighbours(int(fy), height, policy.Y)
	return Sample{
		X0: x0, Y0: y0,
		X1: x1, Y1: y1,
		XF: srcX - fx,
		YF: srcY - fy,
	}
}

// Lerp returns a + (b-a)*t.
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// Bilinear blends channel c of the four neighbours of s.
func Bilinear[T images.Element](src *images.Buffer[T], s Sample, c int) float32 {
	tl := float32(src.At(s.X0, s.Y0, c))
	tr := float32(src.At(s.X1, s.Y0, c))
	bl := float32(src.At(s.X0, s.Y1, c))
	br := float32(src.At(s.X1, s.Y1, c))
	top := Lerp(tl, tr, s.XF)
	bottom := Lerp(bl, br, s.XF)
	return Lerp(top, bottom, s.YF)
}

// Kernel is the per-pixel resampling expression: bilinear interpolation followed
// by fill selection. A Kernel is immutable and safe for concurrent use.
type Kernel[T images.Element] struct {
	// Policy resolves out-of-range neighbour indices.
	Policy Policy
	// Bounded enables fill selection for coordinates flagged out of bounds.
	Bounded bool
	// Fill is written for out-of-bounds pixels when Bounded is set.
	Fill float32

	integer bool
	maxVal  float32
	fill    T
}

// NewKernel prepares a kernel for element type T.
func NewKernel[T images.Element](policy Policy, bounded bool, fill float32) *Kernel[T] {
	k := &Kernel[T]{Policy: policy, Bounded: bounded, Fill: fill}
	switch images.TypeOf[T]() {
	case images.Uint8:
		k.integer, k.maxVal = true, 255
	case images.Uint16:
		k.integer, k.maxVal = true, 65535
	}
	k.fill = k.store(fill)
	return k
}

func (k *Kernel[T]) store(v float32) T {
	if !k.integer {
		return T(v)
	}
	if v != v || v <= 0 {
		return 0
	}
	if v >= k.maxVal {
		return T(k.maxVal)
	}
	return T(v + 0.5)
}

// Pixel writes every channel of output pixel (dx, dy) sampled at (srcX, srcY).
func (k *Kernel[T]) Pixel(src, dst *images.Buffer[T], dx, dy int, srcX, srcY float32, outOfBound bool) {
	if k.Bounded && outOfBound {
		for c := 0; c < dst.Channels; c++ {
			dst.Set(dx, dy, c, k.fill)
		}
		return
	}
	s := NewSample(srcX, srcY, src.Width, src.Height, k.Policy)
	for c := 0; c < dst.Channels; c++ {
		dst.Set(dx, dy, c, k.store(Bilinear(src, s, c)))
	}
}

// Lanes is per-worker scratch space for one lane block.
type Lanes struct {
	SrcX [MaxLanes]float32
	SrcY [MaxLanes]float32
	OOB  [MaxLanes]bool

	off [4][MaxLanes]int
	xf  [MaxLanes]float32
	yf  [MaxLanes]float32
}

// Block samples n consecutive output pixels whose coordinates are in l.SrcX,
// l.SrcY and l.OOB, writing interleaved samples to out. The index pass runs over
// all lanes first, then each channel is blended lane by lane; the 1- and
// 3-channel cases are unrolled.
func (k *Kernel[T]) Block(src *images.Buffer[T], out []T, l *Lanes, n int) {
	ch := src.Channels
	w, h, stride := src.Width, src.Height, src.Stride

	for i := 0; i < n; i++ {
		fx := math32.Floor(l.SrcX[i])
		fy := math32.Floor(l.SrcY[i])
		x0, x1 := neighbours(int(fx), w, k.Policy.X)
		y0, y1 := neighbours(int(fy), h, k.Policy.Y)
		r0, r1 := y0*stride, y1*stride
		c0, c1 := x0*ch, x1*ch
		l.off[0][i] = r0 + c0
		l.off[1][i] = r0 + c1
		l.off[2][i] = r1 + c0
		l.off[3][i] = r1 + c1
		l.xf[i] = l.SrcX[i] - fx
		l.yf[i] = l.SrcY[i] - fy
	}

	pix := src.Pix
	switch ch {
	case 1:
		for i := 0; i < n; i++ {
			out[i] = k.blend(pix, l, i, 0)
		}
	case 3:
		for i := 0; i < n; i++ {
			o := i * 3
			out[o] = k.blend(pix, l, i, 0)
			out[o+1] = k.blend(pix, l, i, 1)
			out[o+2] = k.blend(pix, l, i, 2)
		}
	default:
		for i := 0; i < n; i++ {
			for c := 0; c < ch; c++ {
				out[i*ch+c] = k.blend(pix, l, i, c)
			}
		}
	}

	if k.Bounded {
		for i := 0; i < n; i++ {
			if l.OOB[i] {
				for c := 0; c < ch; c++ {
					out[i*ch+c] = k.fill
				}
			}
		}
	}
}

func (k *Kernel[T]) blend(pix []T, l *Lanes, i, c int) T {
	tl := float32(pix[l.off[0][i]+c])
	tr := float32(pix[l.off[1][i]+c])
	bl := float32(pix[l.off[2][i]+c])
	br := float32(pix[l.off[3][i]+c])
	top := tl + (tr-tl)*l.xf[i]
	bottom := bl + (br-bl)*l.xf[i]
	return k.store(top + (bottom-top)*l.yf[i])
}
