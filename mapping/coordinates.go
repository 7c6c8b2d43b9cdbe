package mapping

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-resample/workerpool"
)

// CoordinateMap holds the source coordinate of every pixel of a Width x Height
// output. It is built once, before any sampling, and is read-only afterwards.
type CoordinateMap struct {
	Width   int
	Height  int
	Bounded bool

	// Separable layout: one entry per column / row.
	colX []float32
	rowY []float32

	// Dense layout: one entry per pixel, row-major.
	srcX []float32
	srcY []float32
	oob  []bool
}

// Build evaluates m over the whole width x height output domain. Separable mappers
// are stored as per-axis tables; everything else is stored per pixel, with rows
// evaluated in parallel on pool when one is given.
func Build(m Mapper, width, height int, pool *workerpool.Pool) (*CoordinateMap, error) {
	if m == nil {
		return nil, errors.Wrap(ErrInvalidGeometry, "nil mapper")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrInvalidGeometry, "output %dx%d", width, height)
	}

	cm := &CoordinateMap{Width: width, Height: height, Bounded: m.Bounded()}

	if s, ok := m.(Separable); ok {
		cm.colX = make([]float32, width)
		cm.rowY = make([]float32, height)
		for x := range cm.colX {
			cm.colX[x] = s.MapX(x)
		}
		for y := range cm.rowY {
			cm.rowY[y] = s.MapY(y)
		}
		return cm, nil
	}

	n := width * height
	cm.srcX = make([]float32, n)
	cm.srcY = make([]float32, n)
	cm.oob = make([]bool, n)
	rows := func(start, end int) {
		for y := start; y < end; y++ {
			i := y * width
			for x := 0; x < width; x++ {
				cm.srcX[i], cm.srcY[i], cm.oob[i] = m.Map(x, y)
				i++
			}
		}
	}
	if pool != nil {
		pool.ParallelFor(height, rows)
	} else {
		rows(0, height)
	}
	return cm, nil
}

// Separable reports whether the map is stored per axis.
func (cm *CoordinateMap) Separable() bool {
	return cm.colX != nil
}

// At returns the source coordinate and validity flag of output pixel (x, y).
func (cm *CoordinateMap) At(x, y int) (float32, float32, bool) {
	if cm.colX != nil {
		return cm.colX[x], cm.rowY[y], false
	}
	i := y*cm.Width + x
	return cm.srcX[i], cm.srcY[i], cm.oob[i]
}

// Row copies the coordinates of output pixels [x0, x0+len(sx)) on row y into the
// given slices. It is the lane-block gather used by the CPU executor.
func (cm *CoordinateMap) Row(y, x0 int, sx, sy []float32, oob []bool) {
	n := len(sx)
	if cm.colX != nil {
		copy(sx, cm.colX[x0:x0+n])
		v := cm.rowY[y]
		for i := 0; i < n; i++ {
			sy[i] = v
			oob[i] = false
		}
		return
	}
	i := y*cm.Width + x0
	copy(sx, cm.srcX[i:i+n])
	copy(sy, cm.srcY[i:i+n])
	copy(oob, cm.oob[i:i+n])
}

// Dense expands the map into three flat, row-major slices.
func (cm *CoordinateMap) Dense() (srcX, srcY []float32, oob []bool) {
	if cm.colX == nil {
		return cm.srcX, cm.srcY, cm.oob
	}
	n := cm.Width * cm.Height
	srcX = make([]float32, n)
	srcY = make([]float32, n)
	oob = make([]bool, n)
	for y := 0; y < cm.Height; y++ {
		cm.Row(y, 0, srcX[y*cm.Width:(y+1)*cm.Width], srcY[y*cm.Width:(y+1)*cm.Width], oob[y*cm.Width:(y+1)*cm.Width])
	}
	return srcX, srcY, oob
}
