package pipeline

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-resample/images"
	"github.com/nvr-ai/go-resample/mapping"
	"github.com/nvr-ai/go-resample/resample"
	"github.com/nvr-ai/go-resample/schedule"
)

// Transform is a geometric transform a Pipeline can realise: it fixes the output
// size, produces the coordinate mapper and supplies schedule defaults.
type Transform interface {
	// Name identifies the transform in logs.
	Name() string
	// Size returns the output dimensions for a given input.
	Size(src images.Descriptor) (int, int)
	// Mapper returns the inverse coordinate mapping for a given input.
	Mapper(src images.Descriptor) (mapping.Mapper, error)
	// Policy returns the edge policy used while sampling.
	Policy() resample.Policy
	// Defaults returns the tile geometry tuned for this transform.
	Defaults() schedule.Request
}

// Resize rescales the input to Width x Height with bilinear interpolation and
// edge clamping. Zero dimensions keep the input size.
type Resize struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Name implements Transform.
func (Resize) Name() string { return "resize" }

// Size implements Transform.
func (r Resize) Size(src images.Descriptor) (int, int) {
	w, h := r.Width, r.Height
	if w == 0 {
		w = src.Width
	}
	if h == 0 {
		h = src.Height
	}
	return w, h
}

// Mapper implements Transform.
func (r Resize) Mapper(src images.Descriptor) (mapping.Mapper, error) {
	w, h := r.Size(src)
	return mapping.NewResize(src.Width, src.Height, w, h)
}

// Policy implements Transform.
func (Resize) Policy() resample.Policy { return resample.Policy{} }

// Defaults implements Transform.
func (Resize) Defaults() schedule.Request {
	return schedule.Request{
		TileWidth:  schedule.ResizeTile,
		TileHeight: schedule.ResizeTile,
		Lanes:      schedule.ResizeLanes,
	}
}

// WarpPolar unwarps a polar input, whose columns are radius bins and rows are
// angle bins, into a Width x Height Cartesian output centred on
// (CenterX, CenterY). Pixels farther than MaxRadius from the centre are filled.
//
// Unset fields take the defaults of the classic warp demo: a square output whose
// side is the smaller input dimension, centred, with MaxRadius = min(cx, cy).
// A nil CenterX or CenterY means the middle of the output on that axis; any
// explicit value is kept, including 0 and positions off the output.
type WarpPolar struct {
	Width     int      `json:"width" yaml:"width"`
	Height    int      `json:"height" yaml:"height"`
	CenterX   *float32 `json:"center_x,omitempty" yaml:"center_x,omitempty"`
	CenterY   *float32 `json:"center_y,omitempty" yaml:"center_y,omitempty"`
	MaxRadius float32  `json:"max_radius" yaml:"max_radius"`
	// AngularEdge resolves angle bins past the last row. EdgeClamp repeats the
	// edge rows; EdgeWrap joins the first and last rows.
	AngularEdge resample.EdgeMode `json:"angular_edge" yaml:"angular_edge"`
}

// Name implements Transform.
func (WarpPolar) Name() string { return "warp-polar" }

// Size implements Transform.
func (w WarpPolar) Size(src images.Descriptor) (int, int) {
	side := min(src.Width, src.Height)
	width, height := w.Width, w.Height
	if width == 0 {
		width = side
	}
	if height == 0 {
		height = side
	}
	return width, height
}

// Geometry returns the centre and maximum radius after defaults are applied.
func (w WarpPolar) Geometry(src images.Descriptor) (cx, cy, radius float32) {
	width, height := w.Size(src)
	cx, cy, radius = float32(width)/2, float32(height)/2, w.MaxRadius
	if w.CenterX != nil {
		cx = *w.CenterX
	}
	if w.CenterY != nil {
		cy = *w.CenterY
	}
	if radius == 0 {
		radius = min(cx, cy)
	}
	return cx, cy, radius
}

// At returns a copy of w centred on (cx, cy).
func (w WarpPolar) At(cx, cy float32) WarpPolar {
	w.CenterX, w.CenterY = &cx, &cy
	return w
}

// Mapper implements Transform. A centre on or outside the output edge needs an
// explicit MaxRadius, since the default min(cx, cy) is then not positive.
func (w WarpPolar) Mapper(src images.Descriptor) (mapping.Mapper, error) {
	if w.MaxRadius < 0 {
		return nil, errors.Wrapf(mapping.ErrInvalidGeometry, "max radius %v", w.MaxRadius)
	}
	cx, cy, radius := w.Geometry(src)
	return mapping.NewWarpPolar(src.Width, src.Height, cx, cy, radius)
}

// Policy implements Transform.
func (w WarpPolar) Policy() resample.Policy {
	return resample.Policy{X: resample.EdgeClamp, Y: w.AngularEdge}
}

// Defaults implements Transform.
func (WarpPolar) Defaults() schedule.Request {
	return schedule.Request{
		TileWidth:  schedule.WarpTile,
		TileHeight: schedule.WarpTile,
		Lanes:      schedule.WarpLanes,
	}
}
