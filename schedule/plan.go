// Package schedule turns a resampling request into an immutable execution plan:
// target device, tile sizes, lane width, parallel axis and worker count. Plans are
// compiled once and shared read-only by every Apply that uses them.
package schedule

import (
	"fmt"

	"github.com/pkg/errors"
)

// Target selects where a plan executes.
type Target int

const (
	// TargetCPU runs tiled, lane-blocked loops on a worker pool.
	TargetCPU Target = iota
	// TargetAccelerated runs a compiled device kernel, falling back to TargetCPU
	// when no device is available.
	TargetAccelerated
	// TargetAuto behaves like TargetAccelerated.
	TargetAuto
)

// String implements fmt.Stringer.
func (t Target) String() string {
	switch t {
	case TargetCPU:
		return "cpu"
	case TargetAccelerated:
		return "accelerated"
	case TargetAuto:
		return "auto"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

// ParseTarget converts "cpu", "accelerated" or "auto" into a Target. The empty
// string is TargetAuto.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "cpu":
		return TargetCPU, nil
	case "accelerated", "gpu":
		return TargetAccelerated, nil
	case "", "auto":
		return TargetAuto, nil
	}
	return TargetCPU, errors.Errorf("unknown target %q", s)
}

// Axis names the loop a plan distributes across workers.
type Axis int

const (
	// AxisTileRows parallelises over rows of tiles.
	AxisTileRows Axis = iota
)

// String implements fmt.Stringer.
func (a Axis) String() string {
	if a == AxisTileRows {
		return "tile-rows"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// Default tile geometry.
const (
	ResizeTile       = 32
	ResizeLanes      = 16
	WarpTile         = 16
	WarpLanes        = 8
	DeviceTile       = 16
	MaxLanes         = 64
	DefaultChannels  = 3
	maxDeviceWorkers = 1
)

// Request is the input to Compile. Zero-valued tuning fields take defaults: tile
// sizes from the transform, lanes and workers from the host.
type Request struct {
	Target     Target `json:"target" yaml:"target"`
	TileWidth  int    `json:"tile_width" yaml:"tile_width"`
	TileHeight int    `json:"tile_height" yaml:"tile_height"`
	Lanes      int    `json:"lanes" yaml:"lanes"`
	Workers    int    `json:"workers" yaml:"workers"`
	// DeviceTileWidth and DeviceTileHeight size the accelerator workgroup.
	DeviceTileWidth  int `json:"device_tile_width" yaml:"device_tile_width"`
	DeviceTileHeight int `json:"device_tile_height" yaml:"device_tile_height"`
	// Channels is the per-pixel channel count of the data the plan will process.
	Channels int `json:"channels" yaml:"channels"`
	// Width and Height are the output dimensions.
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Merge returns r with every zero field replaced by the matching field of d.
func (r Request) Merge(d Request) Request {
	if r.TileWidth == 0 {
		r.TileWidth = d.TileWidth
	}
	if r.TileHeight == 0 {
		r.TileHeight = d.TileHeight
	}
	if r.Lanes == 0 {
		r.Lanes = d.Lanes
	}
	if r.Workers == 0 {
		r.Workers = d.Workers
	}
	if r.DeviceTileWidth == 0 {
		r.DeviceTileWidth = d.DeviceTileWidth
	}
	if r.DeviceTileHeight == 0 {
		r.DeviceTileHeight = d.DeviceTileHeight
	}
	if r.Channels == 0 {
		r.Channels = d.Channels
	}
	if r.Width == 0 {
		r.Width = d.Width
	}
	if r.Height == 0 {
		r.Height = d.Height
	}
	return r
}

// Tile is a half-open output rectangle [X0, X1) x [Y0, Y1).
type Tile struct {
	X0, Y0 int
	X1, Y1 int
}

// Plan is a compiled schedule. It is immutable and safe to share.
type Plan struct {
	target         Target
	tileWidth      int
	tileHeight     int
	lanes          int
	axis           Axis
	unrollChannels bool
	workers        int
	channels       int
	width          int
	height         int
	fallback       bool
	level          string
	device         string
	accelerator    Accelerator
}

// Target is the resolved target: TargetCPU or TargetAccelerated.
func (p *Plan) Target() Target { return p.target }

// TileWidth is the tile width in output pixels.
func (p *Plan) TileWidth() int { return p.tileWidth }

// TileHeight is the tile height in output pixels.
func (p *Plan) TileHeight() int { return p.tileHeight }

// Lanes is the inner-loop vector width.
func (p *Plan) Lanes() int { return p.lanes }

// Axis is the parallel axis.
func (p *Plan) Axis() Axis { return p.axis }

// UnrollChannels reports whether the channel loop is expanded per pixel.
func (p *Plan) UnrollChannels() bool { return p.unrollChannels }

// Workers is the degree of parallelism on the CPU target.
func (p *Plan) Workers() int { return p.workers }

// Channels is the channel count the plan was compiled for.
func (p *Plan) Channels() int { return p.channels }

// Size is the output size the plan was compiled for.
func (p *Plan) Size() (int, int) { return p.width, p.height }

// Fallback reports whether an accelerated request was downgraded to the CPU.
func (p *Plan) Fallback() bool { return p.fallback }

// Level is the host SIMD level name.
func (p *Plan) Level() string { return p.level }

// Device is the accelerator name, empty on the CPU target.
func (p *Plan) Device() string { return p.device }

// Accelerator is the device an accelerated plan runs on, nil on the CPU target.
func (p *Plan) Accelerator() Accelerator { return p.accelerator }

// TileCols returns the number of tile columns covering width w.
func (p *Plan) TileCols(w int) int { return (w + p.tileWidth - 1) / p.tileWidth }

// TileRows returns the number of tile rows covering height h.
func (p *Plan) TileRows(h int) int { return (h + p.tileHeight - 1) / p.tileHeight }

// Tile returns tile (tx, ty) of a w x h output, clipped to the output.
func (p *Plan) Tile(tx, ty, w, h int) Tile {
	t := Tile{
		X0: tx * p.tileWidth,
		Y0: ty * p.tileHeight,
	}
	t.X1 = min(t.X0+p.tileWidth, w)
	t.Y1 = min(t.Y0+p.tileHeight, h)
	return t
}

// Tiles enumerates the tiles of a w x h output in row-major order. Edge tiles are
// clipped, so every output pixel belongs to exactly one tile.
func (p *Plan) Tiles(w, h int) []Tile {
	cols, rows := p.TileCols(w), p.TileRows(h)
	tiles := make([]Tile, 0, cols*rows)
	for ty := 0; ty < rows; ty++ {
		for tx := 0; tx < cols; tx++ {
			tiles = append(tiles, p.Tile(tx, ty, w, h))
		}
	}
	return tiles
}

// Request reconstructs a request that compiles to an equivalent plan on the CPU.
func (p *Plan) Request() Request {
	return Request{
		Target:     p.target,
		TileWidth:  p.tileWidth,
		TileHeight: p.tileHeight,
		Lanes:      p.lanes,
		Workers:    p.workers,
		Channels:   p.channels,
		Width:      p.width,
		Height:     p.height,
	}
}

// String implements fmt.Stringer.
func (p *Plan) String() string {
	s := fmt.Sprintf("%s tile=%dx%d lanes=%d axis=%s workers=%d unroll=%t level=%s",
		p.target, p.tileWidth, p.tileHeight, p.lanes, p.axis, p.workers, p.unrollChannels, p.level)
	if p.device != "" {
		s += " device=" + p.device
	}
	if p.fallback {
		s += " fallback"
	}
	return s
}

// Compile validates req and resolves it against caps into a Plan.
//
// Arguments:
//   - req: The schedule request. Zero tuning fields take host defaults.
//   - caps: The capability probe. Accelerator is consulted at most once.
//
// Returns:
//   - *Plan: The compiled plan.
//   - error: ErrCompile wrapping the reason when the request cannot be realised.
func Compile(req Request, caps Capabilities) (*Plan, error) {
	if caps == nil {
		caps = HostOnly()
	}
	host := caps.Host()

	if req.Width <= 0 || req.Height <= 0 {
		return nil, errors.Wrapf(ErrCompile, "output %dx%d", req.Width, req.Height)
	}
	if req.Channels == 0 {
		req.Channels = DefaultChannels
	}
	if req.Channels != 1 && req.Channels != 3 {
		return nil, errors.Wrapf(ErrCompile, "%d channels", req.Channels)
	}
	if req.Workers < 0 {
		return nil, errors.Wrapf(ErrCompile, "%d workers", req.Workers)
	}

	p := &Plan{
		target:   TargetCPU,
		axis:     AxisTileRows,
		channels: req.Channels,
		width:    req.Width,
		height:   req.Height,
		level:    host.Level,
	}

	if req.Target == TargetAccelerated || req.Target == TargetAuto {
		acc, err := caps.Accelerator()
		switch {
		case err == nil && acc != nil:
			return compileDevice(p, req, acc)
		case err == nil || errors.Is(err, ErrNoAccelerator):
			p.fallback = true
		default:
			return nil, errors.Wrapf(ErrCompile, "accelerator probe: %v", err)
		}
	} else if req.Target != TargetCPU {
		return nil, errors.Wrapf(ErrCompile, "target %s", req.Target)
	}

	return compileHost(p, req, host)
}

func compileHost(p *Plan, req Request, host Host) (*Plan, error) {
	if req.TileWidth <= 0 || req.TileHeight <= 0 {
		return nil, errors.Wrapf(ErrCompile, "tile %dx%d", req.TileWidth, req.TileHeight)
	}
	lanes := req.Lanes
	if lanes == 0 {
		lanes = host.Lanes
	}
	if lanes <= 0 || lanes > MaxLanes || lanes&(lanes-1) != 0 {
		return nil, errors.Wrapf(ErrCompile, "lanes %d: want a power of two in [1, %d]", lanes, MaxLanes)
	}
	if req.TileWidth%lanes != 0 {
		return nil, errors.Wrapf(ErrCompile, "lanes %d do not divide tile width %d", lanes, req.TileWidth)
	}
	workers := req.Workers
	if workers == 0 {
		workers = max(host.Workers, 1)
	}

	p.tileWidth = req.TileWidth
	p.tileHeight = req.TileHeight
	p.lanes = lanes
	p.workers = workers
	p.unrollChannels = p.channels == 3
	return p, nil
}

func compileDevice(p *Plan, req Request, acc Accelerator) (*Plan, error) {
	tw, th := req.DeviceTileWidth, req.DeviceTileHeight
	if tw == 0 {
		tw = DeviceTile
	}
	if th == 0 {
		th = DeviceTile
	}
	if tw <= 0 || th <= 0 {
		return nil, errors.Wrapf(ErrCompile, "workgroup %dx%d", tw, th)
	}
	if limit := acc.MaxInvocations(); limit > 0 && tw*th > limit {
		return nil, errors.Wrapf(ErrCompile, "workgroup %dx%d exceeds %d invocations on %s", tw, th, limit, acc.Name())
	}

	p.target = TargetAccelerated
	p.tileWidth = tw
	p.tileHeight = th
	p.lanes = 1
	p.workers = maxDeviceWorkers
	p.unrollChannels = p.channels == 3
	p.device = acc.Name()
	p.accelerator = acc
	return p, nil
}
