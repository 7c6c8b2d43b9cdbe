// Package pipeline binds a Transform to a compiled schedule. A Pipeline is built
// for one input geometry, scheduled once, and then applied to any number of
// input/output buffer pairs of that geometry.
//
// Usage:
//
//	p, err := pipeline.New[uint8](input.Descriptor(), pipeline.Resize{Width: 200, Height: 200})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	if err := p.Schedule(schedule.TargetAuto, gpu.Capabilities()); err != nil {
//	    return err
//	}
//	out, _ := images.NewBufferFor[uint8](p.OutputDescriptor())
//	for frame := range frames {
//	    if err := p.Apply(frame, out); err != nil {
//	        return err
//	    }
//	}
package pipeline

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-resample/images"
	"github.com/nvr-ai/go-resample/mapping"
	"github.com/nvr-ai/go-resample/resample"
	"github.com/nvr-ai/go-resample/schedule"
	"github.com/nvr-ai/go-resample/workerpool"
)

var (
	// ErrNotScheduled is returned by Apply before Schedule has succeeded.
	ErrNotScheduled = errors.New("pipeline not scheduled")
	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("pipeline closed")
	// ErrFailed is returned by Apply after scheduling failed.
	ErrFailed = errors.New("pipeline failed")
	// ErrShape is returned when a buffer does not match the pipeline geometry.
	ErrShape = errors.New("buffer shape mismatch")
)

// Pipeline applies one transform to buffers of one input geometry.
type Pipeline[T images.Element] struct {
	mu sync.Mutex

	input     images.Descriptor
	output    images.Descriptor
	transform Transform
	mapper    mapping.Mapper
	kernel    *resample.Kernel[T]
	opts      options

	scheduled bool
	schedErr  error
	plan      *schedule.Plan
	coords    *mapping.CoordinateMap
	pool      *workerpool.Pool
	program   schedule.Program
	lanes     sync.Pool
	srcF      []float32
	dstF      []float32
	closed    bool
}

// New validates the input geometry and prepares the transform.
//
// Arguments:
//   - input: The geometry of every buffer later passed to Apply. An empty Type is
//     taken from T.
//   - t: The transform.
//   - opts: Construction options.
//
// Returns:
//   - *Pipeline[T]: The unscheduled pipeline.
//   - error: images.ErrUnsupportedChannels, images.ErrDimensions,
//     images.ErrElementType or mapping.ErrInvalidGeometry.
func New[T images.Element](input images.Descriptor, t Transform, opts ...Option) (*Pipeline[T], error) {
	if t == nil {
		return nil, errors.New("nil transform")
	}
	if input.Type == "" {
		input.Type = images.TypeOf[T]()
	}
	if input.Type != images.TypeOf[T]() {
		return nil, errors.Wrapf(images.ErrElementType, "descriptor has %s, pipeline holds %s", input.Type, images.TypeOf[T]())
	}
	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(err, "input")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	w, h := t.Size(input)
	output := images.Descriptor{Width: w, Height: h, Channels: input.Channels, Type: input.Type}
	if err := output.Validate(); err != nil {
		return nil, errors.Wrap(err, "output")
	}

	m, err := t.Mapper(input)
	if err != nil {
		return nil, errors.Wrap(err, t.Name())
	}

	p := &Pipeline[T]{
		input:     input,
		output:    output,
		transform: t,
		mapper:    m,
		kernel:    resample.NewKernel[T](t.Policy(), m.Bounded(), o.fill),
		opts:      o,
	}
	p.lanes.New = func() any { return new(resample.Lanes) }
	return p, nil
}

// SetDebugMode toggles [DEBUG] logging.
func (p *Pipeline[T]) SetDebugMode(debug bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts.debug = debug
}

func (p *Pipeline[T]) debugf(format string, args ...any) {
	if p.opts.debug {
		p.opts.logger.Printf("[DEBUG] "+format, args...)
	}
}

// Request returns the schedule request Schedule would compile for target.
func (p *Pipeline[T]) Request(target schedule.Target) schedule.Request {
	req := p.opts.request.Merge(p.transform.Defaults())
	req.Target = target
	req.Channels = p.input.Channels
	req.Width = p.output.Width
	req.Height = p.output.Height
	return req
}

// Schedule compiles the pipeline for target. Only the first call compiles; later
// calls return its outcome.
//
// Arguments:
//   - target: The preferred target.
//   - caps: The capability probe. nil means schedule.HostOnly().
//
// Returns:
//   - error: schedule.ErrCompile when the plan cannot be realised, ErrClosed
//     after Close.
func (p *Pipeline[T]) Schedule(target schedule.Target, caps schedule.Capabilities) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.scheduled {
		return p.schedErr
	}
	p.scheduled = true

	if caps == nil {
		caps = schedule.HostOnly()
	}
	req := p.Request(target)
	plan, err := schedule.Compile(req, caps)
	if err != nil {
		p.schedErr = err
		return err
	}

	err = p.realise(plan)
	if err != nil && errors.Is(err, schedule.ErrNoAccelerator) && plan.Target() == schedule.TargetAccelerated {
		p.debugf("%s: %s lost its device (%v), falling back to cpu", p.transform.Name(), plan.Device(), err)
		lost := err
		hostOnly := schedule.WithAccelerator(caps.Host(), func() (schedule.Accelerator, error) {
			return nil, lost
		})
		plan, err = schedule.Compile(req, hostOnly)
		if err == nil {
			err = p.realise(plan)
		}
	}
	if err != nil {
		p.schedErr = err
		return err
	}
	return nil
}

// ScheduleWith compiles the pipeline against an existing CPU plan, letting several
// pipelines share one plan. The plan must match the pipeline's output geometry.
func (p *Pipeline[T]) ScheduleWith(plan *schedule.Plan) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.scheduled {
		return p.schedErr
	}
	p.scheduled = true

	if plan == nil {
		p.schedErr = errors.Wrap(schedule.ErrCompile, "nil plan")
		return p.schedErr
	}

	var err error
	switch w, h := plan.Size(); {
	case plan.Target() != schedule.TargetCPU:
		err = errors.Wrapf(schedule.ErrCompile, "shared plans must target cpu, got %s", plan.Target())
	case w != p.output.Width || h != p.output.Height || plan.Channels() != p.output.Channels:
		err = errors.Wrapf(schedule.ErrCompile, "plan for %dx%dx%d, pipeline outputs %s", w, h, plan.Channels(), p.output)
	default:
		err = p.realise(plan)
	}
	p.schedErr = err
	return err
}

// realise builds everything plan needs to execute. Called with p.mu held.
func (p *Pipeline[T]) realise(plan *schedule.Plan) error {
	w, h := p.output.Width, p.output.Height

	if plan.Target() == schedule.TargetAccelerated {
		coords, err := mapping.Build(p.mapper, w, h, nil)
		if err != nil {
			return errors.Wrap(schedule.ErrCompile, err.Error())
		}
		srcX, srcY, oob := coords.Dense()
		prog, err := plan.Accelerator().Compile(schedule.Kernel{
			SrcWidth:   p.input.Width,
			SrcHeight:  p.input.Height,
			DstWidth:   w,
			DstHeight:  h,
			Channels:   p.input.Channels,
			SrcX:       srcX,
			SrcY:       srcY,
			OutOfBound: oob,
			Bounded:    p.kernel.Bounded,
			Fill:       p.kernel.Fill,
			Edge:       p.kernel.Policy,
			TileWidth:  plan.TileWidth(),
			TileHeight: plan.TileHeight(),
		})
		if err != nil {
			if errors.Is(err, schedule.ErrNoAccelerator) || errors.Is(err, schedule.ErrCompile) {
				return err
			}
			return errors.Wrapf(schedule.ErrCompile, "%s: %v", plan.Device(), err)
		}
		p.plan = plan
		p.coords = coords
		p.program = prog
		p.srcF = make([]float32, p.input.Width*p.input.Height*p.input.Channels)
		p.dstF = make([]float32, w*h*p.output.Channels)
		p.debugf("%s %s -> %s scheduled: %s", p.transform.Name(), p.input, p.output, plan)
		return nil
	}

	pool := workerpool.New(plan.Workers())
	if p.opts.precompute {
		coords, err := mapping.Build(p.mapper, w, h, pool)
		if err != nil {
			pool.Close()
			return errors.Wrap(schedule.ErrCompile, err.Error())
		}
		p.coords = coords
	}
	p.plan = plan
	p.pool = pool
	p.debugf("%s %s -> %s scheduled: %s precompute=%t", p.transform.Name(), p.input, p.output, plan, p.opts.precompute)
	return nil
}

// Apply resamples input into output using the compiled plan. Every output pixel
// is written exactly once. Calls on one Pipeline are serialised.
//
// Arguments:
//   - input: A contiguous buffer matching the construction descriptor.
//   - output: A buffer of OutputDescriptor geometry. Row padding is allowed.
//
// Returns:
//   - error: images.ErrNotContiguous, ErrShape, ErrNotScheduled, ErrFailed or
//     ErrClosed. Nothing is written to output when an error is returned before
//     execution starts.
func (p *Pipeline[T]) Apply(input, output *images.Buffer[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if !p.scheduled {
		return ErrNotScheduled
	}
	if p.schedErr != nil {
		return errors.Wrapf(ErrFailed, "%v", p.schedErr)
	}
	if err := p.check(input, output); err != nil {
		return err
	}

	if p.program != nil {
		input.Floats(p.srcF)
		if err := p.program.Run(p.srcF, p.dstF); err != nil {
			return errors.Wrapf(err, "%s on %s", p.transform.Name(), p.plan.Device())
		}
		output.SetFloats(p.dstF)
		return nil
	}

	p.execute(input, output)
	return nil
}

func (p *Pipeline[T]) check(input, output *images.Buffer[T]) error {
	if input == nil || output == nil {
		return errors.Wrap(ErrShape, "nil buffer")
	}
	if err := input.Validate(); err != nil {
		return errors.Wrap(err, "input")
	}
	if d := input.Descriptor(); d != p.input {
		return errors.Wrapf(ErrShape, "input is %s, pipeline expects %s", d, p.input)
	}
	if d := output.Descriptor(); d != p.output {
		return errors.Wrapf(ErrShape, "output is %s, pipeline produces %s", d, p.output)
	}
	row := output.Width * output.Channels
	if output.Stride < row || len(output.Pix) < (output.Height-1)*output.Stride+row {
		return errors.Wrapf(ErrShape, "output stride %d with %d elements", output.Stride, len(output.Pix))
	}
	return nil
}

// Plan returns the compiled plan, or nil before scheduling.
func (p *Pipeline[T]) Plan() *schedule.Plan {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plan
}

// Coordinates returns the tabulated coordinate map, or nil when the plan
// evaluates the mapper on the fly.
func (p *Pipeline[T]) Coordinates() *mapping.CoordinateMap {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coords
}

// InputDescriptor returns the geometry Apply expects for input.
func (p *Pipeline[T]) InputDescriptor() images.Descriptor { return p.input }

// OutputDescriptor returns the geometry Apply expects for output.
func (p *Pipeline[T]) OutputDescriptor() images.Descriptor { return p.output }

// Transform returns the transform the pipeline was built with.
func (p *Pipeline[T]) Transform() Transform { return p.transform }

// Close releases the worker pool and any device program. It is idempotent.
func (p *Pipeline[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.pool != nil {
		p.pool.Close()
	}
	if p.program != nil {
		p.program.Release()
	}
	return nil
}

// Run builds, schedules and applies a pipeline once, returning a new output buffer.
func Run[T images.Element](src *images.Buffer[T], t Transform, target schedule.Target, caps schedule.Capabilities, opts ...Option) (*images.Buffer[T], error) {
	if src == nil {
		return nil, errors.Wrap(ErrShape, "nil input")
	}
	p, err := New[T](src.Descriptor(), t, opts...)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	if err := p.Schedule(target, caps); err != nil {
		return nil, err
	}
	out, err := images.NewBufferFor[T](p.OutputDescriptor())
	if err != nil {
		return nil, err
	}
	if err := p.Apply(src, out); err != nil {
		return nil, err
	}
	return out, nil
}
