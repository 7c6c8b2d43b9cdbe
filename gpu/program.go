package gpu

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-resample/schedule"
)

// ReadbackTimeout bounds the wait for the staging buffer to map.
var ReadbackTimeout = 2 * time.Second

// ErrReadbackTimeout is returned when the staging buffer does not map in time.
// The program cannot be run again afterwards.
var ErrReadbackTimeout = errors.New("readback timed out")

// Program is a compiled resampling kernel bound to its device buffers.
type Program struct {
	dev *Device

	pipeline  *wgpu.ComputePipeline
	bindGroup *wgpu.BindGroup
	module    *wgpu.ShaderModule

	srcBuf     *wgpu.Buffer
	coordBuf   *wgpu.Buffer
	dstBuf     *wgpu.Buffer
	stagingBuf *wgpu.Buffer

	srcLen  int
	dstLen  int
	groupsX uint32
	groupsY uint32

	mu       sync.Mutex
	released bool
	// stalled is set after a readback timeout left the staging buffer unusable.
	stalled bool
}

// Compile implements schedule.Accelerator.
//
// Arguments:
//   - k: The kernel. SrcX, SrcY and OutOfBound must hold DstWidth*DstHeight entries.
//
// Returns:
//   - schedule.Program: The compiled program.
//   - error: schedule.ErrCompile on invalid kernels or device failures.
func (d *Device) Compile(k schedule.Kernel) (schedule.Program, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, errors.Wrap(schedule.ErrNoAccelerator, "device closed")
	}

	n := k.DstWidth * k.DstHeight
	if n <= 0 || k.SrcWidth <= 0 || k.SrcHeight <= 0 || k.Channels <= 0 {
		return nil, errors.Wrapf(schedule.ErrCompile, "kernel %dx%d -> %dx%d x%d",
			k.SrcWidth, k.SrcHeight, k.DstWidth, k.DstHeight, k.Channels)
	}
	if len(k.SrcX) != n || len(k.SrcY) != n || len(k.OutOfBound) != n {
		return nil, errors.Wrapf(schedule.ErrCompile, "coordinate map has %d entries, want %d", len(k.SrcX), n)
	}
	if k.TileWidth <= 0 || k.TileHeight <= 0 {
		return nil, errors.Wrapf(schedule.ErrCompile, "workgroup %dx%d", k.TileWidth, k.TileHeight)
	}
	if d.maxInvocations > 0 && k.TileWidth*k.TileHeight > d.maxInvocations {
		return nil, errors.Wrapf(schedule.ErrCompile, "workgroup %dx%d exceeds %d invocations",
			k.TileWidth, k.TileHeight, d.maxInvocations)
	}

	shader := GenerateShader(k)
	if d.debug {
		log.Printf("[DEBUG] gpu: compiling %dx%d -> %dx%d on %s\n%s", k.SrcWidth, k.SrcHeight, k.DstWidth, k.DstHeight, d.name, shader)
	}

	p := &Program{
		dev:     d,
		srcLen:  k.SrcWidth * k.SrcHeight * k.Channels,
		dstLen:  n * k.Channels,
		groupsX: uint32((k.DstWidth + k.TileWidth - 1) / k.TileWidth),
		groupsY: uint32((k.DstHeight + k.TileHeight - 1) / k.TileHeight),
	}
	if err := p.build(shader, PackCoordinates(k.SrcX, k.SrcY, k.OutOfBound)); err != nil {
		p.Release()
		return nil, errors.Wrap(schedule.ErrCompile, err.Error())
	}
	return p, nil
}

func (p *Program) build(shader string, coords []float32) error {
	dev := p.dev.device
	var err error

	p.module, err = dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Resample_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shader},
	})
	if err != nil {
		return fmt.Errorf("shader module: %v", err)
	}

	p.pipeline, err = dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "Resample_Pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: p.module, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("compute pipeline: %v", err)
	}

	p.srcBuf, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Resample_Src",
		Size:  uint64(p.srcLen * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("source buffer: %v", err)
	}

	p.coordBuf, err = dev.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Resample_Coords",
		Contents: wgpu.ToBytes(coords),
		Usage:    wgpu.BufferUsageStorage,
	})
	if err != nil {
		return fmt.Errorf("coordinate buffer: %v", err)
	}

	p.dstBuf, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Resample_Dst",
		Size:  uint64(p.dstLen * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("destination buffer: %v", err)
	}

	p.stagingBuf, err = dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Resample_Staging",
		Size:  uint64(p.dstLen * 4),
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("staging buffer: %v", err)
	}

	p.bindGroup, err = dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Resample_Bind",
		Layout: p.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: p.srcBuf, Size: p.srcBuf.GetSize()},
			{Binding: 1, Buffer: p.coordBuf, Size: p.coordBuf.GetSize()},
			{Binding: 2, Buffer: p.dstBuf, Size: p.dstBuf.GetSize()},
		},
	})
	if err != nil {
		return fmt.Errorf("bind group: %v", err)
	}
	return nil
}

// Run implements schedule.Program. src holds the packed source samples and dst
// receives the packed destination samples.
func (p *Program) Run(src, dst []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return errors.New("program released")
	}
	if p.stalled {
		return errors.Wrap(ErrReadbackTimeout, "program stalled by an earlier readback")
	}
	if len(src) != p.srcLen {
		return errors.Errorf("source has %d samples, want %d", len(src), p.srcLen)
	}
	if len(dst) != p.dstLen {
		return errors.Errorf("destination has %d samples, want %d", len(dst), p.dstLen)
	}

	dev := p.dev.device
	p.dev.queue.WriteBuffer(p.srcBuf, 0, wgpu.ToBytes(src))

	encoder, err := dev.CreateCommandEncoder(nil)
	if err != nil {
		return errors.Wrap(err, "command encoder")
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, p.bindGroup, nil)
	pass.DispatchWorkgroups(p.groupsX, p.groupsY, 1)
	pass.End()

	size := uint64(p.dstLen * 4)
	encoder.CopyBufferToBuffer(p.dstBuf, 0, p.stagingBuf, 0, size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return errors.Wrap(err, "finish command")
	}
	p.dev.queue.Submit(cmd)

	if p.dev.debug {
		log.Printf("[DEBUG] gpu: dispatched %dx%d workgroups", p.groupsX, p.groupsY)
	}

	return p.readback(dst, size)
}

func (p *Program) readback(dst []float32, size uint64) error {
	done := make(chan struct{})
	var mapErr error

	err := p.stagingBuf.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = errors.Errorf("map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return errors.Wrap(err, "map staging buffer")
	}

	if err := awaitMap(done, func() { p.dev.device.Poll(false, nil) }, ReadbackTimeout); err != nil {
		// Unmap cancels the pending map; the callback still fires, so wait for it
		// before the buffer can be considered idle.
		p.stagingBuf.Unmap()
		if awaitMap(done, func() { p.dev.device.Poll(false, nil) }, ReadbackTimeout) != nil {
			p.stalled = true
		}
		return err
	}
	if mapErr != nil {
		return mapErr
	}

	data := p.stagingBuf.GetMappedRange(0, uint(size))
	if data == nil {
		p.stagingBuf.Unmap()
		return errors.New("staging buffer has no mapped range")
	}
	copy(dst, wgpu.FromBytes[float32](data))
	p.stagingBuf.Unmap()
	return nil
}

// awaitMap polls until done closes or timeout elapses.
func awaitMap(done <-chan struct{}, poll func(), timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		poll()
		select {
		case <-done:
			return nil
		case <-deadline:
			return errors.Wrapf(ErrReadbackTimeout, "after %s", timeout)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

// Release implements schedule.Program. It is idempotent.
func (p *Program) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return
	}
	p.released = true
	for _, b := range []*wgpu.Buffer{p.srcBuf, p.coordBuf, p.dstBuf, p.stagingBuf} {
		if b != nil {
			b.Destroy()
		}
	}
	if p.bindGroup != nil {
		p.bindGroup.Release()
	}
	if p.pipeline != nil {
		p.pipeline.Release()
	}
	if p.module != nil {
		p.module.Release()
	}
}
