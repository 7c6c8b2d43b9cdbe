// Package gpu runs resampling kernels on a WebGPU device. It implements the
// schedule.Accelerator contract: a Device compiles a schedule.Kernel into a
// Program that uploads source samples, dispatches one invocation per output pixel
// and reads the result back.
package gpu

import (
	"log"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-resample/schedule"
)

// Device is an opened WebGPU adapter and logical device.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	name           string
	maxInvocations int
	debug          bool

	mu     sync.Mutex
	closed bool
}

// Open requests an adapter, trying high-performance, then low-power, then the
// default, and opens a device on it.
//
// Returns:
//   - *Device: The opened device.
//   - error: schedule.ErrNoAccelerator wrapped with the reason when no adapter or
//     device can be obtained.
func Open() (*Device, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, errors.Wrap(schedule.ErrNoAccelerator, "create WebGPU instance")
	}

	var (
		adapter *wgpu.Adapter
		err     error
	)
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		adapter, err = inst.RequestAdapter(opts)
		if err == nil && adapter != nil {
			break
		}
	}
	if adapter == nil {
		inst.Release()
		if err == nil {
			err = errors.New("no adapter")
		}
		return nil, errors.Wrapf(schedule.ErrNoAccelerator, "request adapter: %v", err)
	}

	info := adapter.GetInfo()
	limits := adapter.GetLimits()

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		inst.Release()
		return nil, errors.Wrapf(schedule.ErrNoAccelerator, "request device: %v", err)
	}

	name := strings.TrimSpace(info.Name)
	if vendor := strings.TrimSpace(info.VendorName); vendor != "" {
		name += " (" + vendor + ")"
	}

	return &Device{
		instance:       inst,
		adapter:        adapter,
		device:         device,
		queue:          device.GetQueue(),
		name:           name,
		maxInvocations: int(limits.Limits.MaxComputeInvocationsPerWorkgroup),
	}, nil
}

// SetDebugMode toggles [DEBUG] logging of compiled shaders and dispatches.
func (d *Device) SetDebugMode(debug bool) {
	d.debug = debug
}

// Name implements schedule.Accelerator.
func (d *Device) Name() string { return d.name }

// MaxInvocations implements schedule.Accelerator.
func (d *Device) MaxInvocations() int { return d.maxInvocations }

// Close releases the device, adapter and instance.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}

var (
	shared     *Device
	sharedErr  error
	sharedOnce sync.Once
)

// Shared opens the process-wide device on first use and returns it on every call.
func Shared() (*Device, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = Open()
		if sharedErr != nil {
			log.Printf("⚠️ WebGPU unavailable: %v", sharedErr)
		}
	})
	return shared, sharedErr
}

// Capabilities returns the host probe combined with the shared WebGPU device.
func Capabilities() schedule.Capabilities {
	return schedule.WithAccelerator(schedule.DetectHost(), func() (schedule.Accelerator, error) {
		d, err := Shared()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}
