package schedule

import (
	"os"
	"runtime"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"

	"github.com/nvr-ai/go-resample/resample"
)

var (
	// ErrNoAccelerator reports that no compatible accelerated device exists. Plans
	// requesting the accelerated target fall back to the CPU target on this error.
	ErrNoAccelerator = errors.New("accelerated target unavailable")
	// ErrCompile reports that a plan or kernel cannot be realised for its target.
	ErrCompile = errors.New("plan compilation failed")
)

// NoSIMDEnv forces the scalar lane width when set to a true value.
const NoSIMDEnv = "RESAMPLE_NO_SIMD"

// Host describes the CPU the generic-parallel target runs on.
type Host struct {
	// Level is the SIMD instruction set name, e.g. "avx2" or "neon".
	Level string `json:"level" yaml:"level"`
	// Lanes is the number of float32 lanes in one native vector register.
	Lanes int `json:"lanes" yaml:"lanes"`
	// Workers is the default degree of parallelism.
	Workers int `json:"workers" yaml:"workers"`
}

// Capabilities is the capability probe injected into Compile. It is consulted once
// per compilation and never during execution.
type Capabilities interface {
	// Host describes the CPU.
	Host() Host
	// Accelerator returns the accelerated device, or an error wrapping
	// ErrNoAccelerator when none is usable.
	Accelerator() (Accelerator, error)
}

// Accelerator is a device that can run a compiled resampling kernel.
type Accelerator interface {
	// Name identifies the device in logs and plans.
	Name() string
	// MaxInvocations is the largest number of invocations per workgroup.
	MaxInvocations() int
	// Compile builds a device program for k. An error wrapping ErrNoAccelerator
	// means the device went away; any other error is a compilation failure.
	Compile(k Kernel) (Program, error)
}

// Kernel describes one resampling pass in device-independent terms. Coordinates
// are dense and row-major over the destination.
type Kernel struct {
	SrcWidth   int
	SrcHeight  int
	DstWidth   int
	DstHeight  int
	Channels   int
	SrcX       []float32
	SrcY       []float32
	OutOfBound []bool
	Bounded    bool
	Fill       float32
	Edge       resample.Policy
	TileWidth  int
	TileHeight int
}

// Program is a compiled device kernel. Run takes packed, interleaved float32
// samples and may be called repeatedly.
type Program interface {
	Run(src, dst []float32) error
	Release()
}

// DetectHost probes the running CPU with golang.org/x/sys/cpu.
func DetectHost() Host {
	h := Host{Level: "scalar", Lanes: 4, Workers: runtime.GOMAXPROCS(0)}
	if noSIMD() {
		return h
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		switch {
		case cpu.X86.HasAVX512F:
			h.Level, h.Lanes = "avx512", 16
		case cpu.X86.HasAVX2:
			h.Level, h.Lanes = "avx2", 8
		case cpu.X86.HasSSE2:
			h.Level, h.Lanes = "sse2", 4
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			h.Level, h.Lanes = "neon", 4
		}
	}
	return h
}

func noSIMD() bool {
	v := os.Getenv(NoSIMDEnv)
	if v == "" {
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return true
}

type hostOnly struct {
	host Host
}

// HostOnly returns capabilities for the CPU alone; Accelerator always reports
// ErrNoAccelerator.
func HostOnly() Capabilities {
	return hostOnly{host: DetectHost()}
}

func (h hostOnly) Host() Host { return h.host }

func (hostOnly) Accelerator() (Accelerator, error) {
	return nil, errors.Wrap(ErrNoAccelerator, "host-only capabilities")
}

// WithAccelerator combines a host description with an accelerator probe. probe
// is called on each Accelerator call; Compile calls it at most once.
func WithAccelerator(host Host, probe func() (Accelerator, error)) Capabilities {
	return probed{host: host, probe: probe}
}

type probed struct {
	host  Host
	probe func() (Accelerator, error)
}

func (p probed) Host() Host { return p.host }

func (p probed) Accelerator() (Accelerator, error) {
	if p.probe == nil {
		return nil, errors.Wrap(ErrNoAccelerator, "no probe")
	}
	return p.probe()
}
