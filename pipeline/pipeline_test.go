package pipeline

import (
	"bytes"
	"log"
	"math/rand"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-resample/images"
	"github.com/nvr-ai/go-resample/mapping"
	"github.com/nvr-ai/go-resample/resample"
	"github.com/nvr-ai/go-resample/schedule"
)

var testHost = schedule.Host{Level: "test", Lanes: 8, Workers: 3}

// fakeAccelerator compiles kernels into programs that sample on the host, so the
// accelerated path can be exercised without a GPU.
type fakeAccelerator struct {
	max        int
	compileErr error
	compiles   int
	released   int
}

func (f *fakeAccelerator) Name() string        { return "fake" }
func (f *fakeAccelerator) MaxInvocations() int { return f.max }

func (f *fakeAccelerator) Compile(k schedule.Kernel) (schedule.Program, error) {
	f.compiles++
	if f.compileErr != nil {
		return nil, f.compileErr
	}
	return &fakeProgram{k: k, owner: f}, nil
}

type fakeProgram struct {
	k     schedule.Kernel
	owner *fakeAccelerator
}

func (p *fakeProgram) Run(src, dst []float32) error {
	k := p.k
	in := images.Wrap(src, k.SrcWidth, k.SrcHeight, k.Channels, k.SrcWidth*k.Channels)
	for i := 0; i < k.DstWidth*k.DstHeight; i++ {
		for c := 0; c < k.Channels; c++ {
			if k.Bounded && k.OutOfBound[i] {
				dst[i*k.Channels+c] = k.Fill
				continue
			}
			s := resample.NewSample(k.SrcX[i], k.SrcY[i], k.SrcWidth, k.SrcHeight, k.Edge)
			dst[i*k.Channels+c] = resample.Bilinear(in, s, c)
		}
	}
	return nil
}

func (p *fakeProgram) Release() { p.owner.released++ }

func fakeCaps(acc *fakeAccelerator) (schedule.Capabilities, *int) {
	probes := new(int)
	return schedule.WithAccelerator(testHost, func() (schedule.Accelerator, error) {
		*probes++
		return acc, nil
	}), probes
}

func noisy[T images.Element](t *testing.T, w, h, c int, seed int64) *images.Buffer[T] {
	t.Helper()
	b, err := images.NewBuffer[T](w, h, c)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(seed))
	for i := range b.Pix {
		b.Pix[i] = T(rng.Intn(256))
	}
	return b
}

// reference evaluates the transform pixel by pixel with no tiling or lanes.
func reference[T images.Element](t *testing.T, src *images.Buffer[T], tr Transform, fill float32) *images.Buffer[T] {
	t.Helper()
	m, err := tr.Mapper(src.Descriptor())
	require.NoError(t, err)
	w, h := tr.Size(src.Descriptor())
	out, err := images.NewBuffer[T](w, h, src.Channels)
	require.NoError(t, err)
	k := resample.NewKernel[T](tr.Policy(), m.Bounded(), fill)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy, oob := m.Map(x, y)
			k.Pixel(src, out, x, y, sx, sy, oob)
		}
	}
	return out
}

func TestRunDownscaleScenario(t *testing.T) {
	src, err := images.NewBuffer[uint8](4, 4, 1)
	require.NoError(t, err)
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 10)
	}

	acc := &fakeAccelerator{max: 256}
	accCaps, _ := fakeCaps(acc)

	testCases := []struct {
		name   string
		target schedule.Target
		caps   schedule.Capabilities
	}{
		{name: "cpu", target: schedule.TargetCPU, caps: nil},
		{name: "auto without accelerator", target: schedule.TargetAuto, caps: schedule.HostOnly()},
		{name: "accelerated", target: schedule.TargetAccelerated, caps: accCaps},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Run(src, Resize{Width: 2, Height: 2}, tc.target, tc.caps)
			require.NoError(t, err)
			assert.Equal(t, []uint8{25, 45, 105, 125}, out.Pix)
		})
	}
}

func TestIdentityResize(t *testing.T) {
	for _, channels := range []int{1, 3} {
		src := noisy[uint8](t, 17, 9, channels, 1)
		out, err := Run(src, Resize{}, schedule.TargetCPU, nil)
		require.NoError(t, err)
		assert.Equal(t, src.Pix, out.Pix, "channels=%d", channels)
	}
}

func TestCornersSampleCornerNeighbourhoods(t *testing.T) {
	src := noisy[uint8](t, 8, 6, 1, 2)

	testCases := []struct {
		name string
		w, h int
	}{
		{name: "downscale", w: 3, h: 2},
		{name: "upscale", w: 19, h: 13},
		{name: "anisotropic", w: 16, h: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Run(src, Resize{Width: tc.w, Height: tc.h}, schedule.TargetCPU, nil)
			require.NoError(t, err)

			corners := []struct{ dx, dy, sx, sy int }{
				{0, 0, 0, 0},
				{tc.w - 1, 0, src.Width - 2, 0},
				{0, tc.h - 1, 0, src.Height - 2},
				{tc.w - 1, tc.h - 1, src.Width - 2, src.Height - 2},
			}
			for _, c := range corners {
				lo, hi := uint8(255), uint8(0)
				for y := c.sy; y < c.sy+2; y++ {
					for x := c.sx; x < c.sx+2; x++ {
						lo = min(lo, src.At(x, y, 0))
						hi = max(hi, src.At(x, y, 0))
					}
				}
				v := out.At(c.dx, c.dy, 0)
				assert.GreaterOrEqual(t, v, lo, "corner (%d,%d)", c.dx, c.dy)
				assert.LessOrEqual(t, v, hi, "corner (%d,%d)", c.dx, c.dy)
			}
		})
	}
}

func TestWarpPolar(t *testing.T) {
	// 10 radius bins by 36 angle bins; every row holds its angle index * 7.
	src, err := images.NewBuffer[uint8](10, 36, 1)
	require.NoError(t, err)
	for y := 0; y < 36; y++ {
		for x := 0; x < 10; x++ {
			src.Set(x, y, 0, uint8(y*7))
		}
	}

	p, err := New[uint8](src.Descriptor(), WarpPolar{}, WithFill(3))
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, images.Descriptor{Width: 10, Height: 10, Channels: 1, Type: images.Uint8}, p.OutputDescriptor())

	require.NoError(t, p.Schedule(schedule.TargetCPU, nil))
	out, err := images.NewBufferFor[uint8](p.OutputDescriptor())
	require.NoError(t, err)
	require.NoError(t, p.Apply(src, out))

	assert.Equal(t, uint8(18*7), out.At(5, 5, 0), "centre samples radius 0 at angle pi")
	assert.Equal(t, uint8(3), out.At(0, 0, 0), "outside max radius is filled")
	assert.Equal(t, uint8(3), out.At(9, 9, 0))
	assert.Equal(t, reference(t, src, WarpPolar{}, 3).Pix, out.Pix)
}

func TestWarpPolarAngularWrap(t *testing.T) {
	src := noisy[uint8](t, 24, 48, 3, 3)
	tr := WarpPolar{Width: 30, Height: 30, AngularEdge: resample.EdgeWrap}

	out, err := Run(src, tr, schedule.TargetCPU, nil)
	require.NoError(t, err)
	assert.Equal(t, reference(t, src, tr, 0).Pix, out.Pix)

	_, err = New[uint8](src.Descriptor(), WarpPolar{MaxRadius: -1})
	assert.True(t, errors.Is(err, mapping.ErrInvalidGeometry))
}

func TestScheduleIsIdempotent(t *testing.T) {
	acc := &fakeAccelerator{max: 256}
	caps, probes := fakeCaps(acc)

	src := noisy[uint8](t, 40, 30, 3, 4)
	p, err := New[uint8](src.Descriptor(), Resize{Width: 20, Height: 15})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Schedule(schedule.TargetAccelerated, caps))
	plan := p.Plan()
	require.NotNil(t, plan)
	assert.Equal(t, schedule.TargetAccelerated, plan.Target())
	assert.NotNil(t, p.Coordinates())

	require.NoError(t, p.Schedule(schedule.TargetCPU, nil))
	assert.Same(t, plan, p.Plan())
	assert.Equal(t, 1, *probes)
	assert.Equal(t, 1, acc.compiles)
}

func TestScheduleOnceApplyMany(t *testing.T) {
	testCases := []struct {
		name   string
		target schedule.Target
		tr     Transform
	}{
		{name: "cpu resize", target: schedule.TargetCPU, tr: Resize{Width: 23, Height: 17}},
		{name: "cpu warp polar", target: schedule.TargetCPU, tr: WarpPolar{AngularEdge: resample.EdgeWrap}},
		{name: "accelerated resize", target: schedule.TargetAccelerated, tr: Resize{Width: 50, Height: 9}},
		{name: "accelerated warp polar", target: schedule.TargetAccelerated, tr: WarpPolar{Width: 26, Height: 26}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			acc := &fakeAccelerator{max: 256}
			caps, _ := fakeCaps(acc)

			desc := images.Descriptor{Width: 31, Height: 22, Channels: 3, Type: images.Uint8}
			p, err := New[uint8](desc, tc.tr)
			require.NoError(t, err)
			defer p.Close()
			require.NoError(t, p.Schedule(tc.target, caps))
			assert.Equal(t, tc.target, p.Plan().Target())

			out, err := images.NewBufferFor[uint8](p.OutputDescriptor())
			require.NoError(t, err)
			for i := 0; i < 4; i++ {
				src := noisy[uint8](t, desc.Width, desc.Height, desc.Channels, int64(100+i))
				require.NoError(t, p.Apply(src, out))

				freshCaps, _ := fakeCaps(&fakeAccelerator{max: 256})
				fresh, err := Run(src, tc.tr, tc.target, freshCaps)
				require.NoError(t, err)
				assert.Equal(t, fresh.Pix, out.Pix, "apply %d", i)
			}
			if tc.target == schedule.TargetAccelerated {
				assert.Equal(t, 1, acc.compiles, "one compile serves every apply")
			}
		})
	}
}

func TestWarpPolarExplicitCentre(t *testing.T) {
	src := noisy[uint8](t, 16, 32, 1, 12)
	desc := src.Descriptor()

	testCases := []struct {
		name           string
		tr             WarpPolar
		cx, cy, radius float32
	}{
		{name: "default", tr: WarpPolar{Width: 20, Height: 20}, cx: 10, cy: 10, radius: 10},
		{name: "origin", tr: WarpPolar{Width: 20, Height: 20, MaxRadius: 20}.At(0, 0), cx: 0, cy: 0, radius: 20},
		{name: "off output", tr: WarpPolar{Width: 20, Height: 20, MaxRadius: 30}.At(-5, 25), cx: -5, cy: 25, radius: 30},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cx, cy, r := tc.tr.Geometry(desc)
			assert.Equal(t, tc.cx, cx)
			assert.Equal(t, tc.cy, cy)
			assert.Equal(t, tc.radius, r)

			out, err := Run(src, tc.tr, schedule.TargetCPU, nil)
			require.NoError(t, err)
			assert.Equal(t, reference(t, src, tc.tr, 0).Pix, out.Pix)
		})
	}

	// With the centre on the corner, pixel (0,0) sits at radius 0 and samples column 0.
	out, err := Run(src, WarpPolar{Width: 20, Height: 20, MaxRadius: 20}.At(0, 0), schedule.TargetCPU, nil)
	require.NoError(t, err)
	centred, err := Run(src, WarpPolar{Width: 20, Height: 20, MaxRadius: 20}, schedule.TargetCPU, nil)
	require.NoError(t, err)
	assert.NotEqual(t, centred.Pix, out.Pix)

	_, err = New[uint8](desc, WarpPolar{Width: 20, Height: 20}.At(0, 0))
	assert.True(t, errors.Is(err, mapping.ErrInvalidGeometry), "a corner centre needs an explicit radius")
}

func TestApplyBeforeSchedule(t *testing.T) {
	src := noisy[uint8](t, 4, 4, 1, 5)
	p, err := New[uint8](src.Descriptor(), Resize{Width: 2, Height: 2})
	require.NoError(t, err)
	defer p.Close()

	out, err := images.NewBufferFor[uint8](p.OutputDescriptor())
	require.NoError(t, err)
	err = p.Apply(src, out)
	assert.True(t, errors.Is(err, ErrNotScheduled))
	assert.Nil(t, p.Plan())
}

func TestAcceleratedMatchesCPU(t *testing.T) {
	testCases := []struct {
		name string
		tr   Transform
	}{
		{name: "resize down", tr: Resize{Width: 23, Height: 11}},
		{name: "resize up", tr: Resize{Width: 70, Height: 45}},
		{name: "warp polar", tr: WarpPolar{Width: 33, Height: 33}},
		{name: "warp polar wrap", tr: WarpPolar{AngularEdge: resample.EdgeWrap}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := noisy[uint8](t, 37, 29, 3, 6)

			cpu, err := Run(src, tc.tr, schedule.TargetCPU, nil)
			require.NoError(t, err)

			acc := &fakeAccelerator{max: 256}
			caps, _ := fakeCaps(acc)
			dev, err := Run(src, tc.tr, schedule.TargetAccelerated, caps)
			require.NoError(t, err)
			assert.Equal(t, 1, acc.released, "Run releases the program")

			diff, err := images.AbsDiff(cpu, dev)
			require.NoError(t, err)
			assert.LessOrEqual(t, diff.Max, 1.0)
		})
	}
}

func TestFallbackWhenDeviceDisappears(t *testing.T) {
	acc := &fakeAccelerator{max: 256, compileErr: errors.Wrap(schedule.ErrNoAccelerator, "device lost")}
	caps, _ := fakeCaps(acc)

	var logs bytes.Buffer
	src := noisy[uint8](t, 12, 12, 1, 7)
	p, err := New[uint8](src.Descriptor(), Resize{Width: 6, Height: 6},
		WithDebug(true), WithLogger(log.New(&logs, "", 0)))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Schedule(schedule.TargetAccelerated, caps))
	assert.Equal(t, schedule.TargetCPU, p.Plan().Target())
	assert.True(t, p.Plan().Fallback(), "a lost device reports a fallback plan")
	assert.Contains(t, logs.String(), "[DEBUG]")
	assert.Contains(t, logs.String(), "falling back to cpu")

	out, err := images.NewBufferFor[uint8](p.OutputDescriptor())
	require.NoError(t, err)
	require.NoError(t, p.Apply(src, out))
	assert.Equal(t, reference(t, src, Resize{Width: 6, Height: 6}, 0).Pix, out.Pix)
}

func TestFallbackWithoutAccelerator(t *testing.T) {
	src := noisy[uint8](t, 12, 12, 1, 8)
	p, err := New[uint8](src.Descriptor(), Resize{Width: 5, Height: 5})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Schedule(schedule.TargetAccelerated, schedule.HostOnly()))
	assert.Equal(t, schedule.TargetCPU, p.Plan().Target())
	assert.True(t, p.Plan().Fallback())
}

func TestCompileFailureIsSticky(t *testing.T) {
	acc := &fakeAccelerator{max: 256, compileErr: errors.New("shader rejected")}
	caps, _ := fakeCaps(acc)

	src := noisy[uint8](t, 8, 8, 1, 9)
	p, err := New[uint8](src.Descriptor(), Resize{Width: 4, Height: 4})
	require.NoError(t, err)
	defer p.Close()

	err = p.Schedule(schedule.TargetAccelerated, caps)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrCompile))

	again := p.Schedule(schedule.TargetCPU, nil)
	assert.Equal(t, err, again)
	assert.Equal(t, 1, acc.compiles)

	out, err := images.NewBufferFor[uint8](p.OutputDescriptor())
	require.NoError(t, err)
	err = p.Apply(src, out)
	assert.True(t, errors.Is(err, ErrFailed))
	assert.Equal(t, make([]uint8, 16), out.Pix, "output untouched")
}

func TestScheduleRejectsOversizedWorkgroup(t *testing.T) {
	acc := &fakeAccelerator{max: 64}
	caps, _ := fakeCaps(acc)
	src := noisy[uint8](t, 8, 8, 1, 10)

	_, err := Run(src, Resize{Width: 4, Height: 4}, schedule.TargetAccelerated, caps)
	assert.True(t, errors.Is(err, schedule.ErrCompile))

	out, err := Run(src, Resize{Width: 4, Height: 4}, schedule.TargetAccelerated, caps,
		WithRequest(schedule.Request{DeviceTileWidth: 8, DeviceTileHeight: 8}))
	require.NoError(t, err)
	assert.Equal(t, reference(t, src, Resize{Width: 4, Height: 4}, 0).Pix, out.Pix)
}

func TestApplyRejectsBadBuffers(t *testing.T) {
	src := noisy[uint8](t, 4, 4, 1, 11)
	p, err := New[uint8](src.Descriptor(), Resize{Width: 2, Height: 2})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Schedule(schedule.TargetCPU, nil))

	out, err := images.NewBufferFor[uint8](p.OutputDescriptor())
	require.NoError(t, err)

	testCases := []struct {
		name   string
		input  *images.Buffer[uint8]
		output *images.Buffer[uint8]
		want   error
	}{
		{
			name:   "padded input rows",
			input:  images.Wrap(make([]uint8, 24), 4, 4, 1, 6),
			output: out,
			want:   images.ErrNotContiguous,
		},
		{
			name:   "short input",
			input:  images.Wrap(make([]uint8, 10), 4, 4, 1, 4),
			output: out,
			want:   images.ErrNotContiguous,
		},
		{
			name:   "input of another size",
			input:  noisy[uint8](t, 5, 4, 1, 12),
			output: out,
			want:   ErrShape,
		},
		{
			name:   "output of another size",
			input:  src,
			output: noisy[uint8](t, 3, 2, 1, 13),
			want:   ErrShape,
		},
		{
			name:   "output stride too small",
			input:  src,
			output: images.Wrap(make([]uint8, 4), 2, 2, 1, 1),
			want:   ErrShape,
		},
		{
			name:   "nil output",
			input:  src,
			output: nil,
			want:   ErrShape,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Apply(tc.input, tc.output)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestApplyWritesPaddedOutput(t *testing.T) {
	src := noisy[uint8](t, 8, 8, 3, 14)
	p, err := New[uint8](src.Descriptor(), Resize{Width: 4, Height: 3})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Schedule(schedule.TargetCPU, nil))

	// Four pixels of three samples plus two padding samples per row.
	out := images.Wrap(make([]uint8, 14*3), 4, 3, 3, 14)
	for i := range out.Pix {
		out.Pix[i] = 0xAA
	}
	require.NoError(t, p.Apply(src, out))

	want := reference(t, src, Resize{Width: 4, Height: 3}, 0)
	assert.Equal(t, want.Pix, out.Clone().Pix)
	for y := 0; y < 3; y++ {
		assert.Equal(t, []uint8{0xAA, 0xAA}, out.Pix[y*14+12:y*14+14], "padding of row %d", y)
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	testCases := []struct {
		name  string
		input images.Descriptor
		want  error
	}{
		{name: "two channels", input: images.Descriptor{Width: 4, Height: 4, Channels: 2}, want: images.ErrUnsupportedChannels},
		{name: "four channels", input: images.Descriptor{Width: 4, Height: 4, Channels: 4}, want: images.ErrUnsupportedChannels},
		{name: "zero width", input: images.Descriptor{Width: 0, Height: 4, Channels: 1}, want: images.ErrDimensions},
		{name: "wrong element type", input: images.Descriptor{Width: 4, Height: 4, Channels: 1, Type: images.Float32}, want: images.ErrElementType},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New[uint8](tc.input, Resize{Width: 2, Height: 2})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	_, err := New[uint8](images.Descriptor{Width: 4, Height: 4, Channels: 1}, nil)
	assert.Error(t, err)
}

func TestTileSizesNeedNotDivideOutput(t *testing.T) {
	src := noisy[uint8](t, 50, 41, 3, 15)
	tr := Resize{Width: 37, Height: 21}
	want := reference(t, src, tr, 0)

	testCases := []struct {
		name string
		req  schedule.Request
	}{
		{name: "8x8 tiles of 4 lanes", req: schedule.Request{TileWidth: 8, TileHeight: 8, Lanes: 4}},
		{name: "tile wider than output", req: schedule.Request{TileWidth: 64, TileHeight: 5, Lanes: 16}},
		{name: "single worker", req: schedule.Request{TileWidth: 16, TileHeight: 3, Lanes: 8, Workers: 1}},
		{name: "scalar lanes", req: schedule.Request{TileWidth: 5, TileHeight: 7, Lanes: 1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, precompute := range []bool{true, false} {
				out, err := Run(src, tr, schedule.TargetCPU, nil, WithRequest(tc.req), WithPrecompute(precompute))
				require.NoError(t, err)
				assert.Equal(t, want.Pix, out.Pix, "precompute=%t", precompute)
			}
		})
	}
}

func TestPrecomputeOff(t *testing.T) {
	src := noisy[uint8](t, 16, 16, 1, 16)
	p, err := New[uint8](src.Descriptor(), WarpPolar{}, WithPrecompute(false))
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Schedule(schedule.TargetCPU, nil))
	assert.Nil(t, p.Coordinates())

	out, err := images.NewBufferFor[uint8](p.OutputDescriptor())
	require.NoError(t, err)
	require.NoError(t, p.Apply(src, out))
	assert.Equal(t, reference(t, src, WarpPolar{}, 0).Pix, out.Pix)
}

func TestScheduleWithSharedPlan(t *testing.T) {
	a := noisy[uint8](t, 30, 20, 3, 17)
	b := noisy[uint8](t, 60, 40, 3, 18)
	tr := Resize{Width: 15, Height: 10}

	pa, err := New[uint8](a.Descriptor(), tr)
	require.NoError(t, err)
	defer pa.Close()
	pb, err := New[uint8](b.Descriptor(), tr)
	require.NoError(t, err)
	defer pb.Close()

	plan, err := schedule.Compile(pa.Request(schedule.TargetCPU), schedule.HostOnly())
	require.NoError(t, err)
	require.NoError(t, pa.ScheduleWith(plan))
	require.NoError(t, pb.ScheduleWith(plan))
	assert.Same(t, pa.Plan(), pb.Plan())

	for _, pair := range []struct {
		p   *Pipeline[uint8]
		src *images.Buffer[uint8]
	}{{pa, a}, {pb, b}} {
		out, err := images.NewBufferFor[uint8](pair.p.OutputDescriptor())
		require.NoError(t, err)
		require.NoError(t, pair.p.Apply(pair.src, out))
		assert.Equal(t, reference(t, pair.src, tr, 0).Pix, out.Pix)
	}

	other, err := New[uint8](a.Descriptor(), Resize{Width: 8, Height: 8})
	require.NoError(t, err)
	defer other.Close()
	assert.True(t, errors.Is(other.ScheduleWith(plan), schedule.ErrCompile))

	nilPlan, err := New[uint8](a.Descriptor(), tr)
	require.NoError(t, err)
	defer nilPlan.Close()
	assert.True(t, errors.Is(nilPlan.ScheduleWith(nil), schedule.ErrCompile))
}

func TestClose(t *testing.T) {
	acc := &fakeAccelerator{max: 256}
	caps, _ := fakeCaps(acc)
	src := noisy[uint8](t, 8, 8, 1, 19)

	p, err := New[uint8](src.Descriptor(), Resize{Width: 4, Height: 4})
	require.NoError(t, err)
	require.NoError(t, p.Schedule(schedule.TargetAccelerated, caps))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, acc.released)

	out, err := images.NewBufferFor[uint8](p.OutputDescriptor())
	require.NoError(t, err)
	assert.True(t, errors.Is(p.Apply(src, out), ErrClosed))
	assert.True(t, errors.Is(p.Schedule(schedule.TargetCPU, nil), ErrClosed))
}

func TestConcurrentApply(t *testing.T) {
	src := noisy[uint8](t, 64, 48, 3, 20)
	tr := WarpPolar{Width: 40, Height: 40, AngularEdge: resample.EdgeWrap}
	want := reference(t, src, tr, 0)

	p, err := New[uint8](src.Descriptor(), tr)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Schedule(schedule.TargetCPU, nil))

	const callers = 8
	outs := make([]*images.Buffer[uint8], callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		outs[i], err = images.NewBufferFor[uint8](p.OutputDescriptor())
		require.NoError(t, err)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.Apply(src, outs[i])
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, want.Pix, outs[i].Pix, "caller %d", i)
	}
}

func TestElementTypes(t *testing.T) {
	t.Run("uint16", func(t *testing.T) {
		src, err := images.NewBuffer[uint16](2, 1, 1)
		require.NoError(t, err)
		src.Pix[0], src.Pix[1] = 1000, 2001

		out, err := Run(src, Resize{Width: 1, Height: 1}, schedule.TargetCPU, nil)
		require.NoError(t, err)
		assert.Equal(t, uint16(1501), out.Pix[0])
	})

	t.Run("float32", func(t *testing.T) {
		src, err := images.NewBuffer[float32](2, 1, 1)
		require.NoError(t, err)
		src.Pix[0], src.Pix[1] = 0.25, 0.5

		out, err := Run(src, Resize{Width: 1, Height: 1}, schedule.TargetCPU, nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.375, out.Pix[0], 1e-6)
	})
}

func TestRequestMergesTransformDefaults(t *testing.T) {
	src := noisy[uint8](t, 30, 30, 3, 21)

	p, err := New[uint8](src.Descriptor(), WarpPolar{}, WithRequest(schedule.Request{Lanes: 4}))
	require.NoError(t, err)
	defer p.Close()

	req := p.Request(schedule.TargetAuto)
	assert.Equal(t, schedule.TargetAuto, req.Target)
	assert.Equal(t, schedule.WarpTile, req.TileWidth)
	assert.Equal(t, schedule.WarpTile, req.TileHeight)
	assert.Equal(t, 4, req.Lanes)
	assert.Equal(t, 3, req.Channels)
	assert.Equal(t, 30, req.Width)
	assert.Equal(t, 30, req.Height)
}
