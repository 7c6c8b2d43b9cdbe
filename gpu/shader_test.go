package gpu

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-resample/resample"
	"github.com/nvr-ai/go-resample/schedule"
)

func testKernel() schedule.Kernel {
	return schedule.Kernel{
		SrcWidth:   64,
		SrcHeight:  360,
		DstWidth:   128,
		DstHeight:  96,
		Channels:   3,
		Bounded:    true,
		Fill:       0,
		Edge:       resample.Policy{X: resample.EdgeClamp, Y: resample.EdgeWrap},
		TileWidth:  16,
		TileHeight: 8,
	}
}

func TestGenerateShader(t *testing.T) {
	src := GenerateShader(testKernel())

	for _, want := range []string{
		"const SRC_W : i32 = 64;",
		"const SRC_H : i32 = 360;",
		"const DST_W : u32 = 128u;",
		"const DST_H : u32 = 96u;",
		"const CH : i32 = 3;",
		"const FILL : f32 = 0.0;",
		"const BOUNDED : bool = true;",
		"@workgroup_size(16, 8, 1)",
		"let sx = coords[p * 3u];",
		"return vec2<i32>(a, clamp(a + 1, 0, SRC_W - 1));",
		"return vec2<i32>(wrap_index(i, SRC_H), wrap_index(i + 1, SRC_H));",
		"((i % p) + p) % p",
	} {
		assert.Contains(t, src, want)
	}
	assert.NotContains(t, src, "%!")
}

func TestGenerateShaderMirror(t *testing.T) {
	k := testKernel()
	k.Edge = resample.Policy{X: resample.EdgeMirror, Y: resample.EdgeClamp}
	k.Bounded = false
	k.Fill = 12.5
	src := GenerateShader(k)

	assert.Contains(t, src, "mirror_index(i, SRC_W), mirror_index(i + 1, SRC_W)")
	assert.Contains(t, src, "clamp(a + 1, 0, SRC_H - 1)")
	assert.Contains(t, src, "const FILL : f32 = 12.5;")
	assert.Contains(t, src, "const BOUNDED : bool = false;")
}

func TestFloatLiteral(t *testing.T) {
	testCases := []struct {
		in   float32
		want string
	}{
		{0, "0.0"},
		{255, "255.0"},
		{0.25, "0.25"},
		{-3, "-3.0"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, floatLiteral(tc.in))
	}
}

func TestPackCoordinates(t *testing.T) {
	packed := PackCoordinates([]float32{1, 2}, []float32{3, 4}, []bool{false, true})
	assert.Equal(t, []float32{1, 3, 0, 2, 4, 1}, packed)
}

func TestDeviceCompileRejectsKernels(t *testing.T) {
	d := &Device{name: "test", maxInvocations: 64}

	k := testKernel()
	_, err := d.Compile(k)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrCompile))
	assert.True(t, strings.Contains(err.Error(), "coordinate map"))

	n := k.DstWidth * k.DstHeight
	k.SrcX, k.SrcY, k.OutOfBound = make([]float32, n), make([]float32, n), make([]bool, n)
	_, err = d.Compile(k)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrCompile))
	assert.True(t, strings.Contains(err.Error(), "invocations"))

	d.Close()
	_, err = d.Compile(k)
	assert.True(t, errors.Is(err, schedule.ErrNoAccelerator))
}

func TestSharedDevice(t *testing.T) {
	d, err := Shared()
	if err != nil {
		assert.True(t, errors.Is(err, schedule.ErrNoAccelerator))
		t.Skipf("no WebGPU adapter: %v", err)
	}
	assert.NotEmpty(t, d.Name())
	assert.Positive(t, d.MaxInvocations())
}
