package gpu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-resample/resample"
	"github.com/nvr-ai/go-resample/schedule"
)

// CoordStride is the number of float32 values per output pixel in the coordinate
// buffer: source X, source Y and the out-of-bound flag (0 or 1).
const CoordStride = 3

// GenerateShader returns the WGSL compute shader for k. Geometry, channel count,
// edge policy and fill value are compiled in as constants; the shader binds the
// source samples, the packed coordinate map and the destination samples.
func GenerateShader(k schedule.Kernel) string {
	return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> src : array<f32>;
@group(0) @binding(1) var<storage, read> coords : array<f32>;
@group(0) @binding(2) var<storage, read_write> dst : array<f32>;

const SRC_W : i32 = %d;
const SRC_H : i32 = %d;
const DST_W : u32 = %du;
const DST_H : u32 = %du;
const CH : i32 = %d;
const FILL : f32 = %s;
const BOUNDED : bool = %t;

fn mirror_index(i : i32, n : i32) -> i32 {
	if (n == 1) { return 0; }
	let p = 2 * n;
	var j = ((i %% p) + p) %% p;
	if (j >= n) { j = p - j - 1; }
	return j;
}

fn wrap_index(i : i32, n : i32) -> i32 {
	return ((i %% n) + n) %% n;
}

fn neighbours_x(i : i32) -> vec2<i32> {
%s
}

fn neighbours_y(i : i32) -> vec2<i32> {
%s
}

@compute @workgroup_size(%d, %d, 1)
fn main(@builtin(global_invocation_id) gid : vec3<u32>) {
	if (gid.x >= DST_W || gid.y >= DST_H) { return; }
	let p = gid.y * DST_W + gid.x;
	let o = p * u32(CH);
	let sx = coords[p * %du];
	let sy = coords[p * %du + 1u];
	if (BOUNDED && coords[p * %du + 2u] != 0.0) {
		for (var c : i32 = 0; c < CH; c = c + 1) {
			dst[o + u32(c)] = FILL;
		}
		return;
	}
	let fx = floor(sx);
	let fy = floor(sy);
	let xs = neighbours_x(i32(fx));
	let ys = neighbours_y(i32(fy));
	let xf = sx - fx;
	let yf = sy - fy;
	let r0 = ys.x * SRC_W;
	let r1 = ys.y * SRC_W;
	for (var c : i32 = 0; c < CH; c = c + 1) {
		let tl = src[(r0 + xs.x) * CH + c];
		let tr = src[(r0 + xs.y) * CH + c];
		let bl = src[(r1 + xs.x) * CH + c];
		let br = src[(r1 + xs.y) * CH + c];
		let top = tl + (tr - tl) * xf;
		let bottom = bl + (br - bl) * xf;
		dst[o + u32(c)] = top + (bottom - top) * yf;
	}
}
`,
		k.SrcWidth, k.SrcHeight, k.DstWidth, k.DstHeight, k.Channels,
		floatLiteral(k.Fill), k.Bounded,
		neighbourBody(k.Edge.X, "SRC_W"), neighbourBody(k.Edge.Y, "SRC_H"),
		k.TileWidth, k.TileHeight,
		CoordStride, CoordStride, CoordStride,
	)
}

func neighbourBody(mode resample.EdgeMode, n string) string {
	switch mode {
	case resample.EdgeWrap:
		return fmt.Sprintf("\treturn vec2<i32>(wrap_index(i, %[1]s), wrap_index(i + 1, %[1]s));", n)
	case resample.EdgeMirror:
		return fmt.Sprintf("\treturn vec2<i32>(mirror_index(i, %[1]s), mirror_index(i + 1, %[1]s));", n)
	default:
		return fmt.Sprintf("\tlet a = clamp(i, 0, %[1]s - 1);\n\treturn vec2<i32>(a, clamp(a + 1, 0, %[1]s - 1));", n)
	}
}

// floatLiteral formats v as a WGSL abstract float literal.
func floatLiteral(v float32) string {
	s := strconv.FormatFloat(float64(v), 'f', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// PackCoordinates interleaves a dense coordinate map into the layout the shader
// reads: CoordStride floats per output pixel.
func PackCoordinates(srcX, srcY []float32, oob []bool) []float32 {
	packed := make([]float32, len(srcX)*CoordStride)
	for i := range srcX {
		packed[i*CoordStride] = srcX[i]
		packed[i*CoordStride+1] = srcY[i]
		if oob[i] {
			packed[i*CoordStride+2] = 1
		}
	}
	return packed
}
