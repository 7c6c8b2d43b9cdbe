package resample

import (
	"fmt"

	"github.com/pkg/errors"
)

// EdgeMode defines how integer sample indices outside the source are resolved.
//   - EdgeClamp: repeats edge pixels.
//   - EdgeMirror: reflects indices without duplicating the edge.
//   - EdgeWrap: tiles the source, for periodic axes such as angle.
type EdgeMode int

const (
	EdgeClamp EdgeMode = iota
	EdgeMirror
	EdgeWrap
)

// String implements fmt.Stringer.
func (m EdgeMode) String() string {
	switch m {
	case EdgeClamp:
		return "clamp"
	case EdgeMirror:
		return "mirror"
	case EdgeWrap:
		return "wrap"
	default:
		return fmt.Sprintf("EdgeMode(%d)", int(m))
	}
}

// ParseEdgeMode converts a name as printed by String back into an EdgeMode. The
// empty string is EdgeClamp.
func ParseEdgeMode(s string) (EdgeMode, error) {
	switch s {
	case "", "clamp":
		return EdgeClamp, nil
	case "mirror":
		return EdgeMirror, nil
	case "wrap":
		return EdgeWrap, nil
	}
	return EdgeClamp, errors.Errorf("unknown edge mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m EdgeMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *EdgeMode) UnmarshalText(text []byte) error {
	v, err := ParseEdgeMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Policy selects an edge mode per axis. The zero value clamps both axes.
type Policy struct {
	X EdgeMode
	Y EdgeMode
}

// neighbours returns the two integer indices surrounding floor value i0 on an axis
// of length n. Under EdgeClamp the second index is derived from the clamped first
// one, so a coordinate far left of the raster still blends columns 0 and 1.
func neighbours(i0, n int, mode EdgeMode) (int, int) {
	switch mode {
	case EdgeWrap:
		return wrap(i0, n), wrap(i0+1, n)
	case EdgeMirror:
		return mirror(i0, n), mirror(i0+1, n)
	default:
		a := clamp(i0, n)
		return a, clamp(a+1, n)
	}
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

func mirror(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}
