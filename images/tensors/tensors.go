// Package tensors adapts image buffers to gorgonia dense tensors in HWC layout.
package tensors

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-resample/images"
)

// Dtype returns the tensor dtype matching element type T.
func Dtype[T images.Element]() tensor.Dtype {
	switch images.TypeOf[T]() {
	case images.Uint8:
		return tensor.Uint8
	case images.Uint16:
		return tensor.Uint16
	default:
		return tensor.Float32
	}
}

// FromTensor views a dense (H, W) or (H, W, C) tensor as a buffer without copying.
//
// Arguments:
//   - t: A row-major tensor that is not a view and whose dtype matches T.
//
// Returns:
//   - *images.Buffer[T]: A buffer sharing t's backing array.
//   - error: ErrNotContiguous for views or column-major tensors, ErrElementType for
//     a dtype mismatch, ErrUnsupportedChannels or ErrDimensions for bad shapes.
func FromTensor[T images.Element](t *tensor.Dense) (*images.Buffer[T], error) {
	if t == nil {
		return nil, errors.Wrap(images.ErrDimensions, "nil tensor")
	}
	if t.IsView() || t.DataOrder().IsNotContiguous() || t.DataOrder().IsColMajor() {
		return nil, errors.Wrapf(images.ErrNotContiguous, "tensor %v", t.Shape())
	}
	if t.Dtype() != Dtype[T]() {
		return nil, errors.Wrapf(images.ErrElementType, "tensor holds %v, want %v", t.Dtype(), Dtype[T]())
	}

	shape := t.Shape()
	var h, w, c int
	switch len(shape) {
	case 2:
		h, w, c = shape[0], shape[1], 1
	case 3:
		h, w, c = shape[0], shape[1], shape[2]
	default:
		return nil, errors.Wrapf(images.ErrDimensions, "tensor shape %v: want (H, W) or (H, W, C)", shape)
	}

	pix, ok := t.Data().([]T)
	if !ok {
		return nil, errors.Wrapf(images.ErrElementType, "tensor backing %T", t.Data())
	}
	b := images.Wrap(pix, w, h, c, w*c)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// ToTensor views a contiguous buffer as an (H, W) or (H, W, C) tensor without
// copying.
func ToTensor[T images.Element](b *images.Buffer[T]) (*tensor.Dense, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	n := b.Width * b.Height * b.Channels
	shape := []int{b.Height, b.Width}
	if b.Channels > 1 {
		shape = append(shape, b.Channels)
	}
	return tensor.New(
		tensor.WithShape(shape...),
		tensor.Of(Dtype[T]()),
		tensor.WithBacking(b.Pix[:n]),
	), nil
}
