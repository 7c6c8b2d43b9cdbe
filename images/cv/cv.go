// Package cv adapts gocv (OpenCV) matrices to resampling buffers and provides the
// OpenCV reference resize used to validate results. Colour buffers keep OpenCV's
// BGR channel order.
package cv

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-resample/images"
)

// ErrLoad is returned when an image file cannot be read or written.
var ErrLoad = errors.New("image i/o failed")

// FromMat copies an 8-bit, one- or three-channel Mat into a new buffer.
//
// Arguments:
//   - mat: The source matrix. It must be continuous.
//
// Returns:
//   - *images.Buffer[uint8]: The copied buffer.
//   - error: images.ErrNotContiguous for non-continuous matrices,
//     images.ErrElementType for depths other than 8U, images.ErrUnsupportedChannels.
func FromMat(mat gocv.Mat) (*images.Buffer[uint8], error) {
	if mat.Empty() {
		return nil, errors.Wrap(images.ErrDimensions, "empty mat")
	}
	if !mat.IsContinuous() {
		return nil, errors.Wrap(images.ErrNotContiguous, "mat")
	}
	var channels int
	switch mat.Type() {
	case gocv.MatTypeCV8UC1:
		channels = 1
	case gocv.MatTypeCV8UC3:
		channels = 3
	default:
		if c := mat.Channels(); c != 1 && c != 3 {
			return nil, images.ValidateChannels(c)
		}
		return nil, errors.Wrapf(images.ErrElementType, "mat type %v", mat.Type())
	}

	b, err := images.NewBuffer[uint8](mat.Cols(), mat.Rows(), channels)
	if err != nil {
		return nil, err
	}
	copy(b.Pix, mat.ToBytes())
	return b, nil
}

// ToMat copies a buffer into a new Mat. The caller must Close the result.
func ToMat(b *images.Buffer[uint8]) (gocv.Mat, error) {
	if err := b.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	typ := gocv.MatTypeCV8UC1
	if b.Channels == 3 {
		typ = gocv.MatTypeCV8UC3
	}
	n := b.Width * b.Height * b.Channels
	data := make([]byte, n)
	copy(data, b.Pix[:n])
	mat, err := gocv.NewMatFromBytes(b.Height, b.Width, typ, data)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "create mat")
	}
	return mat, nil
}

// Load reads an image file as a one- (greyscale) or three-channel (BGR) buffer.
func Load(path string, channels int) (*images.Buffer[uint8], error) {
	if err := images.ValidateChannels(channels); err != nil {
		return nil, err
	}
	flag := gocv.IMReadColor
	if channels == 1 {
		flag = gocv.IMReadGrayScale
	}
	mat := gocv.IMRead(path, flag)
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.Wrapf(ErrLoad, "read %s", path)
	}
	return FromMat(mat)
}

// Save writes a buffer to path; the format follows the file extension.
func Save(path string, b *images.Buffer[uint8]) error {
	mat, err := ToMat(b)
	if err != nil {
		return err
	}
	defer mat.Close()
	if !gocv.IMWrite(path, mat) {
		return errors.Wrapf(ErrLoad, "write %s", path)
	}
	return nil
}

// ReferenceResize resizes b with OpenCV's INTER_LINEAR, the behaviour the
// pipeline's Resize transform reproduces.
func ReferenceResize(b *images.Buffer[uint8], width, height int) (*images.Buffer[uint8], error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(images.ErrDimensions, "%dx%d", width, height)
	}
	src, err := ToMat(b)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationLinear)
	return FromMat(dst)
}

// Rotate90 rotates b by 90 degrees clockwise, turning the angle-by-row layout of a
// polar image into the conventional orientation.
func Rotate90(b *images.Buffer[uint8]) (*images.Buffer[uint8], error) {
	src, err := ToMat(b)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Rotate(src, &dst, gocv.Rotate90Clockwise)
	return FromMat(dst)
}
