// Package vips runs libvips thumbnailing as a third reference resizer. libvips
// picks its own reduction kernel, so results are compared with a looser
// tolerance than the bilinear references.
package vips

import (
	"bytes"
	"image/png"

	"github.com/cshum/vipsgen/vips"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-resample/images"
)

// ErrVips is returned when libvips fails to load, resize or encode an image.
var ErrVips = errors.New("libvips failed")

// Thumbnail resizes encoded image data to width x height and returns it as PNG.
//
// Arguments:
//   - data: PNG, JPEG or WebP bytes.
//   - width: The target width.
//   - height: The target height. libvips keeps the aspect ratio, so the result
//     can be smaller on one axis.
//
// Returns:
//   - []byte: The PNG-encoded result.
//   - error: images.ErrDimensions or ErrVips.
func Thumbnail(data []byte, width, height int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(images.ErrDimensions, "empty image data")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(images.ErrDimensions, "%dx%d", width, height)
	}

	img, err := vips.NewImageFromBuffer(data, &vips.LoadOptions{
		Access: vips.AccessSequential,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrVips, "load: %v", err)
	}
	defer img.Close()

	err = img.ThumbnailImage(width, &vips.ThumbnailImageOptions{
		Height: height,
		FailOn: vips.FailOnError,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrVips, "thumbnail: %v", err)
	}

	out, err := img.PngsaveBuffer(&vips.PngsaveBufferOptions{})
	if err != nil || len(out) == 0 {
		return nil, errors.Wrapf(ErrVips, "encode: %v", err)
	}
	return out, nil
}

// ReferenceResize resizes b with libvips.
func ReferenceResize(b *images.Buffer[uint8], width, height int) (*images.Buffer[uint8], error) {
	img, err := images.ToImage(b)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := images.Encode(&buf, img, images.FormatPNG); err != nil {
		return nil, err
	}
	data, err := Thumbnail(buf.Bytes(), width, height)
	if err != nil {
		return nil, err
	}
	resized, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrVips, "decode: %v", err)
	}
	return images.FromImage(resized, b.Channels)
}
