package images

import (
	"image"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// FromImage converts any image.Image into a contiguous 8-bit buffer with one
// (grey) or three (RGB) channels. The source is first normalised with draw.Draw,
// so every image.Image implementation and colour model is accepted.
//
// Arguments:
//   - img: The source image.
//   - channels: 1 for greyscale, 3 for RGB.
//
// Returns:
//   - *Buffer[uint8]: The converted buffer.
//   - error: ErrUnsupportedChannels or ErrDimensions.
func FromImage(img image.Image, channels int) (*Buffer[uint8], error) {
	if img == nil {
		return nil, errors.Wrap(ErrDimensions, "nil image")
	}
	if err := ValidateChannels(channels); err != nil {
		return nil, err
	}
	b := img.Bounds()
	out, err := NewBuffer[uint8](b.Dx(), b.Dy(), channels)
	if err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, b.Dx(), b.Dy())

	if channels == 1 {
		gray, ok := img.(*image.Gray)
		if !ok || gray.Rect.Min != (image.Point{}) {
			gray = image.NewGray(rect)
			draw.Draw(gray, rect, img, b.Min, draw.Src)
		}
		for y := 0; y < out.Height; y++ {
			copy(out.Row(y), gray.Pix[y*gray.Stride:y*gray.Stride+out.Width])
		}
		return out, nil
	}

	rgba := image.NewNRGBA(rect)
	draw.Draw(rgba, rect, img, b.Min, draw.Src)
	for y := 0; y < out.Height; y++ {
		src := rgba.Pix[y*rgba.Stride:]
		dst := out.Row(y)
		for x := 0; x < out.Width; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return out, nil
}

// ToImage converts a buffer into an image.Image: *image.Gray or *image.NRGBA for
// 8-bit and float samples, *image.Gray16 or *image.NRGBA64 for 16-bit samples.
// Float samples are rounded and saturated to [0, 255].
func ToImage[T Element](b *Buffer[T]) (image.Image, error) {
	if err := b.Descriptor().Validate(); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, b.Width, b.Height)
	wide := TypeOf[T]() == Uint16

	switch {
	case b.Channels == 1 && wide:
		img := image.NewGray16(rect)
		for y := 0; y < b.Height; y++ {
			row := b.Row(y)
			for x, v := range row {
				i := y*img.Stride + x*2
				img.Pix[i] = uint8(uint16(v) >> 8)
				img.Pix[i+1] = uint8(uint16(v))
			}
		}
		return img, nil
	case b.Channels == 1:
		img := image.NewGray(rect)
		for y := 0; y < b.Height; y++ {
			row := b.Row(y)
			for x, v := range row {
				img.Pix[y*img.Stride+x] = FromFloat[uint8](float32(v))
			}
		}
		return img, nil
	case wide:
		img := image.NewNRGBA64(rect)
		for y := 0; y < b.Height; y++ {
			row := b.Row(y)
			for x := 0; x < b.Width; x++ {
				i := y*img.Stride + x*8
				for c := 0; c < 3; c++ {
					v := uint16(row[x*3+c])
					img.Pix[i+c*2] = uint8(v >> 8)
					img.Pix[i+c*2+1] = uint8(v)
				}
				img.Pix[i+6], img.Pix[i+7] = 0xff, 0xff
			}
		}
		return img, nil
	default:
		img := image.NewNRGBA(rect)
		for y := 0; y < b.Height; y++ {
			row := b.Row(y)
			for x := 0; x < b.Width; x++ {
				i := y*img.Stride + x*4
				img.Pix[i] = FromFloat[uint8](float32(row[x*3]))
				img.Pix[i+1] = FromFloat[uint8](float32(row[x*3+1]))
				img.Pix[i+2] = FromFloat[uint8](float32(row[x*3+2]))
				img.Pix[i+3] = 0xff
			}
		}
		return img, nil
	}
}
