package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ErrFormat is returned for unsupported or undecodable image formats.
var ErrFormat = errors.New("unsupported image format")

// ImageFormat is an encoded image format.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (ImageFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".png":
		return FormatPNG, nil
	case ".webp":
		return FormatWebP, nil
	}
	return "", errors.Wrapf(ErrFormat, "extension of %q", path)
}

// Decode decodes PNG, JPEG or WebP data. WebP is recognised by its RIFF header;
// everything else goes through the image package registry.
func Decode(data []byte) (image.Image, ImageFormat, error) {
	if len(data) == 0 {
		return nil, "", errors.Wrap(ErrFormat, "empty image data")
	}
	if len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", errors.Wrapf(ErrFormat, "decode webp: %v", err)
		}
		return img, FormatWebP, nil
	}
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrapf(ErrFormat, "decode: %v", err)
	}
	return img, ImageFormat(name), nil
}

// Encode writes img in format f. WebP output is lossless so resampled samples
// survive the round trip.
func Encode(w io.Writer, img image.Image, f ImageFormat) error {
	var err error
	switch f {
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatWebP:
		err = webp.Encode(w, img, &webp.Options{Lossless: true})
	default:
		return errors.Wrapf(ErrFormat, "%q", f)
	}
	return errors.Wrapf(err, "encode %s", f)
}

// ReadFile decodes an image file into a one- or three-channel buffer.
func ReadFile(path string, channels int) (*Buffer[uint8], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return FromImage(img, channels)
}

// WriteFile encodes b into path, choosing the format from the extension.
func WriteFile[T Element](path string, b *Buffer[T]) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	img, err := ToImage(b)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, img, f); err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, buf.Bytes(), 0o644), "write %s", path)
}
