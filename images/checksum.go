package images

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math"
)

// Checksum returns a hex MD5 digest of the raster samples, ignoring row padding.
// Equal rasters give equal digests regardless of stride.
//
// Example:
//
//	if images.Checksum(out) != images.Checksum(previous) {
//	    log.Printf("output changed")
//	}
func Checksum[T Element](b *Buffer[T]) string {
	if b == nil || b.Width <= 0 || b.Height <= 0 {
		return "empty"
	}
	typ := TypeOf[T]()
	hash := md5.New()
	scratch := make([]byte, 0, b.Width*b.Channels*4)
	for y := 0; y < b.Height; y++ {
		scratch = scratch[:0]
		for _, v := range b.Row(y) {
			switch typ {
			case Uint8:
				scratch = append(scratch, uint8(v))
			case Uint16:
				scratch = binary.LittleEndian.AppendUint16(scratch, uint16(v))
			default:
				scratch = binary.LittleEndian.AppendUint32(scratch, math.Float32bits(float32(v)))
			}
		}
		hash.Write(scratch)
	}
	return fmt.Sprintf("%x", hash.Sum(nil))
}
