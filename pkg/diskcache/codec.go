package diskcache

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"

	"github.com/golang/snappy"
)

var bitmapMagic = [4]byte{'B', 'I', 'M', 'G'}

const (
	bitmapHeaderSize = 16
	maxBitmapSide    = 1 << 15
)

var errCorruptBitmap = errors.New("corrupt bitmap record")

// encodeBitmap serialises an NRGBA image as a 16 byte header (magic, width, height,
// CRC-32 of the pixels) followed by the snappy-compressed tightly packed pixels.
func encodeBitmap(img *image.NRGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	pix := packPixels(img)

	out := make([]byte, bitmapHeaderSize, bitmapHeaderSize+snappy.MaxEncodedLen(len(pix)))
	copy(out[0:4], bitmapMagic[:])
	binary.BigEndian.PutUint32(out[4:8], uint32(w))
	binary.BigEndian.PutUint32(out[8:12], uint32(h))
	binary.BigEndian.PutUint32(out[12:16], crc32.ChecksumIEEE(pix))

	return append(out, snappy.Encode(nil, pix)...)
}

func decodeBitmap(data []byte) (*image.NRGBA, error) {
	if len(data) < bitmapHeaderSize || [4]byte(data[0:4]) != bitmapMagic {
		return nil, errCorruptBitmap
	}

	w := int(binary.BigEndian.Uint32(data[4:8]))
	h := int(binary.BigEndian.Uint32(data[8:12]))
	sum := binary.BigEndian.Uint32(data[12:16])
	if w <= 0 || h <= 0 || w > maxBitmapSide || h > maxBitmapSide {
		return nil, errCorruptBitmap
	}

	n, err := snappy.DecodedLen(data[bitmapHeaderSize:])
	if err != nil || n != 4*w*h {
		return nil, errCorruptBitmap
	}

	pix, err := snappy.Decode(make([]byte, n), data[bitmapHeaderSize:])
	if err != nil || len(pix) != 4*w*h || crc32.ChecksumIEEE(pix) != sum {
		return nil, errCorruptBitmap
	}

	return &image.NRGBA{
		Pix:    pix,
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}, nil
}

// packPixels returns the image's pixels without row padding
func packPixels(img *image.NRGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	rowLen := 4 * w
	if img.Stride == rowLen && img.Rect.Min == (image.Point{}) {
		return img.Pix[:rowLen*h]
	}

	pix := make([]byte, rowLen*h)
	for y := 0; y < h; y++ {
		start := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(pix[y*rowLen:(y+1)*rowLen], img.Pix[start:start+rowLen])
	}
	return pix
}
