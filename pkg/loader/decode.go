package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 2048
	DefaultMaxPixels    = 100_000_000
)

// ErrDecode indicates bytes were read but are not a decodable image
var ErrDecode = errors.New("image could not be decoded")

// SampleFactor returns the smallest power of two f such that both w/f and h/f are at
// most maxDimension. A non-positive maxDimension disables downsampling.
func SampleFactor(w, h, maxDimension int) int {
	factor := 1
	if maxDimension <= 0 {
		return factor
	}
	for w > maxDimension*factor || h > maxDimension*factor {
		factor *= 2
	}
	return factor
}

// Decode decodes jpeg, png, gif, webp or bmp data into an NRGBA image, honouring
// EXIF orientation and downsampling by SampleFactor. Images with more than
// maxPixels pixels are rejected before their pixels are decoded.
func Decode(data []byte, maxDimension, maxPixels int) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrDecode)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty %s image", ErrDecode, format)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %s image of %dx%d exceeds %d pixels", ErrDecode, format, cfg.Width, cfg.Height, maxPixels)
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	factor := SampleFactor(w, h, maxDimension)
	if factor == 1 {
		return imaging.Clone(src), nil
	}

	return imaging.Resize(src, max(1, w/factor), max(1, h/factor), imaging.Box), nil
}
