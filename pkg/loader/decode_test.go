package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray-d-song/bookimg/internal/testutil"
)

func TestSampleFactor(t *testing.T) {
	tests := []struct {
		w, h, max int
		want      int
	}{
		{100, 100, 2048, 1},
		{2048, 2048, 2048, 1},
		{2049, 100, 2048, 2},
		{100, 5000, 2048, 4},
		{8192, 8192, 2048, 4},
		{8193, 10, 2048, 8},
		{9000, 9000, 0, 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SampleFactor(tt.w, tt.h, tt.max), "%dx%d max %d", tt.w, tt.h, tt.max)
	}
}

func TestDecode(t *testing.T) {
	img, err := Decode(testutil.PNG(t, 40, 30, 5), 2048, DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(t, testutil.Pattern(40, 30, 5).Pix, img.Pix)

	img, err = Decode(testutil.JPEG(t, 300, 100, 5), 128, DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(t, 75, img.Rect.Dx())
	assert.Equal(t, 25, img.Rect.Dy())
}

func TestDecodeFailures(t *testing.T) {
	_, err := Decode(nil, 2048, DefaultMaxPixels)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Decode([]byte("<svg/>"), 2048, DefaultMaxPixels)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Decode(testutil.PNG(t, 20, 20, 0), 2048, 100)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodePixelLimitAppliesBeforeDownsampling(t *testing.T) {
	data := testutil.PNG(t, 40, 10, 3)

	_, err := Decode(data, 8, 399)
	assert.ErrorIs(t, err, ErrDecode, "limit counts source pixels, not the downsampled result")

	img, err := Decode(data, 8, 400)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, 1, img.Bounds().Dy())
}
