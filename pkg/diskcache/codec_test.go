package diskcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray-d-song/bookimg/internal/testutil"
)

func TestDecodeBitmapRejectsCorruption(t *testing.T) {
	data := encodeBitmap(testutil.Pattern(12, 9, 4))

	_, err := decodeBitmap(data)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"empty", func(b []byte) []byte { return nil }},
		{"short header", func(b []byte) []byte { return b[:8] }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"zero width", func(b []byte) []byte { b[4], b[5], b[6], b[7] = 0, 0, 0, 0; return b }},
		{"wrong height", func(b []byte) []byte { b[11]++; return b }},
		{"bad checksum", func(b []byte) []byte { b[15]++; return b }},
		{"truncated body", func(b []byte) []byte { return b[:len(b)-3] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt := tt.mutate(append([]byte(nil), data...))
			_, err := decodeBitmap(corrupt)
			assert.ErrorIs(t, err, errCorruptBitmap)
		})
	}
}
