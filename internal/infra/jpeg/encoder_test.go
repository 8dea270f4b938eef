package jpeg

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeProducesJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}

	enc := NewEncoder(90)
	data, err := enc.Encode(img)
	require.NoError(t, err)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2], "JPEG SOI marker")
	assert.Equal(t, "jpeg", enc.Ext())
}

func TestEncodeNilFrame(t *testing.T) {
	enc := NewEncoder(90)
	_, err := enc.Encode(nil)
	assert.Error(t, err)
}

func TestNewEncoderQualityFallback(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for _, q := range []int{-5, 0, 101} {
		enc := NewEncoder(q)
		_, err := enc.Encode(img)
		assert.NoError(t, err)
	}
}
