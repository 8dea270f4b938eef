// Package jpeg encodes captured frames as lossy JPEG stills.
package jpeg

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

type Encoder struct {
	quality int
}

// NewEncoder creates a JPEG encoder. Quality is on the 1-100 scale; values
// outside it fall back to 90 (0.9 on a unit scale).
func NewEncoder(quality int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = 90
	}
	return &Encoder{quality: quality}
}

func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("nil frame")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Encoder) Ext() string { return "jpeg" }
