package port

import "image"

// FrameEncoder encodes a decoded frame into an opaque still-image payload.
type FrameEncoder interface {
	Encode(img image.Image) ([]byte, error)
	// Ext returns the filename extension for the encoded format, without dot.
	Ext() string
}
