package port

import (
	"context"
	"image"
)

// MediaSource is a seekable video-decoding surface. It has exactly one
// decode position at a time; callers must serialize repositioning.
type MediaSource interface {
	// Position returns the current playback position in seconds.
	Position() float64

	// Seek repositions the surface to t seconds and blocks until the
	// corresponding frame is decoded and ready to read (the settle).
	// Seeking is best-effort and may snap to the nearest decodable frame.
	Seek(ctx context.Context, t float64) error

	// Grab returns the frame decoded by the last settled Seek, at the
	// surface's natural dimensions.
	Grab(ctx context.Context) (image.Image, error)

	// Duration returns the media's total duration in seconds.
	Duration() float64

	// Bounds returns the natural pixel width and height.
	Bounds() (width, height int)

	// Paused reports whether the surface has no running playback clock.
	Paused() bool
}

// SurfaceOpener creates a MediaSource for a local video file, probing its
// duration and natural dimensions.
type SurfaceOpener interface {
	Open(ctx context.Context, path string) (MediaSource, error)
}
