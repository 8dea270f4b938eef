// Package capture implements the sequential frame-capture pipeline: a pure
// timestamp planner and a driver that walks a plan against a shared
// video-decoding surface, one in-flight seek at a time.
package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/framegrab/framegrab-capture-service/internal/domain/port"
	"go.uber.org/zap"
)

var (
	// ErrNotPaused is returned before any seeking when the surface still has
	// a running playback clock. Seeking a playing source produces
	// nondeterministic intermediate frames.
	ErrNotPaused = errors.New("capture: surface is not paused")

	// ErrRunInFlight is returned when a capture run is already walking the
	// same surface. The surface has one decode position; runs never overlap.
	ErrRunInFlight = errors.New("capture: run already in flight on this surface")

	// ErrEncode marks failures from the encode step rather than the
	// seek/grab steps. Both are reported identically as a failed outcome.
	ErrEncode = errors.New("capture: encode frame")
)

// Frame is one successfully captured still.
type Frame struct {
	Timestamp     float64
	Image         []byte
	SuggestedName string
}

// Outcome is the per-timestamp result of one capture attempt. Exactly one of
// Frame and Err is set.
type Outcome struct {
	Timestamp float64
	Frame     *Frame
	Err       error
}

// StepError carries the timestamp of a failed capture attempt.
type StepError struct {
	Timestamp float64
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("capture at %.3fs: %v", e.Timestamp, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

const restoreTimeout = 5 * time.Second

// Driver walks a Plan against a MediaSource strictly in order, issuing at
// most one reposition request at a time and restoring the surface position
// when the walk ends, on every exit path.
type Driver struct {
	encoder       port.FrameEncoder
	settleTimeout time.Duration
	logger        *zap.Logger

	mu       sync.Mutex
	inflight map[port.MediaSource]struct{}
}

// NewDriver creates a Driver. settleTimeout bounds the wait for each seek to
// settle; zero disables the bound and a lost settle stalls the walk.
func NewDriver(encoder port.FrameEncoder, settleTimeout time.Duration, logger *zap.Logger) *Driver {
	return &Driver{
		encoder:       encoder,
		settleTimeout: settleTimeout,
		logger:        logger,
		inflight:      make(map[port.MediaSource]struct{}),
	}
}

// Capture attempts one seek-then-capture per planned timestamp, in plan
// order, and returns one Outcome per attempted timestamp in the same order.
// A single failed timestamp is recorded and the walk continues; on an
// uncancelled run the outcome count always equals the plan length. If ctx is
// cancelled between steps the partial outcomes are returned with the context
// error. The surface position is restored before returning in all cases.
func (d *Driver) Capture(ctx context.Context, surface port.MediaSource, plan Plan, baseName string) ([]Outcome, error) {
	if !surface.Paused() {
		return nil, ErrNotPaused
	}

	if err := d.acquire(surface); err != nil {
		return nil, err
	}
	defer d.release(surface)

	restore := surface.Position()
	defer d.restorePosition(surface, restore)

	outcomes := make([]Outcome, 0, len(plan))
	for i, t := range plan {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, d.step(ctx, surface, t, i, baseName))
	}
	return outcomes, nil
}

func (d *Driver) step(ctx context.Context, surface port.MediaSource, t float64, index int, baseName string) Outcome {
	stepCtx := ctx
	if d.settleTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, d.settleTimeout)
		defer cancel()
	}

	if err := surface.Seek(stepCtx, t); err != nil {
		return d.fail(t, fmt.Errorf("seek: %w", err))
	}

	img, err := surface.Grab(stepCtx)
	if err != nil {
		return d.fail(t, fmt.Errorf("grab: %w", err))
	}

	data, err := d.encoder.Encode(img)
	if err != nil {
		return d.fail(t, fmt.Errorf("%w: %v", ErrEncode, err))
	}

	return Outcome{
		Timestamp: t,
		Frame: &Frame{
			Timestamp:     t,
			Image:         data,
			SuggestedName: FrameName(baseName, index, t, d.encoder.Ext()),
		},
	}
}

func (d *Driver) fail(t float64, err error) Outcome {
	stepErr := &StepError{Timestamp: t, Err: err}
	d.logger.Warn("frame capture failed",
		zap.Float64("timestamp", t),
		zap.Error(err),
	)
	return Outcome{Timestamp: t, Err: stepErr}
}

// restorePosition runs on a detached context so a cancelled walk still puts
// the surface back where the caller left it.
func (d *Driver) restorePosition(surface port.MediaSource, t float64) {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()
	if err := surface.Seek(ctx, t); err != nil {
		d.logger.Warn("failed to restore surface position",
			zap.Float64("position", t),
			zap.Error(err),
		)
	}
}

func (d *Driver) acquire(surface port.MediaSource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[surface]; busy {
		return ErrRunInFlight
	}
	d.inflight[surface] = struct{}{}
	return nil
}

func (d *Driver) release(surface port.MediaSource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, surface)
}

// FrameName derives the deterministic filename for a captured frame:
// <base>_frame_<index:03d>_t<milliseconds:07d>ms.<ext>.
func FrameName(baseName string, index int, t float64, ext string) string {
	return fmt.Sprintf("%s_frame_%03d_t%07dms.%s", baseName, index, int64(math.Round(t*1000)), ext)
}
