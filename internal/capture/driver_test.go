package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSurface struct {
	mu          sync.Mutex
	pos         float64
	duration    float64
	width       int
	height      int
	paused      bool
	settleDelay time.Duration
	failSeekAt  map[float64]bool
	grabErr     error
	onSeek      func(n int, t float64)

	seeks      []float64
	pending    int
	maxPending int
}

func newStubSurface(pos, duration float64) *stubSurface {
	return &stubSurface{
		pos:      pos,
		duration: duration,
		width:    320,
		height:   240,
		paused:   true,
	}
}

func (s *stubSurface) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *stubSurface) Duration() float64  { return s.duration }
func (s *stubSurface) Bounds() (int, int) { return s.width, s.height }
func (s *stubSurface) Paused() bool       { return s.paused }

func (s *stubSurface) Seek(ctx context.Context, t float64) error {
	s.mu.Lock()
	s.pending++
	if s.pending > s.maxPending {
		s.maxPending = s.pending
	}
	s.seeks = append(s.seeks, t)
	n := len(s.seeks)
	hook := s.onSeek
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
	}()

	if hook != nil {
		hook(n, t)
	}

	if s.settleDelay > 0 {
		select {
		case <-time.After(s.settleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failSeekAt[t] {
		return errors.New("seek failed")
	}

	s.mu.Lock()
	s.pos = t
	s.mu.Unlock()
	return nil
}

func (s *stubSurface) Grab(_ context.Context) (image.Image, error) {
	if s.grabErr != nil {
		return nil, s.grabErr
	}
	return image.NewRGBA(image.Rect(0, 0, s.width, s.height)), nil
}

type stubEncoder struct {
	failAt int
	calls  int
}

func newStubEncoder() *stubEncoder { return &stubEncoder{failAt: -1} }

func (e *stubEncoder) Encode(_ image.Image) ([]byte, error) {
	call := e.calls
	e.calls++
	if e.failAt >= 0 && call == e.failAt {
		return nil, errors.New("unreadable drawing surface")
	}
	return []byte{0xFF, 0xD8, 0xFF}, nil
}

func (e *stubEncoder) Ext() string { return "jpeg" }

func newTestDriver(enc *stubEncoder, settleTimeout time.Duration) *Driver {
	return NewDriver(enc, settleTimeout, zap.NewNop())
}

func TestCaptureWalksPlanInOrder(t *testing.T) {
	surface := newStubSurface(2.0, 5.0)
	driver := newTestDriver(newStubEncoder(), 0)

	plan := NewPlan(2.0, 2.0, 0.5, surface.Duration())
	require.Equal(t, Plan{2.0, 2.5, 3.0, 3.5, 4.0}, plan)

	outcomes, err := driver.Capture(context.Background(), surface, plan, "clip")
	require.NoError(t, err)
	require.Len(t, outcomes, len(plan))

	for i, out := range outcomes {
		assert.Equal(t, plan[i], out.Timestamp)
		require.NoError(t, out.Err)
		require.NotNil(t, out.Frame)
		assert.Equal(t, plan[i], out.Frame.Timestamp)
		assert.NotEmpty(t, out.Frame.Image)
	}

	// seeks happen in plan order, then the restore seek
	assert.Equal(t, []float64{2.0, 2.5, 3.0, 3.5, 4.0, 2.0}, surface.seeks)
	assert.Equal(t, 2.0, surface.Position())
}

func TestCaptureSingleInFlightSeek(t *testing.T) {
	surface := newStubSurface(0, 10.0)
	surface.settleDelay = time.Millisecond
	driver := newTestDriver(newStubEncoder(), 0)

	_, err := driver.Capture(context.Background(), surface, NewPlan(0, 1, 0.25, 10), "clip")
	require.NoError(t, err)
	assert.Equal(t, 1, surface.maxPending)
}

func TestCaptureNotPaused(t *testing.T) {
	surface := newStubSurface(1.0, 5.0)
	surface.paused = false
	driver := newTestDriver(newStubEncoder(), 0)

	outcomes, err := driver.Capture(context.Background(), surface, Plan{1.0, 2.0}, "clip")
	assert.ErrorIs(t, err, ErrNotPaused)
	assert.Nil(t, outcomes)
	assert.Empty(t, surface.seeks, "no reposition request before the precondition check")
	assert.Equal(t, 1.0, surface.Position())
}

func TestCaptureSeekFailureIsNotFatal(t *testing.T) {
	surface := newStubSurface(2.0, 5.0)
	surface.failSeekAt = map[float64]bool{3.0: true}
	driver := newTestDriver(newStubEncoder(), 0)

	plan := Plan{2.0, 2.5, 3.0, 3.5, 4.0}
	outcomes, err := driver.Capture(context.Background(), surface, plan, "clip")
	require.NoError(t, err)
	require.Len(t, outcomes, len(plan))

	for i, out := range outcomes {
		if plan[i] == 3.0 {
			require.Error(t, out.Err)
			var stepErr *StepError
			require.ErrorAs(t, out.Err, &stepErr)
			assert.Equal(t, 3.0, stepErr.Timestamp)
			assert.Nil(t, out.Frame)
			continue
		}
		assert.NoError(t, out.Err)
		assert.NotNil(t, out.Frame)
	}

	assert.Equal(t, 2.0, surface.Position())
}

func TestCaptureEncodeFailureIsNotFatal(t *testing.T) {
	surface := newStubSurface(0, 5.0)
	enc := newStubEncoder()
	enc.failAt = 1
	driver := newTestDriver(enc, 0)

	plan := Plan{1.0, 2.0, 3.0}
	outcomes, err := driver.Capture(context.Background(), surface, plan, "clip")
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.NoError(t, outcomes[0].Err)
	require.Error(t, outcomes[1].Err)
	assert.ErrorIs(t, outcomes[1].Err, ErrEncode)
	var stepErr *StepError
	require.ErrorAs(t, outcomes[1].Err, &stepErr)
	assert.Equal(t, 2.0, stepErr.Timestamp)
	assert.NoError(t, outcomes[2].Err)
}

func TestCaptureFrameNames(t *testing.T) {
	assert.Equal(t, "clip_frame_002_t0001234ms.jpeg", FrameName("clip", 2, 1.234, "jpeg"))
	assert.Equal(t, "clip_frame_000_t0000000ms.jpeg", FrameName("clip", 0, 0, "jpeg"))
	assert.Equal(t, "movie_frame_012_t0125500ms.jpeg", FrameName("movie", 12, 125.5, "jpeg"))

	surface := newStubSurface(0, 10.0)
	driver := newTestDriver(newStubEncoder(), 0)
	outcomes, err := driver.Capture(context.Background(), surface, Plan{1.234, 2.5}, "clip")
	require.NoError(t, err)
	assert.Equal(t, "clip_frame_000_t0001234ms.jpeg", outcomes[0].Frame.SuggestedName)
	assert.Equal(t, "clip_frame_001_t0002500ms.jpeg", outcomes[1].Frame.SuggestedName)
}

func TestCaptureRejectsSecondRunOnSameSurface(t *testing.T) {
	surface := newStubSurface(0, 10.0)
	surface.settleDelay = 20 * time.Millisecond
	driver := newTestDriver(newStubEncoder(), 0)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		_, err := driver.Capture(context.Background(), surface, Plan{1, 2, 3, 4, 5}, "clip")
		assert.NoError(t, err)
	}()

	<-started
	time.Sleep(5 * time.Millisecond)

	_, err := driver.Capture(context.Background(), surface, Plan{1}, "clip")
	assert.ErrorIs(t, err, ErrRunInFlight)

	<-done

	// the surface is free again once the first run finishes
	_, err = driver.Capture(context.Background(), surface, Plan{1}, "clip")
	assert.NoError(t, err)
}

func TestCaptureCancellationStopsWalkAndRestores(t *testing.T) {
	surface := newStubSurface(2.0, 10.0)
	ctx, cancel := context.WithCancel(context.Background())
	surface.onSeek = func(n int, _ float64) {
		if n == 2 {
			cancel()
		}
	}
	driver := newTestDriver(newStubEncoder(), 0)

	plan := Plan{3.0, 4.0, 5.0, 6.0, 7.0}
	outcomes, err := driver.Capture(ctx, surface, plan, "clip")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(outcomes), len(plan))

	// restoration happens on the cancellation path too
	assert.Equal(t, 2.0, surface.Position())
}

func TestCaptureSettleTimeoutAdvancesWalk(t *testing.T) {
	surface := newStubSurface(1.0, 10.0)
	surface.settleDelay = 100 * time.Millisecond
	driver := newTestDriver(newStubEncoder(), 20*time.Millisecond)

	plan := Plan{2.0, 3.0, 4.0}
	outcomes, err := driver.Capture(context.Background(), surface, plan, "clip")
	require.NoError(t, err)
	require.Len(t, outcomes, len(plan), "a stalled settle becomes a failed outcome, not a stalled walk")

	for _, out := range outcomes {
		require.Error(t, out.Err)
		assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	}
	assert.Equal(t, 1.0, surface.Position())
}
