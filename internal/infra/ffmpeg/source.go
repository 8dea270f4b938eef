package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"

	"github.com/framegrab/framegrab-capture-service/internal/domain/port"
	"go.uber.org/zap"
)

// Source is a file-backed MediaSource. Each Seek runs ffmpeg with a fast
// input seek and decodes exactly one frame; the command returning with a
// decodable frame is the settle. Seeking snaps to the nearest decodable
// frame, which is accepted as best-effort.
type Source struct {
	path     string
	duration float64
	width    int
	height   int
	pos      float64
	frame    image.Image
	logger   *zap.Logger
}

// Opener probes and opens local video files as capture surfaces.
type Opener struct {
	logger *zap.Logger
}

func NewOpener(logger *zap.Logger) *Opener {
	return &Opener{logger: logger}
}

func (o *Opener) Open(ctx context.Context, path string) (port.MediaSource, error) {
	duration, err := probeDuration(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w", err)
	}

	width, height, err := probeDimensions(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe dimensions: %w", err)
	}

	o.logger.Info("opened video surface",
		zap.String("path", path),
		zap.Float64("duration", duration),
		zap.Int("width", width),
		zap.Int("height", height),
	)

	return &Source{
		path:     path,
		duration: duration,
		width:    width,
		height:   height,
		logger:   o.logger,
	}, nil
}

func (s *Source) Position() float64 { return s.pos }

func (s *Source) Duration() float64 { return s.duration }

func (s *Source) Bounds() (int, int) { return s.width, s.height }

// Paused is always true: a file-backed source has no playback clock.
func (s *Source) Paused() bool { return true }

func (s *Source) Seek(ctx context.Context, t float64) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", strconv.FormatFloat(t, 'f', 6, 64),
		"-i", s.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, stderr.String())
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	s.frame = img
	s.pos = t
	return nil
}

func (s *Source) Grab(_ context.Context) (image.Image, error) {
	if s.frame == nil {
		return nil, fmt.Errorf("no settled frame at position %.3f", s.pos)
	}
	return s.frame, nil
}

func probeDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseDuration(string(output))
}

func probeDimensions(ctx context.Context, videoPath string) (int, int, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=p=0",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseDimensions(string(output))
}

func parseDuration(raw string) (float64, error) {
	duration, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

func parseDimensions(raw string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected ffprobe dimensions output: %q", raw)
	}
	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("parse width: %w", err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("parse height: %w", err)
	}
	return width, height, nil
}
