package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/framegrab/framegrab-capture-service/internal/capture"
	"github.com/framegrab/framegrab-capture-service/internal/domain/entity"
	"github.com/framegrab/framegrab-capture-service/internal/domain/port"
	"github.com/framegrab/framegrab-capture-service/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type CaptureVideoUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	opener    port.SurfaceOpener
	driver    *capture.Driver
	archiver  port.Archiver
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	cfg       CaptureVideoConfig
}

type CaptureVideoConfig struct {
	TempDir    string
	MaxRetries int

	// Usability guards on requested windows and steps; out-of-range values
	// are clamped, they do not fail the job.
	WindowMinSecs float64
	WindowMaxSecs float64
	StepMinSecs   float64
	StepMaxSecs   float64
}

func NewCaptureVideoUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	opener port.SurfaceOpener,
	driver *capture.Driver,
	archiver port.Archiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg CaptureVideoConfig,
) *CaptureVideoUseCase {
	return &CaptureVideoUseCase{
		repo:      repo,
		storage:   storage,
		opener:    opener,
		driver:    driver,
		archiver:  archiver,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

func (uc *CaptureVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "CaptureVideoUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.CaptureRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	if msg.WindowSecs <= 0 || msg.StepSecs <= 0 {
		uc.logger.Error("rejecting capture request with non-positive window or step",
			zap.Float64("window_secs", msg.WindowSecs),
			zap.Float64("step_secs", msg.StepSecs),
		)
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_params: window and step must be positive")
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
		attribute.Float64("job.start_secs", msg.StartSecs),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewCaptureJob(msg.UserID, msg.VideoKey, msg.FileSize, uc.cfg.MaxRetries)
		job.ID = msg.JobID
		job.StartSecs = msg.StartSecs
		job.WindowSecs = msg.WindowSecs
		job.StepSecs = msg.StepSecs
		job.BaseName = uc.baseName(msg)
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.capturePipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.CaptureDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *CaptureVideoUseCase) capturePipeline(
	ctx context.Context,
	job *entity.CaptureJob,
	msg entity.CaptureRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video from MinIO
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	if err := uc.storage.DownloadVideo(ctx2, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.CaptureDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Probe and open the decoding surface
	ctx3, spanOpen := tracer.Start(ctx, "open_surface")
	surface, err := uc.opener.Open(ctx3, videoPath)
	if err != nil {
		spanOpen.End()
		log.Error("failed to open video surface", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "open_surface: "+err.Error(), log)
	}
	spanOpen.End()

	// Plan the capture timestamps
	window := clamp(msg.WindowSecs, uc.cfg.WindowMinSecs, uc.cfg.WindowMaxSecs)
	step := clamp(msg.StepSecs, uc.cfg.StepMinSecs, uc.cfg.StepMaxSecs)
	plan := capture.NewPlan(msg.StartSecs, window, step, surface.Duration())
	if len(plan) == 0 {
		log.Warn("capture plan is empty, nothing to sample",
			zap.Float64("start_secs", msg.StartSecs),
			zap.Float64("duration", surface.Duration()),
		)
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "empty capture plan: no timestamp within video bounds")
	}

	// Walk the plan, one seek-then-capture at a time
	capStart := time.Now()
	ctx4, spanCap := tracer.Start(ctx, "capture_frames")
	outcomes, err := uc.driver.Capture(ctx4, surface, plan, uc.baseName(msg))
	if err != nil {
		spanCap.End()
		log.Error("capture walk failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "capture_frames: "+err.Error(), log)
	}
	spanCap.End()
	metrics.CaptureDuration.WithLabelValues("capture").Observe(time.Since(capStart).Seconds())

	// Persist captured stills; failed timestamps are absent from the archive
	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return fmt.Errorf("create frames dir: %w", err)
	}

	var framePaths []string
	failed := 0
	for _, out := range outcomes {
		if out.Err != nil {
			failed++
			continue
		}
		path := filepath.Join(framesDir, out.Frame.SuggestedName)
		if err := os.WriteFile(path, out.Frame.Image, 0644); err != nil {
			return fmt.Errorf("write frame %s: %w", out.Frame.SuggestedName, err)
		}
		framePaths = append(framePaths, path)
	}
	captured := len(framePaths)
	metrics.FramesCapturedTotal.Add(float64(captured))
	metrics.FramesFailedTotal.Add(float64(failed))

	if captured == 0 {
		log.Error("all planned timestamps failed to capture", zap.Int("requested", len(plan)))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "capture_frames: every timestamp failed", log)
	}

	// Create ZIP from frames
	zipStart := time.Now()
	ctx5, spanZip := tracer.Start(ctx, "create_zip")
	zipPath := filepath.Join(workDir, "frames.zip")
	if err := uc.archiver.CreateArchive(ctx5, framePaths, zipPath); err != nil {
		spanZip.End()
		log.Error("zip creation failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "create_zip: "+err.Error(), log)
	}
	spanZip.End()
	metrics.CaptureDuration.WithLabelValues("zip").Observe(time.Since(zipStart).Seconds())

	// Upload ZIP to MinIO
	upStart := time.Now()
	ctx6, spanUp := tracer.Start(ctx, "upload_archive")
	zipKey := fmt.Sprintf("%s/frames_%s.zip", msg.UserID, job.ID.String())
	zipFile, zipSize, err := openArchive(zipPath)
	if err != nil {
		spanUp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "open_zip: "+err.Error(), log)
	}
	if err := uc.storage.UploadArchive(ctx6, zipKey, zipFile, zipSize); err != nil {
		zipFile.Close()
		spanUp.End()
		log.Error("zip upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_archive: "+err.Error(), log)
	}
	zipFile.Close()
	spanUp.End()
	metrics.CaptureDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	// Mark completed
	job.MarkCompleted(zipKey, len(plan), captured, failed, surface.Duration())
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("capture job completed",
		zap.Int("requested_frames", len(plan)),
		zap.Int("captured_frames", captured),
		zap.Int("failed_frames", failed),
		zap.Float64("duration_secs", surface.Duration()),
		zap.String("zip_key", zipKey),
	)

	return nil
}

func (uc *CaptureVideoUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.CaptureJob,
	msg entity.CaptureRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *CaptureVideoUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.CaptureJob,
	msg entity.CaptureRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *CaptureVideoUseCase) publishStatus(ctx context.Context, job *entity.CaptureJob, log *zap.Logger) {
	statusMsg := entity.CaptureStatusMessage{
		JobID:           job.ID,
		UserID:          job.UserID,
		Status:          job.Status,
		VideoKey:        job.VideoKey,
		ZipKey:          job.ZipKey,
		RequestedFrames: job.RequestedFrames,
		CapturedFrames:  job.CapturedFrames,
		FailedFrames:    job.FailedFrames,
		Duration:        job.VideoDuration,
		ErrorMessage:    job.ErrorMessage,
		Attempt:         job.Attempt,
		MaxAttempts:     job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

func (uc *CaptureVideoUseCase) baseName(msg entity.CaptureRequestMessage) string {
	if msg.BaseName != "" {
		return msg.BaseName
	}
	base := filepath.Base(msg.VideoKey)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		return "capture"
	}
	return base
}

// openArchive opens the finished archive and resolves its size for the
// upload. The file is left open on success; the caller closes it.
func openArchive(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat archive: %w", err)
	}
	return f, fi.Size(), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
