package postgres

import (
	"context"
	"fmt"

	"github.com/framegrab/framegrab-capture-service/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.CaptureJob) error {
	query := `
		INSERT INTO capture_jobs (
			id, user_id, video_key, zip_key, status,
			start_secs, window_secs, step_secs, base_name,
			requested_frames, captured_frames, failed_frames,
			file_size, video_duration, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.ZipKey, string(job.Status),
		job.StartSecs, job.WindowSecs, job.StepSecs, job.BaseName,
		job.RequestedFrames, job.CapturedFrames, job.FailedFrames,
		job.FileSize, job.VideoDuration, job.Attempt, job.MaxAttempts,
		job.ErrorMessage, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.CaptureJob) error {
	query := `
		UPDATE capture_jobs SET
			status=$2, zip_key=$3, start_secs=$4, window_secs=$5, step_secs=$6,
			base_name=$7, requested_frames=$8, captured_frames=$9, failed_frames=$10,
			video_duration=$11, attempt=$12, error_message=$13,
			updated_at=$14, completed_at=$15
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ZipKey,
		job.StartSecs, job.WindowSecs, job.StepSecs, job.BaseName,
		job.RequestedFrames, job.CapturedFrames, job.FailedFrames,
		job.VideoDuration, job.Attempt, job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.CaptureJob, error) {
	query := `
		SELECT id, user_id, video_key, zip_key, status,
			start_secs, window_secs, step_secs, base_name,
			requested_frames, captured_frames, failed_frames,
			file_size, video_duration, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		FROM capture_jobs WHERE id=$1`

	job := &entity.CaptureJob{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.ZipKey, &status,
		&job.StartSecs, &job.WindowSecs, &job.StepSecs, &job.BaseName,
		&job.RequestedFrames, &job.CapturedFrames, &job.FailedFrames,
		&job.FileSize, &job.VideoDuration, &job.Attempt, &job.MaxAttempts,
		&job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}
