package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// CaptureJob is one frame-capture request: sample the video at StartSecs,
// StartSecs+StepSecs, ... over WindowSecs and archive the captured stills.
type CaptureJob struct {
	ID              uuid.UUID
	UserID          string
	VideoKey        string
	ZipKey          string
	Status          JobStatus
	StartSecs       float64
	WindowSecs      float64
	StepSecs        float64
	BaseName        string
	RequestedFrames int
	CapturedFrames  int
	FailedFrames    int
	FileSize        int64
	VideoDuration   float64
	Attempt         int
	MaxAttempts     int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func NewCaptureJob(userID, videoKey string, fileSize int64, maxAttempts int) *CaptureJob {
	now := time.Now().UTC()
	return &CaptureJob{
		ID:          uuid.New(),
		UserID:      userID,
		VideoKey:    videoKey,
		FileSize:    fileSize,
		Status:      JobStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *CaptureJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *CaptureJob) MarkCompleted(zipKey string, requested, captured, failed int, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ZipKey = zipKey
	j.RequestedFrames = requested
	j.CapturedFrames = captured
	j.FailedFrames = failed
	j.VideoDuration = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *CaptureJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *CaptureJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
