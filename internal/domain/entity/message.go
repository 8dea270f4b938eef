package entity

import "github.com/google/uuid"

// CaptureRequestMessage is the inbound message from the capture.request queue.
type CaptureRequestMessage struct {
	JobID      uuid.UUID `json:"job_id"`
	UserID     string    `json:"user_id"`
	VideoKey   string    `json:"video_key"`
	FileSize   int64     `json:"file_size"`
	UserEmail  string    `json:"user_email"`
	StartSecs  float64   `json:"start_secs"`
	WindowSecs float64   `json:"window_secs"`
	StepSecs   float64   `json:"step_secs"`
	BaseName   string    `json:"base_name"`
}

// CaptureStatusMessage is the outbound message published to the capture.status queue.
type CaptureStatusMessage struct {
	JobID           uuid.UUID `json:"job_id"`
	UserID          string    `json:"user_id"`
	Status          JobStatus `json:"status"`
	VideoKey        string    `json:"video_key"`
	ZipKey          string    `json:"zip_key,omitempty"`
	RequestedFrames int       `json:"requested_frames,omitempty"`
	CapturedFrames  int       `json:"captured_frames,omitempty"`
	FailedFrames    int       `json:"failed_frames,omitempty"`
	Duration        float64   `json:"duration_seconds,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Attempt         int       `json:"attempt"`
	MaxAttempts     int       `json:"max_attempts"`
}
