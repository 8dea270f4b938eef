package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framegrab_jobs_processed_total",
		Help: "Total number of capture jobs processed, by status",
	}, []string{"status"})

	CaptureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framegrab_capture_duration_seconds",
		Help:    "Duration of capture pipeline stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesCapturedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_frames_captured_total",
		Help: "Total number of frames captured across all jobs",
	})

	FramesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_frames_failed_total",
		Help: "Total number of per-timestamp capture failures across all jobs",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framegrab_active_workers",
		Help: "Number of currently active workers processing capture jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framegrab_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
