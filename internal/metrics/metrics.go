// Package metrics provides Prometheus metrics for the dashboard service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StorageOperations tracks object storage calls.
	StorageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_dashboard_storage_operations_total",
		Help: "Total number of object storage operations",
	}, []string{"operation", "provider", "status"})

	// StorageDuration tracks object storage call latency.
	StorageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sprint_dashboard_storage_duration_seconds",
		Help:    "Duration of object storage operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"operation", "provider"})

	// FolderMutations tracks folder uploads, renames and deletions.
	FolderMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_dashboard_folder_mutations_total",
		Help: "Total number of folder mutations",
	}, []string{"action", "status"})

	// UploadedFiles counts CSV files accepted by batch uploads.
	UploadedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sprint_dashboard_uploaded_files_total",
		Help: "Total number of CSV files uploaded",
	})

	// AuthAttempts tracks sign-in attempts by method.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_dashboard_auth_attempts_total",
		Help: "Total number of sign-in attempts",
	}, []string{"method", "status"})

	// AnalysisDuration tracks how long folder analyses take.
	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sprint_dashboard_analysis_duration_seconds",
		Help:    "Duration of folder analysis sessions in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	// ProcessingJobs tracks processing job outcomes.
	ProcessingJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_dashboard_processing_jobs_total",
		Help: "Total number of processing jobs",
	}, []string{"status"})

	// DuplicateRowsDropped counts rows removed by CSV cleaning.
	DuplicateRowsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sprint_dashboard_duplicate_rows_dropped_total",
		Help: "Total number of duplicate CSV rows dropped while cleaning",
	})

	// Info provides static information about the service.
	Info = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sprint_dashboard_info",
		Help: "Information about the dashboard service",
	}, []string{"version", "storage_provider"})
)

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordStorageOperation records a storage operation.
func RecordStorageOperation(operation, provider string, success bool, elapsed time.Duration) {
	StorageOperations.WithLabelValues(operation, provider, statusLabel(success)).Inc()
	StorageDuration.WithLabelValues(operation, provider).Observe(elapsed.Seconds())
}

// RecordFolderMutation records an upload, rename or delete of a folder.
func RecordFolderMutation(action string, success bool) {
	FolderMutations.WithLabelValues(action, statusLabel(success)).Inc()
}

// RecordAuthAttempt records a sign-in attempt.
func RecordAuthAttempt(method string, success bool) {
	AuthAttempts.WithLabelValues(method, statusLabel(success)).Inc()
}

// RecordProcessingJob records the terminal status of a processing job.
func RecordProcessingJob(success bool) {
	ProcessingJobs.WithLabelValues(statusLabel(success)).Inc()
}
