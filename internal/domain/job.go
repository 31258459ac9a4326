package domain

import "time"

// JobStatus is the lifecycle state of a bulk ingest job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IngestJob records the progress of one bulk ingest run.
type IngestJob struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	Source      string     `gorm:"type:text;not null;index" json:"source"`
	Status      JobStatus  `gorm:"type:text;default:running" json:"status"`
	Total       int        `gorm:"default:0" json:"total"`
	Indexed     int        `gorm:"default:0" json:"indexed"`
	Unsafe      int        `gorm:"default:0" json:"unsafe"`
	Undescribed int        `gorm:"default:0" json:"undescribed"`
	Failed      int        `gorm:"default:0" json:"failed"`
	ErrorLog    string     `gorm:"type:text" json:"error_log,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the table name for IngestJob.
func (IngestJob) TableName() string {
	return "ingest_jobs"
}
