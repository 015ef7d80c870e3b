package domain

import "time"

// ReportStatus tracks the archive lifecycle of an analyzed clip.
type ReportStatus string

const (
	ReportStatusAnalyzed  ReportStatus = "analyzed"
	ReportStatusArchiving ReportStatus = "archiving"
	ReportStatusArchived  ReportStatus = "archived"
	ReportStatusFailed    ReportStatus = "failed"
)

// Report is the outcome of one detection run for a user's clip.
type Report struct {
	ID           string
	UserID       string
	FileName     string
	Behaviors    []string
	Emotion      string
	Drowsiness   float64
	Status       ReportStatus
	LocalPath    string
	S3Location   string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ArchivedAt   *time.Time
}
