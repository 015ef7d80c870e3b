package repository

import (
	"context"
	"errors"

	"driveguard/internal/domain"
)

// ErrReportNotFound is returned when no report exists for the requested ID.
var ErrReportNotFound = errors.New("report not found")

// ReportRepository defines persistence operations for detection reports.
type ReportRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, report *domain.Report) error
	GetByID(ctx context.Context, id string) (*domain.Report, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Report, error)
	ListByStatuses(ctx context.Context, statuses ...domain.ReportStatus) ([]domain.Report, error)
	UpdateStatus(ctx context.Context, id string, status domain.ReportStatus, errMsg *string) error
	MarkArchived(ctx context.Context, id string, s3Location string) error
}
