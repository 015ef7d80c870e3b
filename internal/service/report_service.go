package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"driveguard/internal/domain"
	"driveguard/internal/repository"
)

// ReportService coordinates detection report persistence.
type ReportService interface {
	CreateReport(ctx context.Context, userID, fileName, localPath string, behaviors []string, emotion string, drowsiness float64) (*domain.Report, error)
	GetReport(ctx context.Context, id string) (*domain.Report, error)
	ListReports(ctx context.Context, userID string) ([]domain.Report, error)
	ListByStatuses(ctx context.Context, statuses ...domain.ReportStatus) ([]domain.Report, error)
	UpdateStatus(ctx context.Context, id string, status domain.ReportStatus, errMsg *string) error
	MarkArchived(ctx context.Context, id string, s3Location string) error
}

type reportService struct {
	reports repository.ReportRepository
}

func NewReportService(reports repository.ReportRepository) ReportService {
	return &reportService{reports: reports}
}

func (s *reportService) CreateReport(ctx context.Context, userID, fileName, localPath string, behaviors []string, emotion string, drowsiness float64) (*domain.Report, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if behaviors == nil {
		behaviors = []string{}
	}

	report := &domain.Report{
		ID:         uuid.NewString(),
		UserID:     userID,
		FileName:   fileName,
		Behaviors:  behaviors,
		Emotion:    emotion,
		Drowsiness: drowsiness,
		Status:     domain.ReportStatusAnalyzed,
		LocalPath:  localPath,
	}

	if err := s.reports.Create(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *reportService) GetReport(ctx context.Context, id string) (*domain.Report, error) {
	return s.reports.GetByID(ctx, id)
}

func (s *reportService) ListReports(ctx context.Context, userID string) ([]domain.Report, error) {
	return s.reports.ListByUser(ctx, userID)
}

func (s *reportService) ListByStatuses(ctx context.Context, statuses ...domain.ReportStatus) ([]domain.Report, error) {
	return s.reports.ListByStatuses(ctx, statuses...)
}

func (s *reportService) UpdateStatus(ctx context.Context, id string, status domain.ReportStatus, errMsg *string) error {
	return s.reports.UpdateStatus(ctx, id, status, errMsg)
}

func (s *reportService) MarkArchived(ctx context.Context, id string, s3Location string) error {
	return s.reports.MarkArchived(ctx, id, s3Location)
}
