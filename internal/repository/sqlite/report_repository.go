package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"driveguard/internal/domain"
	"driveguard/internal/repository"
)

const createReportsTable = `
CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	file_name TEXT NOT NULL,
	behaviors TEXT NOT NULL DEFAULT '[]',
	emotion TEXT NOT NULL DEFAULT '',
	drowsiness REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	local_path TEXT NOT NULL DEFAULT '',
	s3_location TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	archived_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_reports_user_id ON reports(user_id);
`

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) repository.ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createReportsTable); err != nil {
		return fmt.Errorf("create reports table: %w", err)
	}
	return nil
}

func (r *ReportRepository) Create(ctx context.Context, report *domain.Report) error {
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now

	behaviors, err := json.Marshal(report.Behaviors)
	if err != nil {
		return fmt.Errorf("marshal behaviors: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO reports (id, user_id, file_name, behaviors, emotion, drowsiness, status,
	local_path, s3_location, error_message, created_at, updated_at, archived_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.UserID,
		report.FileName,
		string(behaviors),
		report.Emotion,
		report.Drowsiness,
		report.Status,
		report.LocalPath,
		report.S3Location,
		report.ErrorMessage,
		report.CreatedAt,
		report.UpdatedAt,
		report.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (*domain.Report, error) {
	row := r.db.QueryRowContext(ctx, selectReport+` WHERE id = ?`, id)
	report, err := scanReport(row)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("report %s: %w", id, repository.ErrReportNotFound)
	}
	return report, nil
}

func (r *ReportRepository) ListByUser(ctx context.Context, userID string) ([]domain.Report, error) {
	rows, err := r.db.QueryContext(ctx, selectReport+` WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

func (r *ReportRepository) ListByStatuses(ctx context.Context, statuses ...domain.ReportStatus) ([]domain.Report, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	query := selectReport + ` WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `) ORDER BY created_at`
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports by status: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, status domain.ReportStatus, errMsg *string) error {
	msg := ""
	if errMsg != nil {
		msg = *errMsg
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE reports SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, msg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	return nil
}

func (r *ReportRepository) MarkArchived(ctx context.Context, id string, s3Location string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
UPDATE reports SET status = ?, s3_location = ?, archived_at = ?, updated_at = ? WHERE id = ?`,
		domain.ReportStatusArchived, s3Location, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark report archived: %w", err)
	}
	return nil
}

const selectReport = `
SELECT id, user_id, file_name, behaviors, emotion, drowsiness, status,
	local_path, s3_location, error_message, created_at, updated_at, archived_at
FROM reports`

func scanReport(row interface {
	Scan(dest ...any) error
}) (*domain.Report, error) {
	var (
		report     domain.Report
		behaviors  string
		archivedAt sql.NullTime
	)
	if err := row.Scan(
		&report.ID,
		&report.UserID,
		&report.FileName,
		&behaviors,
		&report.Emotion,
		&report.Drowsiness,
		&report.Status,
		&report.LocalPath,
		&report.S3Location,
		&report.ErrorMessage,
		&report.CreatedAt,
		&report.UpdatedAt,
		&archivedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	if err := json.Unmarshal([]byte(behaviors), &report.Behaviors); err != nil {
		return nil, fmt.Errorf("unmarshal behaviors: %w", err)
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		report.ArchivedAt = &t
	}
	return &report, nil
}

func collectReports(rows *sql.Rows) ([]domain.Report, error) {
	var reports []domain.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}
