// Package archive uploads analyzed media clips to object storage in the
// background so detection requests never wait on S3.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/sirupsen/logrus"

	"driveguard/internal/domain"
	"driveguard/internal/service"
	"driveguard/internal/storage"
)

// Manager coordinates report archival, bounded concurrency, and resume on restart.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	Enqueue(ctx context.Context, reportID string) error
	Resume(ctx context.Context) error
}

type Config struct {
	Bucket        string
	KeyPrefix     string
	MaxConcurrent int
	Logger        *logrus.Logger
}

type manager struct {
	cfg     Config
	reports service.ReportService
	storage storage.Service

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	active map[string]struct{}
}

func NewManager(cfg Config, reports service.ReportService, store storage.Service) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &manager{
		cfg:     cfg,
		reports: reports,
		storage: store,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		active:  make(map[string]struct{}),
	}
}

func (m *manager) Start(ctx context.Context) error {
	if m.cfg.Bucket == "" {
		return fmt.Errorf("archive bucket is required")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.cfg.Logger.Infof("archive manager started, bucket: %s", m.cfg.Bucket)
	return nil
}

func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("archive manager stopped")
}

func (m *manager) Enqueue(ctx context.Context, reportID string) error {
	report, err := m.reports.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	m.spawn(*report)
	return nil
}

// Resume re-enqueues reports whose archive was interrupted by a restart.
func (m *manager) Resume(ctx context.Context) error {
	reports, err := m.reports.ListByStatuses(ctx,
		domain.ReportStatusAnalyzed,
		domain.ReportStatusArchiving,
	)
	if err != nil {
		return err
	}

	for i := range reports {
		m.spawn(reports[i])
	}
	return nil
}

func (m *manager) spawn(report domain.Report) {
	m.mu.Lock()
	if _, running := m.active[report.ID]; running {
		m.mu.Unlock()
		return
	}
	m.active[report.ID] = struct{}{}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, report.ID)
			m.mu.Unlock()
		}()
		select {
		case <-m.ctx.Done():
			return
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
			m.archive(m.ctx, &report)
		}
	}()
}

func (m *manager) archive(ctx context.Context, report *domain.Report) {
	logger := m.cfg.Logger.WithField("report_id", report.ID)

	if report.LocalPath == "" {
		logger.Debug("report has no local media, skipping archive")
		return
	}

	if err := m.reports.UpdateStatus(ctx, report.ID, domain.ReportStatusArchiving, nil); err != nil {
		logger.Errorf("update status failed: %v", err)
		return
	}

	f, err := os.Open(report.LocalPath)
	if err != nil {
		m.fail(ctx, report.ID, fmt.Errorf("open media: %w", err))
		return
	}
	defer f.Close()

	key := path.Join(m.cfg.KeyPrefix, report.UserID, report.ID, report.FileName)
	location, err := m.storage.UploadFile(ctx, m.cfg.Bucket, key, f)
	if err != nil {
		m.fail(ctx, report.ID, fmt.Errorf("upload media: %w", err))
		return
	}

	if err := m.reports.MarkArchived(ctx, report.ID, location); err != nil {
		logger.Errorf("mark archived failed: %v", err)
		return
	}

	if err := os.Remove(report.LocalPath); err != nil && !os.IsNotExist(err) {
		logger.Warnf("remove local media: %v", err)
	}
	logger.Infof("archived to %s", location)
}

func (m *manager) fail(ctx context.Context, reportID string, cause error) {
	m.cfg.Logger.WithField("report_id", reportID).Errorf("archive failed: %v", cause)
	msg := cause.Error()
	if err := m.reports.UpdateStatus(ctx, reportID, domain.ReportStatusFailed, &msg); err != nil {
		m.cfg.Logger.Errorf("update status failed: %v", err)
	}
}
