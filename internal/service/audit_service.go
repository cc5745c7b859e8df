package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type auditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditService records the append-only audit trail. Recording is best
// effort: a failed audit write is logged and never fails the mutation
// that triggered it.
type AuditService struct {
	repo      auditRepository
	logger    *zap.Logger
	retention time.Duration
}

// NewAuditService constructs an AuditService instance.
func NewAuditService(repo auditRepository, logger *zap.Logger, retention time.Duration) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &AuditService{repo: repo, logger: logger, retention: retention}
}

// Record appends an audit entry. Errors are swallowed after logging.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) {
	if entry.Status == "" {
		entry.Status = "success"
	}
	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Warn("failed to record audit entry",
			zap.String("action", entry.Action),
			zap.String("resource_type", entry.ResourceType),
			zap.Error(err),
		)
	}
}

// List returns audit entries with pagination metadata.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return entries, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// RunCleanup prunes entries past the retention window on an interval
// until the context ends.
func (s *AuditService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-s.retention)
			deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				s.logger.Warn("failed to prune audit logs", zap.Error(err))
				continue
			}
			if deleted > 0 {
				s.logger.Info("pruned audit logs", zap.Int64("count", deleted))
			}
		}
	}
}
