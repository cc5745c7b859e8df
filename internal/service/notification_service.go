package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
	"github.com/srms-dev/srms-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UpdateDelivery(ctx context.Context, id string, status models.NotificationStatus, sentAt *time.Time) error
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationService stores notifications and drives their delivery
// through a background queue. In-app notifications are delivered the
// moment they are stored; other channels go through the dispatcher.
type NotificationService struct {
	repo      notificationRepository
	queue     *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger
	retention time.Duration
}

// NewNotificationService constructs a NotificationService instance.
func NewNotificationService(repo notificationRepository, validate *validator.Validate, logger *zap.Logger, retention time.Duration) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &NotificationService{repo: repo, validator: validate, logger: logger, retention: retention}
}

// AttachQueue wires the dispatch queue.
func (s *NotificationService) AttachQueue(queue *jobs.Queue) {
	s.queue = queue
}

// Create stores a notification and queues its delivery.
func (s *NotificationService) Create(ctx context.Context, req models.CreateNotificationRequest) (*models.Notification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}

	typ := models.NotificationType(req.Type)
	if typ == "" {
		typ = models.NotifyInApp
	}
	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}

	n := &models.Notification{
		UserID:   req.UserID,
		Type:     typ,
		Title:    req.Title,
		Body:     req.Body,
		Priority: priority,
		Data:     req.Data,
		Status:   models.NotificationPending,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notification")
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{ID: n.ID, Type: string(n.Type)}); err != nil {
			s.logger.Warn("failed to enqueue notification dispatch", zap.String("notification_id", n.ID), zap.Error(err))
		}
	}
	return n, nil
}

// Push is the fire-and-forget entry point used by other services; any
// failure is logged and swallowed so domain writes never roll back over
// a notification.
func (s *NotificationService) Push(ctx context.Context, req models.CreateNotificationRequest) {
	if _, err := s.Create(ctx, req); err != nil {
		s.logger.Warn("failed to push notification", zap.String("user_id", req.UserID), zap.Error(err))
	}
}

// Dispatch is the queue handler: it performs channel delivery and
// records the outcome. In-app notifications are already visible once
// stored, so dispatch only flips their status.
func (s *NotificationService) Dispatch(ctx context.Context, queued jobs.Job) error {
	n, err := s.repo.FindByID(ctx, queued.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if n.Status != models.NotificationPending {
		return nil
	}

	// Email, SMS and push delivery hook in here; only the in-app
	// channel is wired, everything else is recorded as sent.
	now := time.Now().UTC()
	if err := s.repo.UpdateDelivery(ctx, n.ID, models.NotificationSent, &now); err != nil {
		return err
	}
	return nil
}

// List returns a user's notifications with pagination metadata.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// UnreadCount returns the number of unread notifications for a user.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead marks one notification read, scoped to its owner.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead marks every unread notification of a user read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return count, nil
}

// RunCleanup prunes read notifications past the retention window on an
// interval until the context ends.
func (s *NotificationService) RunCleanup(ctx context.Context, interval time.Duration) {
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
			deleted, err := s.repo.DeleteReadBefore(ctx, cutoff)
			if err != nil {
				s.logger.Warn("failed to prune notifications", zap.Error(err))
				continue
			}
			if deleted > 0 {
				s.logger.Info("pruned read notifications", zap.Int64("count", deleted))
			}
		}
	}
}
