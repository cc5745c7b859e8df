package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type analyticsRepository interface {
	TopPerformers(ctx context.Context, filter models.TopPerformersFilter) ([]models.TopPerformer, error)
	GradeDistribution(ctx context.Context, filter models.DistributionFilter) ([]models.GradeBucket, error)
	SubjectStatistics(ctx context.Context, filter models.DistributionFilter) (*models.SubjectStatistics, error)
	Trends(ctx context.Context, filter models.TrendsFilter) ([]models.TrendBucket, error)
}

type analyticsClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type analyticsSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

// AnalyticsService serves the read-only aggregation views. Every view
// is cache-aside: a hit skips the database, writes to results
// invalidate the whole namespace.
type AnalyticsService struct {
	repo     analyticsRepository
	classes  analyticsClassRepository
	subjects analyticsSubjectRepository
	cache    *CacheService
	metrics  *MetricsService
	ttl      time.Duration
	logger   *zap.Logger
}

// NewAnalyticsService constructs an AnalyticsService instance.
func NewAnalyticsService(repo analyticsRepository, classes analyticsClassRepository, subjects analyticsSubjectRepository, cache *CacheService, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &AnalyticsService{repo: repo, classes: classes, subjects: subjects, cache: cache, metrics: metrics, ttl: ttl, logger: logger}
}

// TopPerformers ranks a class's students by average marks.
func (s *AnalyticsService) TopPerformers(ctx context.Context, filter models.TopPerformersFilter) ([]models.TopPerformer, error) {
	if _, err := s.classes.FindByID(ctx, filter.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	key := fmt.Sprintf("analytics:top:%s:%s:%d", filter.ClassID, semesterKey(filter.Semester), filter.Limit)
	var cached []models.TopPerformer
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	performers, err := s.repo.TopPerformers(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute top performers")
	}

	if err := s.cache.Set(ctx, key, performers, s.ttl); err != nil {
		s.logger.Warn("failed to cache top performers", zap.Error(err))
	}
	return performers, nil
}

// SubjectDistribution buckets a subject's results by grade together
// with the overall statistics block.
func (s *AnalyticsService) SubjectDistribution(ctx context.Context, filter models.DistributionFilter) (*models.SubjectDistribution, error) {
	subject, err := s.subjects.FindByID(ctx, filter.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	key := fmt.Sprintf("analytics:distribution:%s:%s", filter.SubjectID, semesterKey(filter.Semester))
	var cached models.SubjectDistribution
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	buckets, err := s.repo.GradeDistribution(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute grade distribution")
	}
	stats, err := s.repo.SubjectStatistics(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute subject statistics")
	}

	distribution := &models.SubjectDistribution{
		Subject: models.SubjectRef{
			ID:       subject.ID,
			Name:     subject.Name,
			Code:     subject.Code,
			MaxMarks: subject.MaxMarks,
		},
		Distribution: buckets,
		Statistics:   *stats,
	}

	if err := s.cache.Set(ctx, key, distribution, s.ttl); err != nil {
		s.logger.Warn("failed to cache subject distribution", zap.Error(err))
	}
	return distribution, nil
}

// Trends buckets results by year, month and semester of entry time.
func (s *AnalyticsService) Trends(ctx context.Context, filter models.TrendsFilter) ([]models.TrendBucket, error) {
	key := fmt.Sprintf("analytics:trends:%s:%s:%s:%s", timeKey(filter.From), timeKey(filter.To), filter.ClassID, filter.SubjectID)
	var cached []models.TrendBucket
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	buckets, err := s.repo.Trends(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute performance trends")
	}

	if err := s.cache.Set(ctx, key, buckets, s.ttl); err != nil {
		s.logger.Warn("failed to cache performance trends", zap.Error(err))
	}
	return buckets, nil
}

// SystemMetrics exposes the process snapshot for the admin dashboard.
func (s *AnalyticsService) SystemMetrics() models.SystemMetrics {
	return s.metrics.Snapshot()
}

func semesterKey(semester *int) string {
	if semester == nil {
		return "all"
	}
	return fmt.Sprintf("%d", *semester)
}

func timeKey(t *time.Time) string {
	if t == nil {
		return "any"
	}
	return t.UTC().Format("2006-01-02")
}
