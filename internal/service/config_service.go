package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/grading"
	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type configRepository interface {
	FindByKey(ctx context.Context, key string) (*models.ConfigEntry, error)
	Upsert(ctx context.Context, entry *models.ConfigEntry) error
	SeedIfMissing(ctx context.Context, entry *models.ConfigEntry) error
	List(ctx context.Context, category string) ([]models.ConfigEntry, error)
	Delete(ctx context.Context, key string) error
}

// ConfigService manages keyed runtime configuration. The grade scale
// and exam type list that the result path depends on are read through
// it so operators can adjust them without a deploy.
type ConfigService struct {
	repo      configRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConfigService constructs a ConfigService instance.
func NewConfigService(repo configRepository, validate *validator.Validate, logger *zap.Logger) *ConfigService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ConfigService{repo: repo, validator: validate, logger: logger}
}

// SeedDefaults inserts the configuration rows the result path depends
// on when they are missing. Existing rows are never overwritten, so
// reseeding at every boot is safe.
func (s *ConfigService) SeedDefaults(ctx context.Context) error {
	scale, err := json.Marshal(grading.DefaultScale())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to marshal default grade scale")
	}
	examTypes, err := json.Marshal([]models.ExamType{models.ExamMid, models.ExamFinal, models.ExamPractical, models.ExamAssignment})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to marshal default exam types")
	}

	desc := func(text string) *string { return &text }
	defaults := []models.ConfigEntry{
		{Key: models.ConfigKeyGradeMapping, Value: scale, Category: "grading", Description: desc("grade band table used when deriving results"), Active: true},
		{Key: models.ConfigKeyExamTypes, Value: examTypes, Category: "exam", Description: desc("accepted exam types"), Active: true},
		{Key: models.ConfigKeyPassingPercentage, Value: json.RawMessage(`40`), Category: "academic", Description: desc("overall passing percentage"), Active: true},
		{Key: models.ConfigKeyAttendanceThreshold, Value: json.RawMessage(`75`), Category: "academic", Description: desc("minimum attendance percentage"), Active: true},
	}

	for i := range defaults {
		if err := s.repo.SeedIfMissing(ctx, &defaults[i]); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seed configuration")
		}
	}
	return nil
}

// Get returns the configuration entry for a key.
func (s *ConfigService) Get(ctx context.Context, key string) (*models.ConfigEntry, error) {
	entry, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "configuration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load configuration")
	}
	return entry, nil
}

// List returns configuration entries, optionally scoped to a category.
func (s *ConfigService) List(ctx context.Context, category string) ([]models.ConfigEntry, error) {
	entries, err := s.repo.List(ctx, category)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list configuration")
	}
	return entries, nil
}

// Upsert writes a configuration entry. Grade mapping payloads are
// validated as a band table before they can reach the result path.
func (s *ConfigService) Upsert(ctx context.Context, actorID string, req models.UpsertConfigRequest) (*models.ConfigEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid configuration payload")
	}

	if req.Key == models.ConfigKeyGradeMapping {
		var scale grading.Scale
		if err := json.Unmarshal(req.Value, &scale); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "grade mapping is not a band table")
		}
		if _, err := scale.Normalize(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade mapping")
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	entry := &models.ConfigEntry{
		Key:         req.Key,
		Value:       req.Value,
		Category:    req.Category,
		Description: req.Description,
		Active:      active,
		UpdatedBy:   &actorID,
	}

	if err := s.repo.Upsert(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store configuration")
	}
	return entry, nil
}

// Delete removes a configuration entry by key.
func (s *ConfigService) Delete(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "configuration not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete configuration")
	}
	return nil
}

// GradeScale returns the configured band table, falling back to the
// default scale when the row is missing or unreadable.
func (s *ConfigService) GradeScale(ctx context.Context) grading.Scale {
	entry, err := s.repo.FindByKey(ctx, models.ConfigKeyGradeMapping)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load grade mapping, using default scale", zap.Error(err))
		}
		return grading.DefaultScale()
	}
	var scale grading.Scale
	if err := json.Unmarshal(entry.Value, &scale); err != nil {
		s.logger.Warn("stored grade mapping is malformed, using default scale", zap.Error(err))
		return grading.DefaultScale()
	}
	normalized, err := scale.Normalize()
	if err != nil {
		s.logger.Warn("stored grade mapping is invalid, using default scale", zap.Error(err))
		return grading.DefaultScale()
	}
	return normalized
}

// ExamTypes returns the accepted exam types, falling back to the
// built-in list.
func (s *ConfigService) ExamTypes(ctx context.Context) []models.ExamType {
	fallback := []models.ExamType{models.ExamMid, models.ExamFinal, models.ExamPractical, models.ExamAssignment}
	entry, err := s.repo.FindByKey(ctx, models.ConfigKeyExamTypes)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load exam types, using defaults", zap.Error(err))
		}
		return fallback
	}
	var types []models.ExamType
	if err := json.Unmarshal(entry.Value, &types); err != nil || len(types) == 0 {
		s.logger.Warn("stored exam types are malformed, using defaults", zap.Error(err))
		return fallback
	}
	return types
}
