package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type teacherRepository interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	Delete(ctx context.Context, id string) error
}

type teacherSubjectRepository interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Subject, error)
}

// TeacherService manages teacher profiles together with their backing
// user accounts. A teacher's subject list is derived from subject
// assignments at read time.
type TeacherService struct {
	repo      teacherRepository
	users     studentUserRepository
	subjects  teacherSubjectRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService instance.
func NewTeacherService(repo teacherRepository, users studentUserRepository, subjects teacherSubjectRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TeacherService{repo: repo, users: users, subjects: subjects, audit: audit, validator: validate, logger: logger}
}

// Create registers a teacher account and its profile.
func (s *TeacherService) Create(ctx context.Context, actor *models.User, req models.CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         models.RoleTeacher,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	teacher := &models.Teacher{
		UserID:         user.ID,
		EmployeeID:     req.EmployeeID,
		Department:     req.Department,
		Qualification:  req.Qualification,
		Specialization: req.Specialization,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		if deactivateErr := s.users.Deactivate(ctx, user.ID); deactivateErr != nil {
			s.logger.Warn("failed to deactivate orphaned user", zap.String("user_id", user.ID), zap.Error(deactivateErr))
		}
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "employee id is already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}

	teacher.FirstName = user.FirstName
	teacher.LastName = user.LastName
	teacher.Email = user.Email

	if s.audit != nil {
		after, _ := json.Marshal(teacher)
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionCreate,
			ResourceType: "teacher",
			ResourceID:   &teacher.ID,
			After:        after,
			Status:       "success",
		})
	}

	return teacher, nil
}

// Get returns a teacher profile with its assigned subjects.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	subjects, err := s.subjects.ListByTeacher(ctx, teacher.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assigned subjects")
	}
	teacher.Subjects = subjects

	return teacher, nil
}

// GetByUser returns the teacher profile owned by a user account.
func (s *TeacherService) GetByUser(ctx context.Context, userID string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// List returns teachers with pagination metadata.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return teachers, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update modifies a teacher profile.
func (s *TeacherService) Update(ctx context.Context, actor *models.User, id string, req models.UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	before, _ := json.Marshal(teacher)

	if req.Department != nil {
		teacher.Department = *req.Department
	}
	if req.Qualification != nil {
		teacher.Qualification = req.Qualification
	}
	if req.Specialization != nil {
		teacher.Specialization = req.Specialization
	}

	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}

	if s.audit != nil {
		after, _ := json.Marshal(teacher)
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionUpdate,
			ResourceType: "teacher",
			ResourceID:   &teacher.ID,
			Before:       before,
			After:        after,
			Status:       "success",
		})
	}

	return teacher, nil
}

// Delete removes a teacher profile and deactivates the backing user.
// Subjects still assigned to the teacher keep their results; only the
// assignment pointer goes stale and should be reassigned.
func (s *TeacherService) Delete(ctx context.Context, actor *models.User, id string) error {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}
	if err := s.users.Deactivate(ctx, teacher.UserID); err != nil {
		s.logger.Warn("failed to deactivate user after teacher deletion", zap.String("user_id", teacher.UserID), zap.Error(err))
	}

	if s.audit != nil {
		before, _ := json.Marshal(teacher)
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionDelete,
			ResourceType: "teacher",
			ResourceID:   &id,
			Before:       before,
			Status:       "success",
		})
	}

	return nil
}
