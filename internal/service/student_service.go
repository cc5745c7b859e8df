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

type studentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	Delete(ctx context.Context, id string) error
}

type studentUserRepository interface {
	Create(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
}

// StudentService manages student profiles together with their backing
// user accounts.
type StudentService struct {
	repo      studentRepository
	users     studentUserRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService instance.
func NewStudentService(repo studentRepository, users studentUserRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{repo: repo, users: users, audit: audit, validator: validate, logger: logger}
}

// Create registers a student account and its profile. The backing user
// always carries the student role.
func (s *StudentService) Create(ctx context.Context, actor *models.User, req models.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
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
		Role:         models.RoleStudent,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	student := &models.Student{
		UserID:     user.ID,
		RollNo:     req.RollNo,
		Department: req.Department,
		Batch:      req.Batch,
		Semester:   req.Semester,
		ClassID:    req.ClassID,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		// Leave no orphaned login behind the failed profile.
		if deactivateErr := s.users.Deactivate(ctx, user.ID); deactivateErr != nil {
			s.logger.Warn("failed to deactivate orphaned user", zap.String("user_id", user.ID), zap.Error(deactivateErr))
		}
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "roll number is already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	student.FirstName = user.FirstName
	student.LastName = user.LastName
	student.Email = user.Email

	if s.audit != nil {
		after, _ := json.Marshal(student)
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionCreate,
			ResourceType: "student",
			ResourceID:   &student.ID,
			After:        after,
			Status:       "success",
		})
	}

	return student, nil
}

// Get returns a student profile.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// GetByUser returns the student profile owned by a user account.
func (s *StudentService) GetByUser(ctx context.Context, userID string) (*models.Student, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return students, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update modifies a student profile.
func (s *StudentService) Update(ctx context.Context, actor *models.User, id string, req models.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	before, _ := json.Marshal(student)

	if req.Department != nil {
		student.Department = *req.Department
	}
	if req.Batch != nil {
		student.Batch = *req.Batch
	}
	if req.Semester != nil {
		student.Semester = *req.Semester
	}
	if req.ClassID != nil {
		student.ClassID = req.ClassID
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	if s.audit != nil {
		after, _ := json.Marshal(student)
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionUpdate,
			ResourceType: "student",
			ResourceID:   &student.ID,
			Before:       before,
			After:        after,
			Status:       "success",
		})
	}

	return student, nil
}

// Delete removes a student profile and deactivates the backing user.
func (s *StudentService) Delete(ctx context.Context, actor *models.User, id string) error {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	if err := s.users.Deactivate(ctx, student.UserID); err != nil {
		s.logger.Warn("failed to deactivate user after student deletion", zap.String("user_id", student.UserID), zap.Error(err))
	}

	if s.audit != nil {
		before, _ := json.Marshal(student)
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionDelete,
			ResourceType: "student",
			ResourceID:   &id,
			Before:       before,
			Status:       "success",
		})
	}

	return nil
}
