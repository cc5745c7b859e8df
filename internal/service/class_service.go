package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type classRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	Roster(ctx context.Context, classID string) ([]models.Student, error)
	Deactivate(ctx context.Context, id string) error
}

type classStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	SetClass(ctx context.Context, studentID string, classID *string) error
	CountByClass(ctx context.Context, classID string) (int, error)
}

// ClassService manages class rosters. Enrollment capacity is checked
// against the live roster count, so MaxStrength is a soft cap under
// concurrent enrollment.
type ClassService struct {
	repo      classRepository
	students  classStudentRepository
	teachers  subjectTeacherRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService instance.
func NewClassService(repo classRepository, students classStudentRepository, teachers subjectTeacherRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClassService{repo: repo, students: students, teachers: teachers, audit: audit, validator: validate, logger: logger}
}

// Create registers a class.
func (s *ClassService) Create(ctx context.Context, actor *models.User, req models.CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if req.ClassTeacherID != nil {
		if err := s.checkTeacher(ctx, *req.ClassTeacherID); err != nil {
			return nil, err
		}
	}

	maxStrength := req.MaxStrength
	if maxStrength <= 0 {
		maxStrength = 60
	}

	class := &models.Class{
		Name:           req.Name,
		Code:           req.Code,
		Year:           req.Year,
		Semester:       req.Semester,
		ClassTeacherID: req.ClassTeacherID,
		MaxStrength:    maxStrength,
		Active:         true,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "class code is already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}

	if s.audit != nil {
		after, _ := json.Marshal(class)
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionCreate,
			ResourceType: "class",
			ResourceID:   &class.ID,
			After:        after,
			Status:       "success",
		})
	}

	return class, nil
}

// Get returns a class with its current roster strength.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update modifies a class. Shrinking MaxStrength below the current
// roster is rejected rather than evicting students.
func (s *ClassService) Update(ctx context.Context, actor *models.User, id string, req models.UpdateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	before, _ := json.Marshal(class)

	if req.Name != nil {
		class.Name = *req.Name
	}
	if req.ClassTeacherID != nil {
		if *req.ClassTeacherID != "" {
			if err := s.checkTeacher(ctx, *req.ClassTeacherID); err != nil {
				return nil, err
			}
			class.ClassTeacherID = req.ClassTeacherID
		} else {
			class.ClassTeacherID = nil
		}
	}
	if req.MaxStrength != nil {
		if *req.MaxStrength < class.CurrentStrength {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("max strength cannot drop below the current roster of %d", class.CurrentStrength))
		}
		class.MaxStrength = *req.MaxStrength
	}
	if req.Active != nil {
		class.Active = *req.Active
	}

	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}

	if s.audit != nil {
		after, _ := json.Marshal(class)
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionUpdate,
			ResourceType: "class",
			ResourceID:   &class.ID,
			Before:       before,
			After:        after,
			Status:       "success",
		})
	}

	return class, nil
}

// Roster returns the students enrolled in a class.
func (s *ClassService) Roster(ctx context.Context, id string) ([]models.Student, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	students, err := s.repo.Roster(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return students, nil
}

// EnrollStudent assigns a student to the class, respecting capacity.
func (s *ClassService) EnrollStudent(ctx context.Context, actor *models.User, classID string, req models.EnrollStudentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	class, err := s.Get(ctx, classID)
	if err != nil {
		return err
	}
	if !class.Active {
		return appErrors.Clone(appErrors.ErrValidation, "cannot enroll into an inactive class")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ClassID != nil && *student.ClassID == classID {
		return appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this class")
	}

	count, err := s.students.CountByClass(ctx, classID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count roster")
	}
	if count >= class.MaxStrength {
		return appErrors.Clone(appErrors.ErrConflict, "class is at full strength")
	}

	if err := s.students.SetClass(ctx, student.ID, &classID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}

	if s.audit != nil {
		after, _ := json.Marshal(map[string]string{"student_id": student.ID, "class_id": classID})
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionEnroll,
			ResourceType: "class",
			ResourceID:   &classID,
			After:        after,
			Status:       "success",
		})
	}

	return nil
}

// RemoveStudent detaches a student from the class roster.
func (s *ClassService) RemoveStudent(ctx context.Context, actor *models.User, classID, studentID string) error {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ClassID == nil || *student.ClassID != classID {
		return appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this class")
	}

	if err := s.students.SetClass(ctx, student.ID, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove student")
	}

	if s.audit != nil {
		after, _ := json.Marshal(map[string]string{"student_id": student.ID})
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionUnenroll,
			ResourceType: "class",
			ResourceID:   &classID,
			After:        after,
			Status:       "success",
		})
	}

	return nil
}

// Deactivate soft-deletes a class without touching enrolled students.
func (s *ClassService) Deactivate(ctx context.Context, actor *models.User, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate class")
	}

	if s.audit != nil {
		s.audit.Record(ctx, models.AuditLog{
			ActorID:      &actor.ID,
			Action:       models.AuditActionDelete,
			ResourceType: "class",
			ResourceID:   &id,
			After:        []byte(`{"active":false}`),
			Status:       "success",
		})
	}

	return nil
}

func (s *ClassService) checkTeacher(ctx context.Context, teacherID string) error {
	if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return nil
}
