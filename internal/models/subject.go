package models

import "time"

// SubjectCategory classifies how a subject is examined.
type SubjectCategory string

const (
	SubjectTheory    SubjectCategory = "theory"
	SubjectPractical SubjectCategory = "practical"
	SubjectBoth      SubjectCategory = "both"
)

// Subject defines the marking scheme every Result is derived from.
// Invariant: PassMarks <= MaxMarks, enforced on create/update.
type Subject struct {
	ID                string          `db:"id" json:"id"`
	Code              string          `db:"code" json:"code"`
	Name              string          `db:"name" json:"name"`
	MaxMarks          float64         `db:"max_marks" json:"max_marks"`
	PassMarks         float64         `db:"pass_marks" json:"pass_marks"`
	AssignedTeacherID *string         `db:"assigned_teacher_id" json:"assigned_teacher_id,omitempty"`
	Description       *string         `db:"description" json:"description,omitempty"`
	Category          SubjectCategory `db:"category" json:"category"`
	Credits           int             `db:"credits" json:"credits"`
	Active            bool            `db:"active" json:"active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// SubjectFilter captures filtering criteria for listing subjects.
type SubjectFilter struct {
	TeacherID string
	Category  string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
}

// CreateSubjectRequest is the subject creation payload.
type CreateSubjectRequest struct {
	Code              string  `json:"code" validate:"required"`
	Name              string  `json:"name" validate:"required"`
	MaxMarks          float64 `json:"max_marks" validate:"required,gt=0"`
	PassMarks         float64 `json:"pass_marks" validate:"required,gte=0"`
	AssignedTeacherID *string `json:"assigned_teacher_id"`
	Description       *string `json:"description"`
	Category          string  `json:"category" validate:"omitempty,oneof=theory practical both"`
	Credits           int     `json:"credits" validate:"omitempty,min=0"`
}

// UpdateSubjectRequest carries mutable subject fields.
type UpdateSubjectRequest struct {
	Name              *string  `json:"name"`
	MaxMarks          *float64 `json:"max_marks" validate:"omitempty,gt=0"`
	PassMarks         *float64 `json:"pass_marks" validate:"omitempty,gte=0"`
	AssignedTeacherID *string  `json:"assigned_teacher_id"`
	Description       *string  `json:"description"`
	Category          *string  `json:"category" validate:"omitempty,oneof=theory practical both"`
	Credits           *int     `json:"credits" validate:"omitempty,min=0"`
	Active            *bool    `json:"active"`
}
