package models

import "time"

// Class is the roster entity. CurrentStrength is derived from the
// roster count at read time and never stored.
type Class struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Code           string    `db:"code" json:"code"`
	Year           int       `db:"year" json:"year"`
	Semester       int       `db:"semester" json:"semester"`
	ClassTeacherID *string   `db:"class_teacher_id" json:"class_teacher_id,omitempty"`
	MaxStrength    int       `db:"max_strength" json:"max_strength"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`

	CurrentStrength int `db:"current_strength" json:"current_strength"`
}

// ClassFilter captures filtering criteria for listing classes.
type ClassFilter struct {
	Year     *int
	Semester *int
	Active   *bool
	Search   string
	Page     int
	PageSize int
}

// CreateClassRequest is the class creation payload.
type CreateClassRequest struct {
	Name           string  `json:"name" validate:"required"`
	Code           string  `json:"code" validate:"required"`
	Year           int     `json:"year" validate:"required"`
	Semester       int     `json:"semester" validate:"required,min=1"`
	ClassTeacherID *string `json:"class_teacher_id"`
	MaxStrength    int     `json:"max_strength" validate:"omitempty,min=1"`
}

// UpdateClassRequest carries mutable class fields.
type UpdateClassRequest struct {
	Name           *string `json:"name"`
	ClassTeacherID *string `json:"class_teacher_id"`
	MaxStrength    *int    `json:"max_strength" validate:"omitempty,min=1"`
	Active         *bool   `json:"active"`
}

// EnrollStudentRequest adds a student to a class roster.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}
