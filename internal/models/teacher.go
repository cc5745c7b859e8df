package models

import "time"

// Teacher is the profile entity extending a User 1:1. Assigned subjects
// are derived from subjects.assigned_teacher_id, never stored here.
type Teacher struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	EmployeeID     string    `db:"employee_id" json:"employee_id"`
	Department     string    `db:"department" json:"department"`
	Qualification  *string   `db:"qualification" json:"qualification,omitempty"`
	Specialization *string   `db:"specialization" json:"specialization,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`

	FirstName string `db:"first_name" json:"first_name,omitempty"`
	LastName  string `db:"last_name" json:"last_name,omitempty"`
	Email     string `db:"email" json:"email,omitempty"`

	Subjects []Subject `db:"-" json:"subjects,omitempty"`
}

// TeacherFilter captures filtering criteria for listing teachers.
type TeacherFilter struct {
	Department string
	Search     string
	Page       int
	PageSize   int
}

// CreateTeacherRequest creates the backing user and the profile together.
type CreateTeacherRequest struct {
	FirstName      string  `json:"first_name" validate:"required"`
	LastName       string  `json:"last_name" validate:"required"`
	Email          string  `json:"email" validate:"required,email"`
	Password       string  `json:"password" validate:"required,min=8"`
	EmployeeID     string  `json:"employee_id" validate:"required"`
	Department     string  `json:"department" validate:"required"`
	Qualification  *string `json:"qualification"`
	Specialization *string `json:"specialization"`
}

// UpdateTeacherRequest carries mutable profile fields.
type UpdateTeacherRequest struct {
	Department     *string `json:"department"`
	Qualification  *string `json:"qualification"`
	Specialization *string `json:"specialization"`
}
