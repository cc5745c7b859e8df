package models

import "time"

// Student is the profile entity extending a User 1:1.
type Student struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	RollNo     string    `db:"roll_no" json:"roll_no"`
	Department string    `db:"department" json:"department"`
	Batch      string    `db:"batch" json:"batch"`
	Semester   int       `db:"semester" json:"semester"`
	ClassID    *string   `db:"class_id" json:"class_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`

	// Joined from users for list/detail views.
	FirstName string `db:"first_name" json:"first_name,omitempty"`
	LastName  string `db:"last_name" json:"last_name,omitempty"`
	Email     string `db:"email" json:"email,omitempty"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	Department string
	Batch      string
	ClassID    string
	Semester   *int
	Search     string
	Page       int
	PageSize   int
}

// CreateStudentRequest creates the backing user and the profile together.
type CreateStudentRequest struct {
	FirstName  string  `json:"first_name" validate:"required"`
	LastName   string  `json:"last_name" validate:"required"`
	Email      string  `json:"email" validate:"required,email"`
	Password   string  `json:"password" validate:"required,min=8"`
	RollNo     string  `json:"roll_no" validate:"required"`
	Department string  `json:"department" validate:"required"`
	Batch      string  `json:"batch" validate:"required"`
	Semester   int     `json:"semester" validate:"required,min=1"`
	ClassID    *string `json:"class_id"`
}

// UpdateStudentRequest carries mutable profile fields.
type UpdateStudentRequest struct {
	Department *string `json:"department"`
	Batch      *string `json:"batch"`
	Semester   *int    `json:"semester" validate:"omitempty,min=1"`
	ClassID    *string `json:"class_id"`
}
