package models

import "time"

// ExamType enumerates the supported exam kinds.
type ExamType string

const (
	ExamMid        ExamType = "mid"
	ExamFinal      ExamType = "final"
	ExamPractical  ExamType = "practical"
	ExamAssignment ExamType = "assignment"
)

// Result holds one mark entry per (student, subject, semester, exam type).
// Percentage, Grade, GradePoint and IsPassed are derived from MarksObtained
// and the subject's marking scheme on every write; they are never set
// directly by callers.
type Result struct {
	ID            string     `db:"id" json:"id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	SubjectID     string     `db:"subject_id" json:"subject_id"`
	Semester      int        `db:"semester" json:"semester"`
	ExamType      ExamType   `db:"exam_type" json:"exam_type"`
	MarksObtained float64    `db:"marks_obtained" json:"marks_obtained"`
	Percentage    float64    `db:"percentage" json:"percentage"`
	Grade         string     `db:"grade" json:"grade"`
	GradePoint    float64    `db:"grade_point" json:"grade_point"`
	IsPassed      bool       `db:"is_passed" json:"is_passed"`
	Remarks       *string    `db:"remarks" json:"remarks,omitempty"`
	CreatedBy     string     `db:"created_by" json:"created_by"`
	IsApproved    bool       `db:"is_approved" json:"is_approved"`
	ApprovedBy    *string    `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt    *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	// Joined for list/detail views.
	RollNo          string  `db:"roll_no" json:"roll_no,omitempty"`
	StudentName     string  `db:"student_name" json:"student_name,omitempty"`
	SubjectName     string  `db:"subject_name" json:"subject_name,omitempty"`
	SubjectCode     string  `db:"subject_code" json:"subject_code,omitempty"`
	SubjectMaxMarks float64 `db:"subject_max_marks" json:"subject_max_marks,omitempty"`
}

// ResultFilter captures filtering criteria for listing results.
type ResultFilter struct {
	StudentID string
	SubjectID string
	Semester  *int
	ExamType  string
	Approved  *bool
	Page      int
	PageSize  int
}
