package models

import "time"

// AttendanceStatus enumerates the attendance record states.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLeave   AttendanceStatus = "leave"
	AttendanceLate    AttendanceStatus = "late"
)

// Attendance holds one record per (student, subject, date). The date is
// normalized to midnight UTC before persistence.
type Attendance struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	SubjectID string           `db:"subject_id" json:"subject_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	Remarks   *string          `db:"remarks" json:"remarks,omitempty"`
	CreatedBy string           `db:"created_by" json:"created_by"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`

	RollNo      string `db:"roll_no" json:"roll_no,omitempty"`
	StudentName string `db:"student_name" json:"student_name,omitempty"`
	SubjectName string `db:"subject_name" json:"subject_name,omitempty"`
}

// AttendanceFilter captures filtering criteria for listing attendance.
type AttendanceFilter struct {
	StudentID string
	SubjectID string
	Status    string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// AttendanceStatusCount is one bucket of the per-status summary.
type AttendanceStatusCount struct {
	Status AttendanceStatus `db:"status" json:"status"`
	Count  int              `db:"count" json:"count"`
}

// AttendanceSubjectBreakdown is the per-subject slice of a summary.
type AttendanceSubjectBreakdown struct {
	SubjectID   string                  `json:"subject_id"`
	SubjectName string                  `json:"subject_name"`
	Total       int                     `json:"total"`
	Breakdown   []AttendanceStatusCount `json:"breakdown"`
}

// AttendanceSummary aggregates a student's attendance.
type AttendanceSummary struct {
	StudentID   string                       `json:"student_id"`
	RollNo      string                       `json:"roll_no"`
	Total       int                          `json:"total"`
	Present     int                          `json:"present"`
	Percentage  float64                      `json:"percentage"`
	Breakdown   []AttendanceStatusCount      `json:"breakdown"`
	SubjectWise []AttendanceSubjectBreakdown `json:"subject_wise,omitempty"`
}
