package models

import "time"

// StudentPerformance is one per-student row of a class report. Passed is
// the AND across the student's results; AvgGradePoint is the mean. The
// two reducers are intentionally different.
type StudentPerformance struct {
	StudentID     string  `db:"student_id" json:"student_id"`
	Name          string  `db:"name" json:"name"`
	RollNo        string  `db:"roll_no" json:"roll_no"`
	AvgMarks      float64 `db:"avg_marks" json:"avg_marks"`
	AvgGradePoint float64 `db:"avg_grade_point" json:"avg_grade_point"`
	TotalSubjects int     `db:"total_subjects" json:"total_subjects"`
	Passed        bool    `db:"passed" json:"passed"`
}

// StudentReportSummary is the aggregate block of a student report.
type StudentReportSummary struct {
	TotalSubjects int     `json:"total_subjects"`
	TotalMarks    float64 `json:"total_marks"`
	MaxPossible   float64 `json:"max_possible"`
	Percentage    float64 `json:"percentage"`
	CGPA          float64 `json:"cgpa"`
	Passed        bool    `json:"passed"`
}

// StudentReport is the full per-student report.
type StudentReport struct {
	Student  StudentRef           `json:"student"`
	Semester string               `json:"semester"`
	Summary  StudentReportSummary `json:"summary"`
	Results  []Result             `json:"results"`
}

// StudentRef summarizes the student a report is scoped to.
type StudentRef struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	RollNo     string  `json:"roll_no"`
	Department string  `json:"department"`
	Batch      string  `json:"batch"`
	ClassID    *string `json:"class_id,omitempty"`
}

// ClassStatistics is the aggregate block of a class report.
type ClassStatistics struct {
	TotalStudents       int     `json:"total_students"`
	PassedStudents      int     `json:"passed_students"`
	FailedStudents      int     `json:"failed_students"`
	PassPercentage      float64 `json:"pass_percentage"`
	AvgClassPerformance float64 `json:"avg_class_performance"`
}

// ClassReport is the full per-class report.
type ClassReport struct {
	Class       ClassRef             `json:"class"`
	Statistics  ClassStatistics      `json:"statistics"`
	Performance []StudentPerformance `json:"performance"`
}

// ClassRef summarizes the class a report is scoped to.
type ClassRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Year     int    `json:"year"`
	Semester int    `json:"semester"`
}

// ReportType enumerates exportable reports.
type ReportType string

const (
	ReportTypeStudent ReportType = "student"
	ReportTypeClass   ReportType = "class"
)

// ReportFormat enumerates export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus enumerates export job states.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "queued"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusFinished   ReportStatus = "finished"
	ReportStatusFailed     ReportStatus = "failed"
)

// ReportJob tracks one asynchronous export.
type ReportJob struct {
	ID           string       `db:"id" json:"id"`
	Type         ReportType   `db:"type" json:"type"`
	TargetID     string       `db:"target_id" json:"target_id"`
	Semester     *int         `db:"semester" json:"semester,omitempty"`
	Format       ReportFormat `db:"format" json:"format"`
	Status       ReportStatus `db:"status" json:"status"`
	Progress     int          `db:"progress" json:"progress"`
	ResultURL    *string      `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}
