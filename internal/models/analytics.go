package models

import "time"

// TopPerformer is one row of the class top-performers view.
type TopPerformer struct {
	StudentID     string  `db:"student_id" json:"student_id"`
	Name          string  `db:"name" json:"name"`
	RollNo        string  `db:"roll_no" json:"roll_no"`
	AvgMarks      float64 `db:"avg_marks" json:"avg_marks"`
	AvgGradePoint float64 `db:"avg_grade_point" json:"avg_grade_point"`
	TotalSubjects int     `db:"total_subjects" json:"total_subjects"`
}

// TopPerformersFilter scopes the top-performers query.
type TopPerformersFilter struct {
	ClassID  string
	Semester *int
	Limit    int
}

// GradeBucket is one grade slice of a subject distribution.
type GradeBucket struct {
	Grade    string  `db:"grade" json:"grade"`
	Count    int     `db:"count" json:"count"`
	AvgMarks float64 `db:"avg_marks" json:"avg_marks"`
}

// SubjectStatistics is the overall statistics block of a distribution.
type SubjectStatistics struct {
	TotalStudents int     `db:"total_students" json:"total_students"`
	AvgMarks      float64 `db:"avg_marks" json:"avg_marks"`
	MaxMarks      float64 `db:"max_marks" json:"max_marks"`
	MinMarks      float64 `db:"min_marks" json:"min_marks"`
	PassedCount   int     `db:"passed_count" json:"passed_count"`
}

// SubjectDistribution bundles the grade buckets with overall statistics.
type SubjectDistribution struct {
	Subject      SubjectRef        `json:"subject"`
	Distribution []GradeBucket     `json:"distribution"`
	Statistics   SubjectStatistics `json:"statistics"`
}

// SubjectRef is the summary of the subject a view is scoped to.
type SubjectRef struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Code     string  `json:"code"`
	MaxMarks float64 `json:"max_marks"`
}

// DistributionFilter scopes the subject distribution query.
type DistributionFilter struct {
	SubjectID string
	Semester  *int
}

// TrendBucket is one (year, month, semester) slice of the trends view.
type TrendBucket struct {
	Year          int     `db:"year" json:"year"`
	Month         int     `db:"month" json:"month"`
	Semester      int     `db:"semester" json:"semester"`
	Period        string  `db:"-" json:"period"`
	AvgMarks      float64 `db:"avg_marks" json:"avg_marks"`
	AvgGradePoint float64 `db:"avg_grade_point" json:"avg_grade_point"`
	TotalResults  int     `db:"total_results" json:"total_results"`
	PassRate      float64 `db:"pass_rate" json:"pass_rate"`
}

// TrendsFilter scopes the performance trend query.
type TrendsFilter struct {
	From      *time.Time
	To        *time.Time
	ClassID   string
	SubjectID string
}

// SystemMetrics is a lightweight process snapshot for the admin
// dashboard; the full series lives behind the Prometheus endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
