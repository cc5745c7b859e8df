package models

import (
	"encoding/json"
	"time"
)

// Config keys seeded at process start.
const (
	ConfigKeyGradeMapping        = "GRADE_MAPPING"
	ConfigKeyExamTypes           = "EXAM_TYPES"
	ConfigKeyPassingPercentage   = "PASSING_PERCENTAGE"
	ConfigKeyAttendanceThreshold = "ATTENDANCE_THRESHOLD"
)

// ConfigEntry is a keyed configuration row with a JSON value.
type ConfigEntry struct {
	ID          string          `db:"id" json:"id"`
	Key         string          `db:"key" json:"key"`
	Value       json.RawMessage `db:"value" json:"value"`
	Category    string          `db:"category" json:"category"`
	Description *string         `db:"description" json:"description,omitempty"`
	Active      bool            `db:"active" json:"active"`
	UpdatedBy   *string         `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// UpsertConfigRequest sets a configuration value by key.
type UpsertConfigRequest struct {
	Key         string          `json:"key" validate:"required"`
	Value       json.RawMessage `json:"value" validate:"required"`
	Category    string          `json:"category" validate:"required,oneof=system grading exam notification academic"`
	Description *string         `json:"description"`
	Active      *bool           `json:"active"`
}
