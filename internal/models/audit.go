package models

import (
	"encoding/json"
	"time"
)

// Audit action constants used across the services.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionRegister       = "REGISTER"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionCreate         = "CREATE"
	AuditActionUpdate         = "UPDATE"
	AuditActionDelete         = "DELETE"
	AuditActionApprove        = "APPROVE"
	AuditActionEnterMarks     = "ENTER_MARKS"
	AuditActionMarkAttendance = "MARK_ATTENDANCE"
	AuditActionEnroll         = "ENROLL"
	AuditActionUnenroll       = "UNENROLL"
)

// AuditLog is an append-only record of a mutation. Entries expire after
// the configured retention window.
type AuditLog struct {
	ID           string          `db:"id" json:"id"`
	ActorID      *string         `db:"actor_id" json:"actor_id,omitempty"`
	Action       string          `db:"action" json:"action"`
	ResourceType string          `db:"resource_type" json:"resource_type"`
	ResourceID   *string         `db:"resource_id" json:"resource_id,omitempty"`
	Before       json.RawMessage `db:"before" json:"before,omitempty"`
	After        json.RawMessage `db:"after" json:"after,omitempty"`
	IPAddress    string          `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent    string          `db:"user_agent" json:"user_agent,omitempty"`
	Status       string          `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// AuditFilter captures filtering criteria for listing audit logs.
type AuditFilter struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}
