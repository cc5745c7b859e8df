package models

import (
	"encoding/json"
	"time"
)

// NotificationType enumerates delivery channels.
type NotificationType string

const (
	NotifyEmail NotificationType = "email"
	NotifySMS   NotificationType = "sms"
	NotifyInApp NotificationType = "in-app"
	NotifyPush  NotificationType = "push"
)

// NotificationStatus enumerates delivery states.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationRead    NotificationStatus = "read"
)

// Notification is an in-app/outbound message addressed to one user.
type Notification struct {
	ID        string             `db:"id" json:"id"`
	UserID    string             `db:"user_id" json:"user_id"`
	Type      NotificationType   `db:"type" json:"type"`
	Title     string             `db:"title" json:"title"`
	Body      string             `db:"body" json:"body"`
	Priority  string             `db:"priority" json:"priority"`
	Data      json.RawMessage    `db:"data" json:"data,omitempty"`
	Status    NotificationStatus `db:"status" json:"status"`
	ReadAt    *time.Time         `db:"read_at" json:"read_at,omitempty"`
	SentAt    *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// CreateNotificationRequest is the creation payload.
type CreateNotificationRequest struct {
	UserID   string          `json:"user_id" validate:"required"`
	Type     string          `json:"type" validate:"omitempty,oneof=email sms in-app push"`
	Title    string          `json:"title" validate:"required"`
	Body     string          `json:"body" validate:"required"`
	Priority string          `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Data     json.RawMessage `json:"data"`
}

// NotificationFilter captures filtering criteria for listing notifications.
type NotificationFilter struct {
	UserID   string
	Unread   bool
	Page     int
	PageSize int
}
