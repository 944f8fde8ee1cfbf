package models

import "time"

// NotificationCategory groups notifications for display
type NotificationCategory string

// NotificationCategory constants
const (
	NotificationBid    NotificationCategory = "BID"
	NotificationOrder  NotificationCategory = "ORDER"
	NotificationInfo   NotificationCategory = "INFO"
	NotificationSystem NotificationCategory = "SYSTEM"
)

// Notification is a durable, write-once message to a user
type Notification struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Message   string               `json:"message"`
	Category  NotificationCategory `json:"category"`
	CreatedAt time.Time            `json:"created_at"`
}
