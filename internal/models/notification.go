package models

import "time"

// NotificationType categorises in-app notifications.
type NotificationType string

const (
	NotificationDelay      NotificationType = "delay"
	NotificationApproval   NotificationType = "approval"
	NotificationAssignment NotificationType = "assignment"
	NotificationWarning    NotificationType = "warning"
)

// Notification is an in-app message polled by clients.
type Notification struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	Type          NotificationType `json:"type"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	Read          bool             `json:"read"`
	ApplicationID *string          `json:"applicationId,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}
