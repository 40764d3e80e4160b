// internal/models/notification.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationEvent string

const (
	EventNewApplication       NotificationEvent = "new_application"
	EventApplicationAccepted  NotificationEvent = "application_accepted"
	EventApplicationRejected  NotificationEvent = "application_rejected"
	EventApplicationCancelled NotificationEvent = "application_cancelled"
	EventJobStatusChanged     NotificationEvent = "job_status_changed"
)

type Notification struct {
	ID        uuid.UUID              `json:"id"`
	UserID    uuid.UUID              `json:"userId"`
	Event     NotificationEvent      `json:"event"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"createdAt"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
}
