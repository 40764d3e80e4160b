// internal/workers/notification/record-notification/models.go
package recordnotification

type Input struct {
	NotificationID string                 `json:"notificationId"`
	UserID         string                 `json:"userId"`
	Event          string                 `json:"event"`
	Payload        map[string]interface{} `json:"payload"`
	CreatedAt      string                 `json:"createdAt"` // ISO 8601, optional
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Recorded       bool   `json:"recorded"`   // false when this id was already stored
	RecordedAt     string `json:"recordedAt"` // ISO 8601
}
