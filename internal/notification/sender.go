package notification

import (
	"context"
	"time"

	"talento-local/internal/common/errors"
	"talento-local/internal/common/logger"
	"talento-local/internal/models"
)

// Sender hands one notification to a transport.
type Sender interface {
	Send(ctx context.Context, n models.Notification) error
}

// ProcessStarter starts a BPMN process instance; satisfied by camunda.Client.
type ProcessStarter interface {
	StartProcess(ctx context.Context, bpmnProcessID string, variables interface{}) (int64, error)
}

// Publisher publishes a JSON document; satisfied by aws.SNSClient.
type Publisher interface {
	PublishJSON(ctx context.Context, body interface{}, attributes map[string]string) (string, error)
}

// Variables is the document handed to every transport; the record-notification
// worker reads the same shape.
type Variables struct {
	NotificationID string                 `json:"notificationId"`
	UserID         string                 `json:"userId"`
	Event          string                 `json:"event"`
	Payload        map[string]interface{} `json:"payload"`
	CreatedAt      string                 `json:"createdAt"`
}

func toVariables(n models.Notification) Variables {
	payload := n.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Variables{
		NotificationID: n.ID.String(),
		UserID:         n.UserID.String(),
		Event:          string(n.Event),
		Payload:        payload,
		CreatedAt:      n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ZeebeSender starts one notification process instance per notification.
type ZeebeSender struct {
	starter   ProcessStarter
	processID string
}

func NewZeebeSender(starter ProcessStarter, processID string) *ZeebeSender {
	return &ZeebeSender{starter: starter, processID: processID}
}

func (s *ZeebeSender) Send(ctx context.Context, n models.Notification) error {
	if _, err := s.starter.StartProcess(ctx, s.processID, toVariables(n)); err != nil {
		return errors.NewNotificationSendFailedError(string(n.Event), err)
	}
	return nil
}

// SNSSender publishes notifications to a topic with the event as a message attribute.
type SNSSender struct {
	publisher Publisher
}

func NewSNSSender(publisher Publisher) *SNSSender {
	return &SNSSender{publisher: publisher}
}

func (s *SNSSender) Send(ctx context.Context, n models.Notification) error {
	attrs := map[string]string{
		"event":  string(n.Event),
		"userId": n.UserID.String(),
	}
	if _, err := s.publisher.PublishJSON(ctx, toVariables(n), attrs); err != nil {
		return errors.NewNotificationSendFailedError(string(n.Event), err)
	}
	return nil
}

// LogSender only logs. Used in development and when no transport is configured.
type LogSender struct {
	logger logger.Logger
}

func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{logger: log}
}

func (s *LogSender) Send(ctx context.Context, n models.Notification) error {
	s.logger.Info("notification", map[string]interface{}{
		"notificationId": n.ID.String(),
		"userId":         n.UserID.String(),
		"event":          string(n.Event),
		"payload":        n.Payload,
	})
	return nil
}
