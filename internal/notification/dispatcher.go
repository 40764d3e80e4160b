package notification

import (
	"context"
	"time"

	"talento-local/internal/common/logger"
	"talento-local/internal/common/metrics"
	"talento-local/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentSends = 4

// Dispatcher delivers notifications best-effort. Sends run detached from the
// caller's cancellation but bounded by timeout; failures are logged and counted,
// never returned.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  logger.Logger
	now     func() time.Time
}

func NewDispatcher(sender Sender, timeout time.Duration, log logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		sender:  sender,
		timeout: timeout,
		logger:  log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, event models.NotificationEvent, payload map[string]interface{}) {
	d.send(ctx, models.Notification{UserID: userID, Event: event, Payload: payload})
}

// NotifyAll sends every notification, a few at a time, and returns when all are done.
func (d *Dispatcher) NotifyAll(ctx context.Context, notifications []models.Notification) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentSends)
	for _, n := range notifications {
		n := n
		g.Go(func() error {
			d.send(ctx, n)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) send(ctx context.Context, n models.Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.sender.Send(sendCtx, n); err != nil {
		metrics.NotificationsDispatched.WithLabelValues(string(n.Event), "failed").Inc()
		d.logger.Warn("notification delivery failed", map[string]interface{}{
			"notificationId": n.ID.String(),
			"userId":         n.UserID.String(),
			"event":          string(n.Event),
			"error":          err.Error(),
		})
		return
	}
	metrics.NotificationsDispatched.WithLabelValues(string(n.Event), "sent").Inc()
}
