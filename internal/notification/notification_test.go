package notification

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"talento-local/internal/common/errors"
	"talento-local/internal/common/logger"
	"talento-local/internal/common/metrics"
	"talento-local/internal/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type MockStarter struct {
	mock.Mock
}

func (m *MockStarter) StartProcess(ctx context.Context, bpmnProcessID string, variables interface{}) (int64, error) {
	args := m.Called(ctx, bpmnProcessID, variables)
	return args.Get(0).(int64), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishJSON(ctx context.Context, body interface{}, attributes map[string]string) (string, error) {
	args := m.Called(ctx, body, attributes)
	return args.String(0), args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, n models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func sampleNotification() models.Notification {
	return models.Notification{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Event:     models.EventApplicationAccepted,
		Payload:   map[string]interface{}{"jobId": "j-1"},
		CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

// ==========================
// Senders
// ==========================

func TestZeebeSender(t *testing.T) {
	n := sampleNotification()
	starter := &MockStarter{}
	starter.On("StartProcess", mock.Anything, "talento-notification", mock.MatchedBy(func(v Variables) bool {
		return v.NotificationID == n.ID.String() &&
			v.UserID == n.UserID.String() &&
			v.Event == "application_accepted" &&
			v.CreatedAt == "2026-03-14T09:30:00Z"
	})).Return(int64(2251799813685249), nil).Once()

	err := NewZeebeSender(starter, "talento-notification").Send(context.Background(), n)

	require.NoError(t, err)
	starter.AssertExpectations(t)
}

func TestZeebeSender_Error(t *testing.T) {
	starter := &MockStarter{}
	starter.On("StartProcess", mock.Anything, mock.Anything, mock.Anything).
		Return(int64(0), fmt.Errorf("broker unavailable"))

	err := NewZeebeSender(starter, "talento-notification").Send(context.Background(), sampleNotification())

	assert.True(t, errors.Is(err, errors.ErrCodeNotificationSendFailed))
}

func TestSNSSender(t *testing.T) {
	n := sampleNotification()
	pub := &MockPublisher{}
	pub.On("PublishJSON", mock.Anything, mock.AnythingOfType("notification.Variables"), map[string]string{
		"event":  "application_accepted",
		"userId": n.UserID.String(),
	}).Return("msg-1", nil).Once()

	require.NoError(t, NewSNSSender(pub).Send(context.Background(), n))
	pub.AssertExpectations(t)
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sender := NewLogSender(logger.NewZapAdapter(zap.New(core)))

	require.NoError(t, sender.Send(context.Background(), sampleNotification()))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "application_accepted", logs.All()[0].ContextMap()["event"])
}

// ==========================
// Dispatcher
// ==========================

func TestDispatcher_FillsIdentityAndSends(t *testing.T) {
	sender := &MockSender{}
	userID := uuid.New()
	sender.On("Send", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.ID != uuid.Nil && !n.CreatedAt.IsZero() && n.UserID == userID
	})).Return(nil).Once()

	before := testutil.ToFloat64(metrics.NotificationsDispatched.WithLabelValues("new_application", "sent"))
	NewDispatcher(sender, time.Second, logger.NewTestLogger(t)).
		Notify(context.Background(), userID, models.EventNewApplication, nil)

	sender.AssertExpectations(t)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsDispatched.WithLabelValues("new_application", "sent")))
}

func TestDispatcher_SwallowsFailures(t *testing.T) {
	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(fmt.Errorf("topic not found"))

	core, logs := observer.New(zap.WarnLevel)
	d := NewDispatcher(sender, time.Second, logger.NewZapAdapter(zap.New(core)))

	before := testutil.ToFloat64(metrics.NotificationsDispatched.WithLabelValues("job_status_changed", "failed"))
	assert.NotPanics(t, func() {
		d.Notify(context.Background(), uuid.New(), models.EventJobStatusChanged, map[string]interface{}{"status": "completed"})
	})

	assert.Equal(t, 1, logs.FilterMessage("notification delivery failed").Len())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsDispatched.WithLabelValues("job_status_changed", "failed")))
}

type deadlineSender struct {
	sawDeadline bool
	ctxErr      error
}

func (s *deadlineSender) Send(ctx context.Context, n models.Notification) error {
	_, s.sawDeadline = ctx.Deadline()
	s.ctxErr = ctx.Err()
	return nil
}

func TestDispatcher_DetachesFromCallerCancellation(t *testing.T) {
	sender := &deadlineSender{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewDispatcher(sender, time.Second, logger.NewNoOpLogger()).
		Notify(ctx, uuid.New(), models.EventApplicationRejected, nil)

	assert.True(t, sender.sawDeadline)
	assert.NoError(t, sender.ctxErr)
}

type recordingSender struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.NotificationEvent
}

func (s *recordingSender) Send(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[n.UserID] = n.Event
	if n.Event == models.EventApplicationRejected && len(s.users)%2 == 0 {
		return fmt.Errorf("flaky transport")
	}
	return nil
}

func TestDispatcher_NotifyAll(t *testing.T) {
	sender := &recordingSender{users: map[uuid.UUID]models.NotificationEvent{}}
	d := NewDispatcher(sender, time.Second, logger.NewNoOpLogger())

	batch := []models.Notification{{UserID: uuid.New(), Event: models.EventApplicationAccepted}}
	for i := 0; i < 9; i++ {
		batch = append(batch, models.Notification{UserID: uuid.New(), Event: models.EventApplicationRejected})
	}

	d.NotifyAll(context.Background(), batch)

	assert.Len(t, sender.users, len(batch))
	for _, n := range batch {
		assert.Equal(t, n.Event, sender.users[n.UserID])
	}
}
