// internal/workers/notification/record-notification/handler.go
package recordnotification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"talento-local/internal/common/errors"
	"talento-local/internal/common/logger"
	"talento-local/internal/common/metrics"
	"talento-local/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "record-notification"
)

const insertNotification = `
	INSERT INTO notifications (id, user_id, event, payload, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO NOTHING`

var knownEvents = map[models.NotificationEvent]bool{
	models.EventNewApplication:       true,
	models.EventApplicationAccepted:  true,
	models.EventApplicationRejected:  true,
	models.EventApplicationCancelled: true,
	models.EventJobStatusChanged:     true,
}

// Handler stores each notification the API emitted so the app can list them.
// Zeebe may deliver the same job twice; the id makes the insert idempotent.
type Handler struct {
	config       *Config
	db           *sql.DB
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
	now          func() time.Time
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		db:           db,
		logger:       log,
		errorHandler: errors.NewErrorHandler(log),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, errors.NewParseError(fmt.Errorf("parse input: %w", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

type record struct {
	id        uuid.UUID
	userID    uuid.UUID
	event     models.NotificationEvent
	payload   []byte
	createdAt time.Time
}

func (h *Handler) validate(input *Input) (*record, error) {
	id, err := uuid.Parse(input.NotificationID)
	if err != nil {
		return nil, errors.NewValidationError("notificationId must be a UUID")
	}
	userID, err := uuid.Parse(input.UserID)
	if err != nil {
		return nil, errors.NewValidationError("userId must be a UUID")
	}
	event := models.NotificationEvent(input.Event)
	if !knownEvents[event] {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown event %q", input.Event))
	}

	createdAt := h.now()
	if input.CreatedAt != "" {
		createdAt, err = time.Parse(time.RFC3339, input.CreatedAt)
		if err != nil {
			return nil, errors.NewValidationError("createdAt must be RFC 3339")
		}
	}

	payload := input.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewParseError(err)
	}

	return &record{id: id, userID: userID, event: event, payload: payloadJSON, createdAt: createdAt}, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	rec, err := h.validate(input)
	if err != nil {
		return nil, err
	}

	res, err := h.db.ExecContext(ctx, insertNotification,
		rec.id, rec.userID, string(rec.event), rec.payload, rec.createdAt)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTimeoutError("postgres", err)
		}
		return nil, errors.NewDatabaseInsertFailedError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.NewDatabaseInsertFailedError(err)
	}

	recorded := affected > 0
	if recorded {
		h.logger.Info("notification recorded", map[string]interface{}{
			"notificationId": rec.id.String(),
			"userId":         rec.userID.String(),
			"event":          string(rec.event),
		})
	} else {
		h.logger.Debug("notification already recorded", map[string]interface{}{
			"notificationId": rec.id.String(),
		})
	}

	return &Output{
		NotificationID: rec.id.String(),
		Recorded:       recorded,
		RecordedAt:     h.now().Format(time.RFC3339),
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
