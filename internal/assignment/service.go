package assignment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"talento-local/internal/common/database"
	"talento-local/internal/common/errors"
	"talento-local/internal/common/logger"
	"talento-local/internal/common/metrics"
	"talento-local/internal/models"

	"github.com/google/uuid"
)

// Notifier delivers a best-effort notification. It never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event models.NotificationEvent, payload map[string]interface{})
}

// BatchNotifier is implemented by notifiers that can fan out several
// notifications at once.
type BatchNotifier interface {
	NotifyAll(ctx context.Context, notifications []models.Notification)
}

// JobIndexer keeps the search index in step with committed job changes.
type JobIndexer interface {
	IndexJob(ctx context.Context, job *models.Job) error
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

type Recorder interface {
	RecordOperation(ctx context.Context, operation, outcome string, duration time.Duration)
}

const maxMessageLength = 2000

type Service struct {
	store    Store
	notifier Notifier
	indexer  JobIndexer
	recorder Recorder
	logger   logger.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithIndexer(indexer JobIndexer) Option {
	return func(s *Service) { s.indexer = indexer }
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, notifier Notifier, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SubmitInput struct {
	JobID          uuid.UUID
	Message        string
	ProposedBudget *float64
}

type CreateJobInput struct {
	Title       string
	Description string
	Category    string
	Budget      models.Budget
	Location    models.Location
	Urgency     models.Urgency
	NeededDate  *time.Time
	// Status is active (default) or draft.
	Status models.JobStatus
}

// Assignment is the committed outcome of AcceptApplication.
type Assignment struct {
	Job         *models.Job              `json:"job"`
	Application *models.JobApplication   `json:"application"`
	Rejected    []RejectedApplicationRef `json:"rejectedApplications"`
}

type RejectedApplicationRef struct {
	ID       uuid.UUID `json:"id"`
	WorkerID uuid.UUID `json:"workerId"`
}

// ==========================
// Applications
// ==========================

func (s *Service) SubmitApplication(ctx context.Context, actor models.Actor, in SubmitInput) (app *models.JobApplication, err error) {
	defer s.observe(ctx, OpSubmitApplication, s.now(), &err)

	if err := Authorize(OpSubmitApplication, actor, Facts{}); err != nil {
		return nil, err
	}
	if in.JobID == uuid.Nil {
		return nil, errors.NewValidationError("jobId is required")
	}
	if in.ProposedBudget != nil && *in.ProposedBudget < 0 {
		return nil, errors.NewValidationError("proposedBudget must not be negative")
	}
	if len(in.Message) > maxMessageLength {
		return nil, errors.NewValidationError(fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}

	job, err := s.store.GetJob(ctx, in.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusActive {
		return nil, errors.NewJobNotActiveError(job.ID.String(), string(job.Status))
	}

	exists, err := s.store.ApplicationExists(ctx, job.ID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.NewDuplicateApplicationError(job.ID.String(), actor.UserID.String())
	}

	now := s.now()
	app = &models.JobApplication{
		ID:             uuid.New(),
		JobID:          job.ID,
		WorkerID:       actor.UserID,
		Message:        strings.TrimSpace(in.Message),
		ProposedBudget: in.ProposedBudget,
		Status:         models.ApplicationPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	inserted, err := s.store.InsertApplication(ctx, app)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.NewDuplicateApplicationError(job.ID.String(), actor.UserID.String())
		}
		return nil, err
	}
	if !inserted {
		// The job left active between the read and the insert.
		return nil, errors.NewJobNotActiveError(job.ID.String(), "no longer active")
	}

	s.notify(ctx, job.ClientID, models.EventNewApplication, map[string]interface{}{
		"applicationId": app.ID.String(),
		"jobId":         job.ID.String(),
		"jobTitle":      job.Title,
		"workerId":      actor.UserID.String(),
	})

	return app, nil
}

// AcceptApplication accepts one pending application, rejects its pending
// siblings and assigns the job in a single transaction. The job row is locked
// FOR UPDATE first, so a concurrent accept on the same job waits and then sees
// the job is no longer active.
func (s *Service) AcceptApplication(ctx context.Context, actor models.Actor, applicationID uuid.UUID) (result *Assignment, err error) {
	defer s.observe(ctx, OpAcceptApplication, s.now(), &err)

	var (
		job      *models.Job
		app      *models.JobApplication
		rejected []RejectedApplication
	)

	err = s.store.InTx(ctx, func(q Queries) error {
		current, err := q.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}

		job, err = q.GetJobForUpdate(ctx, current.JobID)
		if err != nil {
			return err
		}
		app, err = q.GetApplicationForUpdate(ctx, applicationID)
		if err != nil {
			return err
		}

		if err := Authorize(OpAcceptApplication, actor, Facts{JobOwnerID: job.ClientID}); err != nil {
			return err
		}
		if app.Status != models.ApplicationPending {
			return errors.NewConflictError(fmt.Sprintf("application is %s, not pending", app.Status))
		}
		if job.Status != models.JobStatusActive {
			return errors.NewConflictError(fmt.Sprintf("job is %s, not active", job.Status))
		}

		now := s.now()
		ok, err := q.SetApplicationStatus(ctx, app.ID, models.ApplicationPending, models.ApplicationAccepted, now, true)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NewConflictError("application is no longer pending")
		}

		rejected, err = q.RejectPendingSiblings(ctx, job.ID, app.ID, now)
		if err != nil {
			return err
		}

		ok, err = q.SetJobStatus(ctx, job.ID, models.JobStatusActive, models.JobStatusInProgress, now, &app.WorkerID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NewConflictError("job is no longer active")
		}

		app.Status = models.ApplicationAccepted
		app.ReviewedAt = &now
		app.UpdatedAt = now
		workerID := app.WorkerID
		job.Status = models.JobStatusInProgress
		job.AssignedWorkerID = &workerID
		job.AssignedAt = &now
		job.StartedAt = &now
		job.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.txError(ctx, OpAcceptApplication, err)
	}

	outbox := []models.Notification{{
		UserID: app.WorkerID,
		Event:  models.EventApplicationAccepted,
		Payload: map[string]interface{}{
			"applicationId": app.ID.String(),
			"jobId":         job.ID.String(),
			"jobTitle":      job.Title,
		},
	}}

	refs := make([]RejectedApplicationRef, 0, len(rejected))
	for _, r := range rejected {
		refs = append(refs, RejectedApplicationRef{ID: r.ID, WorkerID: r.WorkerID})
		outbox = append(outbox, models.Notification{
			UserID: r.WorkerID,
			Event:  models.EventApplicationRejected,
			Payload: map[string]interface{}{
				"applicationId": r.ID.String(),
				"jobId":         job.ID.String(),
				"jobTitle":      job.Title,
				"reason":        "another application was accepted",
			},
		})
	}
	s.notifyAll(ctx, outbox)

	s.reindex(ctx, job)

	return &Assignment{Job: job, Application: app, Rejected: refs}, nil
}

func (s *Service) RejectApplication(ctx context.Context, actor models.Actor, applicationID uuid.UUID) (app *models.JobApplication, err error) {
	defer s.observe(ctx, OpRejectApplication, s.now(), &err)

	app, err = s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	job, err := s.store.GetJob(ctx, app.JobID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(OpRejectApplication, actor, Facts{JobOwnerID: job.ClientID}); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.closePending(ctx, app, models.ApplicationRejected, now, true); err != nil {
		return nil, err
	}

	s.notify(ctx, app.WorkerID, models.EventApplicationRejected, map[string]interface{}{
		"applicationId": app.ID.String(),
		"jobId":         job.ID.String(),
		"jobTitle":      job.Title,
	})
	return app, nil
}

func (s *Service) CancelApplication(ctx context.Context, actor models.Actor, applicationID uuid.UUID) (app *models.JobApplication, err error) {
	defer s.observe(ctx, OpCancelApplication, s.now(), &err)

	app, err = s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(OpCancelApplication, actor, Facts{ApplicantID: app.WorkerID}); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.closePending(ctx, app, models.ApplicationCancelled, now, false); err != nil {
		return nil, err
	}

	job, err := s.store.GetJob(ctx, app.JobID)
	if err != nil {
		s.logger.Warn("cancelled application's job could not be loaded for notification", map[string]interface{}{
			"applicationId": app.ID.String(),
			"jobId":         app.JobID.String(),
			"error":         err.Error(),
		})
		return app, nil
	}

	s.notify(ctx, job.ClientID, models.EventApplicationCancelled, map[string]interface{}{
		"applicationId": app.ID.String(),
		"jobId":         job.ID.String(),
		"workerId":      app.WorkerID.String(),
	})
	return app, nil
}

// closePending moves a pending application to a terminal status with a guarded update.
func (s *Service) closePending(ctx context.Context, app *models.JobApplication, to models.ApplicationStatus, now time.Time, reviewed bool) error {
	if app.Status != models.ApplicationPending {
		return errors.NewConflictError(fmt.Sprintf("application is %s, not pending", app.Status))
	}

	ok, err := s.store.SetApplicationStatus(ctx, app.ID, models.ApplicationPending, to, now, reviewed)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewConflictError("application is no longer pending")
	}

	app.Status = to
	app.UpdatedAt = now
	if reviewed {
		app.ReviewedAt = &now
	}
	return nil
}

func (s *Service) GetApplication(ctx context.Context, actor models.Actor, applicationID uuid.UUID) (app *models.JobApplication, err error) {
	defer s.observe(ctx, OpViewApplication, s.now(), &err)

	app, err = s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	job, err := s.store.GetJob(ctx, app.JobID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(OpViewApplication, actor, Facts{JobOwnerID: job.ClientID, ApplicantID: app.WorkerID}); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *Service) ListJobApplications(ctx context.Context, actor models.Actor, jobID uuid.UUID) (apps []models.JobApplication, err error) {
	defer s.observe(ctx, OpListApplications, s.now(), &err)

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(OpListApplications, actor, Facts{JobOwnerID: job.ClientID}); err != nil {
		return nil, err
	}
	return s.store.ListApplications(ctx, jobID)
}

// ==========================
// Jobs
// ==========================

func (s *Service) CreateJob(ctx context.Context, actor models.Actor, in CreateJobInput) (job *models.Job, err error) {
	defer s.observe(ctx, OpCreateJob, s.now(), &err)

	if err := Authorize(OpCreateJob, actor, Facts{}); err != nil {
		return nil, err
	}
	if err := normalizeCreateInput(&in); err != nil {
		return nil, err
	}

	now := s.now()
	job = &models.Job{
		ID:          uuid.New(),
		ClientID:    actor.UserID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Budget:      in.Budget,
		Location:    in.Location,
		Urgency:     in.Urgency,
		NeededDate:  in.NeededDate,
		Status:      in.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if job.Status == models.JobStatusActive {
		job.PublishedAt = &now
	}

	if err := s.store.InsertJob(ctx, job); err != nil {
		return nil, err
	}

	s.reindex(ctx, job)
	return job, nil
}

func normalizeCreateInput(in *CreateJobInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return errors.NewValidationError("title is required")
	}

	switch in.Status {
	case "":
		in.Status = models.JobStatusActive
	case models.JobStatusActive, models.JobStatusDraft:
	default:
		return errors.NewValidationError("a job is created as active or draft")
	}

	switch in.Budget.Type {
	case "":
		in.Budget.Type = models.BudgetNegotiable
	case models.BudgetFixed, models.BudgetHourly, models.BudgetNegotiable:
	default:
		return errors.NewValidationError("budget.type must be fixed, hourly or negotiable")
	}
	if in.Budget.Amount != nil && *in.Budget.Amount < 0 {
		return errors.NewValidationError("budget.amount must not be negative")
	}
	if in.Budget.Type != models.BudgetNegotiable && in.Budget.Amount == nil {
		return errors.NewValidationError("budget.amount is required for fixed and hourly budgets")
	}

	switch in.Urgency {
	case "":
		in.Urgency = models.UrgencyNormal
	case models.UrgencyLow, models.UrgencyNormal, models.UrgencyHigh, models.UrgencyUrgent:
	default:
		return errors.NewValidationError("urgency must be low, normal, high or urgent")
	}
	return nil
}

func (s *Service) GetJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) (job *models.Job, err error) {
	defer s.observe(ctx, OpViewJob, s.now(), &err)

	if err := Authorize(OpViewJob, actor, Facts{}); err != nil {
		return nil, err
	}
	return s.store.GetJob(ctx, jobID)
}

// DeleteJob hard-deletes a draft or active job that has no accepted application.
func (s *Service) DeleteJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) (err error) {
	defer s.observe(ctx, OpDeleteJob, s.now(), &err)

	err = s.store.InTx(ctx, func(q Queries) error {
		job, err := q.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if err := Authorize(OpDeleteJob, actor, Facts{JobOwnerID: job.ClientID}); err != nil {
			return err
		}
		if job.Status != models.JobStatusDraft && job.Status != models.JobStatusActive {
			return errors.NewInvalidTransitionError(string(job.Status), "deleted")
		}

		accepted, err := q.CountAcceptedApplications(ctx, jobID)
		if err != nil {
			return err
		}
		if accepted > 0 {
			return errors.NewConflictError("job has an accepted application")
		}
		return q.DeleteJob(ctx, jobID)
	})
	if err != nil {
		return s.txError(ctx, OpDeleteJob, err)
	}

	if s.indexer != nil {
		if err := s.indexer.DeleteJob(ctx, jobID); err != nil {
			s.logger.Warn("failed to remove job from search index", map[string]interface{}{
				"jobId": jobID.String(),
				"error": err.Error(),
			})
		}
	}
	return nil
}

// UpdateJobStatus applies one transition of the job table. Transitions outside
// the table fail with INVALID_TRANSITION before any authorization check.
func (s *Service) UpdateJobStatus(ctx context.Context, actor models.Actor, jobID uuid.UUID, to models.JobStatus) (job *models.Job, err error) {
	var op Operation = "update_job_status"
	defer func(start time.Time) { s.observe(ctx, op, start, &err) }(s.now())

	if !to.Valid() {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown job status %q", to))
	}

	var previousWorker *uuid.UUID

	err = s.store.InTx(ctx, func(q Queries) error {
		var err error
		job, err = q.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}

		transitionOp, err := TransitionOperation(job.Status, to)
		if err != nil {
			return err
		}
		op = transitionOp

		facts := Facts{JobOwnerID: job.ClientID}
		if job.AssignedWorkerID != nil {
			facts.AssignedWorkerID = *job.AssignedWorkerID
		}

		var workerID *uuid.UUID
		if op == OpStartJob {
			accepted, err := q.GetAcceptedApplication(ctx, job.ID)
			if errors.Is(err, errors.ErrCodeNotFound) {
				return errors.NewConflictError("job has no accepted application")
			}
			if err != nil {
				return err
			}
			facts.AssignedWorkerID = accepted.WorkerID
			workerID = &accepted.WorkerID
		}

		if err := Authorize(op, actor, facts); err != nil {
			return err
		}

		now := s.now()
		ok, err := q.SetJobStatus(ctx, job.ID, job.Status, to, now, workerID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NewConflictError(fmt.Sprintf("job is no longer %s", job.Status))
		}

		previousWorker = job.AssignedWorkerID
		applyTransition(job, to, now, workerID)
		return nil
	})
	if err != nil {
		return nil, s.txError(ctx, op, err)
	}

	s.notifyStatusChange(ctx, actor, job, previousWorker)
	s.reindex(ctx, job)
	return job, nil
}

func applyTransition(job *models.Job, to models.JobStatus, now time.Time, workerID *uuid.UUID) {
	job.Status = to
	job.UpdatedAt = now
	switch to {
	case models.JobStatusActive:
		job.PublishedAt = &now
	case models.JobStatusInProgress:
		job.AssignedWorkerID = workerID
		job.AssignedAt = &now
		job.StartedAt = &now
	case models.JobStatusCompleted:
		job.CompletedAt = &now
	case models.JobStatusCancelled:
		job.CancelledAt = &now
		job.AssignedWorkerID = nil
	}
}

// notifyStatusChange tells every party of the job except the actor.
func (s *Service) notifyStatusChange(ctx context.Context, actor models.Actor, job *models.Job, previousWorker *uuid.UUID) {
	recipients := []uuid.UUID{job.ClientID}
	if job.AssignedWorkerID != nil {
		recipients = append(recipients, *job.AssignedWorkerID)
	} else if previousWorker != nil {
		recipients = append(recipients, *previousWorker)
	}

	for _, userID := range recipients {
		if userID == actor.UserID {
			continue
		}
		s.notify(ctx, userID, models.EventJobStatusChanged, map[string]interface{}{
			"jobId":    job.ID.String(),
			"jobTitle": job.Title,
			"status":   string(job.Status),
			"actorId":  actor.UserID.String(),
		})
	}
}

// ==========================
// Helpers
// ==========================

// txError turns lock and serialization failures into CONFLICT. Inside these
// transactions a unique violation can only come from the one-accepted index.
// Failures after the caller's context ended are timeouts, not conflicts.
func (s *Service) txError(ctx context.Context, op Operation, err error) error {
	if se, ok := errors.As(err); ok && errors.IsDomainError(se.Code) {
		if se.Code == errors.ErrCodeConflict {
			metrics.AssignmentConflicts.WithLabelValues(string(op)).Inc()
		}
		return err
	}
	if ctx.Err() != nil {
		return errors.NewTimeoutError("postgres", err)
	}
	if database.IsContention(ctx, err) || database.IsUniqueViolation(err) {
		metrics.AssignmentConflicts.WithLabelValues(string(op)).Inc()
		return errors.NewContentionError(string(op), err)
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewInternalError(err)
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, event models.NotificationEvent, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, event, payload)
}

func (s *Service) notifyAll(ctx context.Context, notifications []models.Notification) {
	if s.notifier == nil || len(notifications) == 0 {
		return
	}
	if batch, ok := s.notifier.(BatchNotifier); ok {
		batch.NotifyAll(ctx, notifications)
		return
	}
	for _, n := range notifications {
		s.notifier.Notify(ctx, n.UserID, n.Event, n.Payload)
	}
}

func (s *Service) reindex(ctx context.Context, job *models.Job) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexJob(ctx, job); err != nil {
		s.logger.Warn("failed to index job", map[string]interface{}{
			"jobId": job.ID.String(),
			"error": err.Error(),
		})
	}
}

func (s *Service) observe(ctx context.Context, op Operation, start time.Time, errp *error) {
	if s.recorder == nil {
		return
	}
	outcome := "ok"
	if *errp != nil {
		outcome = string(errors.ErrCodeInternal)
		if se, ok := errors.As(*errp); ok {
			outcome = string(se.Code)
		}
	}
	s.recorder.RecordOperation(ctx, string(op), outcome, s.now().Sub(start))
}
