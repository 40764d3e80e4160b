package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"talento-local/internal/api/middleware"
	"talento-local/internal/api/response"
	"talento-local/internal/assignment"
	"talento-local/internal/common/errors"
	"talento-local/internal/common/logger"
	"talento-local/internal/common/validation"
	"talento-local/internal/models"
	"talento-local/internal/search"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// AssignmentService is the job and application state machine behind the API.
type AssignmentService interface {
	SubmitApplication(ctx context.Context, actor models.Actor, in assignment.SubmitInput) (*models.JobApplication, error)
	GetApplication(ctx context.Context, actor models.Actor, applicationID uuid.UUID) (*models.JobApplication, error)
	AcceptApplication(ctx context.Context, actor models.Actor, applicationID uuid.UUID) (*assignment.Assignment, error)
	RejectApplication(ctx context.Context, actor models.Actor, applicationID uuid.UUID) (*models.JobApplication, error)
	CancelApplication(ctx context.Context, actor models.Actor, applicationID uuid.UUID) (*models.JobApplication, error)
	ListJobApplications(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]models.JobApplication, error)
	CreateJob(ctx context.Context, actor models.Actor, in assignment.CreateJobInput) (*models.Job, error)
	GetJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.Job, error)
	DeleteJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) error
	UpdateJobStatus(ctx context.Context, actor models.Actor, jobID uuid.UUID, to models.JobStatus) (*models.Job, error)
}

// Searcher finds active jobs.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// Handler serves the job and application routes.
type Handler struct {
	service  AssignmentService
	searcher Searcher
	logger   logger.Logger
}

func NewHandler(service AssignmentService, searcher Searcher, log logger.Logger) *Handler {
	return &Handler{service: service, searcher: searcher, logger: log}
}

type submitApplicationRequest struct {
	JobID          uuid.UUID `json:"jobId"`
	Message        string    `json:"message"`
	ProposedBudget *float64  `json:"proposedBudget"`
}

type createJobRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Budget      models.Budget    `json:"budget"`
	Location    models.Location  `json:"location"`
	Urgency     models.Urgency   `json:"urgency"`
	NeededDate  *time.Time       `json:"neededDate"`
	Status      models.JobStatus `json:"status"`
}

type updateJobStatusRequest struct {
	Status models.JobStatus `json:"status"`
}

// ==========================
// Applications
// ==========================

// SubmitApplication handles POST /applications
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req submitApplicationRequest
	if !h.decode(w, r, submitApplicationSchema, &req) {
		return
	}

	app, err := h.service.SubmitApplication(r.Context(), actorOf(r), assignment.SubmitInput{
		JobID:          req.JobID,
		Message:        req.Message,
		ProposedBudget: req.ProposedBudget,
	})
	if err != nil {
		h.fail(w, r, "submit_application", err, map[string]interface{}{"jobId": req.JobID.String()})
		return
	}
	response.JSON(w, http.StatusCreated, app)
}

// GetApplication handles GET /applications/{id}
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	app, err := h.service.GetApplication(r.Context(), actorOf(r), id)
	if err != nil {
		h.fail(w, r, "view_application", err, map[string]interface{}{"applicationId": id.String()})
		return
	}
	response.JSON(w, http.StatusOK, app)
}

// AcceptApplication handles POST /applications/{id}/accept
func (h *Handler) AcceptApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	result, err := h.service.AcceptApplication(r.Context(), actorOf(r), id)
	if err != nil {
		h.fail(w, r, "accept_application", err, map[string]interface{}{"applicationId": id.String()})
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// RejectApplication handles POST /applications/{id}/reject
func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	app, err := h.service.RejectApplication(r.Context(), actorOf(r), id)
	if err != nil {
		h.fail(w, r, "reject_application", err, map[string]interface{}{"applicationId": id.String()})
		return
	}
	response.JSON(w, http.StatusOK, app)
}

// CancelApplication handles POST /applications/{id}/cancel
func (h *Handler) CancelApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	app, err := h.service.CancelApplication(r.Context(), actorOf(r), id)
	if err != nil {
		h.fail(w, r, "cancel_application", err, map[string]interface{}{"applicationId": id.String()})
		return
	}
	response.JSON(w, http.StatusOK, app)
}

// ==========================
// Jobs
// ==========================

// CreateJob handles POST /jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !h.decode(w, r, createJobSchema, &req) {
		return
	}

	job, err := h.service.CreateJob(r.Context(), actorOf(r), assignment.CreateJobInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Budget:      req.Budget,
		Location:    req.Location,
		Urgency:     req.Urgency,
		NeededDate:  req.NeededDate,
		Status:      req.Status,
	})
	if err != nil {
		h.fail(w, r, "create_job", err, nil)
		return
	}
	response.JSON(w, http.StatusCreated, job)
}

// GetJob handles GET /jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	job, err := h.service.GetJob(r.Context(), actorOf(r), id)
	if err != nil {
		h.fail(w, r, "view_job", err, map[string]interface{}{"jobId": id.String()})
		return
	}
	response.JSON(w, http.StatusOK, job)
}

// DeleteJob handles DELETE /jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteJob(r.Context(), actorOf(r), id); err != nil {
		h.fail(w, r, "delete_job", err, map[string]interface{}{"jobId": id.String()})
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

// ListJobApplications handles GET /jobs/{id}/applications
func (h *Handler) ListJobApplications(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	apps, err := h.service.ListJobApplications(r.Context(), actorOf(r), id)
	if err != nil {
		h.fail(w, r, "list_applications", err, map[string]interface{}{"jobId": id.String()})
		return
	}
	if apps == nil {
		apps = []models.JobApplication{}
	}
	response.JSON(w, http.StatusOK, apps)
}

// UpdateJobStatus handles PATCH /jobs/{id}/status
func (h *Handler) UpdateJobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateJobStatusRequest
	if !h.decode(w, r, updateJobStatusSchema, &req) {
		return
	}
	job, err := h.service.UpdateJobStatus(r.Context(), actorOf(r), id, req.Status)
	if err != nil {
		h.fail(w, r, "update_job_status", err, map[string]interface{}{
			"jobId":           id.String(),
			"requestedStatus": string(req.Status),
		})
		return
	}
	response.JSON(w, http.StatusOK, job)
}

// SearchJobs handles GET /jobs/search
func (h *Handler) SearchJobs(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		response.Error(w, errors.NewNotFoundError("Search", "jobs"))
		return
	}

	q, err := parseSearchQuery(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	result, err := h.searcher.Search(r.Context(), q)
	if err != nil {
		h.fail(w, r, "search_jobs", err, nil)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

func parseSearchQuery(r *http.Request) (search.Query, error) {
	v := r.URL.Query()
	q := search.Query{
		Text:       v.Get("q"),
		Category:   v.Get("category"),
		City:       v.Get("city"),
		Department: v.Get("department"),
	}

	for name, dst := range map[string]**float64{"minBudget": &q.MinBudget, "maxBudget": &q.MaxBudget} {
		if raw := v.Get(name); raw != "" {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil || f < 0 {
				return q, errors.NewValidationError(name + " must be a non-negative number")
			}
			*dst = &f
		}
	}
	if q.MinBudget != nil && q.MaxBudget != nil && *q.MinBudget > *q.MaxBudget {
		return q, errors.NewValidationError("minBudget must not exceed maxBudget")
	}

	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		if raw := v.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return q, errors.NewValidationError(name + " must be a non-negative integer")
			}
			*dst = n
		}
	}
	return q, nil
}

// ==========================
// Helpers
// ==========================

func actorOf(r *http.Request) models.Actor {
	actor, _ := middleware.ActorFromContext(r.Context())
	return actor
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		response.Error(w, errors.NewValidationError("id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// decode validates the body against schema before unmarshalling it into dst.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, schema *validation.Schema, dst interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		response.Error(w, errors.NewValidationError("request body is too large or unreadable"))
		return false
	}

	if result := schema.Validate(body); !result.Valid {
		stdErr := errors.NewValidationError(result.Error()).WithMetadata("fields", result.Errors)
		response.Error(w, stdErr)
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		response.Error(w, errors.NewValidationError("invalid request body"))
		return false
	}
	return true
}

// fail writes err and logs technical failures with the operation, actor and ids.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, operation string, err error, ids map[string]interface{}) {
	stdErr := errors.Normalize(err)
	if !errors.IsDomainError(stdErr.Code) {
		fields := map[string]interface{}{
			"operation": operation,
			"code":      string(stdErr.Code),
			"error":     err.Error(),
		}
		if actor, ok := middleware.ActorFromContext(r.Context()); ok {
			fields["userId"] = actor.UserID.String()
			fields["role"] = string(actor.Role)
		}
		for k, v := range ids {
			fields[k] = v
		}
		logger.FromContext(r.Context(), h.logger).Error("request failed", fields)
	}
	response.Error(w, stdErr)
}
