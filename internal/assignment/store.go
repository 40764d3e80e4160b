package assignment

import (
	"context"
	"time"

	"talento-local/internal/models"

	"github.com/google/uuid"
)

// RejectedApplication identifies a sibling application closed by an accept.
type RejectedApplication struct {
	ID       uuid.UUID
	WorkerID uuid.UUID
}

// Queries is the persistence surface of the state machine. Methods that return
// a bool report whether the guarded update matched a row; false means the row
// was no longer in the expected status.
type Queries interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetJobForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error)
	InsertJob(ctx context.Context, job *models.Job) error
	DeleteJob(ctx context.Context, id uuid.UUID) error
	SetJobStatus(ctx context.Context, id uuid.UUID, from, to models.JobStatus, at time.Time, workerID *uuid.UUID) (bool, error)

	GetApplication(ctx context.Context, id uuid.UUID) (*models.JobApplication, error)
	GetApplicationForUpdate(ctx context.Context, id uuid.UUID) (*models.JobApplication, error)
	ListApplications(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error)
	ApplicationExists(ctx context.Context, jobID, workerID uuid.UUID) (bool, error)
	GetAcceptedApplication(ctx context.Context, jobID uuid.UUID) (*models.JobApplication, error)
	CountAcceptedApplications(ctx context.Context, jobID uuid.UUID) (int, error)
	// InsertApplication inserts only while the job is active.
	InsertApplication(ctx context.Context, app *models.JobApplication) (bool, error)
	SetApplicationStatus(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, at time.Time, reviewed bool) (bool, error)
	RejectPendingSiblings(ctx context.Context, jobID, keepID uuid.UUID, at time.Time) ([]RejectedApplication, error)
}

// Store runs Queries either directly or inside one transaction.
type Store interface {
	Queries
	// InTx commits only when fn returns nil.
	InTx(ctx context.Context, fn func(q Queries) error) error
}
