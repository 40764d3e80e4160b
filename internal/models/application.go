// internal/models/application.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationCancelled ApplicationStatus = "cancelled"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

// IsTerminal is true for every status except pending.
func (s ApplicationStatus) IsTerminal() bool {
	return s != ApplicationPending
}

// JobApplication is a worker's bid on a job. Rows are never deleted by the service.
type JobApplication struct {
	ID             uuid.UUID         `json:"id"`
	JobID          uuid.UUID         `json:"jobId"`
	WorkerID       uuid.UUID         `json:"workerId"`
	Message        string            `json:"message"`
	ProposedBudget *float64          `json:"proposedBudget,omitempty"`
	Status         ApplicationStatus `json:"status"`
	ReviewedAt     *time.Time        `json:"reviewedAt,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}
