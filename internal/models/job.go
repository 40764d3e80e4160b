// internal/models/job.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusDraft      JobStatus = "draft"
	JobStatusActive     JobStatus = "active"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusDraft, JobStatusActive, JobStatusInProgress, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// HasAssignment reports whether a job in this status must carry an assigned worker.
func (s JobStatus) HasAssignment() bool {
	return s == JobStatusInProgress || s == JobStatusCompleted
}

type BudgetType string

const (
	BudgetFixed      BudgetType = "fixed"
	BudgetHourly     BudgetType = "hourly"
	BudgetNegotiable BudgetType = "negotiable"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

type Budget struct {
	Amount *float64   `json:"amount,omitempty"`
	Type   BudgetType `json:"type"`
}

type Location struct {
	Address    string   `json:"address,omitempty"`
	City       string   `json:"city,omitempty"`
	Department string   `json:"department,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

type Job struct {
	ID               uuid.UUID  `json:"id"`
	ClientID         uuid.UUID  `json:"clientId"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	Budget           Budget     `json:"budget"`
	Location         Location   `json:"location"`
	Urgency          Urgency    `json:"urgency"`
	NeededDate       *time.Time `json:"neededDate,omitempty"`
	Status           JobStatus  `json:"status"`
	AssignedWorkerID *uuid.UUID `json:"assignedWorkerId,omitempty"`
	AssignedAt       *time.Time `json:"assignedAt,omitempty"`
	PublishedAt      *time.Time `json:"publishedAt,omitempty"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	CancelledAt      *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// IsAssignedTo reports whether workerID is the job's assigned worker.
func (j *Job) IsAssignedTo(workerID uuid.UUID) bool {
	return j.AssignedWorkerID != nil && *j.AssignedWorkerID == workerID
}
