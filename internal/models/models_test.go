package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"client", "worker", "admin"} {
		r, err := ParseRole(s)
		assert.NoError(t, err)
		assert.Equal(t, Role(s), r)
	}

	_, err := ParseRole("Client")
	assert.Error(t, err)
	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestJobStatus(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
	assert.False(t, JobStatusActive.IsTerminal())

	assert.True(t, JobStatusInProgress.HasAssignment())
	assert.True(t, JobStatusCompleted.HasAssignment())
	assert.False(t, JobStatusCancelled.HasAssignment())

	assert.False(t, JobStatus("archived").Valid())
}

func TestJob_IsAssignedTo(t *testing.T) {
	worker := uuid.New()
	job := &Job{Status: JobStatusInProgress, AssignedWorkerID: &worker}

	assert.True(t, job.IsAssignedTo(worker))
	assert.False(t, job.IsAssignedTo(uuid.New()))
	assert.False(t, (&Job{}).IsAssignedTo(worker))
}

func TestApplicationStatus_IsTerminal(t *testing.T) {
	assert.False(t, ApplicationPending.IsTerminal())
	for _, s := range []ApplicationStatus{ApplicationAccepted, ApplicationRejected, ApplicationCancelled, ApplicationWithdrawn} {
		assert.True(t, s.IsTerminal(), s)
	}
}
