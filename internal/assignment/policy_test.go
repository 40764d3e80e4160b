package assignment

import (
	"testing"

	"talento-local/internal/common/errors"
	"talento-local/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	owner := uuid.New()
	applicant := uuid.New()
	assigned := uuid.New()
	stranger := uuid.New()

	facts := Facts{JobOwnerID: owner, ApplicantID: applicant, AssignedWorkerID: assigned}

	tests := []struct {
		name    string
		op      Operation
		actor   models.Actor
		allowed bool
	}{
		{"owner accepts", OpAcceptApplication, models.Actor{UserID: owner, Role: models.RoleClient}, true},
		{"other client accepts", OpAcceptApplication, models.Actor{UserID: stranger, Role: models.RoleClient}, false},
		{"admin cannot accept", OpAcceptApplication, models.Actor{UserID: owner, Role: models.RoleAdmin}, false},
		{"worker cannot accept", OpAcceptApplication, models.Actor{UserID: applicant, Role: models.RoleWorker}, false},
		{"owner rejects", OpRejectApplication, models.Actor{UserID: owner, Role: models.RoleClient}, true},
		{"applicant cancels", OpCancelApplication, models.Actor{UserID: applicant, Role: models.RoleWorker}, true},
		{"other worker cancels", OpCancelApplication, models.Actor{UserID: stranger, Role: models.RoleWorker}, false},
		{"client cancels application", OpCancelApplication, models.Actor{UserID: owner, Role: models.RoleClient}, false},
		{"any worker submits", OpSubmitApplication, models.Actor{UserID: stranger, Role: models.RoleWorker}, true},
		{"client cannot submit", OpSubmitApplication, models.Actor{UserID: owner, Role: models.RoleClient}, false},
		{"applicant views", OpViewApplication, models.Actor{UserID: applicant, Role: models.RoleWorker}, true},
		{"owner views", OpViewApplication, models.Actor{UserID: owner, Role: models.RoleClient}, true},
		{"admin views", OpViewApplication, models.Actor{UserID: stranger, Role: models.RoleAdmin}, true},
		{"stranger views", OpViewApplication, models.Actor{UserID: stranger, Role: models.RoleWorker}, false},
		{"assigned worker starts", OpStartJob, models.Actor{UserID: assigned, Role: models.RoleWorker}, true},
		{"other worker starts", OpStartJob, models.Actor{UserID: applicant, Role: models.RoleWorker}, false},
		{"owner starts", OpStartJob, models.Actor{UserID: owner, Role: models.RoleClient}, false},
		{"owner completes", OpCompleteJob, models.Actor{UserID: owner, Role: models.RoleClient}, true},
		{"assigned worker completes", OpCompleteJob, models.Actor{UserID: assigned, Role: models.RoleWorker}, false},
		{"owner cancels job", OpCancelJob, models.Actor{UserID: owner, Role: models.RoleClient}, true},
		{"admin cancels job", OpCancelJob, models.Actor{UserID: stranger, Role: models.RoleAdmin}, true},
		{"assigned worker cancels job", OpCancelJob, models.Actor{UserID: assigned, Role: models.RoleWorker}, false},
		{"admin deletes job", OpDeleteJob, models.Actor{UserID: stranger, Role: models.RoleAdmin}, true},
		{"worker views job", OpViewJob, models.Actor{UserID: stranger, Role: models.RoleWorker}, true},
		{"unknown role", OpViewJob, models.Actor{UserID: owner, Role: models.Role("guest")}, false},
		{"unknown operation", Operation("archive_job"), models.Actor{UserID: owner, Role: models.RoleAdmin}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.op, tt.actor, facts)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, errors.ErrCodeForbidden), "got %v", err)
		})
	}
}

func TestAuthorize_MissingFactsNeverMatch(t *testing.T) {
	err := Authorize(OpAcceptApplication, models.Actor{UserID: uuid.Nil, Role: models.RoleClient}, Facts{})
	assert.True(t, errors.Is(err, errors.ErrCodeForbidden))
}

func TestTransitionOperation(t *testing.T) {
	all := []models.JobStatus{
		models.JobStatusDraft, models.JobStatusActive, models.JobStatusInProgress,
		models.JobStatusCompleted, models.JobStatusCancelled,
	}
	allowed := map[[2]models.JobStatus]Operation{
		{models.JobStatusDraft, models.JobStatusActive}:         OpPublishJob,
		{models.JobStatusDraft, models.JobStatusCancelled}:      OpCancelJob,
		{models.JobStatusActive, models.JobStatusInProgress}:    OpStartJob,
		{models.JobStatusActive, models.JobStatusCancelled}:     OpCancelJob,
		{models.JobStatusInProgress, models.JobStatusCompleted}: OpCompleteJob,
		{models.JobStatusInProgress, models.JobStatusCancelled}: OpCancelJob,
	}

	for _, from := range all {
		for _, to := range all {
			op, err := TransitionOperation(from, to)
			if want, ok := allowed[[2]models.JobStatus{from, to}]; ok {
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, want, op)
				continue
			}
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidTransition), "%s -> %s", from, to)
			se, _ := errors.As(err)
			assert.Equal(t, string(from), se.Metadata["currentStatus"])
			assert.Equal(t, string(to), se.Metadata["requestedStatus"])
		}
	}
}
