package assignment

import (
	"talento-local/internal/common/errors"
	"talento-local/internal/models"
)

// jobTransitions lists every permitted job status change and the operation
// whose authorization rule governs it. Terminal statuses have no entry.
var jobTransitions = map[models.JobStatus]map[models.JobStatus]Operation{
	models.JobStatusDraft: {
		models.JobStatusActive:    OpPublishJob,
		models.JobStatusCancelled: OpCancelJob,
	},
	models.JobStatusActive: {
		models.JobStatusInProgress: OpStartJob,
		models.JobStatusCancelled:  OpCancelJob,
	},
	models.JobStatusInProgress: {
		models.JobStatusCompleted: OpCompleteJob,
		models.JobStatusCancelled: OpCancelJob,
	},
}

// TransitionOperation returns the operation for from -> to, or INVALID_TRANSITION.
func TransitionOperation(from, to models.JobStatus) (Operation, error) {
	if op, ok := jobTransitions[from][to]; ok {
		return op, nil
	}
	return "", errors.NewInvalidTransitionError(string(from), string(to))
}
