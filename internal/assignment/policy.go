package assignment

import (
	"talento-local/internal/common/errors"
	"talento-local/internal/models"

	"github.com/google/uuid"
)

type Operation string

const (
	OpCreateJob         Operation = "create_job"
	OpViewJob           Operation = "view_job"
	OpDeleteJob         Operation = "delete_job"
	OpPublishJob        Operation = "publish_job"
	OpStartJob          Operation = "start_job"
	OpCompleteJob       Operation = "complete_job"
	OpCancelJob         Operation = "cancel_job"
	OpSubmitApplication Operation = "submit_application"
	OpViewApplication   Operation = "view_application"
	OpListApplications  Operation = "list_applications"
	OpAcceptApplication Operation = "accept_application"
	OpRejectApplication Operation = "reject_application"
	OpCancelApplication Operation = "cancel_application"
)

// Relation is what must hold between the actor and the entity for a rule to apply.
type Relation int

const (
	RelationAny Relation = iota
	RelationJobOwner
	RelationApplicant
	RelationAssignedWorker
)

// Facts carries the entity ownership an authorization decision depends on.
// uuid.Nil means "not applicable".
type Facts struct {
	JobOwnerID       uuid.UUID
	ApplicantID      uuid.UUID
	AssignedWorkerID uuid.UUID
}

var policy = map[Operation]map[models.Role]Relation{
	OpCreateJob: {models.RoleClient: RelationAny},
	OpViewJob: {
		models.RoleClient: RelationAny,
		models.RoleWorker: RelationAny,
		models.RoleAdmin:  RelationAny,
	},
	OpDeleteJob: {
		models.RoleClient: RelationJobOwner,
		models.RoleAdmin:  RelationAny,
	},
	OpPublishJob:  {models.RoleClient: RelationJobOwner},
	OpStartJob:    {models.RoleWorker: RelationAssignedWorker},
	OpCompleteJob: {models.RoleClient: RelationJobOwner},
	OpCancelJob: {
		models.RoleClient: RelationJobOwner,
		models.RoleAdmin:  RelationAny,
	},
	OpSubmitApplication: {models.RoleWorker: RelationAny},
	OpViewApplication: {
		models.RoleWorker: RelationApplicant,
		models.RoleClient: RelationJobOwner,
		models.RoleAdmin:  RelationAny,
	},
	OpListApplications: {
		models.RoleClient: RelationJobOwner,
		models.RoleAdmin:  RelationAny,
	},
	OpAcceptApplication: {models.RoleClient: RelationJobOwner},
	OpRejectApplication: {models.RoleClient: RelationJobOwner},
	OpCancelApplication: {models.RoleWorker: RelationApplicant},
}

// Authorize returns a FORBIDDEN error unless the actor's role has a rule for op
// and the rule's relation holds.
func Authorize(op Operation, actor models.Actor, facts Facts) error {
	rules, ok := policy[op]
	if !ok {
		return errors.NewForbiddenError(string(op), "operation has no authorization rule")
	}

	relation, ok := rules[actor.Role]
	if !ok {
		return errors.NewForbiddenError(string(op), "role "+string(actor.Role)+" may not perform this operation")
	}

	if !holds(relation, actor.UserID, facts) {
		return errors.NewForbiddenError(string(op), relationDetail(relation))
	}
	return nil
}

func holds(relation Relation, userID uuid.UUID, facts Facts) bool {
	switch relation {
	case RelationAny:
		return true
	case RelationJobOwner:
		return facts.JobOwnerID != uuid.Nil && facts.JobOwnerID == userID
	case RelationApplicant:
		return facts.ApplicantID != uuid.Nil && facts.ApplicantID == userID
	case RelationAssignedWorker:
		return facts.AssignedWorkerID != uuid.Nil && facts.AssignedWorkerID == userID
	}
	return false
}

func relationDetail(relation Relation) string {
	switch relation {
	case RelationJobOwner:
		return "caller is not the job's client"
	case RelationApplicant:
		return "caller is not the application's worker"
	case RelationAssignedWorker:
		return "caller is not the assigned worker"
	}
	return "not permitted"
}
