package assignment

import (
	"context"
	"sync"
	"testing"
	"time"

	"talento-local/internal/common/errors"
	"talento-local/internal/common/logger"
	"talento-local/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore serializes transactions behind one mutex, which is what the job row
// lock gives concurrent accepts on the same job. A failed transaction leaves
// the committed maps untouched.
type memStore struct {
	*memQueries
	mu sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{memQueries: &memQueries{
		jobs: map[uuid.UUID]models.Job{},
		apps: map[uuid.UUID]models.JobApplication{},
	}}
}

func (s *memStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.memQueries.clone()
	if err := fn(tx); err != nil {
		return err
	}
	s.memQueries.jobs, s.memQueries.apps = tx.jobs, tx.apps
	return nil
}

func (s *memStore) snapshot() *memQueries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memQueries.clone()
}

type memQueries struct {
	jobs map[uuid.UUID]models.Job
	apps map[uuid.UUID]models.JobApplication
}

func (q *memQueries) clone() *memQueries {
	c := &memQueries{
		jobs: make(map[uuid.UUID]models.Job, len(q.jobs)),
		apps: make(map[uuid.UUID]models.JobApplication, len(q.apps)),
	}
	for k, v := range q.jobs {
		c.jobs[k] = v
	}
	for k, v := range q.apps {
		c.apps[k] = v
	}
	return c
}

func (q *memQueries) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := q.jobs[id]
	if !ok {
		return nil, errors.NewNotFoundError("Job", id.String())
	}
	return &j, nil
}

func (q *memQueries) GetJobForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return q.GetJob(ctx, id)
}

func (q *memQueries) InsertJob(ctx context.Context, job *models.Job) error {
	q.jobs[job.ID] = *job
	return nil
}

func (q *memQueries) DeleteJob(ctx context.Context, id uuid.UUID) error {
	delete(q.jobs, id)
	return nil
}

func (q *memQueries) SetJobStatus(ctx context.Context, id uuid.UUID, from, to models.JobStatus, at time.Time, workerID *uuid.UUID) (bool, error) {
	j, ok := q.jobs[id]
	if !ok || j.Status != from {
		return false, nil
	}
	applyTransition(&j, to, at, workerID)
	q.jobs[id] = j
	return true, nil
}

func (q *memQueries) GetApplication(ctx context.Context, id uuid.UUID) (*models.JobApplication, error) {
	a, ok := q.apps[id]
	if !ok {
		return nil, errors.NewNotFoundError("Application", id.String())
	}
	return &a, nil
}

func (q *memQueries) GetApplicationForUpdate(ctx context.Context, id uuid.UUID) (*models.JobApplication, error) {
	return q.GetApplication(ctx, id)
}

func (q *memQueries) ListApplications(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error) {
	var out []models.JobApplication
	for _, a := range q.apps {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (q *memQueries) ApplicationExists(ctx context.Context, jobID, workerID uuid.UUID) (bool, error) {
	for _, a := range q.apps {
		if a.JobID == jobID && a.WorkerID == workerID {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) GetAcceptedApplication(ctx context.Context, jobID uuid.UUID) (*models.JobApplication, error) {
	for _, a := range q.apps {
		if a.JobID == jobID && a.Status == models.ApplicationAccepted {
			return &a, nil
		}
	}
	return nil, errors.NewNotFoundError("Accepted application", jobID.String())
}

func (q *memQueries) CountAcceptedApplications(ctx context.Context, jobID uuid.UUID) (int, error) {
	n := 0
	for _, a := range q.apps {
		if a.JobID == jobID && a.Status == models.ApplicationAccepted {
			n++
		}
	}
	return n, nil
}

func (q *memQueries) InsertApplication(ctx context.Context, app *models.JobApplication) (bool, error) {
	if j, ok := q.jobs[app.JobID]; !ok || j.Status != models.JobStatusActive {
		return false, nil
	}
	if exists, _ := q.ApplicationExists(ctx, app.JobID, app.WorkerID); exists {
		return false, errors.NewDatabaseInsertFailedError(&pq.Error{Code: "23505"})
	}
	q.apps[app.ID] = *app
	return true, nil
}

func (q *memQueries) SetApplicationStatus(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, at time.Time, reviewed bool) (bool, error) {
	a, ok := q.apps[id]
	if !ok || a.Status != from {
		return false, nil
	}
	if to == models.ApplicationAccepted {
		if n, _ := q.CountAcceptedApplications(ctx, a.JobID); n > 0 {
			return false, errors.NewQueryExecutionFailedError("set_application_status", &pq.Error{Code: "23505"})
		}
	}
	a.Status = to
	a.UpdatedAt = at
	if reviewed {
		a.ReviewedAt = &at
	}
	q.apps[id] = a
	return true, nil
}

func (q *memQueries) RejectPendingSiblings(ctx context.Context, jobID, keepID uuid.UUID, at time.Time) ([]RejectedApplication, error) {
	var rejected []RejectedApplication
	for id, a := range q.apps {
		if a.JobID == jobID && id != keepID && a.Status == models.ApplicationPending {
			a.Status = models.ApplicationRejected
			a.ReviewedAt = &at
			a.UpdatedAt = at
			q.apps[id] = a
			rejected = append(rejected, RejectedApplication{ID: id, WorkerID: a.WorkerID})
		}
	}
	return rejected, nil
}

type countingNotifier struct {
	mu     sync.Mutex
	events map[models.NotificationEvent]int
}

func (n *countingNotifier) Notify(ctx context.Context, userID uuid.UUID, event models.NotificationEvent, payload map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.events == nil {
		n.events = map[models.NotificationEvent]int{}
	}
	n.events[event]++
}

// ==========================
// Concurrency
// ==========================

func TestAcceptApplication_ConcurrentAcceptsOnSameJob(t *testing.T) {
	store := newMemStore()
	notifier := &countingNotifier{}
	svc := NewService(store, notifier, logger.NewNoOpLogger())

	client := models.Actor{UserID: uuid.New(), Role: models.RoleClient}
	job, err := svc.CreateJob(context.Background(), client, CreateJobInput{Title: "Instalar lámpara"})
	require.NoError(t, err)

	const applicants = 8
	appIDs := make([]uuid.UUID, 0, applicants)
	for i := 0; i < applicants; i++ {
		app, err := svc.SubmitApplication(context.Background(),
			models.Actor{UserID: uuid.New(), Role: models.RoleWorker}, SubmitInput{JobID: job.ID})
		require.NoError(t, err)
		appIDs = append(appIDs, app.ID)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for _, id := range appIDs {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := svc.AcceptApplication(context.Background(), client, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, errors.ErrCodeConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, applicants-1, conflicts)

	state := store.snapshot()
	finalJob := state.jobs[job.ID]
	assert.Equal(t, models.JobStatusInProgress, finalJob.Status)
	require.NotNil(t, finalJob.AssignedWorkerID)

	accepted := 0
	for _, a := range state.apps {
		switch a.Status {
		case models.ApplicationAccepted:
			accepted++
			assert.Equal(t, *finalJob.AssignedWorkerID, a.WorkerID)
		case models.ApplicationRejected:
		default:
			t.Errorf("application %s left in status %s", a.ID, a.Status)
		}
	}
	assert.Equal(t, 1, accepted)

	assert.Equal(t, 1, notifier.events[models.EventApplicationAccepted])
	assert.Equal(t, applicants-1, notifier.events[models.EventApplicationRejected])
}

func TestAcceptApplication_FailedStepLeavesNothingBehind(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &countingNotifier{}, logger.NewNoOpLogger())

	client := models.Actor{UserID: uuid.New(), Role: models.RoleClient}
	job, err := svc.CreateJob(context.Background(), client, CreateJobInput{Title: "Podar jardín"})
	require.NoError(t, err)

	first, err := svc.SubmitApplication(context.Background(),
		models.Actor{UserID: uuid.New(), Role: models.RoleWorker}, SubmitInput{JobID: job.ID})
	require.NoError(t, err)
	second, err := svc.SubmitApplication(context.Background(),
		models.Actor{UserID: uuid.New(), Role: models.RoleWorker}, SubmitInput{JobID: job.ID})
	require.NoError(t, err)

	// Step 3 finds the job no longer active after steps 1 and 2 already ran
	// inside the transaction.
	failing := &failingJobStore{memStore: store}
	svc = NewService(failing, &countingNotifier{}, logger.NewNoOpLogger())

	_, err = svc.AcceptApplication(context.Background(), client, first.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict), "got %v", err)

	state := store.snapshot()
	assert.Equal(t, models.ApplicationPending, state.apps[first.ID].Status)
	assert.Equal(t, models.ApplicationPending, state.apps[second.ID].Status)
	assert.Equal(t, models.JobStatusActive, state.jobs[job.ID].Status)
	assert.Nil(t, state.jobs[job.ID].AssignedWorkerID)
}

type failingJobStore struct {
	*memStore
}

func (s *failingJobStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	return s.memStore.InTx(ctx, func(q Queries) error {
		return fn(&failingJobQueries{Queries: q})
	})
}

type failingJobQueries struct {
	Queries
}

func (q *failingJobQueries) SetJobStatus(ctx context.Context, id uuid.UUID, from, to models.JobStatus, at time.Time, workerID *uuid.UUID) (bool, error) {
	return false, nil
}

type canceledLockQueries struct {
	Queries
	cancel context.CancelFunc
}

func (q *canceledLockQueries) GetJobForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if q.cancel != nil {
		q.cancel()
	}
	return nil, errors.NewQueryExecutionFailedError("get_job_for_update", &pq.Error{Code: "57014"})
}

type canceledLockStore struct {
	*memStore
	cancel context.CancelFunc
}

func (s *canceledLockStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	return s.memStore.InTx(ctx, func(q Queries) error {
		return fn(&canceledLockQueries{Queries: q, cancel: s.cancel})
	})
}

func TestAcceptApplication_QueryCanceled(t *testing.T) {
	setup := func(t *testing.T) (*memStore, models.Actor, uuid.UUID) {
		store := newMemStore()
		svc := NewService(store, &countingNotifier{}, logger.NewNoOpLogger())
		client := models.Actor{UserID: uuid.New(), Role: models.RoleClient}
		job, err := svc.CreateJob(context.Background(), client, CreateJobInput{Title: "Limpiar canaletas"})
		require.NoError(t, err)
		app, err := svc.SubmitApplication(context.Background(),
			models.Actor{UserID: uuid.New(), Role: models.RoleWorker}, SubmitInput{JobID: job.ID})
		require.NoError(t, err)
		return store, client, app.ID
	}

	t.Run("statement timeout is a conflict", func(t *testing.T) {
		store, client, appID := setup(t)
		svc := NewService(&canceledLockStore{memStore: store}, &countingNotifier{}, logger.NewNoOpLogger())

		_, err := svc.AcceptApplication(context.Background(), client, appID)

		assert.True(t, errors.Is(err, errors.ErrCodeConflict), "got %v", err)
	})

	t.Run("caller cancellation is a timeout", func(t *testing.T) {
		store, client, appID := setup(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		svc := NewService(&canceledLockStore{memStore: store, cancel: cancel}, &countingNotifier{}, logger.NewNoOpLogger())

		_, err := svc.AcceptApplication(ctx, client, appID)

		assert.True(t, errors.Is(err, errors.ErrCodeTimeout), "got %v", err)
		assert.False(t, errors.Is(err, errors.ErrCodeConflict))
		assert.Equal(t, models.ApplicationPending, store.snapshot().apps[appID].Status)
	})
}
