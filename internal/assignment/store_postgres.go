package assignment

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"talento-local/internal/common/database"
	"talento-local/internal/common/errors"
	"talento-local/internal/models"

	"github.com/google/uuid"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresStore implements Store on database/sql with lib/pq.
type PostgresStore struct {
	*pgQueries
	db               *sql.DB
	lockTimeout      time.Duration
	statementTimeout time.Duration
}

func NewPostgresStore(db *sql.DB, lockTimeout, statementTimeout time.Duration) *PostgresStore {
	return &PostgresStore{
		pgQueries:        &pgQueries{db: db},
		db:               db,
		lockTimeout:      lockTimeout,
		statementTimeout: statementTimeout,
	}
}

// InTx runs fn under READ COMMITTED with transaction-local lock and statement
// timeouts, so a stalled holder of the job row lock gives it up.
func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	return database.WithTx(ctx, s.db, opts, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`SELECT set_config('lock_timeout', $1, true), set_config('statement_timeout', $2, true)`,
			millis(s.lockTimeout), millis(s.statementTimeout),
		); err != nil {
			return errors.NewQueryExecutionFailedError("set_timeouts", err)
		}
		return fn(&pgQueries{db: tx})
	})
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

type pgQueries struct {
	db execer
}

const jobColumns = `id, client_id, title, description, category, budget_amount, budget_type,
	address, city, department, latitude, longitude, urgency, needed_date, status,
	assigned_worker_id, assigned_at, published_at, started_at, completed_at, cancelled_at,
	created_at, updated_at`

const applicationColumns = `id, job_id, worker_id, message, proposed_budget, status,
	reviewed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		j          models.Job
		amount     sql.NullFloat64
		lat, lon   sql.NullFloat64
		neededDate sql.NullTime
		assigned   uuid.NullUUID
		assignedAt sql.NullTime
		published  sql.NullTime
		started    sql.NullTime
		completed  sql.NullTime
		cancelled  sql.NullTime
	)

	err := row.Scan(
		&j.ID, &j.ClientID, &j.Title, &j.Description, &j.Category, &amount, &j.Budget.Type,
		&j.Location.Address, &j.Location.City, &j.Location.Department, &lat, &lon, &j.Urgency,
		&neededDate, &j.Status, &assigned, &assignedAt, &published, &started, &completed,
		&cancelled, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Budget.Amount = floatPtr(amount)
	j.Location.Latitude = floatPtr(lat)
	j.Location.Longitude = floatPtr(lon)
	j.NeededDate = timePtr(neededDate)
	if assigned.Valid {
		id := assigned.UUID
		j.AssignedWorkerID = &id
	}
	j.AssignedAt = timePtr(assignedAt)
	j.PublishedAt = timePtr(published)
	j.StartedAt = timePtr(started)
	j.CompletedAt = timePtr(completed)
	j.CancelledAt = timePtr(cancelled)
	return &j, nil
}

func scanApplication(row rowScanner) (*models.JobApplication, error) {
	var (
		a        models.JobApplication
		budget   sql.NullFloat64
		reviewed sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.JobID, &a.WorkerID, &a.Message, &budget, &a.Status,
		&reviewed, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ProposedBudget = floatPtr(budget)
	a.ReviewedAt = timePtr(reviewed)
	return &a, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func (q *pgQueries) getJob(ctx context.Context, id uuid.UUID, suffix string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1` + suffix
	job, err := scanJob(q.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("Job", id.String())
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get_job", err)
	}
	return job, nil
}

func (q *pgQueries) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return q.getJob(ctx, id, "")
}

func (q *pgQueries) GetJobForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return q.getJob(ctx, id, " FOR UPDATE")
}

func (q *pgQueries) InsertJob(ctx context.Context, j *models.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23)`

	_, err := q.db.ExecContext(ctx, query,
		j.ID, j.ClientID, j.Title, j.Description, j.Category, j.Budget.Amount, j.Budget.Type,
		j.Location.Address, j.Location.City, j.Location.Department, j.Location.Latitude, j.Location.Longitude,
		j.Urgency, j.NeededDate, j.Status, j.AssignedWorkerID, j.AssignedAt, j.PublishedAt,
		j.StartedAt, j.CompletedAt, j.CancelledAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

func (q *pgQueries) DeleteJob(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return errors.NewQueryExecutionFailedError("delete_job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("Job", id.String())
	}
	return nil
}

// jobStatusStamps holds the timestamp column(s) each target status sets.
var jobStatusStamps = map[models.JobStatus]string{
	models.JobStatusActive:     "published_at = $4",
	models.JobStatusInProgress: "assigned_worker_id = $5, assigned_at = $4, started_at = $4",
	models.JobStatusCompleted:  "completed_at = $4",
	models.JobStatusCancelled:  "cancelled_at = $4, assigned_worker_id = NULL",
}

func (q *pgQueries) SetJobStatus(ctx context.Context, id uuid.UUID, from, to models.JobStatus, at time.Time, workerID *uuid.UUID) (bool, error) {
	stamps, ok := jobStatusStamps[to]
	if !ok {
		return false, errors.NewInvalidTransitionError(string(from), string(to))
	}

	query := `UPDATE jobs SET status = $3, updated_at = $4, ` + stamps + ` WHERE id = $1 AND status = $2`
	args := []interface{}{id, from, to, at}
	if to == models.JobStatusInProgress {
		if workerID == nil {
			return false, errors.NewValidationError("in_progress requires an assigned worker")
		}
		args = append(args, *workerID)
	}

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("set_job_status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("set_job_status", err)
	}
	return n == 1, nil
}

func (q *pgQueries) getApplication(ctx context.Context, id uuid.UUID, suffix string) (*models.JobApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM job_applications WHERE id = $1` + suffix
	app, err := scanApplication(q.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("Application", id.String())
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get_application", err)
	}
	return app, nil
}

func (q *pgQueries) GetApplication(ctx context.Context, id uuid.UUID) (*models.JobApplication, error) {
	return q.getApplication(ctx, id, "")
}

func (q *pgQueries) GetApplicationForUpdate(ctx context.Context, id uuid.UUID) (*models.JobApplication, error) {
	return q.getApplication(ctx, id, " FOR UPDATE")
}

func (q *pgQueries) ListApplications(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM job_applications WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list_applications", err)
	}
	defer rows.Close()

	apps := []models.JobApplication{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("list_applications", err)
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("list_applications", err)
	}
	return apps, nil
}

func (q *pgQueries) ApplicationExists(ctx context.Context, jobID, workerID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM job_applications WHERE job_id = $1 AND worker_id = $2)`,
		jobID, workerID,
	).Scan(&exists)
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("application_exists", err)
	}
	return exists, nil
}

func (q *pgQueries) GetAcceptedApplication(ctx context.Context, jobID uuid.UUID) (*models.JobApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM job_applications WHERE job_id = $1 AND status = 'accepted'`
	app, err := scanApplication(q.db.QueryRowContext(ctx, query, jobID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("Accepted application", jobID.String())
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get_accepted_application", err)
	}
	return app, nil
}

func (q *pgQueries) CountAcceptedApplications(ctx context.Context, jobID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_applications WHERE job_id = $1 AND status = 'accepted'`, jobID,
	).Scan(&n)
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("count_accepted_applications", err)
	}
	return n, nil
}

func (q *pgQueries) InsertApplication(ctx context.Context, a *models.JobApplication) (bool, error) {
	query := `
		INSERT INTO job_applications (` + applicationColumns + `)
		SELECT $1::uuid, $2::uuid, $3::uuid, $4::text, $5::numeric, $6::text,
		       $7::timestamptz, $8::timestamptz, $9::timestamptz
		WHERE EXISTS (SELECT 1 FROM jobs WHERE id = $2 AND status = 'active' FOR SHARE)`

	res, err := q.db.ExecContext(ctx, query,
		a.ID, a.JobID, a.WorkerID, a.Message, a.ProposedBudget, a.Status,
		a.ReviewedAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return false, errors.NewDatabaseInsertFailedError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewDatabaseInsertFailedError(err)
	}
	return n == 1, nil
}

func (q *pgQueries) SetApplicationStatus(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus, at time.Time, reviewed bool) (bool, error) {
	query := `UPDATE job_applications SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	if reviewed {
		query = `UPDATE job_applications SET status = $3, updated_at = $4, reviewed_at = $4 WHERE id = $1 AND status = $2`
	}

	res, err := q.db.ExecContext(ctx, query, id, from, to, at)
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("set_application_status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("set_application_status", err)
	}
	return n == 1, nil
}

func (q *pgQueries) RejectPendingSiblings(ctx context.Context, jobID, keepID uuid.UUID, at time.Time) ([]RejectedApplication, error) {
	rows, err := q.db.QueryContext(ctx, `
		UPDATE job_applications
		SET status = 'rejected', reviewed_at = $3, updated_at = $3
		WHERE job_id = $1 AND id <> $2 AND status = 'pending'
		RETURNING id, worker_id`,
		jobID, keepID, at,
	)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("reject_pending_siblings", err)
	}
	defer rows.Close()

	var rejected []RejectedApplication
	for rows.Next() {
		var r RejectedApplication
		if err := rows.Scan(&r.ID, &r.WorkerID); err != nil {
			return nil, errors.NewQueryExecutionFailedError("reject_pending_siblings", err)
		}
		rejected = append(rejected, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("reject_pending_siblings", err)
	}
	return rejected, nil
}
