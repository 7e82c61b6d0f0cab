package imports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrImportJobNotFound = errors.New("import job not found")

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ImportJob tracks one uploaded CSV through processing. The counts stay zero
// until the job completes.
type ImportJob struct {
	ID                   uuid.UUID
	OrganizationID       uuid.UUID
	RequestedBy          uuid.UUID
	FileName             string
	Status               string
	OpportunitiesCreated int
	MeetingsCreated      int
	RowsSkipped          int
	Error                *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ClaimedJob is an import job plus its CSV payload. Only Claim returns it;
// status reads and lists never carry the file.
type ClaimedJob struct {
	ImportJob
	CSVData string
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const importJobColumns = `
	id, organization_id, requested_by, file_name, status,
	opportunities_created, meetings_created, rows_skipped, error, created_at, updated_at`

type importJobRowScanner interface {
	Scan(dest ...any) error
}

func scanImportJob(s importJobRowScanner) (ImportJob, error) {
	var job ImportJob
	err := s.Scan(
		&job.ID, &job.OrganizationID, &job.RequestedBy, &job.FileName, &job.Status,
		&job.OpportunitiesCreated, &job.MeetingsCreated, &job.RowsSkipped, &job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return ImportJob{}, err
	}
	return job, nil
}

type InsertJobParams struct {
	OrganizationID uuid.UUID
	RequestedBy    uuid.UUID
	FileName       string
	CSVData        string
}

func (r *Repository) Insert(ctx context.Context, params InsertJobParams) (ImportJob, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO import_jobs (organization_id, requested_by, file_name, csv_data, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING`+importJobColumns,
		params.OrganizationID, params.RequestedBy, params.FileName, params.CSVData, StatusPending,
	)
	return scanImportJob(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (ImportJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+importJobColumns+`
		FROM import_jobs
		WHERE id = $1
	`, id)

	job, err := scanImportJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportJob{}, ErrImportJobNotFound
	}
	return job, err
}

// Claim transitions pending → running. Returns nil without error when another
// worker already holds the job.
func (r *Repository) Claim(ctx context.Context, id uuid.UUID) (*ClaimedJob, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE import_jobs
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING`+importJobColumns+`, csv_data`,
		id, StatusRunning, StatusPending,
	)

	var claimed ClaimedJob
	err := row.Scan(
		&claimed.ID, &claimed.OrganizationID, &claimed.RequestedBy, &claimed.FileName, &claimed.Status,
		&claimed.OpportunitiesCreated, &claimed.MeetingsCreated, &claimed.RowsSkipped, &claimed.Error, &claimed.CreatedAt, &claimed.UpdatedAt,
		&claimed.CSVData,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

// Counts is the row accounting recorded when a job completes.
type Counts struct {
	OpportunitiesCreated int
	MeetingsCreated      int
	RowsSkipped          int
}

// Complete marks the job done and records its counts.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, counts Counts) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, opportunities_created = $3, meetings_created = $4, rows_skipped = $5, error = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $6
	`, id, StatusCompleted, counts.OpportunitiesCreated, counts.MeetingsCreated, counts.RowsSkipped, StatusRunning)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("import job %s is not in running state", id)
	}
	return nil
}

func (r *Repository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, StatusFailed, message)
	return err
}

// Release puts a running job back to pending so the next delivery attempt can
// claim it again.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, StatusPending, StatusRunning)
	return err
}

// ListByOrganization returns an organization's import jobs, newest first.
func (r *Repository) ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit int) ([]ImportJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+importJobColumns+`
		FROM import_jobs
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ImportJob
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
