package transcription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRecordingNotFound = errors.New("recording not found")

const (
	StatusPending      = "pending"
	StatusTranscribing = "transcribing"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
)

// Recording tracks one uploaded audio file through transcription. MeetingID
// links to the meeting record created from the transcript once it exists.
type Recording struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	OpportunityID  uuid.UUID
	FileKey        string
	ContentType    string
	SizeBytes      int64
	Title          *string
	OccurredAt     *time.Time
	Status         string
	Error          *string
	MeetingID      *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordingColumns = `
	id, organization_id, opportunity_id, file_key, content_type, size_bytes,
	title, occurred_at, status, error, meeting_id, created_at, updated_at`

type recordingRowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(s recordingRowScanner) (Recording, error) {
	var rec Recording
	err := s.Scan(
		&rec.ID, &rec.OrganizationID, &rec.OpportunityID, &rec.FileKey, &rec.ContentType, &rec.SizeBytes,
		&rec.Title, &rec.OccurredAt, &rec.Status, &rec.Error, &rec.MeetingID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return Recording{}, err
	}
	return rec, nil
}

type InsertRecordingParams struct {
	OrganizationID uuid.UUID
	OpportunityID  uuid.UUID
	FileKey        string
	ContentType    string
	SizeBytes      int64
	Title          *string
	OccurredAt     *time.Time
}

func (r *Repository) Insert(ctx context.Context, params InsertRecordingParams) (Recording, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO meeting_recordings (organization_id, opportunity_id, file_key, content_type, size_bytes, title, occurred_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING`+recordingColumns,
		params.OrganizationID, params.OpportunityID, params.FileKey, params.ContentType, params.SizeBytes, params.Title, params.OccurredAt, StatusPending,
	)
	return scanRecording(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Recording, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+recordingColumns+`
		FROM meeting_recordings
		WHERE id = $1
	`, id)

	rec, err := scanRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recording{}, ErrRecordingNotFound
	}
	return rec, err
}

// Claim transitions pending → transcribing. Returns nil without error when
// another worker already holds the recording.
func (r *Repository) Claim(ctx context.Context, id uuid.UUID) (*Recording, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE meeting_recordings
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING`+recordingColumns,
		id, StatusTranscribing, StatusPending,
	)

	rec, err := scanRecording(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Complete marks the recording done and records the meeting it produced.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, meetingID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE meeting_recordings
		SET status = $2, meeting_id = $3, error = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, StatusCompleted, meetingID, StatusTranscribing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recording %s is not in transcribing state", id)
	}
	return nil
}

func (r *Repository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE meeting_recordings
		SET status = $2, error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, StatusFailed, message)
	return err
}

// Release puts a transcribing recording back to pending so the next delivery
// attempt can claim it again.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE meeting_recordings
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, StatusPending, StatusTranscribing)
	return err
}

// ListByOpportunity returns recordings for an opportunity, newest first.
func (r *Repository) ListByOpportunity(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]Recording, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+recordingColumns+`
		FROM meeting_recordings
		WHERE opportunity_id = $1 AND organization_id = $2
		ORDER BY created_at DESC
	`, opportunityID, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recordings []Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, rec)
	}
	return recordings, rows.Err()
}
