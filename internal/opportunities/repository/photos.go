package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrPhotoNotFound = errors.New("photo not found")

// MeetingPhoto is an image artifact attached to a meeting: whiteboard
// snapshots, architecture sketches, sign-in sheets. The file lives in object
// storage; this row carries the key and metadata.
type MeetingPhoto struct {
	ID             uuid.UUID
	MeetingID      uuid.UUID
	OrganizationID uuid.UUID
	FileKey        string
	FileName       string
	ContentType    *string
	SizeBytes      *int64
	// CapturedAt is the EXIF capture timestamp when the image carried one.
	CapturedAt *time.Time
	UploadedBy *uuid.UUID
	CreatedAt  time.Time
}

// CreatePhotoParams contains parameters for recording an uploaded photo.
type CreatePhotoParams struct {
	MeetingID      uuid.UUID
	OrganizationID uuid.UUID
	FileKey        string
	FileName       string
	ContentType    string
	SizeBytes      int64
	CapturedAt     *time.Time
	UploadedBy     uuid.UUID
}

// CreatePhoto inserts a new meeting photo record.
func (r *Repository) CreatePhoto(ctx context.Context, params CreatePhotoParams) (MeetingPhoto, error) {
	var photo MeetingPhoto
	err := r.pool.QueryRow(ctx, `
		INSERT INTO meeting_photos (meeting_id, organization_id, file_key, file_name, content_type, size_bytes, captured_at, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, meeting_id, organization_id, file_key, file_name, content_type, size_bytes, captured_at, uploaded_by, created_at
	`, params.MeetingID, params.OrganizationID, params.FileKey, params.FileName, params.ContentType, params.SizeBytes, params.CapturedAt, params.UploadedBy).Scan(
		&photo.ID, &photo.MeetingID, &photo.OrganizationID, &photo.FileKey, &photo.FileName, &photo.ContentType, &photo.SizeBytes, &photo.CapturedAt, &photo.UploadedBy, &photo.CreatedAt,
	)
	return photo, err
}

// GetPhotoByID retrieves a photo by ID, scoped to organization.
func (r *Repository) GetPhotoByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (MeetingPhoto, error) {
	var photo MeetingPhoto
	err := r.pool.QueryRow(ctx, `
		SELECT id, meeting_id, organization_id, file_key, file_name, content_type, size_bytes, captured_at, uploaded_by, created_at
		FROM meeting_photos
		WHERE id = $1 AND organization_id = $2
	`, id, organizationID).Scan(
		&photo.ID, &photo.MeetingID, &photo.OrganizationID, &photo.FileKey, &photo.FileName, &photo.ContentType, &photo.SizeBytes, &photo.CapturedAt, &photo.UploadedBy, &photo.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return MeetingPhoto{}, ErrPhotoNotFound
	}
	return photo, err
}

// ListPhotosByMeeting retrieves all photos for a meeting. Photos with an EXIF
// capture time sort by it, the rest by upload time.
func (r *Repository) ListPhotosByMeeting(ctx context.Context, meetingID uuid.UUID, organizationID uuid.UUID) ([]MeetingPhoto, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, meeting_id, organization_id, file_key, file_name, content_type, size_bytes, captured_at, uploaded_by, created_at
		FROM meeting_photos
		WHERE meeting_id = $1 AND organization_id = $2
		ORDER BY COALESCE(captured_at, created_at) ASC
	`, meetingID, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	photos := make([]MeetingPhoto, 0)
	for rows.Next() {
		var photo MeetingPhoto
		if err := rows.Scan(
			&photo.ID, &photo.MeetingID, &photo.OrganizationID, &photo.FileKey, &photo.FileName, &photo.ContentType, &photo.SizeBytes, &photo.CapturedAt, &photo.UploadedBy, &photo.CreatedAt,
		); err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

// DeletePhoto removes a photo record by ID.
func (r *Repository) DeletePhoto(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM meeting_photos
		WHERE id = $1 AND organization_id = $2
	`, id, organizationID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPhotoNotFound
	}
	return nil
}
