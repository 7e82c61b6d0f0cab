package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordingSummary describes a submitted call recording and how far its
// transcription has progressed. MeetingID is set once the transcript has been
// ingested as a meeting.
type RecordingSummary struct {
	ID          uuid.UUID
	ContentType string
	SizeBytes   int64
	Title       *string
	OccurredAt  *time.Time
	Status      string
	Error       *string
	MeetingID   *uuid.UUID
	CreatedAt   time.Time
}

// RecordingSource exposes the recordings submitted for an opportunity.
// Implemented by an adapter over the transcription service.
type RecordingSource interface {
	ListRecordings(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]RecordingSummary, error)
	GetRecording(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (RecordingSummary, error)
}
