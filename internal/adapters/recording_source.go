package adapters

import (
	"context"

	"dealdesk_backend/internal/opportunities/ports"
	"dealdesk_backend/internal/transcription"

	"github.com/google/uuid"
)

// RecordingSource adapts the transcription service for the opportunities
// HTTP surface. It implements the opportunities/ports.RecordingSource
// interface.
type RecordingSource struct {
	svc *transcription.Service
}

// NewRecordingSource creates an adapter that wraps the transcription service.
func NewRecordingSource(svc *transcription.Service) *RecordingSource {
	return &RecordingSource{svc: svc}
}

// ListRecordings returns the recordings submitted for an opportunity.
func (a *RecordingSource) ListRecordings(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]ports.RecordingSummary, error) {
	recs, err := a.svc.ListRecordings(ctx, opportunityID, organizationID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ports.RecordingSummary, len(recs))
	for i, rec := range recs {
		summaries[i] = toRecordingSummary(rec)
	}
	return summaries, nil
}

// GetRecording returns one recording scoped to the organization.
func (a *RecordingSource) GetRecording(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (ports.RecordingSummary, error) {
	rec, err := a.svc.GetRecording(ctx, id, organizationID)
	if err != nil {
		return ports.RecordingSummary{}, err
	}
	return toRecordingSummary(rec), nil
}

func toRecordingSummary(rec transcription.Recording) ports.RecordingSummary {
	return ports.RecordingSummary{
		ID:          rec.ID,
		ContentType: rec.ContentType,
		SizeBytes:   rec.SizeBytes,
		Title:       rec.Title,
		OccurredAt:  rec.OccurredAt,
		Status:      rec.Status,
		Error:       rec.Error,
		MeetingID:   rec.MeetingID,
		CreatedAt:   rec.CreatedAt,
	}
}

var _ ports.RecordingSource = (*RecordingSource)(nil)
