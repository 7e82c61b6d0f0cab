package transport

import (
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/opportunities/ports"
)

// RecordingResponse is the response DTO for a submitted call recording.
type RecordingResponse struct {
	ID          uuid.UUID  `json:"id"`
	ContentType string     `json:"contentType"`
	SizeBytes   int64      `json:"sizeBytes"`
	Title       *string    `json:"title,omitempty"`
	OccurredAt  *time.Time `json:"occurredAt,omitempty"`
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	MeetingID   *uuid.UUID `json:"meetingId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// RecordingListResponse is the list of recordings for an opportunity.
type RecordingListResponse struct {
	Items []RecordingResponse `json:"items"`
}

// ToRecordingResponse maps a recording summary to its response DTO.
func ToRecordingResponse(rec ports.RecordingSummary) RecordingResponse {
	return RecordingResponse{
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

// ToRecordingListResponse maps recording summaries to the list DTO.
func ToRecordingListResponse(recs []ports.RecordingSummary) RecordingListResponse {
	items := make([]RecordingResponse, len(recs))
	for i, rec := range recs {
		items[i] = ToRecordingResponse(rec)
	}
	return RecordingListResponse{Items: items}
}
