package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimelineSummaryMaxLen is the canonical maximum character length for timeline event summaries.
// Callers should use TruncateSummary when populating CreateTimelineEventParams.Summary.
const TimelineSummaryMaxLen = 400

// TruncateSummary trims text to maxLen, appending "..." on overflow.
// Returns nil for blank input.
func TruncateSummary(text string, maxLen int) *string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) > maxLen {
		trimmed = trimmed[:maxLen] + "..."
	}
	return &trimmed
}

type TimelineEvent struct {
	ID             uuid.UUID
	OpportunityID  uuid.UUID
	MeetingID      *uuid.UUID
	OrganizationID uuid.UUID
	ActorType      string
	ActorName      string
	EventType      string
	Title          string
	Summary        *string
	Metadata       map[string]any
	CreatedAt      time.Time
}

type CreateTimelineEventParams struct {
	OpportunityID  uuid.UUID
	MeetingID      *uuid.UUID
	OrganizationID uuid.UUID
	ActorType      string
	ActorName      string
	EventType      string
	Title          string
	Summary        *string
	Metadata       map[string]any
}

func (r *Repository) CreateTimelineEvent(ctx context.Context, params CreateTimelineEventParams) (TimelineEvent, error) {
	metadataJSON, err := json.Marshal(params.Metadata)
	if err != nil {
		return TimelineEvent{}, err
	}

	var event TimelineEvent

	// metadata is excluded from RETURNING: we already hold params.Metadata as
	// a Go value, so re-scanning the stored JSONB would only add a redundant
	// unmarshal.
	err = r.pool.QueryRow(ctx, `
		INSERT INTO opportunity_timeline_events (
			opportunity_id, meeting_id, organization_id, actor_type, actor_name, event_type, title, summary, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, opportunity_id, meeting_id, organization_id, actor_type, actor_name, event_type, title, summary, created_at
	`, params.OpportunityID, params.MeetingID, params.OrganizationID, params.ActorType, params.ActorName, params.EventType, params.Title, params.Summary, metadataJSON).Scan(
		&event.ID,
		&event.OpportunityID,
		&event.MeetingID,
		&event.OrganizationID,
		&event.ActorType,
		&event.ActorName,
		&event.EventType,
		&event.Title,
		&event.Summary,
		&event.CreatedAt,
	)
	if err != nil {
		return TimelineEvent{}, err
	}

	event.Metadata = params.Metadata
	return event, nil
}

const timelineSelectCols = `
	id, opportunity_id, meeting_id, organization_id, actor_type, actor_name, event_type, title, summary, metadata, created_at`

type timelineRowScanner interface {
	Scan(dest ...any) error
}

func scanTimelineEvent(s timelineRowScanner) (TimelineEvent, error) {
	var event TimelineEvent
	var rawMetadata []byte
	if err := s.Scan(
		&event.ID,
		&event.OpportunityID,
		&event.MeetingID,
		&event.OrganizationID,
		&event.ActorType,
		&event.ActorName,
		&event.EventType,
		&event.Title,
		&event.Summary,
		&rawMetadata,
		&event.CreatedAt,
	); err != nil {
		return TimelineEvent{}, err
	}
	if len(rawMetadata) > 0 {
		_ = json.Unmarshal(rawMetadata, &event.Metadata)
	}
	return event, nil
}

// ListTimelineEvents returns all timeline events for an opportunity, newest
// first. Both meeting-scoped and opportunity-level events are included.
func (r *Repository) ListTimelineEvents(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID, limit int) ([]TimelineEvent, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT`+timelineSelectCols+`
		FROM opportunity_timeline_events
		WHERE opportunity_id = $1 AND organization_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, opportunityID, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]TimelineEvent, 0)
	for rows.Next() {
		event, err := scanTimelineEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
