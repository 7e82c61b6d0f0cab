package adapters

import (
	"context"

	docsvc "dealdesk_backend/internal/documents/service"
	opprepo "dealdesk_backend/internal/opportunities/repository"
)

// DocumentTimelineWriter writes document lifecycle entries onto the
// opportunity timeline. Summaries are truncated here so the documents
// service can pass full strings.
type DocumentTimelineWriter struct {
	repo *opprepo.Repository
}

// NewDocumentTimelineWriter creates a new document timeline writer adapter.
func NewDocumentTimelineWriter(repo *opprepo.Repository) *DocumentTimelineWriter {
	return &DocumentTimelineWriter{repo: repo}
}

// CreateTimelineEvent writes an opportunity timeline event.
func (a *DocumentTimelineWriter) CreateTimelineEvent(ctx context.Context, params docsvc.TimelineEventParams) error {
	var summary *string
	if params.Summary != nil {
		summary = opprepo.TruncateSummary(*params.Summary, opprepo.TimelineSummaryMaxLen)
	}

	_, err := a.repo.CreateTimelineEvent(ctx, opprepo.CreateTimelineEventParams{
		OpportunityID:  params.OpportunityID,
		OrganizationID: params.OrganizationID,
		ActorType:      params.ActorType,
		ActorName:      params.ActorName,
		EventType:      params.EventType,
		Title:          params.Title,
		Summary:        summary,
		Metadata:       params.Metadata,
	})
	return err
}

var _ docsvc.TimelineWriter = (*DocumentTimelineWriter)(nil)
