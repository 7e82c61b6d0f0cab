package adapters

import (
	"context"
	"errors"

	docsvc "dealdesk_backend/internal/documents/service"
	opprepo "dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/platform/apperr"

	"github.com/google/uuid"
)

// DocumentContextSource reads opportunity material for the document writer.
// It implements the documents service.ContextSource interface on top of the
// opportunities repository.
type DocumentContextSource struct {
	repo *opprepo.Repository
}

// NewDocumentContextSource creates an adapter that wraps the opportunities
// repository.
func NewDocumentContextSource(repo *opprepo.Repository) *DocumentContextSource {
	return &DocumentContextSource{repo: repo}
}

// OpportunitySummary returns the header slice of an opportunity.
func (a *DocumentContextSource) OpportunitySummary(ctx context.Context, opportunityID uuid.UUID) (docsvc.OpportunitySummary, error) {
	opp, err := a.loadOpportunity(ctx, opportunityID)
	if err != nil {
		return docsvc.OpportunitySummary{}, err
	}

	return docsvc.OpportunitySummary{
		ID:             opp.ID,
		OrganizationID: opp.OrganizationID,
		AccountName:    opp.AccountName,
		ContactName:    opp.ContactName,
		Stage:          opp.Stage,
		AmountCents:    opp.AmountCents,
		LastCallDate:   opp.LastCallDate,
		NextCallDate:   opp.NextCallDate,
	}, nil
}

// Meetings returns the requested meetings that belong to the opportunity.
// Records selected but since deleted simply drop out of the result.
func (a *DocumentContextSource) Meetings(ctx context.Context, opportunityID uuid.UUID, meetingIDs []uuid.UUID) ([]docsvc.MeetingContext, error) {
	opp, err := a.loadOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, err
	}

	records, err := a.repo.ListMeetingsByOpportunity(ctx, opportunityID, opp.OrganizationID)
	if err != nil {
		return nil, err
	}

	requested := make(map[uuid.UUID]bool, len(meetingIDs))
	for _, id := range meetingIDs {
		requested[id] = true
	}

	meetings := make([]docsvc.MeetingContext, 0, len(meetingIDs))
	for _, rec := range records {
		if !requested[rec.ID] {
			continue
		}
		meetings = append(meetings, meetingContext(rec))
	}
	return meetings, nil
}

// ConsolidatedInsights returns the merged insight view, or nil when the
// opportunity has never been consolidated.
func (a *DocumentContextSource) ConsolidatedInsights(ctx context.Context, opportunityID uuid.UUID) (*docsvc.InsightsContext, error) {
	opp, err := a.loadOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if opp.ConsolidatedInsights == nil || opp.LastConsolidatedAt == nil {
		return nil, nil
	}

	insights := &docsvc.InsightsContext{
		PainPoints:     opp.ConsolidatedInsights.PainPoints,
		Goals:          opp.ConsolidatedInsights.Goals,
		NextSteps:      opp.ConsolidatedInsights.NextSteps,
		Metrics:        opp.ConsolidatedInsights.Metrics,
		ConsolidatedAt: *opp.LastConsolidatedAt,
	}
	if risk := opp.ConsolidatedInsights.Risk; risk != nil {
		level := string(risk.Level)
		insights.RiskLevel = &level
		if risk.Summary != "" {
			summary := risk.Summary
			insights.RiskSummary = &summary
		}
	}
	return insights, nil
}

// ResearchBrief returns the stored account research, or nil when none has
// been generated.
func (a *DocumentContextSource) ResearchBrief(ctx context.Context, opportunityID uuid.UUID) (*docsvc.ResearchContext, error) {
	opp, err := a.loadOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if opp.ResearchMarkdown == nil || opp.ResearchGeneratedAt == nil {
		return nil, nil
	}

	return &docsvc.ResearchContext{
		Markdown:    *opp.ResearchMarkdown,
		GeneratedAt: *opp.ResearchGeneratedAt,
	}, nil
}

func (a *DocumentContextSource) loadOpportunity(ctx context.Context, opportunityID uuid.UUID) (opprepo.Opportunity, error) {
	opp, err := a.repo.GetByIDInternal(ctx, opportunityID)
	if errors.Is(err, opprepo.ErrNotFound) {
		return opprepo.Opportunity{}, apperr.NotFound("opportunity not found")
	}
	return opp, err
}

func meetingContext(rec opprepo.MeetingRecord) docsvc.MeetingContext {
	m := docsvc.MeetingContext{
		ID:         rec.ID,
		Kind:       rec.Kind,
		Title:      rec.Title,
		OccurredAt: rec.OccurredAt,
		Summary:    rec.Summary,
		PainPoints: rec.PainPoints,
		Goals:      rec.Goals,
		NextSteps:  rec.NextSteps,
		Metrics:    rec.Metrics,
	}
	if rec.Risk != nil {
		level := string(rec.Risk.Level)
		m.RiskLevel = &level
	}
	return m
}

var _ docsvc.ContextSource = (*DocumentContextSource)(nil)
