package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/documents/repository"
	"dealdesk_backend/platform/apperr"
)

func sampleBundle() ContextBundle {
	contact := "Dana Voss"
	amount := int64(4_800_000)
	risk := "medium"
	riskSummary := "Champion is leaving at the end of the quarter."
	return ContextBundle{
		Opportunity: OpportunitySummary{
			ID:          uuid.New(),
			AccountName: "Meridian Analytics",
			ContactName: &contact,
			Stage:       "negotiation",
			AmountCents: &amount,
		},
		Meetings: []MeetingContext{
			{
				ID:         uuid.New(),
				Kind:       "call_transcript",
				Title:      strPtr("Kickoff call"),
				OccurredAt: testBase.Add(-72 * time.Hour),
				Summary:    strPtr("Agreed on the evaluation scope."),
				PainPoints: []string{"Manual reporting eats a day per week"},
			},
			{
				ID:         uuid.New(),
				Kind:       "meeting_notes",
				OccurredAt: testBase.Add(-24 * time.Hour),
				Summary:    strPtr("Security review went well."),
				NextSteps:  []string{"Send the order form"},
			},
		},
		Insights: &InsightsContext{
			PainPoints:     []string{"Reporting backlog"},
			Goals:          []string{"Cut close time to three days"},
			RiskLevel:      &risk,
			RiskSummary:    &riskSummary,
			ConsolidatedAt: testBase,
		},
		Research: &ResearchContext{
			Markdown:    "## Company\nMeridian sells analytics tooling.",
			GeneratedAt: testBase.Add(-48 * time.Hour),
		},
		AdditionalContext: "Focus on the pricing objection.",
	}
}

func TestRenderContextIncludesSelectedSections(t *testing.T) {
	text, truncated := renderContext(sampleBundle(), ContextCharBudget)
	if truncated {
		t.Fatalf("did not expect truncation for a small bundle")
	}

	for _, want := range []string{
		"OPPORTUNITY\n",
		"- Account: Meridian Analytics",
		"- Primary contact: Dana Voss",
		"- Deal amount: 48000.00",
		"ADDITIONAL INSTRUCTIONS FROM THE REQUESTER\nFocus on the pricing objection.",
		"CONSOLIDATED INSIGHTS (merged across all parsed meetings, as of 2026-05-04)",
		"Risk level: medium",
		"Risk summary: Champion is leaving at the end of the quarter.",
		"ACCOUNT RESEARCH BRIEF (generated 2026-05-02)",
		"SELECTED MEETINGS (most recent first)",
		"--- 2026-05-03 meeting_notes ---",
		"--- 2026-05-01 call_transcript: Kickoff call ---",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("context missing %q:\n%s", want, text)
		}
	}

	// Meetings must come out newest first regardless of input order.
	newer := strings.Index(text, "2026-05-03 meeting_notes")
	older := strings.Index(text, "2026-05-01 call_transcript")
	if newer < 0 || older < 0 || newer > older {
		t.Errorf("expected newest meeting first, got positions %d and %d", newer, older)
	}
}

func TestRenderContextSkipsAbsentSections(t *testing.T) {
	bundle := ContextBundle{
		Opportunity: OpportunitySummary{AccountName: "Meridian Analytics", Stage: "discovery"},
	}
	text, truncated := renderContext(bundle, ContextCharBudget)
	if truncated {
		t.Fatalf("did not expect truncation")
	}
	for _, absent := range []string{
		"ADDITIONAL INSTRUCTIONS",
		"CONSOLIDATED INSIGHTS",
		"ACCOUNT RESEARCH BRIEF",
		"SELECTED MEETINGS",
	} {
		if strings.Contains(text, absent) {
			t.Errorf("unexpected section %q in:\n%s", absent, text)
		}
	}
}

func TestRenderContextTruncatesAtBudget(t *testing.T) {
	bundle := sampleBundle()
	bundle.Research.Markdown = strings.Repeat("Meridian ships analytics tooling. ", 200)

	budget := 500
	text, truncated := renderContext(bundle, budget)
	if !truncated {
		t.Fatalf("expected truncation at budget %d", budget)
	}
	if len(text) != budget+len(TruncationMarker) {
		t.Errorf("expected length %d, got %d", budget+len(TruncationMarker), len(text))
	}
	if strings.Count(text, "[CONTEXT TRUNCATED") != 1 {
		t.Errorf("expected exactly one truncation marker:\n%s", text)
	}
	if !strings.HasSuffix(text, TruncationMarker) {
		t.Errorf("expected the marker at the end")
	}
}

func TestGatherContextFetchesOnlySelected(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()
	oppID := deps.seedOpportunity(orgID)

	_, err := svc.gatherContext(context.Background(), oppID, repository.ContextSnapshot{
		IncludeAccountResearch: true,
	})
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	if deps.source.oppCalls != 1 {
		t.Errorf("expected one opportunity fetch, got %d", deps.source.oppCalls)
	}
	if deps.source.researchCalls != 1 {
		t.Errorf("expected one research fetch, got %d", deps.source.researchCalls)
	}
	if deps.source.meetingCalls != 0 || deps.source.insightCalls != 0 {
		t.Errorf("unselected material must not be fetched, got %d meeting and %d insight calls",
			deps.source.meetingCalls, deps.source.insightCalls)
	}
}

func TestGatherContextPropagatesOpportunityNotFound(t *testing.T) {
	svc, deps := newTestService()
	deps.source.oppErr = apperr.NotFound("opportunity not found")

	_, err := svc.gatherContext(context.Background(), uuid.New(), repository.ContextSnapshot{})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected the not found kind preserved, got %v", err)
	}
}
