package consolidation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
)

type fakeStore struct {
	mu       sync.Mutex
	opp      repository.Opportunity
	meetings []repository.MeetingRecord

	updatedInsights *domain.ConsolidatedInsights
	updatedCount    int
	updatedAt       time.Time
	updateCalls     int
}

func (f *fakeStore) GetByID(ctx context.Context, id, organizationID uuid.UUID) (repository.Opportunity, error) {
	if f.opp.ID != id || f.opp.OrganizationID != organizationID {
		return repository.Opportunity{}, repository.ErrNotFound
	}
	return f.opp, nil
}

func (f *fakeStore) GetByIDInternal(ctx context.Context, id uuid.UUID) (repository.Opportunity, error) {
	if f.opp.ID != id {
		return repository.Opportunity{}, repository.ErrNotFound
	}
	return f.opp, nil
}

func (f *fakeStore) ListCompletedMeetings(ctx context.Context, opportunityID uuid.UUID) ([]repository.MeetingRecord, error) {
	return f.meetings, nil
}

func (f *fakeStore) UpdateConsolidatedInsights(ctx context.Context, opportunityID uuid.UUID, insights domain.ConsolidatedInsights, callCount int, consolidatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedInsights = &insights
	f.updatedCount = callCount
	f.updatedAt = consolidatedAt
	f.updateCalls++
	return nil
}

func (f *fakeStore) CreateTimelineEvent(ctx context.Context, params repository.CreateTimelineEventParams) (repository.TimelineEvent, error) {
	return repository.TimelineEvent{ID: uuid.New()}, nil
}

func completedMeeting(oppID uuid.UUID, painPoints []string, risk *domain.RiskAssessment) repository.MeetingRecord {
	summary := "Meeting summary."
	now := time.Now()
	return repository.MeetingRecord{
		ID:            uuid.New(),
		OpportunityID: oppID,
		Kind:          string(domain.MeetingKindCallTranscript),
		ParseStatus:   string(domain.ParseStatusCompleted),
		Summary:       &summary,
		PainPoints:    painPoints,
		Risk:          risk,
		ParsedAt:      &now,
	}
}

func newTestService() (*Service, *fakeStore) {
	store := &fakeStore{
		opp: repository.Opportunity{
			ID:                     uuid.New(),
			OrganizationID:         uuid.New(),
			AccountName:            "Northwind Traders",
			ConsolidationCallCount: 2,
		},
	}
	return New(store, nil, logger.New("development")), store
}

func TestRunSkipsBelowThreshold(t *testing.T) {
	svc, store := newTestService()
	store.meetings = []repository.MeetingRecord{
		completedMeeting(store.opp.ID, []string{"Slow procurement"}, nil),
	}

	if err := svc.ProcessConsolidation(context.Background(), store.opp.ID); err != nil {
		t.Fatalf("a below-threshold run must not error: %v", err)
	}
	if store.updateCalls != 0 {
		t.Errorf("expected no consolidation write, got %d", store.updateCalls)
	}
}

func TestRunConsolidatesAndStampsCallCount(t *testing.T) {
	svc, store := newTestService()
	store.meetings = []repository.MeetingRecord{
		completedMeeting(store.opp.ID, []string{"Slow procurement process"}, &domain.RiskAssessment{
			Level: domain.RiskLevelLow, Factors: []string{"Long sales cycle"}, Summary: "Mild friction.",
		}),
		completedMeeting(store.opp.ID, []string{"slow  procurement   PROCESS", "No executive sponsor"}, &domain.RiskAssessment{
			Level: domain.RiskLevelHigh, Factors: []string{"Competitor in play"}, Summary: "Deal at risk.",
		}),
	}

	outcome, err := svc.TriggerConsolidation(context.Background(), store.opp.ID, store.opp.OrganizationID)
	if err != nil {
		t.Fatalf("consolidation failed: %v", err)
	}
	if !outcome.Applied || outcome.MeetingsUsed != 2 {
		t.Fatalf("expected applied outcome over 2 meetings, got %+v", outcome)
	}

	if store.updatedInsights == nil {
		t.Fatalf("expected consolidated insights written")
	}
	if len(store.updatedInsights.PainPoints) != 2 {
		t.Errorf("expected near-duplicate pain points merged, got %v", store.updatedInsights.PainPoints)
	}
	if store.updatedInsights.Risk == nil || store.updatedInsights.Risk.Level != domain.RiskLevelHigh {
		t.Errorf("expected most severe risk to win, got %+v", store.updatedInsights.Risk)
	}
	if len(store.updatedInsights.Risk.Factors) != 2 {
		t.Errorf("expected risk factors unioned, got %v", store.updatedInsights.Risk.Factors)
	}
	if store.updatedCount != 3 {
		t.Errorf("expected call count incremented to 3, got %d", store.updatedCount)
	}
	if store.updatedAt.IsZero() {
		t.Errorf("expected lastConsolidatedAt stamped")
	}
}

func TestRunGuardSkipsConcurrentRun(t *testing.T) {
	svc, store := newTestService()
	store.meetings = []repository.MeetingRecord{
		completedMeeting(store.opp.ID, []string{"a"}, nil),
		completedMeeting(store.opp.ID, []string{"b"}, nil),
	}

	if !svc.markRunning(store.opp.ID) {
		t.Fatalf("expected first lock acquisition to succeed")
	}

	outcome, err := svc.TriggerConsolidation(context.Background(), store.opp.ID, store.opp.OrganizationID)
	if err != nil {
		t.Fatalf("in-flight skip must not error: %v", err)
	}
	if outcome.Applied {
		t.Errorf("expected in-flight run to be skipped")
	}
	if store.updateCalls != 0 {
		t.Errorf("expected no write during in-flight skip")
	}

	svc.markComplete(store.opp.ID)
	outcome, err = svc.TriggerConsolidation(context.Background(), store.opp.ID, store.opp.OrganizationID)
	if err != nil || !outcome.Applied {
		t.Errorf("expected run to proceed after completion, got %+v err=%v", outcome, err)
	}
}

func TestTriggerConsolidationUnknownOpportunity(t *testing.T) {
	svc, store := newTestService()

	_, err := svc.TriggerConsolidation(context.Background(), uuid.New(), store.opp.OrganizationID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProcessConsolidationDeletedOpportunityIsNoop(t *testing.T) {
	svc, _ := newTestService()

	if err := svc.ProcessConsolidation(context.Background(), uuid.New()); err != nil {
		t.Fatalf("expected deleted opportunity to be a no-op, got %v", err)
	}
}
