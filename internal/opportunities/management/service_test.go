package management

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
	mu sync.Mutex

	opps   map[uuid.UUID]repository.Opportunity
	order  []uuid.UUID
	states map[uuid.UUID]repository.ConsolidationState

	timeline []repository.CreateTimelineEventParams
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		opps:   make(map[uuid.UUID]repository.Opportunity),
		states: make(map[uuid.UUID]repository.ConsolidationState),
	}
}

func (f *fakeStore) addOpportunity(opp repository.Opportunity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opps[opp.ID] = opp
	f.order = append(f.order, opp.ID)
}

func (f *fakeStore) Create(_ context.Context, params repository.CreateOpportunityParams) (repository.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opp := repository.Opportunity{
		ID:             uuid.New(),
		OrganizationID: params.OrganizationID,
		OwnerID:        params.OwnerID,
		AccountName:    params.AccountName,
		ContactName:    params.ContactName,
		ContactEmail:   params.ContactEmail,
		ContactPhone:   params.ContactPhone,
		Stage:          params.Stage,
		AmountCents:    params.AmountCents,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	f.opps[opp.ID] = opp
	f.order = append(f.order, opp.ID)
	return opp, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID, organizationID uuid.UUID) (repository.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opp, ok := f.opps[id]
	if !ok || opp.OrganizationID != organizationID {
		return repository.Opportunity{}, repository.ErrNotFound
	}
	return opp, nil
}

func (f *fakeStore) List(_ context.Context, organizationID uuid.UUID, limit, offset int) ([]repository.Opportunity, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]repository.Opportunity, 0)
	for _, id := range f.order {
		opp := f.opps[id]
		if opp.OrganizationID == organizationID {
			items = append(items, opp)
		}
	}
	total := len(items)
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, total, nil
}

func (f *fakeStore) Update(_ context.Context, id uuid.UUID, organizationID uuid.UUID, params repository.UpdateOpportunityParams) (repository.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opp, ok := f.opps[id]
	if !ok || opp.OrganizationID != organizationID {
		return repository.Opportunity{}, repository.ErrNotFound
	}
	if params.AccountName != nil {
		opp.AccountName = *params.AccountName
	}
	if params.ContactName != nil {
		opp.ContactName = params.ContactName
	}
	if params.ContactEmail != nil {
		opp.ContactEmail = params.ContactEmail
	}
	if params.ContactPhone != nil {
		opp.ContactPhone = params.ContactPhone
	}
	if params.Stage != nil {
		opp.Stage = *params.Stage
	}
	if params.AmountCents != nil {
		opp.AmountCents = params.AmountCents
	}
	if params.OwnerID != nil {
		opp.OwnerID = params.OwnerID
	}
	opp.UpdatedAt = time.Now()
	f.opps[id] = opp
	return opp, nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	opp, ok := f.opps[id]
	if !ok || opp.OrganizationID != organizationID {
		return repository.ErrNotFound
	}
	delete(f.opps, id)
	return nil
}

func (f *fakeStore) GetConsolidationState(_ context.Context, opportunityID uuid.UUID) (repository.ConsolidationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[opportunityID], nil
}

func (f *fakeStore) GetConsolidationStates(_ context.Context, opportunityIDs []uuid.UUID) (map[uuid.UUID]repository.ConsolidationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]repository.ConsolidationState, len(opportunityIDs))
	for _, id := range opportunityIDs {
		out[id] = f.states[id]
	}
	return out, nil
}

func (f *fakeStore) ListTimelineEvents(_ context.Context, opportunityID uuid.UUID, organizationID uuid.UUID, limit int) ([]repository.TimelineEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]repository.TimelineEvent, 0)
	for _, params := range f.timeline {
		if params.OpportunityID == opportunityID && params.OrganizationID == organizationID {
			items = append(items, repository.TimelineEvent{
				OpportunityID:  params.OpportunityID,
				OrganizationID: params.OrganizationID,
				EventType:      params.EventType,
				Title:          params.Title,
			})
		}
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeStore) CreateTimelineEvent(_ context.Context, params repository.CreateTimelineEventParams) (repository.TimelineEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeline = append(f.timeline, params)
	return repository.TimelineEvent{ID: uuid.New()}, nil
}

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	return New(store, logger.New("test")), store
}

func strPtr(s string) *string { return &s }

func TestCreateRejectsBlankAccountName(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateParams{
		OrganizationID: uuid.New(),
		AccountName:    "   ",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestCreateDefaultsStageAndNormalizesPhone(t *testing.T) {
	svc, store := newTestService()

	view, err := svc.Create(context.Background(), CreateParams{
		OrganizationID: uuid.New(),
		AccountName:    "Acme Industrial",
		ContactPhone:   strPtr("(212) 555-0184"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if view.Stage != domain.StageProspecting {
		t.Errorf("stage = %q, want the default %q", view.Stage, domain.StageProspecting)
	}
	if view.ContactPhone == nil || *view.ContactPhone != "+12125550184" {
		t.Errorf("contact phone = %v, want +12125550184", view.ContactPhone)
	}
	if view.InsightsStatus != domain.InsightsStatusNone {
		t.Errorf("insights status = %q, want none for a fresh opportunity", view.InsightsStatus)
	}
	if len(store.timeline) != 1 || store.timeline[0].EventType != "opportunity_created" {
		t.Errorf("timeline = %+v, want one opportunity_created entry", store.timeline)
	}
}

func TestCreateRejectsUnknownStage(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateParams{
		OrganizationID: uuid.New(),
		AccountName:    "Acme",
		Stage:          "Daydreaming",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestGetDerivesInsightsStatus(t *testing.T) {
	svc, store := newTestService()

	orgID := uuid.New()
	oppID := uuid.New()
	store.addOpportunity(repository.Opportunity{ID: oppID, OrganizationID: orgID, AccountName: "Acme"})

	consolidatedAt := time.Now().Add(-time.Hour)
	store.states[oppID] = repository.ConsolidationState{
		TotalMeetings:      3,
		CompletedParsedAt:  []time.Time{consolidatedAt.Add(-time.Hour), consolidatedAt.Add(30 * time.Minute)},
		LastConsolidatedAt: &consolidatedAt,
	}

	view, err := svc.Get(context.Background(), oppID, orgID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.InsightsStatus != domain.InsightsStatusAppliedWithNew {
		t.Errorf("insights status = %q, want applied_with_new when a parse landed after consolidation", view.InsightsStatus)
	}

	// Without any consolidation run the same meetings read as ready.
	store.states[oppID] = repository.ConsolidationState{
		TotalMeetings:     3,
		CompletedParsedAt: []time.Time{time.Now().Add(-time.Hour)},
	}
	view, err = svc.Get(context.Background(), oppID, orgID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.InsightsStatus != domain.InsightsStatusReady {
		t.Errorf("insights status = %q, want ready", view.InsightsStatus)
	}
}

func TestListDerivesStatusPerOpportunity(t *testing.T) {
	svc, store := newTestService()

	orgID := uuid.New()
	fresh := uuid.New()
	pending := uuid.New()
	store.addOpportunity(repository.Opportunity{ID: fresh, OrganizationID: orgID, AccountName: "Fresh"})
	store.addOpportunity(repository.Opportunity{ID: pending, OrganizationID: orgID, AccountName: "Pending"})
	store.states[pending] = repository.ConsolidationState{TotalMeetings: 1}

	views, total, err := svc.List(context.Background(), orgID, 25, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(views) != 2 {
		t.Fatalf("total=%d len=%d, want 2 and 2", total, len(views))
	}

	byID := map[uuid.UUID]View{}
	for _, v := range views {
		byID[v.ID] = v
	}
	if byID[fresh].InsightsStatus != domain.InsightsStatusNone {
		t.Errorf("fresh status = %q, want none", byID[fresh].InsightsStatus)
	}
	if byID[pending].InsightsStatus != domain.InsightsStatusPending {
		t.Errorf("pending status = %q, want pending", byID[pending].InsightsStatus)
	}
}

func TestUpdateStageWritesTimelineEntry(t *testing.T) {
	svc, store := newTestService()

	orgID := uuid.New()
	oppID := uuid.New()
	store.addOpportunity(repository.Opportunity{ID: oppID, OrganizationID: orgID, AccountName: "Acme", Stage: domain.StageDiscovery})

	updatedBy := uuid.New()
	view, err := svc.Update(context.Background(), oppID, orgID, UpdateParams{
		Stage:     strPtr(domain.StageProposal),
		UpdatedBy: &updatedBy,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if view.Stage != domain.StageProposal {
		t.Errorf("stage = %q, want %q", view.Stage, domain.StageProposal)
	}
	if len(store.timeline) != 1 || store.timeline[0].EventType != "stage_changed" {
		t.Fatalf("timeline = %+v, want one stage_changed entry", store.timeline)
	}
	if store.timeline[0].ActorName != updatedBy.String() {
		t.Errorf("actor = %q, want the updating user", store.timeline[0].ActorName)
	}
}

func TestUpdateSameStageSkipsTimeline(t *testing.T) {
	svc, store := newTestService()

	orgID := uuid.New()
	oppID := uuid.New()
	store.addOpportunity(repository.Opportunity{ID: oppID, OrganizationID: orgID, AccountName: "Acme", Stage: domain.StageDiscovery})

	if _, err := svc.Update(context.Background(), oppID, orgID, UpdateParams{Stage: strPtr(domain.StageDiscovery)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(store.timeline) != 0 {
		t.Errorf("timeline = %+v, want no entry for an unchanged stage", store.timeline)
	}
}

func TestUpdateRejectsNegativeAmount(t *testing.T) {
	svc, _ := newTestService()

	bad := int64(-100)
	_, err := svc.Update(context.Background(), uuid.New(), uuid.New(), UpdateParams{AmountCents: &bad})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestDeleteUnknownOpportunity(t *testing.T) {
	svc, _ := newTestService()

	err := svc.Delete(context.Background(), uuid.New(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
