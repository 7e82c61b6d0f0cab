package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/calendar/repository"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
)

type fakeStore struct {
	mu     sync.Mutex
	events map[string]repository.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[string]repository.Event)}
}

func upsertKey(organizationID uuid.UUID, provider, providerEventID string) string {
	return organizationID.String() + "|" + provider + "|" + providerEventID
}

func (f *fakeStore) Upsert(_ context.Context, event *repository.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := upsertKey(event.OrganizationID, event.Provider, event.ProviderEventID)
	if existing, ok := f.events[key]; ok {
		event.ID = existing.ID
		event.CreatedAt = existing.CreatedAt
	} else {
		event.CreatedAt = time.Now()
	}
	event.UpdatedAt = time.Now()
	f.events[key] = *event
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID, organizationID uuid.UUID) (*repository.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, event := range f.events {
		if event.ID == id && event.OrganizationID == organizationID {
			copied := event
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("calendar event not found")
}

func (f *fakeStore) ListByOpportunity(_ context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]repository.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []repository.Event
	for _, event := range f.events {
		if event.OpportunityID == opportunityID && event.OrganizationID == organizationID {
			items = append(items, event)
		}
	}
	return items, nil
}

func (f *fakeStore) ListActiveByOpportunity(_ context.Context, opportunityID uuid.UUID) ([]repository.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []repository.Event
	for _, event := range f.events {
		if event.OpportunityID == opportunityID && event.Status == repository.StatusConfirmed {
			items = append(items, event)
		}
	}
	return items, nil
}

func (f *fakeStore) stored() []repository.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []repository.Event
	for _, event := range f.events {
		items = append(items, event)
	}
	return items
}

type fakeQueue struct {
	mu      sync.Mutex
	recalcs []scheduler.ScheduleRecalculatePayload
	err     error
}

func (f *fakeQueue) EnqueueScheduleRecalculate(_ context.Context, payload scheduler.ScheduleRecalculatePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recalcs = append(f.recalcs, payload)
	return nil
}

func newTestService() (*Service, *fakeStore, *fakeQueue) {
	store := newFakeStore()
	queue := &fakeQueue{}
	svc := New(store, queue, logger.New("test"))
	return svc, store, queue
}

func validParams() UpsertParams {
	return UpsertParams{
		OrganizationID:  uuid.New(),
		OpportunityID:   uuid.New(),
		Provider:        "google",
		ProviderEventID: "evt-123",
		Title:           "Discovery call",
		StartsAt:        time.Now().Add(48 * time.Hour),
	}
}

func TestUpsertFromProviderStoresEventAndQueuesRecalc(t *testing.T) {
	svc, store, queue := newTestService()
	params := validParams()

	event, err := svc.UpsertFromProvider(context.Background(), params)
	if err != nil {
		t.Fatalf("UpsertFromProvider: %v", err)
	}
	if event.Status != repository.StatusConfirmed {
		t.Errorf("status = %q, want confirmed", event.Status)
	}
	if len(store.stored()) != 1 {
		t.Fatalf("stored %d events, want 1", len(store.stored()))
	}
	if len(queue.recalcs) != 1 {
		t.Fatalf("enqueued %d recalcs, want 1", len(queue.recalcs))
	}
	if queue.recalcs[0].OpportunityID != params.OpportunityID.String() {
		t.Errorf("recalc opportunity = %s, want %s", queue.recalcs[0].OpportunityID, params.OpportunityID)
	}
}

func TestUpsertFromProviderIsIdempotentByProviderEventID(t *testing.T) {
	svc, store, _ := newTestService()
	params := validParams()

	first, err := svc.UpsertFromProvider(context.Background(), params)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	params.Title = "Discovery call (rescheduled)"
	params.StartsAt = params.StartsAt.Add(24 * time.Hour)
	second, err := svc.UpsertFromProvider(context.Background(), params)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("second upsert created a new row: %s vs %s", second.ID, first.ID)
	}
	if len(store.stored()) != 1 {
		t.Fatalf("stored %d events, want 1", len(store.stored()))
	}
	if got := store.stored()[0].Title; got != "Discovery call (rescheduled)" {
		t.Errorf("title = %q, want the rescheduled one", got)
	}
}

func TestUpsertFromProviderRejectsUnknownStatus(t *testing.T) {
	svc, _, queue := newTestService()
	params := validParams()
	params.Status = "tentative"

	_, err := svc.UpsertFromProvider(context.Background(), params)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if len(queue.recalcs) != 0 {
		t.Errorf("enqueued %d recalcs, want 0", len(queue.recalcs))
	}
}

func TestUpsertFromProviderRejectsBlankProviderEventID(t *testing.T) {
	svc, store, _ := newTestService()
	params := validParams()
	params.ProviderEventID = "   "

	_, err := svc.UpsertFromProvider(context.Background(), params)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if len(store.stored()) != 0 {
		t.Errorf("stored %d events, want 0", len(store.stored()))
	}
}

func TestUpsertFromProviderDefaultsTitle(t *testing.T) {
	svc, _, _ := newTestService()
	params := validParams()
	params.Title = "  "

	event, err := svc.UpsertFromProvider(context.Background(), params)
	if err != nil {
		t.Fatalf("UpsertFromProvider: %v", err)
	}
	if event.Title != "Untitled event" {
		t.Errorf("title = %q, want default", event.Title)
	}
}

func TestUpsertFromProviderEnqueueFailureKeepsEvent(t *testing.T) {
	svc, store, queue := newTestService()
	queue.err = errors.New("redis down")
	params := validParams()

	_, err := svc.UpsertFromProvider(context.Background(), params)
	if err == nil || !strings.Contains(err.Error(), "queue schedule recalculation") {
		t.Fatalf("err = %v, want enqueue failure", err)
	}

	// The row stays in place so the provider's retry converges on it.
	if len(store.stored()) != 1 {
		t.Errorf("stored %d events, want 1", len(store.stored()))
	}
}

func TestActiveEventsExcludeCancelled(t *testing.T) {
	svc, _, _ := newTestService()
	params := validParams()

	if _, err := svc.UpsertFromProvider(context.Background(), params); err != nil {
		t.Fatalf("confirmed upsert: %v", err)
	}

	cancelled := params
	cancelled.ProviderEventID = "evt-456"
	cancelled.Status = repository.StatusCancelled
	if _, err := svc.UpsertFromProvider(context.Background(), cancelled); err != nil {
		t.Fatalf("cancelled upsert: %v", err)
	}

	active, err := svc.ActiveEvents(context.Background(), params.OpportunityID)
	if err != nil {
		t.Fatalf("ActiveEvents: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active events = %d, want 1", len(active))
	}
	if active[0].ProviderEventID != "evt-123" {
		t.Errorf("active event = %s, want evt-123", active[0].ProviderEventID)
	}
}
