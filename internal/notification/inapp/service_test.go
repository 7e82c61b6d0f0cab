package inapp

import (
	"context"
	"testing"

	"dealdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type stubStore struct {
	created map[string]bool

	listLimit  int
	listOffset int

	countTriggers []string
}

func newStubStore() *stubStore {
	return &stubStore{created: make(map[string]bool)}
}

func (s *stubStore) Create(_ context.Context, p CreateParams) (Notification, bool, error) {
	key := p.UserID.String() + "|" + p.ResourceID.String() + "|" + p.TriggerType
	if s.created[key] {
		return Notification{}, false, nil
	}
	s.created[key] = true
	return Notification{
		ID:          uuid.New(),
		UserID:      p.UserID,
		TriggerType: p.TriggerType,
		ResourceID:  p.ResourceID,
		Title:       p.Title,
		Content:     p.Content,
	}, true, nil
}

func (s *stubStore) List(_ context.Context, _ uuid.UUID, limit, offset int) ([]Notification, int, error) {
	s.listLimit = limit
	s.listOffset = offset
	return nil, 0, nil
}

func (s *stubStore) CountUnread(context.Context, uuid.UUID) (int, error) { return 0, nil }

func (s *stubStore) CountUnreadByTriggerTypes(_ context.Context, _ uuid.UUID, triggerTypes []string) (int, error) {
	s.countTriggers = triggerTypes
	return 0, nil
}

func (s *stubStore) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (s *stubStore) MarkAllRead(context.Context, uuid.UUID) error         { return nil }
func (s *stubStore) Delete(context.Context, uuid.UUID, uuid.UUID) error   { return nil }

func TestSendSuppressesDuplicates(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, logger.New("development"))

	params := SendParams{
		OrgID:       uuid.New(),
		UserID:      uuid.New(),
		TriggerType: "consolidation_ready",
		ResourceID:  uuid.New(),
		Title:       "Consolidated insights ready",
		Content:     "Insights from 4 parsed meetings were merged into the opportunity profile.",
	}

	created, err := svc.Send(context.Background(), params)
	if err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if !created {
		t.Fatal("expected first send to create a notification")
	}

	created, err = svc.Send(context.Background(), params)
	if err != nil {
		t.Fatalf("duplicate send failed: %v", err)
	}
	if created {
		t.Fatal("expected duplicate send to be suppressed")
	}
}

func TestListClampsPaging(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, logger.New("development"))

	if _, _, err := svc.List(context.Background(), uuid.New(), 0, 0); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if store.listLimit != 20 || store.listOffset != 0 {
		t.Errorf("expected defaults limit=20 offset=0, got limit=%d offset=%d", store.listLimit, store.listOffset)
	}

	if _, _, err := svc.List(context.Background(), uuid.New(), 3, 200); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if store.listLimit != 100 || store.listOffset != 200 {
		t.Errorf("expected limit capped at 100 and offset=200, got limit=%d offset=%d", store.listLimit, store.listOffset)
	}
}

func TestCountUnreadByTriggerTypesNormalizes(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, logger.New("development"))

	_, err := svc.CountUnreadByTriggerTypes(context.Background(), uuid.New(), []string{" consolidation_ready ", "", "research_ready"})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}

	if len(store.countTriggers) != 2 {
		t.Fatalf("expected 2 normalized trigger types, got %v", store.countTriggers)
	}
	if store.countTriggers[0] != "consolidation_ready" || store.countTriggers[1] != "research_ready" {
		t.Errorf("unexpected normalized triggers %v", store.countTriggers)
	}
}
