package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/documents/agent"
	"dealdesk_backend/internal/documents/repository"
	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/apperr"
	pevents "dealdesk_backend/platform/events"
	"dealdesk_backend/platform/logger"
)

var testBase = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	documents map[uuid.UUID]repository.Document
	released  []uuid.UUID
	seq       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{documents: make(map[uuid.UUID]repository.Document)}
}

func (f *fakeStore) nextTime() time.Time {
	f.seq++
	return testBase.Add(time.Duration(f.seq) * time.Minute)
}

func (f *fakeStore) addDocument(oppID, orgID uuid.UUID, status string, version int, parentID, templateID *uuid.UUID) repository.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.nextTime()
	doc := repository.Document{
		ID:               uuid.New(),
		OrganizationID:   orgID,
		OpportunityID:    oppID,
		TemplateID:       templateID,
		Version:          version,
		ParentVersionID:  parentID,
		GenerationStatus: status,
		ContextSnapshot:  repository.ContextSnapshot{IncludeConsolidatedInsights: true, TemplateID: templateID},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	switch status {
	case repository.StatusCompleted:
		title := "Pre-call brief: Meridian Analytics"
		content := "## Snapshot\n\n- Budget approved"
		generatedAt := now
		doc.Title = &title
		doc.ContentMarkdown = &content
		doc.GeneratedAt = &generatedAt
	case repository.StatusFailed:
		msg := "model timeout"
		doc.Error = &msg
	}
	f.documents[doc.ID] = doc
	return doc
}

func (f *fakeStore) put(doc repository.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[doc.ID] = doc
}

func (f *fakeStore) document(t *testing.T, id uuid.UUID) repository.Document {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok {
		t.Fatalf("document %s not found in fake store", id)
	}
	return doc
}

func (f *fakeStore) Create(ctx context.Context, params repository.CreateDocumentParams) (repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.nextTime()
	doc := repository.Document{
		ID:               uuid.New(),
		OrganizationID:   params.OrganizationID,
		OpportunityID:    params.OpportunityID,
		TemplateID:       params.TemplateID,
		CreatedBy:        params.CreatedBy,
		Version:          params.Version,
		ParentVersionID:  params.ParentVersionID,
		GenerationStatus: repository.StatusPending,
		ContextSnapshot:  params.Snapshot,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	f.documents[doc.ID] = doc
	return doc, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id, organizationID uuid.UUID) (repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok || doc.OrganizationID != organizationID {
		return repository.Document{}, repository.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) GetByIDInternal(ctx context.Context, id uuid.UUID) (repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok {
		return repository.Document{}, repository.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) ListByOpportunity(ctx context.Context, opportunityID, organizationID uuid.UUID) ([]repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]repository.Document, 0)
	for _, doc := range f.documents {
		if doc.OpportunityID == opportunityID && doc.OrganizationID == organizationID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func sameTemplate(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeStore) ListTemplateVersions(ctx context.Context, opportunityID, organizationID uuid.UUID, templateID *uuid.UUID) ([]repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]repository.Document, 0)
	for _, doc := range f.documents {
		if doc.OpportunityID == opportunityID && doc.OrganizationID == organizationID && sameTemplate(doc.TemplateID, templateID) {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeStore) ClaimForGeneration(ctx context.Context, id uuid.UUID) (*repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok || doc.GenerationStatus != repository.StatusPending {
		return nil, nil
	}
	doc.GenerationStatus = repository.StatusGenerating
	f.documents[id] = doc
	claimed := doc
	return &claimed, nil
}

func (f *fakeStore) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok || doc.GenerationStatus != repository.StatusGenerating {
		return nil
	}
	doc.GenerationStatus = repository.StatusPending
	f.documents[id] = doc
	f.released = append(f.released, id)
	return nil
}

func (f *fakeStore) Complete(ctx context.Context, id uuid.UUID, title, contentMarkdown string, generatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok || doc.GenerationStatus != repository.StatusGenerating {
		return errors.New("document is not in generating state")
	}
	doc.GenerationStatus = repository.StatusCompleted
	doc.Title = &title
	doc.ContentMarkdown = &contentMarkdown
	doc.Error = nil
	doc.GeneratedAt = &generatedAt
	f.documents[id] = doc
	return nil
}

func (f *fakeStore) Fail(ctx context.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok || doc.GenerationStatus != repository.StatusGenerating {
		return errors.New("document is not in generating state")
	}
	doc.GenerationStatus = repository.StatusFailed
	doc.Error = &message
	f.documents[id] = doc
	return nil
}

func (f *fakeStore) ResetForRetry(ctx context.Context, id, organizationID uuid.UUID) (*repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok || doc.OrganizationID != organizationID || doc.GenerationStatus != repository.StatusFailed {
		return nil, nil
	}
	doc.GenerationStatus = repository.StatusPending
	doc.Error = nil
	f.documents[id] = doc
	reset := doc
	return &reset, nil
}

func (f *fakeStore) SetShareToken(ctx context.Context, id, organizationID uuid.UUID, token string, sharedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok || doc.OrganizationID != organizationID || doc.GenerationStatus != repository.StatusCompleted {
		return repository.ErrNotFound
	}
	doc.ShareToken = &token
	doc.SharedAt = &sharedAt
	f.documents[id] = doc
	return nil
}

func (f *fakeStore) ClearShareToken(ctx context.Context, id, organizationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok || doc.OrganizationID != organizationID {
		return repository.ErrNotFound
	}
	doc.ShareToken = nil
	doc.SharedAt = nil
	f.documents[id] = doc
	return nil
}

func (f *fakeStore) GetByShareToken(ctx context.Context, token string) (repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.documents {
		if doc.ShareToken != nil && *doc.ShareToken == token && doc.GenerationStatus == repository.StatusCompleted {
			return doc, nil
		}
	}
	return repository.Document{}, repository.ErrNotFound
}

type fakeQueue struct {
	mu       sync.Mutex
	generate []scheduler.DocumentGeneratePayload
	err      error
}

func (q *fakeQueue) EnqueueDocumentGenerate(ctx context.Context, payload scheduler.DocumentGeneratePayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.generate = append(q.generate, payload)
	return nil
}

type fakeSource struct {
	mu          sync.Mutex
	opp         OpportunitySummary
	oppErr      error
	meetings    []MeetingContext
	meetingsErr error
	insights    *InsightsContext
	research    *ResearchContext

	oppCalls      int
	meetingCalls  int
	insightCalls  int
	researchCalls int
}

func (f *fakeSource) OpportunitySummary(ctx context.Context, opportunityID uuid.UUID) (OpportunitySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oppCalls++
	if f.oppErr != nil {
		return OpportunitySummary{}, f.oppErr
	}
	return f.opp, nil
}

func (f *fakeSource) Meetings(ctx context.Context, opportunityID uuid.UUID, meetingIDs []uuid.UUID) ([]MeetingContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meetingCalls++
	if f.meetingsErr != nil {
		return nil, f.meetingsErr
	}
	requested := make(map[uuid.UUID]bool, len(meetingIDs))
	for _, id := range meetingIDs {
		requested[id] = true
	}
	out := make([]MeetingContext, 0)
	for _, m := range f.meetings {
		if requested[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeSource) ConsolidatedInsights(ctx context.Context, opportunityID uuid.UUID) (*InsightsContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insightCalls++
	return f.insights, nil
}

func (f *fakeSource) ResearchBrief(ctx context.Context, opportunityID uuid.UUID) (*ResearchContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.researchCalls++
	return f.research, nil
}

type fakeTemplates struct {
	mu        sync.Mutex
	templates map[uuid.UUID]TemplateContext
}

func (f *fakeTemplates) add(name string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	tpl := TemplateContext{
		ID:       uuid.New(),
		Name:     name,
		Tone:     "concise and factual",
		Sections: []string{"Snapshot", "Talking Points", "Risks"},
	}
	f.templates[tpl.ID] = tpl
	return tpl.ID
}

func (f *fakeTemplates) Template(ctx context.Context, id, organizationID uuid.UUID) (TemplateContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tpl, ok := f.templates[id]
	if !ok {
		return TemplateContext{}, apperr.NotFound("template not found")
	}
	return tpl, nil
}

func (f *fakeTemplates) TemplateInternal(ctx context.Context, id uuid.UUID) (TemplateContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tpl, ok := f.templates[id]
	if !ok {
		return TemplateContext{}, apperr.NotFound("template not found")
	}
	return tpl, nil
}

type fakeWriter struct {
	mu     sync.Mutex
	result *agent.WrittenDocument
	err    error
	calls  int
	inputs []agent.WriteInput
}

func (w *fakeWriter) WriteDocument(ctx context.Context, documentID uuid.UUID, input agent.WriteInput) (*agent.WrittenDocument, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.inputs = append(w.inputs, input)
	if w.err != nil {
		return nil, w.err
	}
	return w.result, nil
}

type fakeTimeline struct {
	mu      sync.Mutex
	entries []TimelineEventParams
}

func (f *fakeTimeline) CreateTimelineEvent(ctx context.Context, params TimelineEventParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, params)
	return nil
}

func (f *fakeTimeline) hasEventType(eventType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.EventType == eventType {
			return true
		}
	}
	return false
}

type eventCapture struct {
	mu    sync.Mutex
	names []string
}

func (c *eventCapture) handler() events.HandlerFunc {
	return func(ctx context.Context, event events.Event) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.names = append(c.names, event.EventName())
		return nil
	}
}

func (c *eventCapture) has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.names {
		if n == name {
			return true
		}
	}
	return false
}

type testDeps struct {
	store     *fakeStore
	queue     *fakeQueue
	source    *fakeSource
	templates *fakeTemplates
	writer    *fakeWriter
	timeline  *fakeTimeline
	bus       *pevents.InMemoryBus
	capture   *eventCapture
}

func (d *testDeps) seedOpportunity(orgID uuid.UUID) uuid.UUID {
	oppID := uuid.New()
	d.source.opp = OpportunitySummary{
		ID:             oppID,
		OrganizationID: orgID,
		AccountName:    "Meridian Analytics",
		Stage:          "negotiation",
	}
	return oppID
}

func (d *testDeps) seedMeeting() uuid.UUID {
	m := MeetingContext{
		ID:         uuid.New(),
		Kind:       "call_transcript",
		OccurredAt: testBase.Add(-24 * time.Hour),
		Summary:    strPtr("Walked through the rollout blockers."),
		PainPoints: []string{"Manual reporting eats a day per week"},
		NextSteps:  []string{"Send the security questionnaire"},
	}
	d.source.meetings = append(d.source.meetings, m)
	return m.ID
}

func strPtr(s string) *string { return &s }

func newTestService() (*Service, *testDeps) {
	log := logger.New("development")
	deps := &testDeps{
		store:     newFakeStore(),
		queue:     &fakeQueue{},
		source:    &fakeSource{},
		templates: &fakeTemplates{templates: make(map[uuid.UUID]TemplateContext)},
		writer: &fakeWriter{result: &agent.WrittenDocument{
			Title:           "Pre-call brief: Meridian Analytics",
			ContentMarkdown: "## Snapshot\n\n- Budget approved\n- Rollout planned for Q3",
		}},
		timeline: &fakeTimeline{},
		capture:  &eventCapture{},
	}

	deps.bus = pevents.NewInMemoryBus(log)
	for _, name := range []string{
		events.DocumentGenerated{}.EventName(),
		events.DocumentGenerationFailed{}.EventName(),
	} {
		deps.bus.Subscribe(name, deps.capture.handler())
	}

	svc := New(deps.store, deps.queue, deps.bus, log)
	svc.SetContextSource(deps.source)
	svc.SetTemplateSource(deps.templates)
	svc.SetWriter(deps.writer)
	svc.SetTimelineWriter(deps.timeline)
	return svc, deps
}

func validCreateParams(deps *testDeps, orgID uuid.UUID) CreateParams {
	oppID := deps.seedOpportunity(orgID)
	meetingID := deps.seedMeeting()
	return CreateParams{
		OpportunityID:               oppID,
		OrganizationID:              orgID,
		CreatedBy:                   uuid.New(),
		MeetingIDs:                  []uuid.UUID{meetingID},
		IncludeConsolidatedInsights: true,
	}
}

func TestCreateRejectsEmptySelection(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()

	params := validCreateParams(deps, orgID)
	params.MeetingIDs = nil
	params.IncludeConsolidatedInsights = false
	params.IncludeAccountResearch = false

	_, err := svc.Create(context.Background(), params)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(deps.store.documents) != 0 {
		t.Errorf("expected no document stored, got %d", len(deps.store.documents))
	}
}

func TestCreateRejectsForeignMeetings(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()

	params := validCreateParams(deps, orgID)
	params.MeetingIDs = append(params.MeetingIDs, uuid.New())

	_, err := svc.Create(context.Background(), params)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for foreign meeting, got %v", err)
	}
	if len(deps.queue.generate) != 0 {
		t.Errorf("expected nothing enqueued, got %d tasks", len(deps.queue.generate))
	}
}

func TestCreateRejectsCrossTenantOpportunity(t *testing.T) {
	svc, deps := newTestService()

	params := validCreateParams(deps, uuid.New())
	params.OrganizationID = uuid.New()

	if _, err := svc.Create(context.Background(), params); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for cross-tenant opportunity, got %v", err)
	}
}

func TestCreateRejectsUnknownTemplate(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()

	params := validCreateParams(deps, orgID)
	unknown := uuid.New()
	params.TemplateID = &unknown

	if _, err := svc.Create(context.Background(), params); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown template, got %v", err)
	}
	if len(deps.store.documents) != 0 {
		t.Errorf("expected no document stored, got %d", len(deps.store.documents))
	}
}

func TestCreateStoresPendingDocumentAndEnqueues(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()

	params := validCreateParams(deps, orgID)
	extra := "  Focus on the pricing objection.  "
	params.AdditionalContext = &extra
	templateID := deps.templates.add("Pre-call brief")
	params.TemplateID = &templateID

	doc, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if doc.GenerationStatus != repository.StatusPending {
		t.Errorf("expected pending document, got %s", doc.GenerationStatus)
	}
	if doc.Version != 1 || doc.ParentVersionID != nil {
		t.Errorf("expected a root version 1 document, got version %d parent %v", doc.Version, doc.ParentVersionID)
	}
	if len(doc.ContextSnapshot.MeetingIDs) != 1 || doc.ContextSnapshot.MeetingIDs[0] != params.MeetingIDs[0] {
		t.Errorf("snapshot meeting ids mismatch: %v", doc.ContextSnapshot.MeetingIDs)
	}
	if !doc.ContextSnapshot.IncludeConsolidatedInsights {
		t.Errorf("snapshot should carry the insights flag")
	}
	if doc.ContextSnapshot.AdditionalContext == nil || *doc.ContextSnapshot.AdditionalContext != "Focus on the pricing objection." {
		t.Errorf("expected trimmed additional context, got %v", doc.ContextSnapshot.AdditionalContext)
	}
	if doc.ContextSnapshot.TemplateID == nil || *doc.ContextSnapshot.TemplateID != templateID {
		t.Errorf("snapshot template id mismatch: %v", doc.ContextSnapshot.TemplateID)
	}

	if len(deps.queue.generate) != 1 {
		t.Fatalf("expected 1 generation task, got %d", len(deps.queue.generate))
	}
	payload := deps.queue.generate[0]
	if payload.DocumentID != doc.ID.String() {
		t.Errorf("task document id mismatch: %s", payload.DocumentID)
	}
	if payload.TemplateID == nil || *payload.TemplateID != templateID.String() {
		t.Errorf("task template id mismatch: %v", payload.TemplateID)
	}

	if !deps.timeline.hasEventType("document_requested") {
		t.Errorf("expected a document_requested timeline entry")
	}
}

func TestCreateDeduplicatesMeetingSelection(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()

	params := validCreateParams(deps, orgID)
	params.MeetingIDs = append(params.MeetingIDs, params.MeetingIDs[0], uuid.Nil)

	doc, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(doc.ContextSnapshot.MeetingIDs) != 1 {
		t.Errorf("expected duplicates and nil ids dropped, got %v", doc.ContextSnapshot.MeetingIDs)
	}
}

func TestCreateEnqueueFailureMarksDocumentFailed(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()
	deps.queue.err = errors.New("redis down")

	_, err := svc.Create(context.Background(), validCreateParams(deps, orgID))
	if err == nil {
		t.Fatalf("expected create to fail when the queue is unavailable")
	}

	if len(deps.store.documents) != 1 {
		t.Fatalf("expected the document kept for retry, got %d", len(deps.store.documents))
	}
	for _, doc := range deps.store.documents {
		if doc.GenerationStatus != repository.StatusFailed {
			t.Errorf("expected failed status, got %s", doc.GenerationStatus)
		}
		if doc.Error == nil || !strings.Contains(*doc.Error, "could not be enqueued") {
			t.Errorf("expected enqueue failure message, got %v", doc.Error)
		}
	}
}

func TestRegenerateCreatesNextVersion(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()
	oppID := deps.seedOpportunity(orgID)
	parent := deps.store.addDocument(oppID, orgID, repository.StatusCompleted, 1, nil, nil)

	doc, err := svc.Regenerate(context.Background(), RegenerateParams{
		DocumentID:     parent.ID,
		OrganizationID: orgID,
		RequestedBy:    uuid.New(),
	})
	if err != nil {
		t.Fatalf("regenerate failed: %v", err)
	}

	if doc.Version != parent.Version+1 {
		t.Errorf("expected version %d, got %d", parent.Version+1, doc.Version)
	}
	if doc.ParentVersionID == nil || *doc.ParentVersionID != parent.ID {
		t.Errorf("expected parent pointer to %s, got %v", parent.ID, doc.ParentVersionID)
	}
	if doc.GenerationStatus != repository.StatusPending {
		t.Errorf("expected pending new version, got %s", doc.GenerationStatus)
	}
	if !doc.ContextSnapshot.IncludeConsolidatedInsights {
		t.Errorf("expected inherited selection, got %+v", doc.ContextSnapshot)
	}

	stored := deps.store.document(t, parent.ID)
	if stored.GenerationStatus != repository.StatusCompleted || stored.ContentMarkdown == nil {
		t.Errorf("regenerate must not mutate the parent, got %+v", stored)
	}
	if len(deps.queue.generate) != 1 {
		t.Errorf("expected generation task enqueued, got %d", len(deps.queue.generate))
	}
}

func TestRegenerateValidatesFreshSelection(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()
	oppID := deps.seedOpportunity(orgID)
	parent := deps.store.addDocument(oppID, orgID, repository.StatusCompleted, 1, nil, nil)

	_, err := svc.Regenerate(context.Background(), RegenerateParams{
		DocumentID:     parent.ID,
		OrganizationID: orgID,
		RequestedBy:    uuid.New(),
		Selection:      &SelectionParams{MeetingIDs: []uuid.UUID{uuid.New()}},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for foreign meeting, got %v", err)
	}
	if len(deps.store.documents) != 1 {
		t.Errorf("expected no new version stored, got %d documents", len(deps.store.documents))
	}
}

func TestRegenerateRequiresCompletedParent(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()
	oppID := deps.seedOpportunity(orgID)
	parent := deps.store.addDocument(oppID, orgID, repository.StatusPending, 1, nil, nil)

	_, err := svc.Regenerate(context.Background(), RegenerateParams{
		DocumentID:     parent.ID,
		OrganizationID: orgID,
		RequestedBy:    uuid.New(),
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for non-completed parent, got %v", err)
	}
}

func TestRetryGenerationOnlyFromFailed(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()
	oppID := deps.seedOpportunity(orgID)
	userID := uuid.New()

	completed := deps.store.addDocument(oppID, orgID, repository.StatusCompleted, 1, nil, nil)
	if _, err := svc.RetryGeneration(context.Background(), completed.ID, orgID, userID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for completed document, got %v", err)
	}

	failed := deps.store.addDocument(oppID, orgID, repository.StatusFailed, 1, nil, nil)
	doc, err := svc.RetryGeneration(context.Background(), failed.ID, orgID, userID)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if doc.GenerationStatus != repository.StatusPending {
		t.Errorf("expected document reset to pending, got %s", doc.GenerationStatus)
	}
	if doc.Error != nil {
		t.Errorf("expected retained error cleared on retry, got %v", *doc.Error)
	}
	if len(deps.queue.generate) != 1 {
		t.Errorf("expected generation task re-enqueued, got %d", len(deps.queue.generate))
	}
}

func TestListVersionsReturnsWholeFamily(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()
	oppID := deps.seedOpportunity(orgID)

	v1 := deps.store.addDocument(oppID, orgID, repository.StatusCompleted, 1, nil, nil)
	v2 := deps.store.addDocument(oppID, orgID, repository.StatusCompleted, 2, &v1.ID, nil)
	v3 := deps.store.addDocument(oppID, orgID, repository.StatusPending, 3, &v2.ID, nil)
	other := deps.store.addDocument(oppID, orgID, repository.StatusCompleted, 1, nil, nil)

	versions, err := svc.ListVersions(context.Background(), v3.ID, orgID)
	if err != nil {
		t.Fatalf("list versions failed: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	for i, want := range []uuid.UUID{v1.ID, v2.ID, v3.ID} {
		if versions[i].ID != want {
			t.Errorf("version %d mismatch: got %s want %s", i, versions[i].ID, want)
		}
	}
	for _, v := range versions {
		if v.ID == other.ID {
			t.Errorf("unrelated document leaked into the family listing")
		}
	}

	// Asking from the root returns the same family, descendants included.
	fromRoot, err := svc.ListVersions(context.Background(), v1.ID, orgID)
	if err != nil {
		t.Fatalf("list versions from root failed: %v", err)
	}
	if len(fromRoot) != 3 {
		t.Errorf("expected the full family from the root, got %d", len(fromRoot))
	}
}

func TestListVersionsSurvivesParentCycle(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()
	oppID := deps.seedOpportunity(orgID)

	a := deps.store.addDocument(oppID, orgID, repository.StatusCompleted, 1, nil, nil)
	b := deps.store.addDocument(oppID, orgID, repository.StatusCompleted, 2, &a.ID, nil)

	// Corrupt the chain into a cycle.
	a.ParentVersionID = &b.ID
	deps.store.put(a)

	versions, err := svc.ListVersions(context.Background(), b.ID, orgID)
	if err != nil {
		t.Fatalf("list versions failed on cyclic chain: %v", err)
	}
	if len(versions) == 0 {
		t.Fatalf("expected the requested document in the listing")
	}
}

func TestShareMintsTokenOnlyForCompleted(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()
	oppID := deps.seedOpportunity(orgID)

	pending := deps.store.addDocument(oppID, orgID, repository.StatusPending, 1, nil, nil)
	if _, err := svc.Share(context.Background(), pending.ID, orgID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for pending document, got %v", err)
	}

	completed := deps.store.addDocument(oppID, orgID, repository.StatusCompleted, 1, nil, nil)
	shared, err := svc.Share(context.Background(), completed.ID, orgID)
	if err != nil {
		t.Fatalf("share failed: %v", err)
	}
	if shared.ShareToken == nil || len(*shared.ShareToken) != 64 {
		t.Fatalf("expected a 64 character hex token, got %v", shared.ShareToken)
	}
	if shared.SharedAt == nil {
		t.Errorf("expected sharedAt set")
	}

	rotated, err := svc.Share(context.Background(), completed.ID, orgID)
	if err != nil {
		t.Fatalf("second share failed: %v", err)
	}
	if *rotated.ShareToken == *shared.ShareToken {
		t.Errorf("sharing again must rotate the token")
	}
}

func TestRevokeShareStopsResolution(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()
	oppID := deps.seedOpportunity(orgID)
	completed := deps.store.addDocument(oppID, orgID, repository.StatusCompleted, 1, nil, nil)

	shared, err := svc.Share(context.Background(), completed.ID, orgID)
	if err != nil {
		t.Fatalf("share failed: %v", err)
	}
	token := *shared.ShareToken

	if _, err := svc.ResolveShareToken(context.Background(), token); err != nil {
		t.Fatalf("expected token to resolve before revoke, got %v", err)
	}

	if err := svc.RevokeShare(context.Background(), completed.ID, orgID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := svc.ResolveShareToken(context.Background(), token); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected revoked token to stop resolving, got %v", err)
	}
}

func TestResolveShareTokenRejectsEmpty(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.ResolveShareToken(context.Background(), "  "); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for blank token, got %v", err)
	}
}
