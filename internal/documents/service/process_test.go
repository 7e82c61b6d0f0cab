package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"dealdesk_backend/internal/documents/repository"
	"dealdesk_backend/internal/events"
	"dealdesk_backend/platform/apperr"
)

func TestProcessDocumentGenerationCompletesDocument(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()

	params := validCreateParams(deps, orgID)
	templateID := deps.templates.add("Pre-call brief")
	params.TemplateID = &templateID

	doc, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.ProcessDocumentGeneration(context.Background(), doc.ID, false); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	deps.bus.Wait()

	stored := deps.store.document(t, doc.ID)
	if stored.GenerationStatus != repository.StatusCompleted {
		t.Fatalf("expected completed document, got %s", stored.GenerationStatus)
	}
	if stored.Title == nil || *stored.Title != deps.writer.result.Title {
		t.Errorf("title mismatch: %v", stored.Title)
	}
	if stored.ContentMarkdown == nil || *stored.ContentMarkdown != deps.writer.result.ContentMarkdown {
		t.Errorf("content mismatch: %v", stored.ContentMarkdown)
	}
	if stored.GeneratedAt == nil {
		t.Errorf("expected generatedAt set")
	}
	if stored.Error != nil {
		t.Errorf("expected no retained error, got %v", *stored.Error)
	}

	if deps.writer.calls != 1 {
		t.Fatalf("expected one writer run, got %d", deps.writer.calls)
	}
	input := deps.writer.inputs[0]
	if input.AccountName != "Meridian Analytics" {
		t.Errorf("writer input account mismatch: %s", input.AccountName)
	}
	if input.Template == nil || input.Template.Name != "Pre-call brief" {
		t.Errorf("writer input template mismatch: %+v", input.Template)
	}
	if !strings.Contains(input.ContextDocument, "SELECTED MEETINGS") {
		t.Errorf("context document missing the meetings section:\n%s", input.ContextDocument)
	}
	if !strings.Contains(input.ContextDocument, "Meridian Analytics") {
		t.Errorf("context document missing the account name")
	}

	if !deps.capture.has(events.DocumentGenerated{}.EventName()) {
		t.Errorf("expected a document generated event")
	}
	if !deps.timeline.hasEventType("document_generated") {
		t.Errorf("expected a document_generated timeline entry")
	}
}

func TestProcessDocumentGenerationRedeliveryIsNoop(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()
	oppID := deps.seedOpportunity(orgID)

	completed := deps.store.addDocument(oppID, orgID, repository.StatusCompleted, 1, nil, nil)
	if err := svc.ProcessDocumentGeneration(context.Background(), completed.ID, false); err != nil {
		t.Fatalf("expected redelivery for a completed document to be a no-op, got %v", err)
	}
	if deps.writer.calls != 0 {
		t.Errorf("expected no writer run on redelivery, got %d", deps.writer.calls)
	}

	// A document deleted while the task sat in the queue is equally silent.
	if err := svc.ProcessDocumentGeneration(context.Background(), uuid.New(), false); err != nil {
		t.Fatalf("expected missing document to be a no-op, got %v", err)
	}
}

func TestProcessDocumentGenerationTransientErrorReleasesClaim(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()

	doc, err := svc.Create(context.Background(), validCreateParams(deps, orgID))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	deps.writer.err = errors.New("model timeout")

	if err := svc.ProcessDocumentGeneration(context.Background(), doc.ID, false); err == nil {
		t.Fatalf("expected the transient error surfaced for retry")
	}
	deps.bus.Wait()

	stored := deps.store.document(t, doc.ID)
	if stored.GenerationStatus != repository.StatusPending {
		t.Errorf("expected claim released back to pending, got %s", stored.GenerationStatus)
	}
	if stored.Error != nil {
		t.Errorf("transient failures must not be recorded, got %v", *stored.Error)
	}
	if len(deps.store.released) != 1 {
		t.Errorf("expected one claim release, got %d", len(deps.store.released))
	}
	if deps.capture.has(events.DocumentGenerationFailed{}.EventName()) {
		t.Errorf("transient failures must not publish a failure event")
	}
}

func TestProcessDocumentGenerationFinalAttemptFailsDocument(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()

	doc, err := svc.Create(context.Background(), validCreateParams(deps, orgID))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	deps.writer.err = errors.New("model timeout")

	if err := svc.ProcessDocumentGeneration(context.Background(), doc.ID, true); err == nil {
		t.Fatalf("expected the final attempt error surfaced")
	}
	deps.bus.Wait()

	stored := deps.store.document(t, doc.ID)
	if stored.GenerationStatus != repository.StatusFailed {
		t.Errorf("expected failed document, got %s", stored.GenerationStatus)
	}
	if stored.Error == nil || !strings.Contains(*stored.Error, "model timeout") {
		t.Errorf("expected retained error message, got %v", stored.Error)
	}
	if !deps.capture.has(events.DocumentGenerationFailed{}.EventName()) {
		t.Errorf("expected a generation failed event")
	}
	if !deps.timeline.hasEventType("document_generation_failed") {
		t.Errorf("expected a document_generation_failed timeline entry")
	}
}

func TestProcessDocumentGenerationMissingOpportunityFailsWithoutRetry(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()

	doc, err := svc.Create(context.Background(), validCreateParams(deps, orgID))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	deps.source.oppErr = apperr.NotFound("opportunity not found")

	// Retrying cannot bring the opportunity back, so the task must not requeue.
	if err := svc.ProcessDocumentGeneration(context.Background(), doc.ID, false); err != nil {
		t.Fatalf("expected no retryable error, got %v", err)
	}

	stored := deps.store.document(t, doc.ID)
	if stored.GenerationStatus != repository.StatusFailed {
		t.Errorf("expected failed document, got %s", stored.GenerationStatus)
	}
	if len(deps.store.released) != 0 {
		t.Errorf("expected no claim release, got %d", len(deps.store.released))
	}
}

func TestProcessDocumentGenerationDeletedTemplateProceedsWithout(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()

	params := validCreateParams(deps, orgID)
	templateID := deps.templates.add("Pre-call brief")
	params.TemplateID = &templateID

	doc, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Template deleted between request and pickup.
	deps.templates.mu.Lock()
	delete(deps.templates.templates, templateID)
	deps.templates.mu.Unlock()

	if err := svc.ProcessDocumentGeneration(context.Background(), doc.ID, false); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	stored := deps.store.document(t, doc.ID)
	if stored.GenerationStatus != repository.StatusCompleted {
		t.Errorf("expected document generated without the template, got %s", stored.GenerationStatus)
	}
	if deps.writer.inputs[0].Template != nil {
		t.Errorf("expected free-form writer input, got %+v", deps.writer.inputs[0].Template)
	}
}

func TestProcessDocumentGenerationMissingWriterFailsDocument(t *testing.T) {
	svc, deps := newTestService()
	orgID := uuid.New()

	doc, err := svc.Create(context.Background(), validCreateParams(deps, orgID))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	svc.SetWriter(nil)

	if err := svc.ProcessDocumentGeneration(context.Background(), doc.ID, false); err != nil {
		t.Fatalf("expected a permanent failure without retry, got %v", err)
	}
	deps.bus.Wait()

	stored := deps.store.document(t, doc.ID)
	if stored.GenerationStatus != repository.StatusFailed {
		t.Errorf("expected failed document, got %s", stored.GenerationStatus)
	}
	if stored.Error == nil || !strings.Contains(*stored.Error, "writer is not configured") {
		t.Errorf("expected a configuration error message, got %v", stored.Error)
	}
	if !deps.capture.has(events.DocumentGenerationFailed{}.EventName()) {
		t.Errorf("expected a generation failed event")
	}
}
