package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/documents/agent"
	"dealdesk_backend/internal/documents/repository"
	"dealdesk_backend/internal/events"
	"dealdesk_backend/platform/apperr"
)

// ProcessDocumentGeneration handles one delivery of a generation task. The
// claim makes redeliveries of already-processed tasks no-ops, and the run
// reads everything it needs from the document's frozen context snapshot, so
// the queue payload only has to identify the document.
func (s *Service) ProcessDocumentGeneration(ctx context.Context, documentID uuid.UUID, finalAttempt bool) error {
	claimed, err := s.repo.ClaimForGeneration(ctx, documentID)
	if err != nil {
		return err
	}

	if claimed == nil {
		current, currentErr := s.repo.GetByIDInternal(ctx, documentID)
		if currentErr != nil {
			if currentErr == repository.ErrNotFound {
				// Deleted while the task sat in the queue.
				return nil
			}
			return currentErr
		}
		switch current.GenerationStatus {
		case repository.StatusGenerating, repository.StatusCompleted, repository.StatusFailed:
			s.log.Info("skipping redelivered generation task", "documentId", documentID, "generationStatus", current.GenerationStatus)
			return nil
		default:
			return fmt.Errorf("document %s cannot be claimed from status %s", documentID, current.GenerationStatus)
		}
	}

	if s.writer == nil {
		// No retry can fix a missing writer, fail the document immediately.
		s.failGeneration(ctx, claimed, "document writer is not configured")
		return nil
	}
	if s.source == nil {
		s.failGeneration(ctx, claimed, "document context source is not configured")
		return nil
	}

	written, err := s.runGeneration(ctx, claimed)
	if err == nil {
		err = s.repo.Complete(ctx, documentID, written.Title, written.ContentMarkdown, time.Now().UTC())
	}
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			// The opportunity vanished while the task was queued. No retry can
			// bring the context back, fail the document permanently.
			s.failGeneration(ctx, claimed, err.Error())
			return nil
		}
		if !finalAttempt {
			if releaseErr := s.repo.ReleaseClaim(ctx, documentID); releaseErr != nil {
				return fmt.Errorf("generate document: %w (release claim failed: %v)", err, releaseErr)
			}
			return err
		}
		s.failGeneration(ctx, claimed, err.Error())
		return err
	}

	s.afterGenerated(ctx, claimed, written)
	return nil
}

// runGeneration gathers the snapshot's context, renders it within the size
// budget, and asks the writer for the document.
func (s *Service) runGeneration(ctx context.Context, doc *repository.Document) (*agent.WrittenDocument, error) {
	var template *TemplateContext
	if doc.ContextSnapshot.TemplateID != nil && s.templates != nil {
		tpl, err := s.templates.TemplateInternal(ctx, *doc.ContextSnapshot.TemplateID)
		switch {
		case err == nil:
			template = &tpl
		case apperr.Is(err, apperr.KindNotFound):
			// Template deleted after the document was requested. The snapshot
			// keeps the historical reference; the run proceeds free-form.
			s.log.Warn("document template no longer exists, generating without it", "documentId", doc.ID, "templateId", *doc.ContextSnapshot.TemplateID)
		default:
			return nil, fmt.Errorf("load template: %w", err)
		}
	}

	bundle, err := s.gatherContext(ctx, doc.OpportunityID, doc.ContextSnapshot)
	if err != nil {
		return nil, err
	}

	contextDoc, truncated := renderContext(bundle, ContextCharBudget)
	if truncated {
		s.log.Info("document context truncated for the writer agent", "documentId", doc.ID, "limit", ContextCharBudget)
	}

	input := agent.WriteInput{
		AccountName:     bundle.Opportunity.AccountName,
		ContextDocument: contextDoc,
	}
	if template != nil {
		input.Template = &agent.TemplateSpec{
			Name:     template.Name,
			Tone:     template.Tone,
			Sections: template.Sections,
		}
	}

	return s.writer.WriteDocument(ctx, doc.ID, input)
}

// afterGenerated emits the success signals. Each hook has its own error
// boundary and never rolls back the completed document.
func (s *Service) afterGenerated(ctx context.Context, doc *repository.Document, written *agent.WrittenDocument) {
	if s.bus != nil {
		s.bus.Publish(ctx, events.DocumentGenerated{
			BaseEvent:      events.NewBaseEvent(),
			DocumentID:     doc.ID,
			OpportunityID:  doc.OpportunityID,
			OrganizationID: doc.OrganizationID,
			CreatedBy:      uuidValue(doc.CreatedBy),
			Version:        doc.Version,
			Title:          written.Title,
		})
	}

	s.appendTimeline(ctx, TimelineEventParams{
		OpportunityID:  doc.OpportunityID,
		OrganizationID: doc.OrganizationID,
		ActorType:      "AI",
		ActorName:      "Document Writer",
		EventType:      "document_generated",
		Title:          "Document generated",
		Summary:        summaryPtr(fmt.Sprintf("%q is ready (version %d)", written.Title, doc.Version)),
		Metadata: map[string]any{
			"documentId": doc.ID,
			"version":    doc.Version,
		},
	})
}

// failGeneration marks the document failed with the retained error message
// and emits the failure signals. Storage errors here are logged, not
// propagated; the caller already carries the original generation error.
func (s *Service) failGeneration(ctx context.Context, doc *repository.Document, message string) {
	if err := s.repo.Fail(ctx, doc.ID, message); err != nil {
		s.log.Error("failed to mark document generation as failed", "documentId", doc.ID, "error", err)
		return
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.DocumentGenerationFailed{
			BaseEvent:      events.NewBaseEvent(),
			DocumentID:     doc.ID,
			OpportunityID:  doc.OpportunityID,
			OrganizationID: doc.OrganizationID,
			CreatedBy:      uuidValue(doc.CreatedBy),
			ErrorMessage:   message,
		})
	}

	s.appendTimeline(ctx, TimelineEventParams{
		OpportunityID:  doc.OpportunityID,
		OrganizationID: doc.OrganizationID,
		ActorType:      "AI",
		ActorName:      "Document Writer",
		EventType:      "document_generation_failed",
		Title:          "Document generation failed",
		Summary:        summaryPtr(message),
		Metadata: map[string]any{
			"documentId": doc.ID,
			"version":    doc.Version,
		},
	})
}

func uuidValue(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
