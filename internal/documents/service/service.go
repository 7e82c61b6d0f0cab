// Package service implements the generated document lifecycle: versioned
// creation with a frozen context snapshot, the async writing pipeline behind
// it, public share links, and PDF export.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/documents/agent"
	"dealdesk_backend/internal/documents/repository"
	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
)

// Store is the slice of the documents repository this service uses.
type Store interface {
	Create(ctx context.Context, params repository.CreateDocumentParams) (repository.Document, error)
	GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (repository.Document, error)
	GetByIDInternal(ctx context.Context, id uuid.UUID) (repository.Document, error)
	ListByOpportunity(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]repository.Document, error)
	ListTemplateVersions(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID, templateID *uuid.UUID) ([]repository.Document, error)
	ClaimForGeneration(ctx context.Context, id uuid.UUID) (*repository.Document, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, title, contentMarkdown string, generatedAt time.Time) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	ResetForRetry(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (*repository.Document, error)
	SetShareToken(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, token string, sharedAt time.Time) error
	ClearShareToken(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error
	GetByShareToken(ctx context.Context, token string) (repository.Document, error)
}

// Writer turns gathered context into the document text. Implemented by the
// agent package.
type Writer interface {
	WriteDocument(ctx context.Context, documentID uuid.UUID, input agent.WriteInput) (*agent.WrittenDocument, error)
}

// TimelineEventParams mirror the opportunity timeline surface this module
// writes to.
type TimelineEventParams struct {
	OpportunityID  uuid.UUID
	OrganizationID uuid.UUID
	ActorType      string
	ActorName      string
	EventType      string
	Title          string
	Summary        *string
	Metadata       map[string]any
}

// TimelineWriter appends document activity to the opportunity timeline.
// Best effort; a nil writer is skipped.
type TimelineWriter interface {
	CreateTimelineEvent(ctx context.Context, params TimelineEventParams) error
}

// Service provides business logic for generated documents.
type Service struct {
	repo      Store
	queue     scheduler.DocumentEnqueuer
	source    ContextSource
	templates TemplateSource
	writer    Writer
	timeline  TimelineWriter
	pdf       PDFRenderer
	bus       events.Bus
	log       *logger.Logger
}

// New creates a new documents service. The collaborators that depend on
// other modules or external services are injected via the Set* methods
// after construction.
func New(repo Store, queue scheduler.DocumentEnqueuer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		queue: queue,
		bus:   bus,
		log:   log,
	}
}

func (s *Service) SetContextSource(src ContextSource) { s.source = src }

func (s *Service) SetTemplateSource(t TemplateSource) { s.templates = t }

func (s *Service) SetWriter(w Writer) { s.writer = w }

func (s *Service) SetTimelineWriter(t TimelineWriter) { s.timeline = t }

func (s *Service) SetPDFRenderer(p PDFRenderer) { s.pdf = p }

// CreateParams starts one document generation run.
type CreateParams struct {
	OpportunityID               uuid.UUID
	OrganizationID              uuid.UUID
	CreatedBy                   uuid.UUID
	TemplateID                  *uuid.UUID
	MeetingIDs                  []uuid.UUID
	IncludeConsolidatedInsights bool
	IncludeAccountResearch      bool
	AdditionalContext           *string
}

// Create validates the request, stores a pending version 1 document with its
// frozen context snapshot, and enqueues the generation run. The document is
// returned immediately; writing happens asynchronously.
func (s *Service) Create(ctx context.Context, params CreateParams) (repository.Document, error) {
	if params.OpportunityID == uuid.Nil || params.OrganizationID == uuid.Nil {
		return repository.Document{}, apperr.Validation("opportunityId and organizationId are required")
	}
	if s.source == nil {
		return repository.Document{}, apperr.Unavailable("document generation is not available")
	}

	opp, err := s.source.OpportunitySummary(ctx, params.OpportunityID)
	if err != nil {
		return repository.Document{}, err
	}
	if opp.OrganizationID != params.OrganizationID {
		return repository.Document{}, apperr.NotFound("opportunity not found")
	}

	snapshot := repository.ContextSnapshot{
		MeetingIDs:                  normalizeMeetingIDs(params.MeetingIDs),
		IncludeConsolidatedInsights: params.IncludeConsolidatedInsights,
		IncludeAccountResearch:      params.IncludeAccountResearch,
		AdditionalContext:           normalizeAdditionalContext(params.AdditionalContext),
		TemplateID:                  params.TemplateID,
	}
	if err := s.validateSelection(ctx, params.OpportunityID, snapshot); err != nil {
		return repository.Document{}, err
	}

	templateName := ""
	if params.TemplateID != nil {
		if s.templates == nil {
			return repository.Document{}, apperr.Unavailable("document templates are not available")
		}
		tpl, err := s.templates.Template(ctx, *params.TemplateID, params.OrganizationID)
		if err != nil {
			return repository.Document{}, err
		}
		templateName = tpl.Name
	}

	doc, err := s.repo.Create(ctx, repository.CreateDocumentParams{
		OrganizationID: params.OrganizationID,
		OpportunityID:  params.OpportunityID,
		TemplateID:     params.TemplateID,
		CreatedBy:      optionalUUID(params.CreatedBy),
		Version:        1,
		Snapshot:       snapshot,
	})
	if err != nil {
		return repository.Document{}, err
	}

	if err := s.enqueueGeneration(ctx, doc); err != nil {
		return repository.Document{}, err
	}

	label := "Document"
	if templateName != "" {
		label = templateName
	}
	actorType, actorName := requestActor(params.CreatedBy)
	s.appendTimeline(ctx, TimelineEventParams{
		OpportunityID:  doc.OpportunityID,
		OrganizationID: doc.OrganizationID,
		ActorType:      actorType,
		ActorName:      actorName,
		EventType:      "document_requested",
		Title:          "Document generation requested",
		Summary:        summaryPtr(fmt.Sprintf("%s queued for %s", label, opp.AccountName)),
		Metadata: map[string]any{
			"documentId": doc.ID,
			"version":    doc.Version,
		},
	})

	return doc, nil
}

// SelectionParams is a fresh context selection for a regeneration run.
type SelectionParams struct {
	MeetingIDs                  []uuid.UUID
	IncludeConsolidatedInsights bool
	IncludeAccountResearch      bool
	AdditionalContext           *string
}

// RegenerateParams starts a new version of an existing document. A nil
// Selection inherits the parent's frozen context selection.
type RegenerateParams struct {
	DocumentID     uuid.UUID
	OrganizationID uuid.UUID
	RequestedBy    uuid.UUID
	Selection      *SelectionParams
}

// Regenerate creates the next version of a completed document. The new row
// points at its parent and runs through the same pipeline; the parent is
// never touched. Failed documents go through RetryGeneration instead.
func (s *Service) Regenerate(ctx context.Context, params RegenerateParams) (repository.Document, error) {
	if params.DocumentID == uuid.Nil || params.OrganizationID == uuid.Nil {
		return repository.Document{}, apperr.Validation("documentId and organizationId are required")
	}
	if s.source == nil {
		return repository.Document{}, apperr.Unavailable("document generation is not available")
	}

	parent, err := s.repo.GetByID(ctx, params.DocumentID, params.OrganizationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return repository.Document{}, apperr.NotFound("document not found")
		}
		return repository.Document{}, err
	}
	if parent.GenerationStatus != repository.StatusCompleted {
		return repository.Document{}, apperr.Conflict(fmt.Sprintf("only completed documents can be regenerated, current status is %s", parent.GenerationStatus))
	}

	// New versions run against the template that still exists on the row, not
	// the one frozen in the parent's snapshot. A deleted template clears the
	// column, so the regeneration proceeds without one.
	snapshot := parent.ContextSnapshot
	snapshot.TemplateID = parent.TemplateID
	if params.Selection != nil {
		snapshot = repository.ContextSnapshot{
			MeetingIDs:                  normalizeMeetingIDs(params.Selection.MeetingIDs),
			IncludeConsolidatedInsights: params.Selection.IncludeConsolidatedInsights,
			IncludeAccountResearch:      params.Selection.IncludeAccountResearch,
			AdditionalContext:           normalizeAdditionalContext(params.Selection.AdditionalContext),
			TemplateID:                  parent.TemplateID,
		}
		// A fresh selection is validated like a new document. An inherited one
		// is not, so old versions stay regenerable after meetings are deleted;
		// missing meetings simply drop out of the context at render time.
		if err := s.validateSelection(ctx, parent.OpportunityID, snapshot); err != nil {
			return repository.Document{}, err
		}
	}

	doc, err := s.repo.Create(ctx, repository.CreateDocumentParams{
		OrganizationID:  parent.OrganizationID,
		OpportunityID:   parent.OpportunityID,
		TemplateID:      parent.TemplateID,
		CreatedBy:       optionalUUID(params.RequestedBy),
		Version:         parent.Version + 1,
		ParentVersionID: &parent.ID,
		Snapshot:        snapshot,
	})
	if err != nil {
		return repository.Document{}, err
	}

	if err := s.enqueueGeneration(ctx, doc); err != nil {
		return repository.Document{}, err
	}

	actorType, actorName := requestActor(params.RequestedBy)
	s.appendTimeline(ctx, TimelineEventParams{
		OpportunityID:  doc.OpportunityID,
		OrganizationID: doc.OrganizationID,
		ActorType:      actorType,
		ActorName:      actorName,
		EventType:      "document_regeneration_requested",
		Title:          "Document regeneration requested",
		Summary:        summaryPtr(fmt.Sprintf("Version %d queued from version %d", doc.Version, parent.Version)),
		Metadata: map[string]any{
			"documentId":      doc.ID,
			"parentVersionId": parent.ID,
			"version":         doc.Version,
		},
	})

	return doc, nil
}

// RetryGeneration resets a failed document to pending and re-enqueues the
// generation run with a fresh delivery budget. Only failed documents can be
// retried.
func (s *Service) RetryGeneration(ctx context.Context, documentID, organizationID, requestedBy uuid.UUID) (repository.Document, error) {
	doc, err := s.repo.ResetForRetry(ctx, documentID, organizationID)
	if err != nil {
		return repository.Document{}, err
	}
	if doc == nil {
		current, getErr := s.repo.GetByID(ctx, documentID, organizationID)
		if getErr != nil {
			if getErr == repository.ErrNotFound {
				return repository.Document{}, apperr.NotFound("document not found")
			}
			return repository.Document{}, getErr
		}
		return repository.Document{}, apperr.Conflict(fmt.Sprintf("generation can only be retried from failed status, current status is %s", current.GenerationStatus))
	}

	if err := s.enqueueGeneration(ctx, *doc); err != nil {
		return repository.Document{}, err
	}

	actorType, actorName := requestActor(requestedBy)
	s.appendTimeline(ctx, TimelineEventParams{
		OpportunityID:  doc.OpportunityID,
		OrganizationID: doc.OrganizationID,
		ActorType:      actorType,
		ActorName:      actorName,
		EventType:      "document_generation_retried",
		Title:          "Document generation retried",
		Metadata: map[string]any{
			"documentId": doc.ID,
			"version":    doc.Version,
		},
	})

	return *doc, nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, documentID, organizationID uuid.UUID) (repository.Document, error) {
	doc, err := s.repo.GetByID(ctx, documentID, organizationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return repository.Document{}, apperr.NotFound("document not found")
		}
		return repository.Document{}, err
	}
	return doc, nil
}

// ListForOpportunity returns the documents of one opportunity, newest first.
func (s *Service) ListForOpportunity(ctx context.Context, opportunityID, organizationID uuid.UUID) ([]repository.Document, error) {
	if opportunityID == uuid.Nil || organizationID == uuid.Nil {
		return nil, apperr.Validation("opportunityId and organizationId are required")
	}
	return s.repo.ListByOpportunity(ctx, opportunityID, organizationID)
}

// ListVersions returns every version in the document's family, oldest
// version first. Two documents belong to the same family when their parent
// chains lead to the same root.
func (s *Service) ListVersions(ctx context.Context, documentID, organizationID uuid.UUID) ([]repository.Document, error) {
	doc, err := s.Get(ctx, documentID, organizationID)
	if err != nil {
		return nil, err
	}

	arena, err := s.repo.ListTemplateVersions(ctx, doc.OpportunityID, organizationID, doc.TemplateID)
	if err != nil {
		return nil, err
	}

	return versionFamily(arena, doc.ID), nil
}

// Share mints a public share token for a completed document. Sharing again
// rotates the token, which revokes any previously handed out link.
func (s *Service) Share(ctx context.Context, documentID, organizationID uuid.UUID) (repository.Document, error) {
	token, err := generatePublicToken()
	if err != nil {
		return repository.Document{}, err
	}

	if err := s.repo.SetShareToken(ctx, documentID, organizationID, token, time.Now().UTC()); err != nil {
		if err != repository.ErrNotFound {
			return repository.Document{}, err
		}
		current, getErr := s.repo.GetByID(ctx, documentID, organizationID)
		if getErr != nil {
			if getErr == repository.ErrNotFound {
				return repository.Document{}, apperr.NotFound("document not found")
			}
			return repository.Document{}, getErr
		}
		return repository.Document{}, apperr.Conflict(fmt.Sprintf("only completed documents can be shared, current status is %s", current.GenerationStatus))
	}

	return s.Get(ctx, documentID, organizationID)
}

// RevokeShare removes the document's share token. Existing links stop
// resolving immediately.
func (s *Service) RevokeShare(ctx context.Context, documentID, organizationID uuid.UUID) error {
	if err := s.repo.ClearShareToken(ctx, documentID, organizationID); err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("document not found")
		}
		return err
	}
	return nil
}

// ResolveShareToken loads the completed document behind a public share
// token. The token is the whole capability, so there is no tenant scoping.
func (s *Service) ResolveShareToken(ctx context.Context, token string) (repository.Document, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return repository.Document{}, apperr.NotFound("document not found")
	}

	doc, err := s.repo.GetByShareToken(ctx, token)
	if err != nil {
		if err == repository.ErrNotFound {
			return repository.Document{}, apperr.NotFound("document not found")
		}
		return repository.Document{}, err
	}
	return doc, nil
}

// validateSelection checks that a context selection references at least one
// source and that every selected meeting belongs to the opportunity.
func (s *Service) validateSelection(ctx context.Context, opportunityID uuid.UUID, snapshot repository.ContextSnapshot) error {
	if len(snapshot.MeetingIDs) == 0 && !snapshot.IncludeConsolidatedInsights && !snapshot.IncludeAccountResearch {
		return apperr.Validation("context selection is empty: select meetings, consolidated insights, or the research brief")
	}

	if len(snapshot.MeetingIDs) > 0 {
		recs, err := s.source.Meetings(ctx, opportunityID, snapshot.MeetingIDs)
		if err != nil {
			return err
		}
		if len(recs) != len(snapshot.MeetingIDs) {
			return apperr.Validation("one or more selected meetings do not belong to this opportunity")
		}
	}

	return nil
}

// enqueueGeneration hands a pending document to the worker. When the queue
// rejects the task the row is walked to failed through the claim so the
// state machine holds and the manual retry path stays available.
func (s *Service) enqueueGeneration(ctx context.Context, doc repository.Document) error {
	selection, err := json.Marshal(doc.ContextSnapshot)
	if err != nil {
		return fmt.Errorf("encode context selection: %w", err)
	}

	if err := s.queue.EnqueueDocumentGenerate(ctx, scheduler.DocumentGeneratePayload{
		DocumentID:       doc.ID.String(),
		OpportunityID:    doc.OpportunityID.String(),
		OrganizationID:   doc.OrganizationID.String(),
		TemplateID:       uuidPtrString(doc.TemplateID),
		ContextSelection: selection,
	}); err != nil {
		if _, claimErr := s.repo.ClaimForGeneration(ctx, doc.ID); claimErr == nil {
			if failErr := s.repo.Fail(ctx, doc.ID, "generation task could not be enqueued: "+err.Error()); failErr != nil {
				s.log.Error("failed to mark unqueued document as failed", "documentId", doc.ID, "error", failErr)
			}
		}
		return fmt.Errorf("enqueue document generation: %w", err)
	}

	return nil
}

// appendTimeline records document activity on the opportunity timeline.
// Failures are logged and swallowed; the timeline never blocks the pipeline.
func (s *Service) appendTimeline(ctx context.Context, params TimelineEventParams) {
	if s.timeline == nil {
		return
	}
	if err := s.timeline.CreateTimelineEvent(ctx, params); err != nil {
		s.log.Warn("failed to record document timeline event", "opportunityId", params.OpportunityID, "eventType", params.EventType, "error", err)
	}
}

// versionFamily filters the arena down to the documents that share a version
// root with the given document, keeping the arena's version order.
func versionFamily(docs []repository.Document, fromID uuid.UUID) []repository.Document {
	byID := make(map[uuid.UUID]repository.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	root := versionRoot(byID, fromID)
	var family []repository.Document
	for _, d := range docs {
		if versionRoot(byID, d.ID) == root {
			family = append(family, d)
		}
	}
	return family
}

// versionRoot walks parent pointers up to the first document without one.
// The walk is iterative with a visited set, so a corrupt parent cycle
// terminates at the last document seen instead of hanging the request.
func versionRoot(byID map[uuid.UUID]repository.Document, id uuid.UUID) uuid.UUID {
	visited := make(map[uuid.UUID]bool, len(byID))
	for {
		doc, ok := byID[id]
		if !ok {
			return id
		}
		visited[id] = true
		if doc.ParentVersionID == nil {
			return id
		}
		next := *doc.ParentVersionID
		if visited[next] {
			return id
		}
		id = next
	}
}

// generatePublicToken returns a 64 character hex token with 256 bits of
// entropy, safe to use in a URL path without encoding.
func generatePublicToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

func normalizeMeetingIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func normalizeAdditionalContext(text *string) *string {
	if text == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*text)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func optionalUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func requestActor(userID uuid.UUID) (actorType, actorName string) {
	if userID == uuid.Nil {
		return "System", "Document Pipeline"
	}
	return "User", userID.String()
}

func summaryPtr(text string) *string {
	if text == "" {
		return nil
	}
	return &text
}
