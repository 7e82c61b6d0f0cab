// Package research runs the account research agent on demand and stores its
// Markdown brief on the opportunity.
package research

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/opportunities/agent"
	"dealdesk_backend/internal/opportunities/ports"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
)

// Store is the slice of the opportunities repository this service uses.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (repository.Opportunity, error)
	GetByIDInternal(ctx context.Context, id uuid.UUID) (repository.Opportunity, error)
	UpdateResearch(ctx context.Context, id uuid.UUID, markdown string, generatedAt time.Time) error
	CreateTimelineEvent(ctx context.Context, params repository.CreateTimelineEventParams) (repository.TimelineEvent, error)
}

// Researcher produces the Markdown brief. Implemented by agent.AccountResearcher.
type Researcher interface {
	ResearchAccount(ctx context.Context, opportunityID uuid.UUID, input agent.ResearchInput) (string, error)
}

// Service triggers and processes account research runs.
type Service struct {
	repo       Store
	queue      scheduler.PipelineEnqueuer
	researcher Researcher
	aiSettings ports.OrganizationAISettingsReader
	bus        events.Bus
	log        *logger.Logger
}

func New(repo Store, queue scheduler.PipelineEnqueuer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		queue: queue,
		bus:   bus,
		log:   log,
	}
}

func (s *Service) SetResearcher(r Researcher) { s.researcher = r }

func (s *Service) SetAISettingsReader(r ports.OrganizationAISettingsReader) { s.aiSettings = r }

// RequestResearch enqueues a research run for an opportunity. Rejected when
// the organization has research disabled, so the caller learns immediately
// instead of waiting on a silently skipped task.
func (s *Service) RequestResearch(ctx context.Context, opportunityID, organizationID, requestedBy uuid.UUID) error {
	if opportunityID == uuid.Nil || organizationID == uuid.Nil {
		return apperr.Validation("opportunity id and organization id are required")
	}

	if _, err := s.repo.GetByID(ctx, opportunityID, organizationID); err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("opportunity not found")
		}
		return err
	}

	settings := s.orgAISettings(ctx, organizationID)
	if !settings.ResearchEnabled {
		return apperr.Validation("account research is disabled for this organization")
	}

	if err := s.queue.EnqueueAccountResearch(ctx, scheduler.AccountResearchPayload{
		OpportunityID:  opportunityID.String(),
		OrganizationID: organizationID.String(),
		RequestedBy:    requestedBy.String(),
	}); err != nil {
		return fmt.Errorf("enqueue account research: %w", err)
	}

	s.log.TaskEvent("research_request", opportunityID.String(), "research run queued")
	return nil
}

// ProcessAccountResearch runs the research agent and stores the brief. A
// failing run is retried by the queue; on the final attempt the failure event
// carries the error so the requester can be told.
func (s *Service) ProcessAccountResearch(ctx context.Context, opportunityID, requestedBy uuid.UUID, finalAttempt bool) error {
	opp, err := s.repo.GetByIDInternal(ctx, opportunityID)
	if err != nil {
		if err == repository.ErrNotFound {
			// Deleted while the task sat in the queue.
			return nil
		}
		return err
	}

	settings := s.orgAISettings(ctx, opp.OrganizationID)
	if !settings.ResearchEnabled {
		s.log.TaskEvent("research_run", opportunityID.String(), "skipped, research disabled for organization")
		return nil
	}

	if s.researcher == nil {
		s.log.Warn("research agent is not configured, skipping run", "opportunityId", opportunityID)
		return nil
	}

	markdown, err := s.researcher.ResearchAccount(ctx, opportunityID, agent.ResearchInput{
		AccountName:  opp.AccountName,
		ContactName:  opp.ContactName,
		ContactEmail: opp.ContactEmail,
		Stage:        opp.Stage,
		Insights:     opp.ConsolidatedInsights,
	})
	if err != nil {
		if finalAttempt {
			s.failResearch(ctx, opp, err)
		}
		return err
	}

	generatedAt := time.Now().UTC()
	if err := s.repo.UpdateResearch(ctx, opportunityID, markdown, generatedAt); err != nil {
		return fmt.Errorf("store research brief: %w", err)
	}

	summary := fmt.Sprintf("Research brief generated (%d characters)", len(markdown))
	_, _ = s.repo.CreateTimelineEvent(ctx, repository.CreateTimelineEventParams{
		OpportunityID:  opp.ID,
		OrganizationID: opp.OrganizationID,
		ActorType:      "AI",
		ActorName:      "Account Researcher",
		EventType:      "research_completed",
		Title:          "Account research completed",
		Summary:        &summary,
	})

	if s.bus != nil {
		s.bus.Publish(ctx, events.AccountResearchCompleted{
			BaseEvent:      events.NewBaseEvent(),
			OpportunityID:  opp.ID,
			OrganizationID: opp.OrganizationID,
			OwnerID:        ownerOrNil(opp.OwnerID),
			RequestedBy:    requestedBy,
		})
	}

	s.log.TaskEvent("research_run", opportunityID.String(), "brief stored")
	return nil
}

func (s *Service) failResearch(ctx context.Context, opp repository.Opportunity, cause error) {
	if s.bus != nil {
		s.bus.Publish(ctx, events.AccountResearchFailed{
			BaseEvent:      events.NewBaseEvent(),
			OpportunityID:  opp.ID,
			OrganizationID: opp.OrganizationID,
			ErrorMessage:   cause.Error(),
		})
	}

	summary := cause.Error()
	_, _ = s.repo.CreateTimelineEvent(ctx, repository.CreateTimelineEventParams{
		OpportunityID:  opp.ID,
		OrganizationID: opp.OrganizationID,
		ActorType:      "AI",
		ActorName:      "Account Researcher",
		EventType:      "research_failed",
		Title:          "Account research failed",
		Summary:        &summary,
	})
}

// orgAISettings resolves the per-organization toggles. Without a reader every
// feature is on; a reader error turns autonomous work off for this run.
func (s *Service) orgAISettings(ctx context.Context, organizationID uuid.UUID) ports.OrganizationAISettings {
	if s.aiSettings == nil {
		return ports.DefaultOrganizationAISettings()
	}
	settings, err := s.aiSettings(ctx, organizationID)
	if err != nil {
		s.log.Warn("could not load organization AI settings", "organizationId", organizationID, "error", err)
		return ports.OrganizationAISettings{}
	}
	return settings
}

func ownerOrNil(owner *uuid.UUID) uuid.UUID {
	if owner == nil {
		return uuid.Nil
	}
	return *owner
}
