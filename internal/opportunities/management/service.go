// Package management owns the opportunity CRUD and read surface. Pipeline
// behavior lives in the sibling packages; this one serves the UI.
package management

import (
	"context"

	"github.com/google/uuid"

	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
	"dealdesk_backend/platform/phone"
	"dealdesk_backend/platform/sanitize"
)

// Store is the slice of the opportunities repository this service uses.
type Store interface {
	Create(ctx context.Context, params repository.CreateOpportunityParams) (repository.Opportunity, error)
	GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (repository.Opportunity, error)
	List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]repository.Opportunity, int, error)
	Update(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, params repository.UpdateOpportunityParams) (repository.Opportunity, error)
	Delete(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error
	GetConsolidationState(ctx context.Context, opportunityID uuid.UUID) (repository.ConsolidationState, error)
	GetConsolidationStates(ctx context.Context, opportunityIDs []uuid.UUID) (map[uuid.UUID]repository.ConsolidationState, error)
	ListTimelineEvents(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID, limit int) ([]repository.TimelineEvent, error)
	CreateTimelineEvent(ctx context.Context, params repository.CreateTimelineEventParams) (repository.TimelineEvent, error)
}

// View is an opportunity plus its read-time derived fields. The insights
// status is never stored; it is computed against the live meeting set on
// every read.
type View struct {
	repository.Opportunity
	InsightsStatus domain.InsightsStatus
}

type Service struct {
	repo Store
	log  *logger.Logger
}

func New(repo Store, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

type CreateParams struct {
	OrganizationID uuid.UUID
	OwnerID        *uuid.UUID
	AccountName    string
	ContactName    *string
	ContactEmail   *string
	ContactPhone   *string
	Stage          string
	AmountCents    *int64
	CreatedBy      *uuid.UUID
}

func (s *Service) Create(ctx context.Context, params CreateParams) (View, error) {
	if params.OrganizationID == uuid.Nil {
		return View{}, apperr.Validation("organization id is required")
	}
	// Rows also arrive through CSV import; names are not trusted input.
	accountName := sanitize.Text(params.AccountName)
	if accountName == "" {
		return View{}, apperr.Validation("account name is required")
	}

	stage := params.Stage
	if stage == "" {
		stage = domain.StageProspecting
	}
	if !domain.IsKnownStage(stage) {
		return View{}, apperr.Validation("unknown stage: " + stage)
	}

	if params.AmountCents != nil && *params.AmountCents < 0 {
		return View{}, apperr.Validation("amount must not be negative")
	}

	contactPhone := params.ContactPhone
	if contactPhone != nil {
		normalized := phone.NormalizeE164(*contactPhone)
		contactPhone = &normalized
	}

	opp, err := s.repo.Create(ctx, repository.CreateOpportunityParams{
		OrganizationID: params.OrganizationID,
		OwnerID:        params.OwnerID,
		AccountName:    accountName,
		ContactName:    sanitize.TextPtr(params.ContactName),
		ContactEmail:   params.ContactEmail,
		ContactPhone:   contactPhone,
		Stage:          stage,
		AmountCents:    params.AmountCents,
	})
	if err != nil {
		return View{}, err
	}

	actorType, actorName := actorFor(params.CreatedBy)
	_, _ = s.repo.CreateTimelineEvent(ctx, repository.CreateTimelineEventParams{
		OpportunityID:  opp.ID,
		OrganizationID: opp.OrganizationID,
		ActorType:      actorType,
		ActorName:      actorName,
		EventType:      "opportunity_created",
		Title:          "Opportunity created for " + opp.AccountName,
	})

	s.log.Info("opportunity created", "opportunityId", opp.ID, "organizationId", opp.OrganizationID)
	return View{Opportunity: opp, InsightsStatus: domain.InsightsStatusNone}, nil
}

func (s *Service) Get(ctx context.Context, id, organizationID uuid.UUID) (View, error) {
	opp, err := s.repo.GetByID(ctx, id, organizationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return View{}, apperr.NotFound("opportunity not found")
		}
		return View{}, err
	}

	state, err := s.repo.GetConsolidationState(ctx, id)
	if err != nil {
		return View{}, err
	}

	return View{
		Opportunity:    opp,
		InsightsStatus: domain.DeriveInsightsStatus(state.TotalMeetings, state.CompletedParsedAt, state.LastConsolidatedAt),
	}, nil
}

func (s *Service) List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]View, int, error) {
	if limit < 1 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}

	opps, total, err := s.repo.List(ctx, organizationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uuid.UUID, len(opps))
	for i, opp := range opps {
		ids[i] = opp.ID
	}
	states, err := s.repo.GetConsolidationStates(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	views := make([]View, len(opps))
	for i, opp := range opps {
		state := states[opp.ID]
		views[i] = View{
			Opportunity:    opp,
			InsightsStatus: domain.DeriveInsightsStatus(state.TotalMeetings, state.CompletedParsedAt, state.LastConsolidatedAt),
		}
	}
	return views, total, nil
}

type UpdateParams struct {
	AccountName  *string
	ContactName  *string
	ContactEmail *string
	ContactPhone *string
	Stage        *string
	AmountCents  *int64
	OwnerID      *uuid.UUID
	UpdatedBy    *uuid.UUID
}

func (s *Service) Update(ctx context.Context, id, organizationID uuid.UUID, params UpdateParams) (View, error) {
	accountName := sanitize.TextPtr(params.AccountName)
	if accountName != nil && *accountName == "" {
		return View{}, apperr.Validation("account name must not be blank")
	}
	if params.Stage != nil && !domain.IsKnownStage(*params.Stage) {
		return View{}, apperr.Validation("unknown stage: " + *params.Stage)
	}
	if params.AmountCents != nil && *params.AmountCents < 0 {
		return View{}, apperr.Validation("amount must not be negative")
	}

	contactPhone := params.ContactPhone
	if contactPhone != nil {
		normalized := phone.NormalizeE164(*contactPhone)
		contactPhone = &normalized
	}

	before, err := s.repo.GetByID(ctx, id, organizationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return View{}, apperr.NotFound("opportunity not found")
		}
		return View{}, err
	}

	opp, err := s.repo.Update(ctx, id, organizationID, repository.UpdateOpportunityParams{
		AccountName:  accountName,
		ContactName:  sanitize.TextPtr(params.ContactName),
		ContactEmail: params.ContactEmail,
		ContactPhone: contactPhone,
		Stage:        params.Stage,
		AmountCents:  params.AmountCents,
		OwnerID:      params.OwnerID,
	})
	if err != nil {
		if err == repository.ErrNotFound {
			return View{}, apperr.NotFound("opportunity not found")
		}
		return View{}, err
	}

	if params.Stage != nil && *params.Stage != before.Stage {
		actorType, actorName := actorFor(params.UpdatedBy)
		summary := before.Stage + " -> " + opp.Stage
		_, _ = s.repo.CreateTimelineEvent(ctx, repository.CreateTimelineEventParams{
			OpportunityID:  opp.ID,
			OrganizationID: opp.OrganizationID,
			ActorType:      actorType,
			ActorName:      actorName,
			EventType:      "stage_changed",
			Title:          "Stage moved to " + opp.Stage,
			Summary:        &summary,
		})
	}

	state, err := s.repo.GetConsolidationState(ctx, id)
	if err != nil {
		return View{}, err
	}
	return View{
		Opportunity:    opp,
		InsightsStatus: domain.DeriveInsightsStatus(state.TotalMeetings, state.CompletedParsedAt, state.LastConsolidatedAt),
	}, nil
}

func (s *Service) Delete(ctx context.Context, id, organizationID uuid.UUID) error {
	if err := s.repo.Delete(ctx, id, organizationID); err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("opportunity not found")
		}
		return err
	}
	s.log.Info("opportunity deleted", "opportunityId", id, "organizationId", organizationID)
	return nil
}

// Timeline returns the newest-first activity feed of an opportunity.
func (s *Service) Timeline(ctx context.Context, id, organizationID uuid.UUID, limit int) ([]repository.TimelineEvent, error) {
	if _, err := s.repo.GetByID(ctx, id, organizationID); err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("opportunity not found")
		}
		return nil, err
	}
	return s.repo.ListTimelineEvents(ctx, id, organizationID, limit)
}

func actorFor(userID *uuid.UUID) (actorType, actorName string) {
	if userID == nil {
		return "System", "Opportunity Intake"
	}
	return "User", userID.String()
}
