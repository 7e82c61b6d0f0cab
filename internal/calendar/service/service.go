// Package service implements calendar event intake and the read surface over
// synced provider events.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dealdesk_backend/internal/calendar/repository"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the calendar persistence interface consumed by the service.
type Store interface {
	Upsert(ctx context.Context, event *repository.Event) error
	GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (*repository.Event, error)
	ListByOpportunity(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]repository.Event, error)
	ListActiveByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]repository.Event, error)
}

// RecalcEnqueuer queues schedule recalculation after an event changes.
type RecalcEnqueuer interface {
	EnqueueScheduleRecalculate(ctx context.Context, payload scheduler.ScheduleRecalculatePayload) error
}

// Service owns calendar event intake from provider webhooks.
type Service struct {
	repo  Store
	queue RecalcEnqueuer
	log   *logger.Logger
}

// New creates the calendar service. The queue may be nil in tooling that only
// reads events.
func New(repo Store, queue RecalcEnqueuer, log *logger.Logger) *Service {
	return &Service{repo: repo, queue: queue, log: log}
}

// UpsertParams carries one provider event, already verified by the webhook
// layer.
type UpsertParams struct {
	OrganizationID  uuid.UUID
	OpportunityID   uuid.UUID
	Provider        string
	ProviderEventID string
	Title           string
	Status          string
	StartsAt        time.Time
	EndsAt          *time.Time
	Location        *string
	MeetingLink     *string
}

// UpsertFromProvider stores the event and queues a schedule recalculation for
// the opportunity it belongs to. The upsert is idempotent by provider event
// id, so a provider retrying after a failed enqueue converges on the same row.
func (s *Service) UpsertFromProvider(ctx context.Context, params UpsertParams) (*repository.Event, error) {
	if params.OrganizationID == uuid.Nil || params.OpportunityID == uuid.Nil {
		return nil, apperr.Validation("organizationId and opportunityId are required")
	}

	provider := strings.TrimSpace(params.Provider)
	providerEventID := strings.TrimSpace(params.ProviderEventID)
	if provider == "" || providerEventID == "" {
		return nil, apperr.Validation("provider and providerEventId are required")
	}
	if params.StartsAt.IsZero() {
		return nil, apperr.Validation("startsAt is required")
	}
	if params.EndsAt != nil && !params.EndsAt.After(params.StartsAt) {
		return nil, apperr.Validation("endsAt must be after startsAt")
	}

	status := params.Status
	switch status {
	case "":
		status = repository.StatusConfirmed
	case repository.StatusConfirmed, repository.StatusCancelled:
	default:
		return nil, apperr.Validation("unknown event status: " + status)
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = "Untitled event"
	}

	event := &repository.Event{
		ID:              uuid.New(),
		OrganizationID:  params.OrganizationID,
		OpportunityID:   params.OpportunityID,
		Provider:        provider,
		ProviderEventID: providerEventID,
		Title:           title,
		Status:          status,
		StartsAt:        params.StartsAt.UTC(),
		EndsAt:          params.EndsAt,
		Location:        params.Location,
		MeetingLink:     params.MeetingLink,
	}
	if err := s.repo.Upsert(ctx, event); err != nil {
		return nil, err
	}

	if s.queue != nil {
		err := s.queue.EnqueueScheduleRecalculate(ctx, scheduler.ScheduleRecalculatePayload{
			OpportunityID:  params.OpportunityID.String(),
			OrganizationID: params.OrganizationID.String(),
		})
		if err != nil {
			return nil, fmt.Errorf("queue schedule recalculation: %w", err)
		}
	}

	s.log.TaskEvent("calendar_upsert", event.ID.String(),
		fmt.Sprintf("provider=%s status=%s opportunity=%s", provider, status, params.OpportunityID))

	return event, nil
}

// ListForOpportunity returns all stored events for an opportunity, newest
// last. Cancelled events are included so the UI can show what fell through.
func (s *Service) ListForOpportunity(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]repository.Event, error) {
	return s.repo.ListByOpportunity(ctx, opportunityID, organizationID)
}

// ActiveEvents returns the confirmed events feeding schedule recalculation.
func (s *Service) ActiveEvents(ctx context.Context, opportunityID uuid.UUID) ([]repository.Event, error) {
	return s.repo.ListActiveByOpportunity(ctx, opportunityID)
}
