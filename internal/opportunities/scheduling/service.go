// Package scheduling derives the call schedule of an opportunity from its
// meeting records and calendar events, and handles manual next-call
// overrides.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/ports"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
)

// Store is the slice of the opportunities repository this service uses.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (repository.Opportunity, error)
	GetByIDInternal(ctx context.Context, id uuid.UUID) (repository.Opportunity, error)
	MeetingScheduleSignals(ctx context.Context, opportunityID uuid.UUID) ([]domain.ScheduleInput, error)
	UpdateSchedule(ctx context.Context, opportunityID uuid.UUID, schedule domain.Schedule) error
	SetManualNextCall(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID, nextCall time.Time, checkpoint *time.Time) (repository.Opportunity, error)
	ListOpportunityIDs(ctx context.Context) ([]uuid.UUID, error)
	CreateTimelineEvent(ctx context.Context, params repository.CreateTimelineEventParams) (repository.TimelineEvent, error)
}

// Service recomputes opportunity schedules.
type Service struct {
	repo     Store
	calendar ports.CalendarSource
	bus      events.Bus
	log      *logger.Logger
}

func New(repo Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		bus:  bus,
		log:  log,
	}
}

// SetCalendarSource injects the calendar signal source (set after
// construction to break module init ordering).
func (s *Service) SetCalendarSource(src ports.CalendarSource) { s.calendar = src }

// ProcessScheduleRecalculation rebuilds the derived schedule fields of one
// opportunity from every available signal. The write replaces all previous
// values, including a manually set next call.
func (s *Service) ProcessScheduleRecalculation(ctx context.Context, opportunityID uuid.UUID) error {
	opp, err := s.repo.GetByIDInternal(ctx, opportunityID)
	if err != nil {
		if err == repository.ErrNotFound {
			// Deleted while the task sat in the queue.
			return nil
		}
		return err
	}

	signals, err := s.repo.MeetingScheduleSignals(ctx, opportunityID)
	if err != nil {
		return err
	}

	if s.calendar != nil {
		// A failing calendar source aborts the recalculation rather than
		// overwrite the schedule with a partial signal set.
		calendarSignals, err := s.calendar.ScheduleSignals(ctx, opportunityID)
		if err != nil {
			return fmt.Errorf("calendar schedule signals: %w", err)
		}
		signals = append(signals, calendarSignals...)
	}

	schedule := domain.RecomputeSchedule(time.Now().UTC(), signals)
	if err := s.repo.UpdateSchedule(ctx, opportunityID, schedule); err != nil {
		return err
	}

	s.log.TaskEvent("schedule_recalc", opportunityID.String(), fmt.Sprintf("signals=%d needsNextCall=%t", len(signals), schedule.NeedsNextCallScheduled))

	if s.bus != nil {
		s.bus.Publish(ctx, events.ScheduleRecalculated{
			BaseEvent:              events.NewBaseEvent(),
			OpportunityID:          opp.ID,
			OrganizationID:         opp.OrganizationID,
			NeedsNextCallScheduled: schedule.NeedsNextCallScheduled,
		})
	}

	return nil
}

// SetManualNextCall records a user-chosen next call date. The checkpoint is
// re-derived against the current last call. A later recalculation may replace
// the manual value when a stronger signal appears.
func (s *Service) SetManualNextCall(ctx context.Context, opportunityID, organizationID uuid.UUID, nextCall time.Time, setBy uuid.UUID) (repository.Opportunity, error) {
	now := time.Now()
	if !nextCall.After(now) {
		return repository.Opportunity{}, apperr.Validation("next call date must be in the future")
	}

	opp, err := s.repo.GetByID(ctx, opportunityID, organizationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return repository.Opportunity{}, apperr.NotFound("opportunity not found")
		}
		return repository.Opportunity{}, err
	}

	var checkpoint *time.Time
	if opp.LastCallDate != nil {
		checkpoint = domain.CheckpointBetween(*opp.LastCallDate, nextCall)
	}

	updated, err := s.repo.SetManualNextCall(ctx, opportunityID, organizationID, nextCall.UTC(), checkpoint)
	if err != nil {
		return repository.Opportunity{}, err
	}

	summary := fmt.Sprintf("Next call set for %s", nextCall.Format("2006-01-02 15:04"))
	_, _ = s.repo.CreateTimelineEvent(ctx, repository.CreateTimelineEventParams{
		OpportunityID:  opportunityID,
		OrganizationID: organizationID,
		ActorType:      "User",
		ActorName:      setBy.String(),
		EventType:      "next_call_scheduled",
		Title:          "Next call scheduled manually",
		Summary:        &summary,
		Metadata:       map[string]any{"nextCallDate": nextCall},
	})

	if s.bus != nil {
		s.bus.Publish(ctx, events.ScheduleRecalculated{
			BaseEvent:              events.NewBaseEvent(),
			OpportunityID:          updated.ID,
			OrganizationID:         updated.OrganizationID,
			NeedsNextCallScheduled: false,
		})
	}

	return updated, nil
}

// RecalculateAll walks every opportunity and rebuilds its schedule. Used by
// the backfill command after imports or signal logic changes. Failures are
// logged and skipped so one bad record does not abort the run.
func (s *Service) RecalculateAll(ctx context.Context) (processed int, failed int, err error) {
	ids, err := s.repo.ListOpportunityIDs(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return processed, failed, ctx.Err()
		}
		if recalcErr := s.ProcessScheduleRecalculation(ctx, id); recalcErr != nil {
			failed++
			s.log.Error("schedule backfill failed for opportunity", "opportunityId", id, "error", recalcErr)
			continue
		}
		processed++
	}

	return processed, failed, nil
}
