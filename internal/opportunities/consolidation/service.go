// Package consolidation merges the insights of all parsed meetings of an
// opportunity into one deduplicated picture on the opportunity record.
package consolidation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
)

// Store is the slice of the opportunities repository this service uses.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (repository.Opportunity, error)
	GetByIDInternal(ctx context.Context, id uuid.UUID) (repository.Opportunity, error)
	ListCompletedMeetings(ctx context.Context, opportunityID uuid.UUID) ([]repository.MeetingRecord, error)
	UpdateConsolidatedInsights(ctx context.Context, opportunityID uuid.UUID, insights domain.ConsolidatedInsights, callCount int, consolidatedAt time.Time) error
	CreateTimelineEvent(ctx context.Context, params repository.CreateTimelineEventParams) (repository.TimelineEvent, error)
}

// Outcome reports what one consolidation run did. A skipped run is a valid
// outcome, not an error.
type Outcome struct {
	Applied      bool
	Reason       string
	MeetingsUsed int
}

// Service runs insight consolidation for opportunities.
type Service struct {
	repo Store
	bus  events.Bus
	log  *logger.Logger

	runsMu     sync.Mutex
	activeRuns map[uuid.UUID]bool
}

func New(repo Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		bus:        bus,
		log:        log,
		activeRuns: make(map[uuid.UUID]bool),
	}
}

// markRunning attempts to mark a consolidation as active for an opportunity.
// Returns false if one is already in flight.
func (s *Service) markRunning(opportunityID uuid.UUID) bool {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	if s.activeRuns[opportunityID] {
		return false
	}
	s.activeRuns[opportunityID] = true
	return true
}

func (s *Service) markComplete(opportunityID uuid.UUID) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	delete(s.activeRuns, opportunityID)
}

// ProcessConsolidation handles one delivery of a consolidation task.
func (s *Service) ProcessConsolidation(ctx context.Context, opportunityID uuid.UUID) error {
	opp, err := s.repo.GetByIDInternal(ctx, opportunityID)
	if err != nil {
		if err == repository.ErrNotFound {
			// Deleted while the task sat in the queue.
			return nil
		}
		return err
	}

	outcome, err := s.run(ctx, opp)
	if err != nil {
		return err
	}
	if !outcome.Applied {
		s.log.Info("consolidation skipped", "opportunityId", opportunityID, "reason", outcome.Reason)
	}
	return nil
}

// TriggerConsolidation runs a consolidation synchronously for an API caller,
// so the caller sees immediately whether it applied or why it was skipped.
func (s *Service) TriggerConsolidation(ctx context.Context, opportunityID, organizationID uuid.UUID) (Outcome, error) {
	opp, err := s.repo.GetByID(ctx, opportunityID, organizationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return Outcome{}, apperr.NotFound("opportunity not found")
		}
		return Outcome{}, err
	}
	return s.run(ctx, opp)
}

// run is the single consolidation path shared by the queue processor and the
// manual trigger. The in-flight guard keeps concurrent runs for the same
// opportunity from double-incrementing the consolidation counter.
func (s *Service) run(ctx context.Context, opp repository.Opportunity) (Outcome, error) {
	if !s.markRunning(opp.ID) {
		return Outcome{Applied: false, Reason: "consolidation already in progress"}, nil
	}
	defer s.markComplete(opp.ID)

	meetings, err := s.repo.ListCompletedMeetings(ctx, opp.ID)
	if err != nil {
		return Outcome{}, err
	}

	if len(meetings) < domain.ConsolidationThreshold {
		return Outcome{
			Applied:      false,
			Reason:       fmt.Sprintf("%d completed meetings, need at least %d", len(meetings), domain.ConsolidationThreshold),
			MeetingsUsed: len(meetings),
		}, nil
	}

	inputs := make([]domain.MeetingInsights, 0, len(meetings))
	for _, m := range meetings {
		inputs = append(inputs, domain.MeetingInsights{
			PainPoints: m.PainPoints,
			Goals:      m.Goals,
			NextSteps:  m.NextSteps,
			Metrics:    m.Metrics,
			Risk:       m.Risk,
		})
	}

	consolidated := domain.ConsolidateInsights(inputs)
	callCount := opp.ConsolidationCallCount + 1
	now := time.Now().UTC()

	if err := s.repo.UpdateConsolidatedInsights(ctx, opp.ID, consolidated, callCount, now); err != nil {
		return Outcome{}, err
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.InsightsConsolidated{
			BaseEvent:      events.NewBaseEvent(),
			OpportunityID:  opp.ID,
			OrganizationID: opp.OrganizationID,
			OwnerID:        ownerOrNil(opp.OwnerID),
			MeetingsUsed:   len(meetings),
		})
	}

	summary := fmt.Sprintf("Merged insights from %d meetings (run %d)", len(meetings), callCount)
	_, _ = s.repo.CreateTimelineEvent(ctx, repository.CreateTimelineEventParams{
		OpportunityID:  opp.ID,
		OrganizationID: opp.OrganizationID,
		ActorType:      "AI",
		ActorName:      "Insight Consolidator",
		EventType:      "insights_consolidated",
		Title:          "Meeting insights consolidated",
		Summary:        &summary,
		Metadata: map[string]any{
			"meetingsUsed":           len(meetings),
			"consolidationCallCount": callCount,
		},
	})

	return Outcome{Applied: true, MeetingsUsed: len(meetings)}, nil
}

func ownerOrNil(ownerID *uuid.UUID) uuid.UUID {
	if ownerID == nil {
		return uuid.Nil
	}
	return *ownerID
}
