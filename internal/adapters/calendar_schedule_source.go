package adapters

import (
	"context"

	"dealdesk_backend/internal/calendar/service"
	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/ports"

	"github.com/google/uuid"
)

// CalendarScheduleSource adapts the calendar service for the opportunities
// domain. It implements the opportunities/ports.CalendarSource interface.
type CalendarScheduleSource struct {
	svc *service.Service
}

// NewCalendarScheduleSource creates an adapter that wraps the calendar service.
func NewCalendarScheduleSource(svc *service.Service) *CalendarScheduleSource {
	return &CalendarScheduleSource{svc: svc}
}

// ScheduleSignals returns confirmed calendar events as schedule inputs.
// Cancelled events are already filtered out by the calendar service.
func (a *CalendarScheduleSource) ScheduleSignals(ctx context.Context, opportunityID uuid.UUID) ([]domain.ScheduleInput, error) {
	events, err := a.svc.ActiveEvents(ctx, opportunityID)
	if err != nil {
		return nil, err
	}

	inputs := make([]domain.ScheduleInput, 0, len(events))
	for _, event := range events {
		inputs = append(inputs, domain.ScheduleInput{
			OccurredAt:     event.StartsAt,
			Source:         domain.ScheduleSourceCalendar,
			SourceRecordID: event.ID,
		})
	}

	return inputs, nil
}

var _ ports.CalendarSource = (*CalendarScheduleSource)(nil)
