package ports

import (
	"context"

	"dealdesk_backend/internal/opportunities/domain"

	"github.com/google/uuid"
)

// CalendarSource supplies externally synced calendar events as schedule
// signals. Implemented by an adapter over the calendar module.
type CalendarSource interface {
	ScheduleSignals(ctx context.Context, opportunityID uuid.UUID) ([]domain.ScheduleInput, error)
}
