package repository

import (
	"context"
	"errors"
	"time"

	"dealdesk_backend/internal/opportunities/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MeetingScheduleSignals returns every meeting of an opportunity as a
// schedule input, regardless of parse status. Parsing only affects insights;
// the meeting itself is still a call signal.
func (r *Repository) MeetingScheduleSignals(ctx context.Context, opportunityID uuid.UUID) ([]domain.ScheduleInput, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, occurred_at FROM meeting_records WHERE opportunity_id = $1
	`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	signals := make([]domain.ScheduleInput, 0)
	for rows.Next() {
		var id uuid.UUID
		var kind string
		var occurredAt time.Time
		if err := rows.Scan(&id, &kind, &occurredAt); err != nil {
			return nil, err
		}

		source := domain.ScheduleSourceNote
		if kind == string(domain.MeetingKindCallTranscript) {
			source = domain.ScheduleSourceCallTranscript
		}
		signals = append(signals, domain.ScheduleInput{
			OccurredAt:     occurredAt,
			Source:         source,
			SourceRecordID: id,
		})
	}
	return signals, rows.Err()
}

// UpdateSchedule overwrites every derived scheduling field. The manual
// next-call flag is cleared because a recalculation supersedes any manual
// value.
func (r *Repository) UpdateSchedule(ctx context.Context, opportunityID uuid.UUID, schedule domain.Schedule) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE opportunities
		SET last_call_date = $2, last_call_source = $3, last_call_source_event_id = $4,
			next_call_date = $5, next_call_source = $6, next_call_source_event_id = $7,
			next_call_manually_set = FALSE,
			checkpoint_date = $8, needs_next_call_scheduled = $9, schedule_calculated_at = $10,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, opportunityID,
		schedule.LastCallDate, sourceText(schedule.LastCallSource), schedule.LastCallSourceEventID,
		schedule.NextCallDate, sourceText(schedule.NextCallSource), schedule.NextCallSourceEventID,
		schedule.CheckpointDate, schedule.NeedsNextCallScheduled, schedule.CalculatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetManualNextCall records a user-chosen next call date. The value holds
// only until the next recalculation runs.
func (r *Repository) SetManualNextCall(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID, nextCall time.Time, checkpoint *time.Time) (Opportunity, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE opportunities
		SET next_call_date = $3, next_call_source = $4, next_call_source_event_id = NULL,
			next_call_manually_set = TRUE, needs_next_call_scheduled = FALSE,
			checkpoint_date = $5, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
		RETURNING`+opportunityColumns,
		opportunityID, organizationID, nextCall, string(domain.ScheduleSourceManual), checkpoint,
	)

	opp, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Opportunity{}, ErrNotFound
	}
	return opp, err
}

// ListOpportunityIDs streams every live opportunity id, for the schedule
// backfill command.
func (r *Repository) ListOpportunityIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM opportunities WHERE deleted_at IS NULL ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func sourceText(source *domain.ScheduleSource) *string {
	if source == nil {
		return nil
	}
	s := string(*source)
	return &s
}
