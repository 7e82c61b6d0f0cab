package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dealdesk_backend/internal/opportunities/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ConsolidationState is everything needed to derive the insights status and
// to decide whether the consolidation threshold is met.
type ConsolidationState struct {
	TotalMeetings      int
	CompletedParsedAt  []time.Time
	LastConsolidatedAt *time.Time
}

func (r *Repository) GetConsolidationState(ctx context.Context, opportunityID uuid.UUID) (ConsolidationState, error) {
	var state ConsolidationState

	err := r.pool.QueryRow(ctx, `
		SELECT last_consolidated_at FROM opportunities WHERE id = $1 AND deleted_at IS NULL
	`, opportunityID).Scan(&state.LastConsolidatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ConsolidationState{}, ErrNotFound
	}
	if err != nil {
		return ConsolidationState{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT parse_status, parsed_at FROM meeting_records WHERE opportunity_id = $1
	`, opportunityID)
	if err != nil {
		return ConsolidationState{}, err
	}
	defer rows.Close()

	state.CompletedParsedAt = make([]time.Time, 0)
	for rows.Next() {
		var status string
		var parsedAt *time.Time
		if err := rows.Scan(&status, &parsedAt); err != nil {
			return ConsolidationState{}, err
		}
		state.TotalMeetings++
		if status == string(domain.ParseStatusCompleted) && parsedAt != nil {
			state.CompletedParsedAt = append(state.CompletedParsedAt, *parsedAt)
		}
	}
	if rows.Err() != nil {
		return ConsolidationState{}, rows.Err()
	}

	return state, nil
}

// GetConsolidationStates batch-loads the consolidation state for a set of
// opportunities in two queries. Missing ids are simply absent from the map.
func (r *Repository) GetConsolidationStates(ctx context.Context, opportunityIDs []uuid.UUID) (map[uuid.UUID]ConsolidationState, error) {
	states := make(map[uuid.UUID]ConsolidationState, len(opportunityIDs))
	if len(opportunityIDs) == 0 {
		return states, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, last_consolidated_at FROM opportunities WHERE id = ANY($1) AND deleted_at IS NULL
	`, opportunityIDs)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id uuid.UUID
		var lastConsolidatedAt *time.Time
		if err := rows.Scan(&id, &lastConsolidatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		states[id] = ConsolidationState{
			LastConsolidatedAt: lastConsolidatedAt,
			CompletedParsedAt:  make([]time.Time, 0),
		}
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	meetingRows, err := r.pool.Query(ctx, `
		SELECT opportunity_id, parse_status, parsed_at FROM meeting_records WHERE opportunity_id = ANY($1)
	`, opportunityIDs)
	if err != nil {
		return nil, err
	}
	defer meetingRows.Close()

	for meetingRows.Next() {
		var opportunityID uuid.UUID
		var status string
		var parsedAt *time.Time
		if err := meetingRows.Scan(&opportunityID, &status, &parsedAt); err != nil {
			return nil, err
		}
		state, ok := states[opportunityID]
		if !ok {
			continue
		}
		state.TotalMeetings++
		if status == string(domain.ParseStatusCompleted) && parsedAt != nil {
			state.CompletedParsedAt = append(state.CompletedParsedAt, *parsedAt)
		}
		states[opportunityID] = state
	}
	if meetingRows.Err() != nil {
		return nil, meetingRows.Err()
	}

	return states, nil
}

// UpdateConsolidatedInsights overwrites the consolidated fields wholesale and
// stamps the consolidation bookkeeping.
func (r *Repository) UpdateConsolidatedInsights(ctx context.Context, opportunityID uuid.UUID, insights domain.ConsolidatedInsights, callCount int, consolidatedAt time.Time) error {
	insightsJSON, err := json.Marshal(insights)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE opportunities
		SET consolidated_insights = $2, last_consolidated_at = $3, consolidation_call_count = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, opportunityID, insightsJSON, consolidatedAt, callCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
