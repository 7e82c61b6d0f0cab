package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event statuses mirror what calendar providers report. Cancelled events stay
// stored so a later reinstatement can flip them back, but they never count as
// schedule signals.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Event is one externally synced calendar event tied to an opportunity.
type Event struct {
	ID              uuid.UUID  `db:"id"`
	OrganizationID  uuid.UUID  `db:"organization_id"`
	OpportunityID   uuid.UUID  `db:"opportunity_id"`
	Provider        string     `db:"provider"`
	ProviderEventID string     `db:"provider_event_id"`
	Title           string     `db:"title"`
	Status          string     `db:"status"`
	StartsAt        time.Time  `db:"starts_at"`
	EndsAt          *time.Time `db:"ends_at"`
	Location        *string    `db:"location"`
	MeetingLink     *string    `db:"meeting_link"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// Repository provides database operations for calendar events.
type Repository struct {
	pool *pgxpool.Pool
}

const eventNotFoundMsg = "calendar event not found"

// New creates a new calendar repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert inserts or refreshes an event keyed by (organization, provider,
// provider event id). Providers redeliver freely; the same payload always
// converges on one row.
func (r *Repository) Upsert(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO calendar_events (
			id, organization_id, opportunity_id, provider, provider_event_id,
			title, status, starts_at, ends_at, location, meeting_link
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (organization_id, provider, provider_event_id) DO UPDATE SET
			opportunity_id = EXCLUDED.opportunity_id,
			title          = EXCLUDED.title,
			status         = EXCLUDED.status,
			starts_at      = EXCLUDED.starts_at,
			ends_at        = EXCLUDED.ends_at,
			location       = EXCLUDED.location,
			meeting_link   = EXCLUDED.meeting_link,
			updated_at     = now()
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		event.ID, event.OrganizationID, event.OpportunityID, event.Provider, event.ProviderEventID,
		event.Title, event.Status, event.StartsAt, event.EndsAt, event.Location, event.MeetingLink,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return apperr.Validation("unknown opportunity for calendar event")
		}
		return fmt.Errorf("failed to upsert calendar event: %w", err)
	}

	return nil
}

// GetByID retrieves an event by its ID within an organization.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (*Event, error) {
	var event Event
	query := `SELECT id, organization_id, opportunity_id, provider, provider_event_id,
		title, status, starts_at, ends_at, location, meeting_link, created_at, updated_at
		FROM calendar_events WHERE id = $1 AND organization_id = $2`

	err := r.pool.QueryRow(ctx, query, id, organizationID).Scan(
		&event.ID, &event.OrganizationID, &event.OpportunityID, &event.Provider, &event.ProviderEventID,
		&event.Title, &event.Status, &event.StartsAt, &event.EndsAt, &event.Location, &event.MeetingLink,
		&event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(eventNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get calendar event: %w", err)
	}

	return &event, nil
}

// ListByOpportunity retrieves every stored event for an opportunity,
// including cancelled ones, ordered by start time.
func (r *Repository) ListByOpportunity(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]Event, error) {
	query := `SELECT id, organization_id, opportunity_id, provider, provider_event_id,
		title, status, starts_at, ends_at, location, meeting_link, created_at, updated_at
		FROM calendar_events
		WHERE opportunity_id = $1 AND organization_id = $2
		ORDER BY starts_at ASC`

	rows, err := r.pool.Query(ctx, query, opportunityID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListActiveByOpportunity retrieves confirmed events for an opportunity. Used
// by the schedule recalculation path, which runs from queue tasks and trusts
// the opportunity id, so there is no organization filter here.
func (r *Repository) ListActiveByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]Event, error) {
	query := `SELECT id, organization_id, opportunity_id, provider, provider_event_id,
		title, status, starts_at, ends_at, location, meeting_link, created_at, updated_at
		FROM calendar_events
		WHERE opportunity_id = $1 AND status = $2
		ORDER BY starts_at ASC`

	rows, err := r.pool.Query(ctx, query, opportunityID, StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to list active calendar events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	var items []Event
	for rows.Next() {
		var event Event
		if err := rows.Scan(
			&event.ID, &event.OrganizationID, &event.OpportunityID, &event.Provider, &event.ProviderEventID,
			&event.Title, &event.Status, &event.StartsAt, &event.EndsAt, &event.Location, &event.MeetingLink,
			&event.CreatedAt, &event.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan calendar event: %w", err)
		}
		items = append(items, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate calendar events: %w", err)
	}

	return items, nil
}
