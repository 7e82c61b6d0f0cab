package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dealdesk_backend/internal/opportunities/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("opportunity not found")
	ErrMeetingNotFound = errors.New("meeting not found")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Opportunity struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	OwnerID        *uuid.UUID
	AccountName    string
	ContactName    *string
	ContactEmail   *string
	ContactPhone   *string
	Stage          string
	AmountCents    *int64

	LastCallDate           *time.Time
	LastCallSource         *string
	LastCallSourceEventID  *uuid.UUID
	NextCallDate           *time.Time
	NextCallSource         *string
	NextCallSourceEventID  *uuid.UUID
	NextCallManuallySet    bool
	CheckpointDate         *time.Time
	NeedsNextCallScheduled bool
	ScheduleCalculatedAt   *time.Time

	ConsolidatedInsights   *domain.ConsolidatedInsights
	LastConsolidatedAt     *time.Time
	ConsolidationCallCount int

	ResearchMarkdown    *string
	ResearchGeneratedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// opportunityColumns is the canonical SELECT list; scanOpportunity expects
// exactly this order.
const opportunityColumns = `
	id, organization_id, owner_id, account_name, contact_name, contact_email, contact_phone,
	stage, amount_cents,
	last_call_date, last_call_source, last_call_source_event_id,
	next_call_date, next_call_source, next_call_source_event_id, next_call_manually_set,
	checkpoint_date, needs_next_call_scheduled, schedule_calculated_at,
	consolidated_insights, last_consolidated_at, consolidation_call_count,
	research_markdown, research_generated_at,
	created_at, updated_at`

type opportunityRowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(s opportunityRowScanner) (Opportunity, error) {
	var opp Opportunity
	var insightsJSON []byte

	err := s.Scan(
		&opp.ID, &opp.OrganizationID, &opp.OwnerID, &opp.AccountName, &opp.ContactName, &opp.ContactEmail, &opp.ContactPhone,
		&opp.Stage, &opp.AmountCents,
		&opp.LastCallDate, &opp.LastCallSource, &opp.LastCallSourceEventID,
		&opp.NextCallDate, &opp.NextCallSource, &opp.NextCallSourceEventID, &opp.NextCallManuallySet,
		&opp.CheckpointDate, &opp.NeedsNextCallScheduled, &opp.ScheduleCalculatedAt,
		&insightsJSON, &opp.LastConsolidatedAt, &opp.ConsolidationCallCount,
		&opp.ResearchMarkdown, &opp.ResearchGeneratedAt,
		&opp.CreatedAt, &opp.UpdatedAt,
	)
	if err != nil {
		return Opportunity{}, err
	}

	if len(insightsJSON) > 0 {
		var insights domain.ConsolidatedInsights
		if err := json.Unmarshal(insightsJSON, &insights); err == nil {
			opp.ConsolidatedInsights = &insights
		}
	}

	return opp, nil
}

type CreateOpportunityParams struct {
	OrganizationID uuid.UUID
	OwnerID        *uuid.UUID
	AccountName    string
	ContactName    *string
	ContactEmail   *string
	ContactPhone   *string
	Stage          string
	AmountCents    *int64
}

func (r *Repository) Create(ctx context.Context, params CreateOpportunityParams) (Opportunity, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO opportunities (organization_id, owner_id, account_name, contact_name, contact_email, contact_phone, stage, amount_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING`+opportunityColumns,
		params.OrganizationID, params.OwnerID, params.AccountName, params.ContactName, params.ContactEmail, params.ContactPhone, params.Stage, params.AmountCents,
	)
	return scanOpportunity(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (Opportunity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+opportunityColumns+`
		FROM opportunities
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, id, organizationID)

	opp, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Opportunity{}, ErrNotFound
	}
	return opp, err
}

// GetByIDInternal loads an opportunity without organization scoping. Reserved
// for pipeline processors that act on ids taken from task payloads.
func (r *Repository) GetByIDInternal(ctx context.Context, id uuid.UUID) (Opportunity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+opportunityColumns+`
		FROM opportunities
		WHERE id = $1 AND deleted_at IS NULL
	`, id)

	opp, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Opportunity{}, ErrNotFound
	}
	return opp, err
}

func (r *Repository) List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]Opportunity, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM opportunities WHERE organization_id = $1 AND deleted_at IS NULL
	`, organizationID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT`+opportunityColumns+`
		FROM opportunities
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, organizationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Opportunity, 0)
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, opp)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}

	return items, total, nil
}

type UpdateOpportunityParams struct {
	AccountName  *string
	ContactName  *string
	ContactEmail *string
	ContactPhone *string
	Stage        *string
	AmountCents  *int64
	OwnerID      *uuid.UUID
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, params UpdateOpportunityParams) (Opportunity, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE opportunities SET
			account_name = COALESCE($3, account_name),
			contact_name = COALESCE($4, contact_name),
			contact_email = COALESCE($5, contact_email),
			contact_phone = COALESCE($6, contact_phone),
			stage = COALESCE($7, stage),
			amount_cents = COALESCE($8, amount_cents),
			owner_id = COALESCE($9, owner_id),
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
		RETURNING`+opportunityColumns,
		id, organizationID, params.AccountName, params.ContactName, params.ContactEmail, params.ContactPhone, params.Stage, params.AmountCents, params.OwnerID,
	)

	opp, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Opportunity{}, ErrNotFound
	}
	return opp, err
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE opportunities SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, id, organizationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateResearch stores the account research markdown produced by the
// research agent.
func (r *Repository) UpdateResearch(ctx context.Context, id uuid.UUID, markdown string, generatedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE opportunities SET research_markdown = $2, research_generated_at = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, markdown, generatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
