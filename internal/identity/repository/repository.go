package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Organization struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member is one user belonging to an organization. User rows are provisioned
// outside this API; this module only reads them.
type Member struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	Role        string
	JoinedAt    time.Time
}

// AISettings are the tenant-scoped toggles for autonomous AI behavior.
// A missing row means everything is enabled.
type AISettings struct {
	OrganizationID      uuid.UUID
	ResearchEnabled     bool
	RiskAnalysisEnabled bool
	UpdatedAt           time.Time
}

func (r *Repository) GetOrganization(ctx context.Context, organizationID uuid.UUID) (Organization, error) {
	var org Organization
	err := r.pool.QueryRow(ctx, `
    SELECT id, name, created_at, updated_at
    FROM organizations
    WHERE id = $1
  `, organizationID).Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, ErrNotFound
	}
	return org, err
}

func (r *Repository) UpdateOrganizationName(ctx context.Context, organizationID uuid.UUID, name string) (Organization, error) {
	var org Organization
	err := r.pool.QueryRow(ctx, `
    UPDATE organizations
    SET name = $2, updated_at = now()
    WHERE id = $1
    RETURNING id, name, created_at, updated_at
  `, organizationID, name).Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, ErrNotFound
	}
	return org, err
}

func (r *Repository) ListMembers(ctx context.Context, organizationID uuid.UUID) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
    SELECT m.user_id, u.email, u.display_name, m.role, m.created_at
    FROM organization_members m
    JOIN users u ON u.id = m.user_id
    WHERE m.organization_id = $1
    ORDER BY u.display_name ASC, u.email ASC
  `, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.DisplayName, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetAISettings returns the organization's AI toggles, defaulting to
// everything enabled when no row exists yet.
func (r *Repository) GetAISettings(ctx context.Context, organizationID uuid.UUID) (AISettings, error) {
	var settings AISettings
	err := r.pool.QueryRow(ctx, `
    SELECT organization_id, research_enabled, risk_analysis_enabled, updated_at
    FROM organization_ai_settings
    WHERE organization_id = $1
  `, organizationID).Scan(
		&settings.OrganizationID,
		&settings.ResearchEnabled,
		&settings.RiskAnalysisEnabled,
		&settings.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return AISettings{
			OrganizationID:      organizationID,
			ResearchEnabled:     true,
			RiskAnalysisEnabled: true,
		}, nil
	}
	return settings, err
}

func (r *Repository) UpsertAISettings(ctx context.Context, organizationID uuid.UUID, researchEnabled, riskAnalysisEnabled bool) (AISettings, error) {
	var settings AISettings
	err := r.pool.QueryRow(ctx, `
    INSERT INTO organization_ai_settings (organization_id, research_enabled, risk_analysis_enabled)
    VALUES ($1, $2, $3)
    ON CONFLICT (organization_id) DO UPDATE SET
      research_enabled = EXCLUDED.research_enabled,
      risk_analysis_enabled = EXCLUDED.risk_analysis_enabled,
      updated_at = now()
    RETURNING organization_id, research_enabled, risk_analysis_enabled, updated_at
  `, organizationID, researchEnabled, riskAnalysisEnabled).Scan(
		&settings.OrganizationID,
		&settings.ResearchEnabled,
		&settings.RiskAnalysisEnabled,
		&settings.UpdatedAt,
	)
	return settings, err
}
