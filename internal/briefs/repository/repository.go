package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dealdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Template is one org-scoped brief template. Seeded templates carry
// IsDefault; organizations may edit or delete them like any other.
type Template struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Slug           string
	Name           string
	Description    string
	Tone           string
	Sections       []string
	IsDefault      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository provides database operations for brief templates.
type Repository struct {
	pool *pgxpool.Pool
}

const templateNotFoundMsg = "brief template not found"

// New creates a new briefs repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new template. Slugs are unique per organization.
func (r *Repository) Create(ctx context.Context, tpl *Template) error {
	sections, err := json.Marshal(tpl.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal template sections: %w", err)
	}

	query := `
		INSERT INTO brief_templates (
			id, organization_id, slug, name, description, tone, sections, is_default
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err = r.pool.QueryRow(ctx, query,
		tpl.ID, tpl.OrganizationID, tpl.Slug, tpl.Name, tpl.Description, tpl.Tone, sections, tpl.IsDefault,
	).Scan(&tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Conflict("template slug already in use")
		}
		return fmt.Errorf("failed to create brief template: %w", err)
	}

	return nil
}

// EnsureSeed inserts a seed template unless one with the same slug already
// exists for the organization. Returns whether a row was created, so callers
// can report seed runs.
func (r *Repository) EnsureSeed(ctx context.Context, tpl *Template) (bool, error) {
	sections, err := json.Marshal(tpl.Sections)
	if err != nil {
		return false, fmt.Errorf("failed to marshal template sections: %w", err)
	}

	query := `
		INSERT INTO brief_templates (
			id, organization_id, slug, name, description, tone, sections, is_default
		) VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (organization_id, slug) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		tpl.ID, tpl.OrganizationID, tpl.Slug, tpl.Name, tpl.Description, tpl.Tone, sections,
	)
	if err != nil {
		return false, fmt.Errorf("failed to seed brief template: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// GetByID retrieves a template by its ID within an organization.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (*Template, error) {
	query := `SELECT id, organization_id, slug, name, description, tone, sections, is_default, created_at, updated_at
		FROM brief_templates WHERE id = $1 AND organization_id = $2`

	return r.scanOne(r.pool.QueryRow(ctx, query, id, organizationID))
}

// GetByIDInternal retrieves a template without an organization filter. Used
// by background document generation, which trusts the stored template id.
func (r *Repository) GetByIDInternal(ctx context.Context, id uuid.UUID) (*Template, error) {
	query := `SELECT id, organization_id, slug, name, description, tone, sections, is_default, created_at, updated_at
		FROM brief_templates WHERE id = $1`

	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// List retrieves all templates for an organization ordered by name.
func (r *Repository) List(ctx context.Context, organizationID uuid.UUID) ([]Template, error) {
	query := `SELECT id, organization_id, slug, name, description, tone, sections, is_default, created_at, updated_at
		FROM brief_templates WHERE organization_id = $1 ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list brief templates: %w", err)
	}
	defer rows.Close()

	var items []Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *tpl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate brief templates: %w", err)
	}

	return items, nil
}

// Update replaces the editable fields of a template.
func (r *Repository) Update(ctx context.Context, tpl *Template) error {
	sections, err := json.Marshal(tpl.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal template sections: %w", err)
	}

	query := `
		UPDATE brief_templates SET
			name = $3,
			description = $4,
			tone = $5,
			sections = $6,
			updated_at = now()
		WHERE id = $1 AND organization_id = $2
		RETURNING updated_at`

	err = r.pool.QueryRow(ctx, query,
		tpl.ID, tpl.OrganizationID, tpl.Name, tpl.Description, tpl.Tone, sections,
	).Scan(&tpl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound(templateNotFoundMsg)
		}
		return fmt.Errorf("failed to update brief template: %w", err)
	}

	return nil
}

// Delete removes a template.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM brief_templates WHERE id = $1 AND organization_id = $2`, id, organizationID)
	if err != nil {
		return fmt.Errorf("failed to delete brief template: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperr.NotFound(templateNotFoundMsg)
	}

	return nil
}

// ListOrganizationIDs returns every organization id, for the startup seed
// pass.
func (r *Repository) ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM organizations ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}

	return ids, nil
}

func (r *Repository) scanOne(row pgx.Row) (*Template, error) {
	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(templateNotFoundMsg)
		}
		return nil, err
	}
	return tpl, nil
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var tpl Template
	var sections []byte
	err := row.Scan(
		&tpl.ID, &tpl.OrganizationID, &tpl.Slug, &tpl.Name, &tpl.Description, &tpl.Tone,
		&sections, &tpl.IsDefault, &tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan brief template: %w", err)
	}

	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &tpl.Sections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template sections: %w", err)
		}
	}

	return &tpl, nil
}
