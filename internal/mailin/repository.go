package mailin

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnknownOpportunity = errors.New("unknown opportunity")

// Repository resolves mailed-in opportunity ids to their organization.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ResolveOrganization returns the organization owning the opportunity.
// Deleted opportunities resolve to ErrUnknownOpportunity so stale plus
// addresses stop accepting notes.
func (r *Repository) ResolveOrganization(ctx context.Context, opportunityID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT organization_id FROM opportunities
		WHERE id = $1 AND deleted_at IS NULL
	`, opportunityID).Scan(&orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrUnknownOpportunity
	}
	if err != nil {
		return uuid.Nil, err
	}
	return orgID, nil
}
