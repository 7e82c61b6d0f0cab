package exports

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealdesk_backend/internal/opportunities/domain"
)

var ErrAPIKeyNotFound = errors.New("export API key not found")

const apiKeyPrefix = "ddx_"

// APIKey represents an export API key stored in the database.
type APIKey struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	KeyHash        string
	KeyPrefix      string
	IsActive       bool
	CreatedBy      *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastUsedAt     *time.Time
}

// OpportunityRow is the slice of an opportunity the CSV export reads:
// account fields, the consolidated insights and the call schedule.
type OpportunityRow struct {
	ID                     uuid.UUID
	AccountName            string
	ContactName            *string
	ContactEmail           *string
	Stage                  string
	AmountCents            *int64
	Insights               *domain.ConsolidatedInsights
	LastConsolidatedAt     *time.Time
	ConsolidationCallCount int
	LastCallDate           *time.Time
	NextCallDate           *time.Time
	NextCallSource         *string
	CheckpointDate         *time.Time
	NeedsNextCallScheduled bool
	CreatedAt              time.Time
}

// Repository provides data access for export operations.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateAPIKey creates a new random API key and returns the plaintext key and its hash.
func GenerateAPIKey() (plaintext string, hash string, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}
	plaintext = apiKeyPrefix + hex.EncodeToString(bytes)
	h := sha256.Sum256([]byte(plaintext))
	hash = hex.EncodeToString(h[:])
	prefix = plaintext[:12]
	return plaintext, hash, prefix, nil
}

// HashKey hashes a plaintext API key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// CreateAPIKey creates a new export API key record.
func (r *Repository) CreateAPIKey(ctx context.Context, orgID uuid.UUID, name string, keyHash string, keyPrefix string, createdBy *uuid.UUID) (APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `
		INSERT INTO export_api_keys (organization_id, name, key_hash, key_prefix, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, organization_id, name, key_hash, key_prefix, is_active, created_by, created_at, updated_at, last_used_at
	`, orgID, name, keyHash, keyPrefix, createdBy).Scan(
		&key.ID, &key.OrganizationID, &key.Name, &key.KeyHash, &key.KeyPrefix, &key.IsActive, &key.CreatedBy, &key.CreatedAt, &key.UpdatedAt, &key.LastUsedAt,
	)
	return key, err
}

// GetAPIKeyByHash retrieves an active API key by its hash.
func (r *Repository) GetAPIKeyByHash(ctx context.Context, keyHash string) (APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, key_hash, key_prefix, is_active, created_by, created_at, updated_at, last_used_at
		FROM export_api_keys
		WHERE key_hash = $1 AND is_active = true
	`, keyHash).Scan(
		&key.ID, &key.OrganizationID, &key.Name, &key.KeyHash, &key.KeyPrefix, &key.IsActive, &key.CreatedBy, &key.CreatedAt, &key.UpdatedAt, &key.LastUsedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return key, err
}

// ListAPIKeys returns all export API keys for an organization.
func (r *Repository) ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, name, key_hash, key_prefix, is_active, created_by, created_at, updated_at, last_used_at
		FROM export_api_keys
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]APIKey, 0)
	for rows.Next() {
		var key APIKey
		if err := rows.Scan(
			&key.ID, &key.OrganizationID, &key.Name, &key.KeyHash, &key.KeyPrefix, &key.IsActive, &key.CreatedBy, &key.CreatedAt, &key.UpdatedAt, &key.LastUsedAt,
		); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RevokeAPIKey deactivates an export API key.
func (r *Repository) RevokeAPIKey(ctx context.Context, keyID uuid.UUID, orgID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE export_api_keys SET is_active = false, updated_at = now()
		WHERE id = $1 AND organization_id = $2
	`, keyID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// TouchAPIKey updates the last_used_at timestamp for the key.
func (r *Repository) TouchAPIKey(ctx context.Context, keyID uuid.UUID) {
	_, _ = r.pool.Exec(ctx, `
		UPDATE export_api_keys SET last_used_at = now(), updated_at = now()
		WHERE id = $1
	`, keyID)
}

// ListOpportunities returns opportunities created in the date range, oldest
// first. Stage is an optional filter; empty means all stages.
func (r *Repository) ListOpportunities(ctx context.Context, orgID uuid.UUID, from time.Time, to time.Time, stage string, limit int) ([]OpportunityRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_name, contact_name, contact_email, stage, amount_cents,
			consolidated_insights, last_consolidated_at, consolidation_call_count,
			last_call_date, next_call_date, next_call_source,
			checkpoint_date, needs_next_call_scheduled, created_at
		FROM opportunities
		WHERE organization_id = $1
			AND deleted_at IS NULL
			AND created_at >= $2 AND created_at <= $3
			AND ($4 = '' OR stage = $4)
		ORDER BY created_at ASC
		LIMIT $5
	`, orgID, from, to, stage, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]OpportunityRow, 0)
	for rows.Next() {
		var item OpportunityRow
		var insightsJSON []byte
		if err := rows.Scan(
			&item.ID,
			&item.AccountName,
			&item.ContactName,
			&item.ContactEmail,
			&item.Stage,
			&item.AmountCents,
			&insightsJSON,
			&item.LastConsolidatedAt,
			&item.ConsolidationCallCount,
			&item.LastCallDate,
			&item.NextCallDate,
			&item.NextCallSource,
			&item.CheckpointDate,
			&item.NeedsNextCallScheduled,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(insightsJSON) > 0 {
			var insights domain.ConsolidatedInsights
			if err := json.Unmarshal(insightsJSON, &insights); err == nil {
				item.Insights = &insights
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
