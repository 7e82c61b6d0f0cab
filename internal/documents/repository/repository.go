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

// Generation statuses. A document enters pending, a worker claim moves it to
// generating, and it ends completed or failed. Failed rows are retained with
// their error message.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var ErrNotFound = errors.New("document not found")

// ContextSnapshot freezes the context selection a document was generated
// from. It is written once at creation and never updated, so a document
// always shows what went into it even after meetings or templates change.
type ContextSnapshot struct {
	MeetingIDs                  []uuid.UUID `json:"meetingIds"`
	IncludeConsolidatedInsights bool        `json:"includeConsolidatedInsights"`
	IncludeAccountResearch      bool        `json:"includeAccountResearch"`
	AdditionalContext           *string     `json:"additionalContext,omitempty"`
	TemplateID                  *uuid.UUID  `json:"templateId,omitempty"`
}

type Document struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	OpportunityID    uuid.UUID
	TemplateID       *uuid.UUID
	CreatedBy        *uuid.UUID
	Version          int
	ParentVersionID  *uuid.UUID
	Title            *string
	ContentMarkdown  *string
	GenerationStatus string
	Error            *string
	ContextSnapshot  ContextSnapshot
	ShareToken       *string
	SharedAt         *time.Time
	GeneratedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

const documentColumns = `
	id, organization_id, opportunity_id, template_id, created_by,
	version, parent_version_id, title, content_markdown,
	generation_status, error, context_snapshot,
	share_token, shared_at, generated_at,
	created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type documentRowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s documentRowScanner) (Document, error) {
	var d Document
	var snapshotJSON []byte

	err := s.Scan(
		&d.ID, &d.OrganizationID, &d.OpportunityID, &d.TemplateID, &d.CreatedBy,
		&d.Version, &d.ParentVersionID, &d.Title, &d.ContentMarkdown,
		&d.GenerationStatus, &d.Error, &snapshotJSON,
		&d.ShareToken, &d.SharedAt, &d.GeneratedAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}

	if len(snapshotJSON) > 0 {
		if err := json.Unmarshal(snapshotJSON, &d.ContextSnapshot); err != nil {
			return Document{}, fmt.Errorf("failed to decode context snapshot for document %s: %w", d.ID, err)
		}
	}

	return d, nil
}

type CreateDocumentParams struct {
	OrganizationID  uuid.UUID
	OpportunityID   uuid.UUID
	TemplateID      *uuid.UUID
	CreatedBy       *uuid.UUID
	Version         int
	ParentVersionID *uuid.UUID
	Snapshot        ContextSnapshot
}

// Create inserts a document row in pending state with its frozen context
// snapshot. Content fields start null and are only ever set by a completing
// generation run.
func (r *Repository) Create(ctx context.Context, params CreateDocumentParams) (Document, error) {
	snapshotJSON, err := json.Marshal(params.Snapshot)
	if err != nil {
		return Document{}, fmt.Errorf("failed to marshal context snapshot: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO generated_documents (
			organization_id, opportunity_id, template_id, created_by,
			version, parent_version_id, generation_status, context_snapshot
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING`+documentColumns,
		params.OrganizationID, params.OpportunityID, params.TemplateID, params.CreatedBy,
		params.Version, params.ParentVersionID, StatusPending, snapshotJSON,
	)

	d, err := scanDocument(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Document{}, apperr.Validation("unknown opportunity or template for document")
		}
		return Document{}, fmt.Errorf("failed to create document: %w", err)
	}
	return d, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+documentColumns+`
		FROM generated_documents
		WHERE id = $1 AND organization_id = $2
	`, id, organizationID)

	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

// GetByIDInternal loads a document without tenant scoping. Queue tasks carry
// document ids minted by this service, so the lookup trusts them.
func (r *Repository) GetByIDInternal(ctx context.Context, id uuid.UUID) (Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+documentColumns+`
		FROM generated_documents
		WHERE id = $1
	`, id)

	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

// ListByOpportunity returns every document of one opportunity, newest first.
func (r *Repository) ListByOpportunity(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+documentColumns+`
		FROM generated_documents
		WHERE opportunity_id = $1 AND organization_id = $2
		ORDER BY created_at DESC
	`, opportunityID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// ListTemplateVersions returns every document of one opportunity+template
// combination ordered by version. The version-chain walk runs over this set
// in memory instead of issuing one query per parent hop.
func (r *Repository) ListTemplateVersions(ctx context.Context, opportunityID uuid.UUID, organizationID uuid.UUID, templateID *uuid.UUID) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+documentColumns+`
		FROM generated_documents
		WHERE opportunity_id = $1 AND organization_id = $2 AND template_id IS NOT DISTINCT FROM $3
		ORDER BY version ASC, created_at ASC
	`, opportunityID, organizationID, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list document versions: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// ClaimForGeneration transitions pending → generating. Returns nil without
// error when the document is not claimable, which makes redelivered
// generation tasks no-ops.
func (r *Repository) ClaimForGeneration(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE generated_documents
		SET generation_status = $2, updated_at = NOW()
		WHERE id = $1 AND generation_status = $3
		RETURNING`+documentColumns,
		id, StatusGenerating, StatusPending,
	)

	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim document: %w", err)
	}
	return &d, nil
}

// ReleaseClaim puts a generating document back to pending so the next
// delivery attempt can claim it again.
func (r *Repository) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE generated_documents
		SET generation_status = $2, updated_at = NOW()
		WHERE id = $1 AND generation_status = $3
	`, id, StatusPending, StatusGenerating)
	return err
}

// Complete stores the generated content and moves the document to completed
// in a single statement, so a completed document can never carry a stale
// error or partial content.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, title, contentMarkdown string, generatedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE generated_documents
		SET generation_status = $2, title = $3, content_markdown = $4,
			error = NULL, generated_at = $5, updated_at = NOW()
		WHERE id = $1 AND generation_status = $6
	`, id, StatusCompleted, title, contentMarkdown, generatedAt, StatusGenerating)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s is not in generating state", id)
	}
	return nil
}

// Fail marks the document failed with the retained error message.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE generated_documents
		SET generation_status = $2, error = $3, updated_at = NOW()
		WHERE id = $1 AND generation_status = $4
	`, id, StatusFailed, message, StatusGenerating)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s is not in generating state", id)
	}
	return nil
}

// ResetForRetry moves a failed document back to pending for the manual retry
// operation. Returns nil when the document is not in failed state.
func (r *Repository) ResetForRetry(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (*Document, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE generated_documents
		SET generation_status = $3, error = NULL, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND generation_status = $4
		RETURNING`+documentColumns,
		id, organizationID, StatusPending, StatusFailed,
	)

	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset document: %w", err)
	}
	return &d, nil
}

// SetShareToken stores a share token on a completed document. Sharing an
// already shared document rotates the token, invalidating the old link.
func (r *Repository) SetShareToken(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, token string, sharedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE generated_documents
		SET share_token = $3, shared_at = $4, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND generation_status = $5
	`, id, organizationID, token, sharedAt, StatusCompleted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Conflict("share token already in use")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearShareToken revokes the share link.
func (r *Repository) ClearShareToken(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE generated_documents
		SET share_token = NULL, shared_at = NULL, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
	`, id, organizationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByShareToken resolves a public share token to its completed document.
// The token is the whole capability, so there is no tenant scoping here.
func (r *Repository) GetByShareToken(ctx context.Context, token string) (Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+documentColumns+`
		FROM generated_documents
		WHERE share_token = $1 AND generation_status = $2
	`, token, StatusCompleted)

	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to resolve share token: %w", err)
	}
	return d, nil
}

func scanDocuments(rows pgx.Rows) ([]Document, error) {
	items := make([]Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
