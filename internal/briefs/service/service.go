// Package service implements the brief template catalog: org-scoped templates
// with an embedded default set seeded at startup.
package service

import (
	"context"
	"fmt"
	"strings"

	"dealdesk_backend/internal/briefs/repository"
	"dealdesk_backend/internal/briefs/seed"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence interface consumed by the briefs service.
type Store interface {
	Create(ctx context.Context, tpl *repository.Template) error
	EnsureSeed(ctx context.Context, tpl *repository.Template) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (*repository.Template, error)
	GetByIDInternal(ctx context.Context, id uuid.UUID) (*repository.Template, error)
	List(ctx context.Context, organizationID uuid.UUID) ([]repository.Template, error)
	Update(ctx context.Context, tpl *repository.Template) error
	Delete(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error
	ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Service owns the brief template catalog.
type Service struct {
	repo Store
	log  *logger.Logger
}

// New creates the briefs service.
func New(repo Store, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// TemplateParams carries the editable fields of a template.
type TemplateParams struct {
	Slug        string
	Name        string
	Description string
	Tone        string
	Sections    []string
}

// Create adds a custom template for an organization.
func (s *Service) Create(ctx context.Context, organizationID uuid.UUID, params TemplateParams) (*repository.Template, error) {
	slug := strings.TrimSpace(strings.ToLower(params.Slug))
	name := strings.TrimSpace(params.Name)
	if slug == "" || name == "" {
		return nil, apperr.Validation("slug and name are required")
	}
	if len(params.Sections) == 0 {
		return nil, apperr.Validation("at least one section is required")
	}

	tpl := &repository.Template{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Slug:           slug,
		Name:           name,
		Description:    strings.TrimSpace(params.Description),
		Tone:           strings.TrimSpace(params.Tone),
		Sections:       params.Sections,
	}
	if err := s.repo.Create(ctx, tpl); err != nil {
		return nil, err
	}

	return tpl, nil
}

// Get retrieves one template.
func (s *Service) Get(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (*repository.Template, error) {
	return s.repo.GetByID(ctx, id, organizationID)
}

// GetInternal retrieves a template without tenant scoping, for background
// document generation.
func (s *Service) GetInternal(ctx context.Context, id uuid.UUID) (*repository.Template, error) {
	return s.repo.GetByIDInternal(ctx, id)
}

// List retrieves all templates for an organization.
func (s *Service) List(ctx context.Context, organizationID uuid.UUID) ([]repository.Template, error) {
	return s.repo.List(ctx, organizationID)
}

// Update replaces the editable fields of a template. The slug is fixed at
// creation so document references stay stable.
func (s *Service) Update(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, params TemplateParams) (*repository.Template, error) {
	tpl, err := s.repo.GetByID(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if len(params.Sections) == 0 {
		return nil, apperr.Validation("at least one section is required")
	}

	tpl.Name = name
	tpl.Description = strings.TrimSpace(params.Description)
	tpl.Tone = strings.TrimSpace(params.Tone)
	tpl.Sections = params.Sections
	if err := s.repo.Update(ctx, tpl); err != nil {
		return nil, err
	}

	return tpl, nil
}

// Delete removes a template.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	return s.repo.Delete(ctx, id, organizationID)
}

// SeedDefaults inserts the embedded default templates for one organization.
// Existing slugs are left untouched, so the call is safe to repeat.
func (s *Service) SeedDefaults(ctx context.Context, organizationID uuid.UUID) (int, error) {
	defaults, err := seed.DefaultTemplates()
	if err != nil {
		return 0, err
	}

	created := 0
	for _, d := range defaults {
		tpl := &repository.Template{
			ID:             uuid.New(),
			OrganizationID: organizationID,
			Slug:           d.Slug,
			Name:           d.Name,
			Description:    d.Description,
			Tone:           d.Tone,
			Sections:       d.Sections,
			IsDefault:      true,
		}
		inserted, err := s.repo.EnsureSeed(ctx, tpl)
		if err != nil {
			return created, fmt.Errorf("seed template %s: %w", d.Slug, err)
		}
		if inserted {
			created++
		}
	}

	return created, nil
}

// SeedAllOrganizations runs the default seed for every organization. Called
// once at startup.
func (s *Service) SeedAllOrganizations(ctx context.Context) error {
	orgIDs, err := s.repo.ListOrganizationIDs(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, orgID := range orgIDs {
		created, err := s.SeedDefaults(ctx, orgID)
		if err != nil {
			return fmt.Errorf("seed organization %s: %w", orgID, err)
		}
		total += created
	}

	if total > 0 {
		s.log.Info("seeded default brief templates", "created", total, "organizations", len(orgIDs))
	}

	return nil
}
