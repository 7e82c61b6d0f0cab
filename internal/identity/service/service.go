package service

import (
	"context"

	"dealdesk_backend/internal/identity/repository"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/sanitize"

	"github.com/google/uuid"
)

const organizationNotFound = "organization not found"

type Service struct {
	repo *repository.Repository
}

func New(repo *repository.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetOrganization(ctx context.Context, organizationID uuid.UUID) (repository.Organization, error) {
	org, err := s.repo.GetOrganization(ctx, organizationID)
	if err != nil {
		if err == repository.ErrNotFound {
			return repository.Organization{}, apperr.NotFound(organizationNotFound)
		}
		return repository.Organization{}, err
	}
	return org, nil
}

func (s *Service) UpdateOrganizationName(ctx context.Context, organizationID uuid.UUID, name string) (repository.Organization, error) {
	// The name is fed into parser prompts, keep it plain text.
	cleaned := sanitize.Text(name)
	if cleaned == "" {
		return repository.Organization{}, apperr.Validation("organization name is required")
	}

	org, err := s.repo.UpdateOrganizationName(ctx, organizationID, cleaned)
	if err != nil {
		if err == repository.ErrNotFound {
			return repository.Organization{}, apperr.NotFound(organizationNotFound)
		}
		return repository.Organization{}, err
	}
	return org, nil
}

func (s *Service) ListMembers(ctx context.Context, organizationID uuid.UUID) ([]repository.Member, error) {
	return s.repo.ListMembers(ctx, organizationID)
}

func (s *Service) GetAISettings(ctx context.Context, organizationID uuid.UUID) (repository.AISettings, error) {
	return s.repo.GetAISettings(ctx, organizationID)
}

func (s *Service) UpdateAISettings(ctx context.Context, organizationID uuid.UUID, researchEnabled, riskAnalysisEnabled bool) (repository.AISettings, error) {
	// The organization must exist before settings can hang off it.
	if _, err := s.GetOrganization(ctx, organizationID); err != nil {
		return repository.AISettings{}, err
	}
	return s.repo.UpsertAISettings(ctx, organizationID, researchEnabled, riskAnalysisEnabled)
}
