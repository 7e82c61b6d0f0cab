package adapters

import (
	"context"

	identitysvc "dealdesk_backend/internal/identity/service"
	"dealdesk_backend/internal/opportunities/ports"

	"github.com/google/uuid"
)

// OrganizationNameReader implements opportunities/ports.OrganizationReader
// over the identity service. The organization name biases attendee-role
// inference during transcript parsing.
type OrganizationNameReader struct {
	svc *identitysvc.Service
}

// NewOrganizationNameReader creates a new adapter wrapping the identity service.
func NewOrganizationNameReader(svc *identitysvc.Service) *OrganizationNameReader {
	return &OrganizationNameReader{svc: svc}
}

// GetOrganizationName returns the tenant's display name.
func (a *OrganizationNameReader) GetOrganizationName(ctx context.Context, organizationID uuid.UUID) (string, error) {
	org, err := a.svc.GetOrganization(ctx, organizationID)
	if err != nil {
		return "", err
	}
	return org.Name, nil
}

// Compile-time check.
var _ ports.OrganizationReader = (*OrganizationNameReader)(nil)

// NewAISettingsReader returns a ports.OrganizationAISettingsReader backed by
// the identity module's per-organization toggles.
func NewAISettingsReader(svc *identitysvc.Service) ports.OrganizationAISettingsReader {
	return func(ctx context.Context, organizationID uuid.UUID) (ports.OrganizationAISettings, error) {
		settings, err := svc.GetAISettings(ctx, organizationID)
		if err != nil {
			return ports.OrganizationAISettings{}, err
		}
		return ports.OrganizationAISettings{
			ResearchEnabled:     settings.ResearchEnabled,
			RiskAnalysisEnabled: settings.RiskAnalysisEnabled,
		}, nil
	}
}
