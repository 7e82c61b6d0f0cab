// Package ports defines consumer-driven interfaces for external dependencies.
// These interfaces are defined in the opportunities domain based on what it
// needs, rather than what other domains choose to offer.
package ports

import (
	"context"

	"github.com/google/uuid"
)

// OrganizationReader resolves the minimal organization data the pipeline
// needs: the name biases attendee-role inference during transcript parsing.
type OrganizationReader interface {
	GetOrganizationName(ctx context.Context, organizationID uuid.UUID) (string, error)
}

// OrganizationAISettings are tenant-scoped toggles controlling autonomous AI
// behavior. Persisted in the identity bounded context, consumed here.
type OrganizationAISettings struct {
	ResearchEnabled     bool
	RiskAnalysisEnabled bool
}

// DefaultOrganizationAISettings must match the identity repository defaults.
func DefaultOrganizationAISettings() OrganizationAISettings {
	return OrganizationAISettings{
		ResearchEnabled:     true,
		RiskAnalysisEnabled: true,
	}
}

// OrganizationAISettingsReader loads the latest AI settings for a tenant.
//
// Returning an error should be treated as "unknown settings" by callers; most
// autonomous actions should fail-safe (skip) when settings cannot be loaded.
type OrganizationAISettingsReader func(ctx context.Context, organizationID uuid.UUID) (OrganizationAISettings, error)
