package transport

import "time"

// OrganizationResponse is the organization profile as returned by the API.
type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UpdateOrganizationRequest updates the organization profile.
type UpdateOrganizationRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// MemberResponse is one organization member.
type MemberResponse struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// MemberListResponse wraps the member list.
type MemberListResponse struct {
	Items []MemberResponse `json:"items"`
	Total int              `json:"total"`
}

// AISettingsResponse returns the organization's AI toggles.
type AISettingsResponse struct {
	ResearchEnabled     bool      `json:"researchEnabled"`
	RiskAnalysisEnabled bool      `json:"riskAnalysisEnabled"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// UpdateAISettingsRequest updates the organization's AI toggles. Both fields
// are required so a partial body cannot silently flip the omitted one.
type UpdateAISettingsRequest struct {
	ResearchEnabled     *bool `json:"researchEnabled" validate:"required"`
	RiskAnalysisEnabled *bool `json:"riskAnalysisEnabled" validate:"required"`
}
