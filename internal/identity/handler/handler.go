package handler

import (
	"net/http"

	"dealdesk_backend/internal/identity/repository"
	"dealdesk_backend/internal/identity/service"
	"dealdesk_backend/internal/identity/transport"
	"dealdesk_backend/platform/httpkit"
	"dealdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/organizations/me", h.GetOrganization)
	rg.PATCH("/organizations/me", httpkit.RequireRole("admin"), h.UpdateOrganization)
	rg.GET("/organizations/me/members", h.ListMembers)
	rg.GET("/organizations/me/ai-settings", h.GetAISettings)
	rg.PUT("/organizations/me/ai-settings", httpkit.RequireRole("admin"), h.UpdateAISettings)
}

func (h *Handler) GetOrganization(c *gin.Context) {
	organizationID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	org, err := h.svc.GetOrganization(c.Request.Context(), organizationID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toOrganizationResponse(org))
}

func (h *Handler) UpdateOrganization(c *gin.Context) {
	organizationID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	var req transport.UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	org, err := h.svc.UpdateOrganizationName(c.Request.Context(), organizationID, req.Name)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toOrganizationResponse(org))
}

func (h *Handler) ListMembers(c *gin.Context) {
	organizationID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	members, err := h.svc.ListMembers(c.Request.Context(), organizationID)
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.MemberResponse, 0, len(members))
	for _, m := range members {
		items = append(items, transport.MemberResponse{
			UserID:      m.UserID.String(),
			Email:       m.Email,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			JoinedAt:    m.JoinedAt,
		})
	}

	httpkit.OK(c, transport.MemberListResponse{Items: items, Total: len(items)})
}

func (h *Handler) GetAISettings(c *gin.Context) {
	organizationID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	settings, err := h.svc.GetAISettings(c.Request.Context(), organizationID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toAISettingsResponse(settings))
}

func (h *Handler) UpdateAISettings(c *gin.Context) {
	organizationID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	var req transport.UpdateAISettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	settings, err := h.svc.UpdateAISettings(c.Request.Context(), organizationID, *req.ResearchEnabled, *req.RiskAnalysisEnabled)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toAISettingsResponse(settings))
}

func toOrganizationResponse(org repository.Organization) transport.OrganizationResponse {
	return transport.OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		CreatedAt: org.CreatedAt,
		UpdatedAt: org.UpdatedAt,
	}
}

func toAISettingsResponse(settings repository.AISettings) transport.AISettingsResponse {
	return transport.AISettingsResponse{
		ResearchEnabled:     settings.ResearchEnabled,
		RiskAnalysisEnabled: settings.RiskAnalysisEnabled,
		UpdatedAt:           settings.UpdatedAt,
	}
}
