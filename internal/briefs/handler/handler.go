// Package handler exposes the brief template HTTP surface.
package handler

import (
	"net/http"

	"dealdesk_backend/internal/briefs/service"
	"dealdesk_backend/internal/briefs/transport"
	"dealdesk_backend/platform/httpkit"
	"dealdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles brief template HTTP requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// New creates a new briefs handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers brief template routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}

// List returns every template for the caller's organization.
func (h *Handler) List(c *gin.Context) {
	organizationID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	templates, err := h.svc.List(c.Request.Context(), organizationID)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusOK, transport.ToTemplateListResponse(templates))
}

// Get returns a single template.
func (h *Handler) Get(c *gin.Context) {
	organizationID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}

	tpl, err := h.svc.Get(c.Request.Context(), id, organizationID)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusOK, transport.ToTemplateResponse(*tpl))
}

// Create adds a custom template.
func (h *Handler) Create(c *gin.Context) {
	organizationID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	var req transport.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}
	if err := h.val.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgValidationFailed, "details": err.Error()})
		return
	}

	tpl, err := h.svc.Create(c.Request.Context(), organizationID, service.TemplateParams{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Tone:        req.Tone,
		Sections:    req.Sections,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, transport.ToTemplateResponse(*tpl))
}

// Update replaces the editable fields of a template.
func (h *Handler) Update(c *gin.Context) {
	organizationID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}

	var req transport.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}
	if err := h.val.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgValidationFailed, "details": err.Error()})
		return
	}

	tpl, err := h.svc.Update(c.Request.Context(), id, organizationID, service.TemplateParams{
		Name:        req.Name,
		Description: req.Description,
		Tone:        req.Tone,
		Sections:    req.Sections,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusOK, transport.ToTemplateResponse(*tpl))
}

// Delete removes a template.
func (h *Handler) Delete(c *gin.Context) {
	organizationID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id, organizationID); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}
