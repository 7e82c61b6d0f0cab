// Package handler exposes the calendar read surface.
package handler

import (
	"net/http"

	"dealdesk_backend/internal/calendar/service"
	"dealdesk_backend/internal/calendar/transport"
	"dealdesk_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles calendar HTTP requests. Writes happen through the provider
// webhook, not here.
type Handler struct {
	svc *service.Service
}

// New creates a new calendar handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers calendar routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events", h.ListEvents)
}

// ListEvents returns the synced calendar events for one opportunity.
func (h *Handler) ListEvents(c *gin.Context) {
	organizationID := httpkit.MustGetOrganizationID(c)

	opportunityID, err := uuid.Parse(c.Query("opportunityId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid opportunityId"})
		return
	}

	events, err := h.svc.ListForOpportunity(c.Request.Context(), opportunityID, organizationID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, transport.ToEventListResponse(events))
}
