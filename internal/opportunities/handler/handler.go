// Package handler exposes the opportunities module over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dealdesk_backend/internal/opportunities/consolidation"
	"dealdesk_backend/internal/opportunities/management"
	"dealdesk_backend/internal/opportunities/meetings"
	"dealdesk_backend/internal/opportunities/research"
	"dealdesk_backend/internal/opportunities/scheduling"
	"dealdesk_backend/internal/opportunities/transport"
	"dealdesk_backend/platform/httpkit"
	"dealdesk_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	management    *management.Service
	meetings      *meetings.Service
	consolidation *consolidation.Service
	scheduling    *scheduling.Service
	research      *research.Service
	val           *validator.Validator
}

func New(mgmt *management.Service, meet *meetings.Service, cons *consolidation.Service, sched *scheduling.Service, res *research.Service, val *validator.Validator) *Handler {
	return &Handler{
		management:    mgmt,
		meetings:      meet,
		consolidation: cons,
		scheduling:    sched,
		research:      res,
		val:           val,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.GET("/:id/timeline", h.Timeline)

	rg.GET("/:id/meetings", h.ListMeetings)
	rg.POST("/:id/meetings", h.IngestMeeting)
	rg.GET("/meetings/:meetingId", h.GetMeeting)
	rg.POST("/meetings/:meetingId/retry-parse", h.RetryParse)
	rg.DELETE("/meetings/:meetingId", h.DeleteMeeting)

	rg.POST("/:id/consolidate", h.TriggerConsolidation)
	rg.POST("/:id/research", h.RequestResearch)
	rg.POST("/:id/next-call", h.SetNextCall)
}

func (h *Handler) Create(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CreateOpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	createdBy := identity.UserID()
	view, err := h.management.Create(c.Request.Context(), management.CreateParams{
		OrganizationID: orgID,
		OwnerID:        req.OwnerID,
		AccountName:    req.AccountName,
		ContactName:    req.ContactName,
		ContactEmail:   req.ContactEmail,
		ContactPhone:   req.ContactPhone,
		Stage:          req.Stage,
		AmountCents:    req.AmountCents,
		CreatedBy:      &createdBy,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToOpportunityResponse(view))
}

func (h *Handler) Get(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	view, err := h.management.Get(c.Request.Context(), id, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToOpportunityResponse(view))
}

func (h *Handler) List(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	views, total, err := h.management.List(c.Request.Context(), orgID, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToOpportunityListResponse(views, total, limit, offset))
}

func (h *Handler) Update(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.UpdateOpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	updatedBy := identity.UserID()
	view, err := h.management.Update(c.Request.Context(), id, orgID, management.UpdateParams{
		AccountName:  req.AccountName,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Stage:        req.Stage,
		AmountCents:  req.AmountCents,
		OwnerID:      req.OwnerID,
		UpdatedBy:    &updatedBy,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToOpportunityResponse(view))
}

func (h *Handler) Delete(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.management.Delete(c.Request.Context(), id, orgID); httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusNoContent, nil)
}

func (h *Handler) Timeline(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := h.management.Timeline(c.Request.Context(), id, orgID, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToTimelineResponse(events))
}

func (h *Handler) IngestMeeting(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	opportunityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.IngestMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rec, err := h.meetings.IngestTranscript(c.Request.Context(), meetings.IngestParams{
		OpportunityID:  opportunityID,
		OrganizationID: orgID,
		Kind:           req.Kind,
		Title:          req.Title,
		OccurredAt:     req.OccurredAt,
		TranscriptText: req.TranscriptText,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusAccepted, transport.ToMeetingResponse(rec))
}

func (h *Handler) ListMeetings(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	opportunityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	records, err := h.meetings.ListMeetings(c.Request.Context(), opportunityID, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToMeetingListResponse(records))
}

func (h *Handler) GetMeeting(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	meetingID, err := uuid.Parse(c.Param("meetingId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	rec, err := h.meetings.GetMeeting(c.Request.Context(), meetingID, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToMeetingDetailResponse(rec))
}

func (h *Handler) RetryParse(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	meetingID, err := uuid.Parse(c.Param("meetingId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	rec, err := h.meetings.RetryParse(c.Request.Context(), meetingID, orgID, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusAccepted, transport.ToMeetingResponse(rec))
}

func (h *Handler) DeleteMeeting(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	meetingID, err := uuid.Parse(c.Param("meetingId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.meetings.DeleteMeeting(c.Request.Context(), meetingID, orgID); httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusNoContent, nil)
}

func (h *Handler) TriggerConsolidation(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	opportunityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	outcome, err := h.consolidation.TriggerConsolidation(c.Request.Context(), opportunityID, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ConsolidationOutcomeResponse{
		Applied:      outcome.Applied,
		Reason:       outcome.Reason,
		MeetingsUsed: outcome.MeetingsUsed,
	})
}

func (h *Handler) RequestResearch(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	opportunityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.research.RequestResearch(c.Request.Context(), opportunityID, orgID, identity.UserID()); httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handler) SetNextCall(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	opportunityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.SetNextCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	opp, err := h.scheduling.SetManualNextCall(c.Request.Context(), opportunityID, orgID, req.NextCallDate, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{
		"nextCallDate":   opp.NextCallDate,
		"checkpointDate": opp.CheckpointDate,
	})
}
