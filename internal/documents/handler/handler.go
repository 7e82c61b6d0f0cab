// Package handler exposes the generated documents module over HTTP.
package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"dealdesk_backend/internal/documents/service"
	"dealdesk_backend/internal/documents/transport"
	"dealdesk_backend/platform/httpkit"
	"dealdesk_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid document id"
)

// Handler handles the authenticated document endpoints.
type Handler struct {
	svc     *service.Service
	val     *validator.Validator
	baseURL string
}

// New creates a documents handler. baseURL is the frontend origin share
// links are composed against.
func New(svc *service.Service, val *validator.Validator, baseURL string) *Handler {
	return &Handler{svc: svc, val: val, baseURL: strings.TrimRight(baseURL, "/")}
}

// RegisterRoutes registers the document routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/versions", h.Versions)
	rg.POST("/:id/regenerate", h.Regenerate)
	rg.POST("/:id/retry", h.Retry)
	rg.POST("/:id/share", h.Share)
	rg.DELETE("/:id/share", h.RevokeShare)
	rg.GET("/:id/share/qr", h.ShareQR)
	rg.GET("/:id/pdf", h.ExportPDF)
}

// Create requests a new document and queues its generation.
func (h *Handler) Create(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	doc, err := h.svc.Create(c.Request.Context(), service.CreateParams{
		OpportunityID:               req.OpportunityID,
		OrganizationID:              orgID,
		CreatedBy:                   identity.UserID(),
		TemplateID:                  req.TemplateID,
		MeetingIDs:                  req.MeetingIDs,
		IncludeConsolidatedInsights: req.IncludeConsolidatedInsights,
		IncludeAccountResearch:      req.IncludeAccountResearch,
		AdditionalContext:           req.AdditionalContext,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToDocumentResponse(doc))
}

// List returns the documents of one opportunity, newest first.
func (h *Handler) List(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	opportunityID, err := uuid.Parse(c.Query("opportunityId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "opportunityId query parameter is required", nil)
		return
	}

	docs, err := h.svc.ListForOpportunity(c.Request.Context(), opportunityID, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToDocumentListResponse(docs))
}

// Get returns a single document.
func (h *Handler) Get(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	doc, err := h.svc.Get(c.Request.Context(), id, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToDocumentResponse(doc))
}

// Versions returns the full version family of a document.
func (h *Handler) Versions(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	docs, err := h.svc.ListVersions(c.Request.Context(), id, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToDocumentListResponse(docs))
}

// Regenerate queues a new version of a completed document. The body is
// optional; without one the parent's frozen selection is reused.
func (h *Handler) Regenerate(c *gin.Context) {
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
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.RegenerateDocumentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}

	params := service.RegenerateParams{
		DocumentID:     id,
		OrganizationID: orgID,
		RequestedBy:    identity.UserID(),
	}
	if req.Selection != nil {
		params.Selection = &service.SelectionParams{
			MeetingIDs:                  req.Selection.MeetingIDs,
			IncludeConsolidatedInsights: req.Selection.IncludeConsolidatedInsights,
			IncludeAccountResearch:      req.Selection.IncludeAccountResearch,
			AdditionalContext:           req.Selection.AdditionalContext,
		}
	}

	doc, err := h.svc.Regenerate(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToDocumentResponse(doc))
}

// Retry requeues generation for a failed document.
func (h *Handler) Retry(c *gin.Context) {
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
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	doc, err := h.svc.RetryGeneration(c.Request.Context(), id, orgID, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToDocumentResponse(doc))
}

// Share mints (or rotates) the public link of a completed document.
func (h *Handler) Share(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	doc, err := h.svc.Share(c.Request.Context(), id, orgID)
	if httpkit.HandleError(c, err) {
		return
	}
	if doc.ShareToken == nil || doc.SharedAt == nil {
		httpkit.Error(c, http.StatusInternalServerError, "share link missing after mint", nil)
		return
	}

	httpkit.OK(c, transport.ShareLinkResponse{
		Token:    *doc.ShareToken,
		URL:      h.shareURL(*doc.ShareToken),
		SharedAt: *doc.SharedAt,
	})
}

// RevokeShare invalidates the public link of a document.
func (h *Handler) RevokeShare(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	if err := h.svc.RevokeShare(c.Request.Context(), id, orgID); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}

// ShareQR renders the share link of a document as a PNG QR code.
func (h *Handler) ShareQR(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	doc, err := h.svc.Get(c.Request.Context(), id, orgID)
	if httpkit.HandleError(c, err) {
		return
	}
	if doc.ShareToken == nil {
		httpkit.Error(c, http.StatusConflict, "document is not shared", nil)
		return
	}

	png, err := qrcode.Encode(h.shareURL(*doc.ShareToken), qrcode.Medium, 512)
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to render qr code", nil)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// ExportPDF streams the document as a PDF download.
func (h *Handler) ExportPDF(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	export, err := h.svc.ExportPDF(c.Request.Context(), id, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	servePDF(c, export.Filename, export.Content)
}

func (h *Handler) shareURL(token string) string {
	return h.baseURL + "/share/documents/" + token
}

func servePDF(c *gin.Context, filename string, content []byte) {
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", content)
}
