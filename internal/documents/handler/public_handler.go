package handler

import (
	"github.com/gin-gonic/gin"

	"dealdesk_backend/internal/documents/service"
	"dealdesk_backend/internal/documents/transport"
	"dealdesk_backend/platform/httpkit"
)

// PublicHandler serves share link visitors. Routes sit on the public group
// behind the strict rate limiter; the token is the whole credential.
type PublicHandler struct {
	svc *service.Service
}

// NewPublic creates the public documents handler.
func NewPublic(svc *service.Service) *PublicHandler {
	return &PublicHandler{svc: svc}
}

// RegisterRoutes registers the public share routes on the given group.
func (h *PublicHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:token", h.Get)
	rg.GET("/:token/pdf", h.ExportPDF)
}

// Get resolves a share token to the published document.
func (h *PublicHandler) Get(c *gin.Context) {
	doc, err := h.svc.ResolveShareToken(c.Request.Context(), c.Param("token"))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToPublicDocumentResponse(doc))
}

// ExportPDF streams the shared document as a PDF download.
func (h *PublicHandler) ExportPDF(c *gin.Context) {
	export, err := h.svc.ExportSharedPDF(c.Request.Context(), c.Param("token"))
	if httpkit.HandleError(c, err) {
		return
	}

	servePDF(c, export.Filename, export.Content)
}
