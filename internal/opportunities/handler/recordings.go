package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dealdesk_backend/internal/opportunities/ports"
	"dealdesk_backend/internal/opportunities/transport"
	"dealdesk_backend/platform/httpkit"
)

// RecordingsHandler exposes the transcription status of submitted call
// recordings. Present only when object storage is configured.
type RecordingsHandler struct {
	source ports.RecordingSource
}

// NewRecordingsHandler creates a new recordings handler.
func NewRecordingsHandler(source ports.RecordingSource) *RecordingsHandler {
	return &RecordingsHandler{source: source}
}

// RegisterRoutes adds recording routes to the opportunities router group.
func (h *RecordingsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/recordings", h.List)
	rg.GET("/recordings/:recordingId", h.Get)
}

// List returns the recordings submitted for an opportunity, newest first.
func (h *RecordingsHandler) List(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	opportunityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	recs, err := h.source.ListRecordings(c.Request.Context(), opportunityID, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToRecordingListResponse(recs))
}

// Get returns a single recording, for polling transcription progress.
func (h *RecordingsHandler) Get(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	recordingID, err := uuid.Parse(c.Param("recordingId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	rec, err := h.source.GetRecording(c.Request.Context(), recordingID, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToRecordingResponse(rec))
}
