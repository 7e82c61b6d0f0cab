package webhook

import (
	"net/http"
	"strings"
	"time"

	"dealdesk_backend/internal/opportunities/transport"
	"dealdesk_backend/platform/httpkit"
	"dealdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"

	// WAV only: the transcription engine decodes nothing else.
	maxRecordingUploadBytes = 256 << 20
)

var wavContentTypes = map[string]bool{
	"audio/wav":      true,
	"audio/x-wav":    true,
	"audio/wave":     true,
	"audio/vnd.wave": true,
}

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
	repo    *Repository
	val     *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, repo *Repository, val *validator.Validator) *Handler {
	return &Handler{service: service, repo: repo, val: val}
}

// ---- Calendar push (public, bridge JWT authenticated) ----

// HandleCalendarPush processes a batch of provider calendar events.
// POST /api/v1/webhook/calendar
// Authenticated via a bearer token signed with the calendar webhook secret.
func (h *Handler) HandleCalendarPush(c *gin.Context) {
	orgID, ok := h.getWebhookOrgID(c)
	if !ok {
		return
	}

	var req CalendarPushRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	result, err := h.service.ProcessCalendarPush(c.Request.Context(), orgID, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// ---- Call provider intake (public, API-key authenticated) ----

// TranscriptSubmissionRequest is the body for a pushed transcript.
type TranscriptSubmissionRequest struct {
	OpportunityID  uuid.UUID  `json:"opportunityId" validate:"required"`
	Title          *string    `json:"title" validate:"omitempty,max=300"`
	OccurredAt     *time.Time `json:"occurredAt"`
	TranscriptText string     `json:"transcriptText" validate:"required"`
}

// HandleTranscriptSubmission accepts transcript text from a call provider.
// POST /api/v1/webhook/transcripts
// Authenticated via X-Webhook-API-Key header (set by middleware).
func (h *Handler) HandleTranscriptSubmission(c *gin.Context) {
	orgID, ok := h.getWebhookOrgID(c)
	if !ok {
		return
	}

	var req TranscriptSubmissionRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	rec, err := h.service.ProcessTranscriptSubmission(c.Request.Context(), orgID, TranscriptSubmission{
		OpportunityID:  req.OpportunityID,
		Title:          req.Title,
		OccurredAt:     req.OccurredAt,
		TranscriptText: req.TranscriptText,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusAccepted, transport.ToMeetingResponse(rec))
}

// RecordingAcceptedResponse is returned for an accepted audio upload.
type RecordingAcceptedResponse struct {
	RecordingID uuid.UUID `json:"recordingId"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
}

// HandleRecordingSubmission accepts an audio upload from a call provider.
// POST /api/v1/webhook/recordings (multipart: audio file + opportunityId)
// Authenticated via X-Webhook-API-Key header (set by middleware).
func (h *Handler) HandleRecordingSubmission(c *gin.Context) {
	orgID, ok := h.getWebhookOrgID(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("audio")
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "audio file is required", nil)
		return
	}
	if fh.Size > maxRecordingUploadBytes {
		httpkit.Error(c, http.StatusRequestEntityTooLarge, "audio file too large", nil)
		return
	}

	contentType := fh.Header.Get("Content-Type")
	if !wavContentTypes[strings.ToLower(strings.TrimSpace(contentType))] {
		httpkit.Error(c, http.StatusUnsupportedMediaType, "only WAV recordings are supported", nil)
		return
	}

	opportunityID, err := uuid.Parse(c.PostForm("opportunityId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid opportunity ID", nil)
		return
	}

	var title *string
	if v := strings.TrimSpace(c.PostForm("title")); v != "" {
		title = &v
	}
	var occurredAt *time.Time
	if v := strings.TrimSpace(c.PostForm("occurredAt")); v != "" {
		parsed, parseErr := time.Parse(time.RFC3339, v)
		if parseErr != nil {
			httpkit.Error(c, http.StatusBadRequest, "occurredAt must be RFC 3339", nil)
			return
		}
		occurredAt = &parsed
	}

	file, err := fh.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "unable to read audio file", nil)
		return
	}
	defer file.Close()

	rec, err := h.service.ProcessRecordingSubmission(c.Request.Context(), orgID, RecordingSubmission{
		OpportunityID: opportunityID,
		FileName:      fh.Filename,
		ContentType:   contentType,
		SizeBytes:     fh.Size,
		Audio:         file,
		Title:         title,
		OccurredAt:    occurredAt,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusAccepted, RecordingAcceptedResponse{
		RecordingID: rec.ID,
		Status:      rec.Status,
		Message:     "Recording accepted for transcription",
	})
}

// ---- API key management (JWT authenticated, admin role) ----

// CreateAPIKeyRequest is the request body for creating a new API key.
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// APIKeyResponse is returned when listing or creating API keys.
type APIKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"keyPrefix"`
	IsActive  bool      `json:"isActive"`
	CreatedAt string    `json:"createdAt"`
}

// CreateAPIKeyResponse includes the plaintext key (shown only once).
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"` // plaintext, shown only once
}

// HandleCreateAPIKey creates a new webhook API key.
// POST /api/v1/webhook/keys
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate API key", nil)
		return
	}

	key, err := h.repo.Create(c.Request.Context(), orgID, req.Name, hash, prefix)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	})
}

// HandleListAPIKeys lists all webhook API keys for the organization.
// GET /api/v1/webhook/keys
func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	keys, err := h.repo.ListByOrganization(c.Request.Context(), orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		result[i] = toAPIKeyResponse(k)
	}

	httpkit.OK(c, result)
}

// HandleRevokeAPIKey deactivates a webhook API key.
// DELETE /api/v1/webhook/keys/:keyId
func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key ID", nil)
		return
	}

	if err := h.repo.Revoke(c.Request.Context(), keyID, orgID); err != nil {
		if err == ErrAPIKeyNotFound {
			httpkit.Error(c, http.StatusNotFound, "API key not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}

func toAPIKeyResponse(key APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		IsActive:  key.IsActive,
		CreatedAt: key.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return false
	}
	return true
}

func (h *Handler) getWebhookOrgID(c *gin.Context) (uuid.UUID, bool) {
	orgID, ok := c.Get("webhookOrgID")
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "missing organization context", nil)
		return uuid.UUID{}, false
	}
	return orgID.(uuid.UUID), true
}
