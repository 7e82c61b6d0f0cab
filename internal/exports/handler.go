package exports

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/platform/httpkit"
	"dealdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultTimezone = "UTC"
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05-0700"
	listSeparator   = "; "
)

// Handler handles export requests and API key management.
type Handler struct {
	repo *Repository
	val  *validator.Validator
}

// NewHandler creates a new export handler.
func NewHandler(repo *Repository, val *validator.Validator) *Handler {
	return &Handler{repo: repo, val: val}
}

// ---- Admin API Key Management (JWT authenticated) ----

type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

type APIKeyResponse struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"keyPrefix"`
	IsActive   bool       `json:"isActive"`
	CreatedAt  string     `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// HandleCreateAPIKey mints a new key. The plaintext is returned exactly once;
// only the hash and display prefix are stored.
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate API key", nil)
		return
	}

	createdBy := identity.UserID()
	key, err := h.repo.CreateAPIKey(c.Request.Context(), orgID, req.Name, hash, prefix, &createdBy)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	})
}

func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	keys, err := h.repo.ListAPIKeys(c.Request.Context(), orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		result[i] = toAPIKeyResponse(k)
	}

	httpkit.OK(c, result)
}

func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key id", nil)
		return
	}

	if err := h.repo.RevokeAPIKey(c.Request.Context(), keyID, orgID); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"message": "api key revoked"})
}

// ---- Opportunity CSV Export (API key authenticated) ----

// ExportOpportunitiesCSV streams the organization's opportunities with their
// consolidated insights and call schedule as CSV. Query params: fromDate,
// toDate (creation date range, default last 90 days), stage, timezone, limit.
func (h *Handler) ExportOpportunitiesCSV(c *gin.Context) {
	orgID, ok := getExportOrgID(c)
	if !ok {
		return
	}

	keyID, ok := getExportKeyID(c)
	if ok {
		h.repo.TouchAPIKey(c.Request.Context(), keyID)
	}

	fromDate, toDate, err := parseDateRange(c)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid date range", err.Error())
		return
	}

	stage := strings.TrimSpace(c.Query("stage"))
	if stage != "" && !domain.IsKnownStage(stage) {
		httpkit.Error(c, http.StatusBadRequest, "unknown stage", nil)
		return
	}

	limit := parseLimit(c, 5000, 50000)

	location, ok := parseTimezone(c)
	if !ok {
		return
	}

	opportunities, err := h.repo.ListOpportunities(c.Request.Context(), orgID, fromDate, toDate, stage, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=opportunities.csv")

	writer := csv.NewWriter(c.Writer)
	if err := writer.Write(csvHeaders()); err != nil {
		return
	}
	for _, row := range opportunities {
		if err := writer.Write(csvRecord(row, location)); err != nil {
			return
		}
	}
	writer.Flush()
}

// ---- Helpers ----

func csvHeaders() []string {
	return []string{
		"Opportunity ID",
		"Account",
		"Contact Name",
		"Contact Email",
		"Stage",
		"Amount",
		"Pain Points",
		"Goals",
		"Next Steps",
		"Metrics",
		"Risk Level",
		"Risk Factors",
		"Meetings Consolidated",
		"Last Consolidated At",
		"Last Call At",
		"Next Call At",
		"Next Call Source",
		"Checkpoint At",
		"Needs Next Call",
		"Created At",
	}
}

func csvRecord(row OpportunityRow, location *time.Location) []string {
	painPoints, goals, nextSteps, metrics := "", "", "", ""
	riskLevel, riskFactors := "", ""
	if row.Insights != nil {
		painPoints = strings.Join(row.Insights.PainPoints, listSeparator)
		goals = strings.Join(row.Insights.Goals, listSeparator)
		nextSteps = strings.Join(row.Insights.NextSteps, listSeparator)
		metrics = strings.Join(row.Insights.Metrics, listSeparator)
		if row.Insights.Risk != nil {
			riskLevel = string(row.Insights.Risk.Level)
			riskFactors = strings.Join(row.Insights.Risk.Factors, listSeparator)
		}
	}

	return []string{
		row.ID.String(),
		row.AccountName,
		orEmpty(row.ContactName),
		orEmpty(row.ContactEmail),
		row.Stage,
		formatAmount(row.AmountCents),
		painPoints,
		goals,
		nextSteps,
		metrics,
		riskLevel,
		riskFactors,
		strconv.Itoa(row.ConsolidationCallCount),
		formatTimestamp(row.LastConsolidatedAt, location),
		formatTimestamp(row.LastCallDate, location),
		formatTimestamp(row.NextCallDate, location),
		orEmpty(row.NextCallSource),
		formatTimestamp(row.CheckpointDate, location),
		strconv.FormatBool(row.NeedsNextCallScheduled),
		formatTimestamp(&row.CreatedAt, location),
	}
}

func getExportOrgID(c *gin.Context) (uuid.UUID, bool) {
	orgIDVal, ok := c.Get(ctxExportOrgID)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "missing organization context", nil)
		return uuid.UUID{}, false
	}
	orgID, ok := orgIDVal.(uuid.UUID)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "missing organization context", nil)
		return uuid.UUID{}, false
	}
	return orgID, true
}

func getExportKeyID(c *gin.Context) (uuid.UUID, bool) {
	keyIDVal, _ := c.Get(ctxExportKeyID)
	keyID, ok := keyIDVal.(uuid.UUID)
	return keyID, ok
}

func parseTimezone(c *gin.Context) (*time.Location, bool) {
	tzName := strings.TrimSpace(c.DefaultQuery("timezone", defaultTimezone))
	location, err := time.LoadLocation(tzName)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid timezone", nil)
		return nil, false
	}
	return location, true
}

func toAPIKeyResponse(key APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:         key.ID,
		Name:       key.Name,
		KeyPrefix:  key.KeyPrefix,
		IsActive:   key.IsActive,
		CreatedAt:  key.CreatedAt.Format(time.RFC3339),
		LastUsedAt: key.LastUsedAt,
	}
}

func parseDateRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	defaultFrom := now.AddDate(0, 0, -90)
	fromStr := strings.TrimSpace(c.DefaultQuery("fromDate", ""))
	toStr := strings.TrimSpace(c.DefaultQuery("toDate", ""))

	from := defaultFrom
	to := now

	if fromStr != "" {
		parsed, err := time.Parse(dateLayout, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if toStr != "" {
		parsed, err := time.Parse(dateLayout, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("toDate before fromDate")
	}
	return from, to, nil
}

func parseLimit(c *gin.Context, fallback int, max int) int {
	limit := fallback
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	if limit > max {
		return max
	}
	if limit < 1 {
		return fallback
	}
	return limit
}

func formatTimestamp(value *time.Time, location *time.Location) string {
	if value == nil {
		return ""
	}
	return value.In(location).Format(timestampLayout)
}

func formatAmount(cents *int64) string {
	if cents == nil {
		return ""
	}
	return strconv.FormatFloat(float64(*cents)/100, 'f', 2, 64)
}

func orEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
