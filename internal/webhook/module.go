// Package webhook module wiring: intake routes on the public surface, key
// management on the authenticated one.
package webhook

import (
	"dealdesk_backend/internal/events"
	apphttp "dealdesk_backend/internal/http"
	"dealdesk_backend/platform/config"
	"dealdesk_backend/platform/httpkit"
	"dealdesk_backend/platform/logger"
	"dealdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the provider intake module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
	cfg     config.WebhookConfig
}

// NewModule creates and initializes the webhook module with all its
// dependencies. recordings may be nil when transcription is disabled.
func NewModule(pool *pgxpool.Pool, calendar CalendarSink, ingestor TranscriptIngestor, recordings RecordingIntake, cfg config.WebhookConfig, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(calendar, ingestor, recordings, eventBus, log)
	handler := NewHandler(service, repo, val)

	return &Module{
		handler: handler,
		repo:    repo,
		cfg:     cfg,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Provider intake (public surface, rate limited; no JWT session)
	intake := ctx.Public.Group("/webhook")
	intake.POST("/calendar", CalendarAuthMiddleware(m.cfg.GetCalendarWebhookSecret()), m.handler.HandleCalendarPush)
	intake.POST("/transcripts", APIKeyAuthMiddleware(m.repo), m.handler.HandleTranscriptSubmission)
	intake.POST("/recordings", APIKeyAuthMiddleware(m.repo), m.handler.HandleRecordingSubmission)

	// API key management (JWT auth + admin role)
	keys := ctx.Protected.Group("/webhook/keys")
	keys.POST("", httpkit.RequireRole("admin"), m.handler.HandleCreateAPIKey)
	keys.GET("", httpkit.RequireRole("admin"), m.handler.HandleListAPIKeys)
	keys.DELETE("/:keyId", httpkit.RequireRole("admin"), m.handler.HandleRevokeAPIKey)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
