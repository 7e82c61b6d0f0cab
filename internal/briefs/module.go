// Package briefs provides the brief template catalog module. Templates shape
// what the document writer agent produces; a default set ships embedded in
// the binary and is seeded for every organization at startup.
package briefs

import (
	"context"

	"dealdesk_backend/internal/briefs/handler"
	"dealdesk_backend/internal/briefs/repository"
	"dealdesk_backend/internal/briefs/service"
	apphttp "dealdesk_backend/internal/http"
	"dealdesk_backend/platform/logger"
	"dealdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the briefs domain module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new briefs module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "briefs"
}

// Service exposes the briefs service for the documents module.
func (m *Module) Service() *service.Service {
	return m.service
}

// SeedDefaults seeds the embedded default templates for every organization.
func (m *Module) SeedDefaults(ctx context.Context) error {
	return m.service.SeedAllOrganizations(ctx)
}

// RegisterRoutes registers the module's routes under /api/v1/briefs.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	briefGroup := ctx.Protected.Group("/briefs")
	m.handler.RegisterRoutes(briefGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
