// Package calendar stores externally synced calendar events and feeds them
// into schedule recalculation as the highest-priority signal source.
package calendar

import (
	"dealdesk_backend/internal/calendar/handler"
	"dealdesk_backend/internal/calendar/repository"
	"dealdesk_backend/internal/calendar/service"
	apphttp "dealdesk_backend/internal/http"
	"dealdesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the calendar domain module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new calendar module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, queue service.RecalcEnqueuer, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, queue, log)
	h := handler.New(svc)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "calendar"
}

// Service exposes the calendar service for the webhook module and the
// schedule-source adapter.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes under /api/v1/calendar.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	calendarGroup := ctx.Protected.Group("/calendar")
	m.handler.RegisterRoutes(calendarGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
