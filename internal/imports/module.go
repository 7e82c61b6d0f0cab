package imports

import (
	"dealdesk_backend/internal/events"
	apphttp "dealdesk_backend/internal/http"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/httpkit"
	"dealdesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the CSV import module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

func NewModule(pool *pgxpool.Pool, opportunities OpportunityCreator, notes NoteIngestor, queue scheduler.ImportEnqueuer, eventBus events.Bus, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(repo, opportunities, notes, queue, eventBus, log)

	return &Module{
		handler: NewHandler(service),
		service: service,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "imports"
}

// RegisterRoutes mounts import routes on the provided router context.
// Uploads are admin-gated; job status is visible to every member.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/imports")
	group.POST("", httpkit.RequireRole("admin"), m.handler.HandleSubmit)
	group.GET("", m.handler.HandleList)
	group.GET("/:jobId", m.handler.HandleGet)
}

// Service exposes the import service; the scheduler worker registers it as
// the import job processor.
func (m *Module) Service() *Service { return m.service }

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
