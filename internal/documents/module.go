// Package documents is the generated document bounded context: versioned
// AI-written sales documents assembled from opportunity context, with public
// share links and PDF export.
package documents

import (
	"dealdesk_backend/internal/documents/agent"
	"dealdesk_backend/internal/documents/handler"
	"dealdesk_backend/internal/documents/repository"
	"dealdesk_backend/internal/documents/service"
	"dealdesk_backend/internal/events"
	apphttp "dealdesk_backend/internal/http"
	"dealdesk_backend/internal/pdf"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/config"
	"dealdesk_backend/platform/logger"
	"dealdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the documents bounded context implementing http.Module.
type Module struct {
	handler       *handler.Handler
	publicHandler *handler.PublicHandler
	service       *service.Service
}

// NewModule wires the documents module. The context, template and timeline
// ports are injected afterwards through the setters below; queue may be nil
// in commands that only read.
func NewModule(pool *pgxpool.Pool, queue scheduler.DocumentEnqueuer, eventBus events.Bus, val *validator.Validator, cfg *config.Config, log *logger.Logger) (*Module, error) {
	repo := repository.New(pool)
	svc := service.New(repo, queue, eventBus, log)

	if cfg.IsAIEnabled() {
		writer, err := agent.NewDocumentWriter(cfg.GetMoonshotAPIKey())
		if err != nil {
			return nil, err
		}
		svc.SetWriter(writer)
	} else {
		log.Warn("MOONSHOT_API_KEY not set, document generation is disabled")
	}

	if cfg.IsGotenbergEnabled() {
		svc.SetPDFRenderer(pdf.NewGotenbergClient(cfg.GetGotenbergURL(), cfg.GetGotenbergUsername(), cfg.GetGotenbergPassword()))
	} else {
		log.Warn("GOTENBERG_URL not set, document pdf export is disabled")
	}

	return &Module{
		handler:       handler.New(svc, val, cfg.GetAppBaseURL()),
		publicHandler: handler.NewPublic(svc),
		service:       svc,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "documents"
}

// RegisterRoutes mounts the authenticated document routes and the public
// share link routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/documents")
	m.handler.RegisterRoutes(group)

	publicGroup := ctx.Public.Group("/public/documents")
	m.publicHandler.RegisterRoutes(publicGroup)
}

// Service returns the document service; the scheduler worker drives its
// generation processor.
func (m *Module) Service() *service.Service { return m.service }

// SetContextSource injects the opportunity context reader.
func (m *Module) SetContextSource(src service.ContextSource) {
	m.service.SetContextSource(src)
}

// SetTemplateSource injects the brief template reader.
func (m *Module) SetTemplateSource(src service.TemplateSource) {
	m.service.SetTemplateSource(src)
}

// SetTimelineWriter injects the opportunity timeline sink.
func (m *Module) SetTimelineWriter(w service.TimelineWriter) {
	m.service.SetTimelineWriter(w)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
