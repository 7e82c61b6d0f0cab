// Package opportunities is the aggregate-root bounded context: opportunity
// CRUD, meeting intake and parsing, insight consolidation, schedule
// derivation and account research.
package opportunities

import (
	"dealdesk_backend/internal/adapters/storage"
	"dealdesk_backend/internal/events"
	apphttp "dealdesk_backend/internal/http"
	"dealdesk_backend/internal/opportunities/agent"
	"dealdesk_backend/internal/opportunities/consolidation"
	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/handler"
	"dealdesk_backend/internal/opportunities/management"
	"dealdesk_backend/internal/opportunities/meetings"
	"dealdesk_backend/internal/opportunities/ports"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/internal/opportunities/research"
	"dealdesk_backend/internal/opportunities/scheduling"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/platform/config"
	"dealdesk_backend/platform/logger"
	"dealdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the opportunities bounded context implementing http.Module.
type Module struct {
	handler       *handler.Handler
	photos        *handler.PhotosHandler
	recordings    *handler.RecordingsHandler
	repo          *repository.Repository
	management    *management.Service
	meetings      *meetings.Service
	consolidation *consolidation.Service
	scheduling    *scheduling.Service
	research      *research.Service
	val           *validator.Validator
}

// NewModule wires the opportunities module. queue may be nil in commands that
// only read; companyLookup may be nil when no enrichment provider is
// configured (the research agent then works from meeting data alone).
func NewModule(pool *pgxpool.Pool, queue scheduler.PipelineEnqueuer, eventBus events.Bus, companyLookup ports.CompanyLookup, val *validator.Validator, cfg *config.Config, log *logger.Logger) (*Module, error) {
	if err := val.RegisterStringRule("opportunity_stage", domain.IsKnownStage); err != nil {
		return nil, err
	}

	repo := repository.New(pool)

	meetingsSvc := meetings.New(repo, queue, eventBus, log)
	consolidationSvc := consolidation.New(repo, eventBus, log)
	schedulingSvc := scheduling.New(repo, eventBus, log)
	researchSvc := research.New(repo, queue, eventBus, log)
	mgmtSvc := management.New(repo, log)

	if cfg.IsAIEnabled() {
		parser, err := agent.NewTranscriptParser(cfg.GetMoonshotAPIKey())
		if err != nil {
			return nil, err
		}
		meetingsSvc.SetTranscriptParser(parser)

		riskAnalyzer, err := agent.NewRiskAnalyzer(cfg.GetMoonshotAPIKey())
		if err != nil {
			return nil, err
		}
		meetingsSvc.SetRiskAnalyzer(riskAnalyzer)

		researcher, err := agent.NewAccountResearcher(cfg.GetMoonshotAPIKey(), companyLookup)
		if err != nil {
			return nil, err
		}
		researchSvc.SetResearcher(researcher)
	} else {
		log.Warn("MOONSHOT_API_KEY not set, transcript parsing, risk analysis and research are disabled")
	}

	h := handler.New(mgmtSvc, meetingsSvc, consolidationSvc, schedulingSvc, researchSvc, val)

	return &Module{
		handler:       h,
		repo:          repo,
		management:    mgmtSvc,
		meetings:      meetingsSvc,
		consolidation: consolidationSvc,
		scheduling:    schedulingSvc,
		research:      researchSvc,
		val:           val,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "opportunities"
}

// RegisterRoutes mounts opportunity routes on the provided router context.
// Photo and recording routes appear only when object storage is configured.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/opportunities")
	m.handler.RegisterRoutes(group)
	if m.photos != nil {
		m.photos.RegisterRoutes(group.Group("/meetings/:meetingId/photos"))
	}
	if m.recordings != nil {
		m.recordings.RegisterRoutes(group)
	}
}

// Repository exposes the opportunities repository for sibling modules
// (documents context builder, exports).
func (m *Module) Repository() *repository.Repository { return m.repo }

// ManagementService returns the opportunity CRUD service; the CSV import
// module creates rows through it.
func (m *Module) ManagementService() *management.Service { return m.management }

// MeetingsService returns the meeting intake/parse service; the scheduler
// worker and the webhook module use it.
func (m *Module) MeetingsService() *meetings.Service { return m.meetings }

// ConsolidationService returns the consolidation processor.
func (m *Module) ConsolidationService() *consolidation.Service { return m.consolidation }

// SchedulingService returns the schedule recalculation processor.
func (m *Module) SchedulingService() *scheduling.Service { return m.scheduling }

// ResearchService returns the account research processor.
func (m *Module) ResearchService() *research.Service { return m.research }

// SetCalendarSource injects the calendar signal source into schedule
// recalculation.
func (m *Module) SetCalendarSource(src ports.CalendarSource) {
	m.scheduling.SetCalendarSource(src)
}

// SetPhotoStorage enables meeting photo uploads against the given bucket.
func (m *Module) SetPhotoStorage(storageSvc storage.StorageService, bucket string) {
	m.photos = handler.NewPhotosHandler(m.repo, m.meetings, storageSvc, bucket, m.val)
}

// SetRecordingSource exposes call recording status on the opportunity routes.
func (m *Module) SetRecordingSource(src ports.RecordingSource) {
	m.recordings = handler.NewRecordingsHandler(src)
}

// SetOrganizationReader injects the organization profile reader used to bias
// the transcript parser.
func (m *Module) SetOrganizationReader(r ports.OrganizationReader) {
	m.meetings.SetOrganizationReader(r)
}

// SetAISettingsReader injects the per-organization AI feature toggles.
func (m *Module) SetAISettingsReader(r ports.OrganizationAISettingsReader) {
	m.meetings.SetAISettingsReader(r)
	m.research.SetAISettingsReader(r)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
