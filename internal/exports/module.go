// Package exports serves the pipeline to external tools: a key-authenticated
// CSV of opportunities with their consolidated insights and call schedule,
// plus admin management of the export API keys.
package exports

import (
	apphttp "dealdesk_backend/internal/http"
	"dealdesk_backend/platform/httpkit"
	"dealdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the exports bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
}

// NewModule creates and initializes the exports module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator) *Module {
	repo := NewRepository(pool)
	handler := NewHandler(repo, val)

	return &Module{
		handler: handler,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "exports"
}

// RegisterRoutes mounts export routes on the provided router context. The CSV
// endpoint authenticates with an export API key instead of a JWT so BI tools
// can poll it.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	csvGroup := ctx.V1.Group("/exports")
	csvGroup.Use(APIKeyAuthMiddleware(m.repo))
	csvGroup.GET("/opportunities.csv", m.handler.ExportOpportunitiesCSV)

	keyGroup := ctx.Protected.Group("/exports/keys", httpkit.RequireRole("admin"))
	keyGroup.POST("", m.handler.HandleCreateAPIKey)
	keyGroup.GET("", m.handler.HandleListAPIKeys)
	keyGroup.DELETE("/:keyId", m.handler.HandleRevokeAPIKey)
}

var _ apphttp.Module = (*Module)(nil)
