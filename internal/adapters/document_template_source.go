package adapters

import (
	"context"

	briefsvc "dealdesk_backend/internal/briefs/service"
	docsvc "dealdesk_backend/internal/documents/service"

	"github.com/google/uuid"
)

// DocumentTemplateSource adapts the briefs service to the documents module's
// TemplateSource port.
type DocumentTemplateSource struct {
	briefs *briefsvc.Service
}

// NewDocumentTemplateSource creates an adapter that wraps the briefs service.
func NewDocumentTemplateSource(briefs *briefsvc.Service) *DocumentTemplateSource {
	return &DocumentTemplateSource{briefs: briefs}
}

// Template resolves a tenant-scoped template for the document create path.
func (a *DocumentTemplateSource) Template(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (docsvc.TemplateContext, error) {
	tpl, err := a.briefs.Get(ctx, id, organizationID)
	if err != nil {
		return docsvc.TemplateContext{}, err
	}
	return templateContext(tpl.ID, tpl.Name, tpl.Tone, tpl.Sections), nil
}

// TemplateInternal resolves a template by id alone for the generation run,
// which trusts the id frozen in the context snapshot.
func (a *DocumentTemplateSource) TemplateInternal(ctx context.Context, id uuid.UUID) (docsvc.TemplateContext, error) {
	tpl, err := a.briefs.GetInternal(ctx, id)
	if err != nil {
		return docsvc.TemplateContext{}, err
	}
	return templateContext(tpl.ID, tpl.Name, tpl.Tone, tpl.Sections), nil
}

func templateContext(id uuid.UUID, name, tone string, sections []string) docsvc.TemplateContext {
	return docsvc.TemplateContext{
		ID:       id,
		Name:     name,
		Tone:     tone,
		Sections: sections,
	}
}

var _ docsvc.TemplateSource = (*DocumentTemplateSource)(nil)
