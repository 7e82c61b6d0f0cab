// Package transport defines the API data transfer objects for brief templates.
package transport

import (
	"time"

	"dealdesk_backend/internal/briefs/repository"

	"github.com/google/uuid"
)

// CreateTemplateRequest creates a custom brief template.
type CreateTemplateRequest struct {
	Slug        string   `json:"slug" validate:"required,min=1,max=100"`
	Name        string   `json:"name" validate:"required,min=1,max=200"`
	Description string   `json:"description" validate:"max=1000"`
	Tone        string   `json:"tone" validate:"max=100"`
	Sections    []string `json:"sections" validate:"required,min=1,max=20,dive,min=1,max=200"`
}

// UpdateTemplateRequest replaces the editable fields of a template.
type UpdateTemplateRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=200"`
	Description string   `json:"description" validate:"max=1000"`
	Tone        string   `json:"tone" validate:"max=100"`
	Sections    []string `json:"sections" validate:"required,min=1,max=20,dive,min=1,max=200"`
}

// TemplateResponse is one brief template as returned by the API.
type TemplateResponse struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tone        string    `json:"tone"`
	Sections    []string  `json:"sections"`
	IsDefault   bool      `json:"isDefault"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TemplateListResponse wraps the template list.
type TemplateListResponse struct {
	Items []TemplateResponse `json:"items"`
	Total int                `json:"total"`
}

// ToTemplateResponse converts a stored template to its API shape.
func ToTemplateResponse(tpl repository.Template) TemplateResponse {
	return TemplateResponse{
		ID:          tpl.ID,
		Slug:        tpl.Slug,
		Name:        tpl.Name,
		Description: tpl.Description,
		Tone:        tpl.Tone,
		Sections:    tpl.Sections,
		IsDefault:   tpl.IsDefault,
		CreatedAt:   tpl.CreatedAt,
		UpdatedAt:   tpl.UpdatedAt,
	}
}

// ToTemplateListResponse converts a slice of templates to the API list shape.
func ToTemplateListResponse(templates []repository.Template) TemplateListResponse {
	items := make([]TemplateResponse, 0, len(templates))
	for _, tpl := range templates {
		items = append(items, ToTemplateResponse(tpl))
	}
	return TemplateListResponse{Items: items, Total: len(items)}
}
