// Package transport defines the API data transfer objects for generated
// documents.
package transport

import (
	"time"

	"github.com/google/uuid"

	"dealdesk_backend/internal/documents/repository"
)

// CreateDocumentRequest requests a new document for an opportunity.
type CreateDocumentRequest struct {
	OpportunityID               uuid.UUID   `json:"opportunityId" validate:"required"`
	TemplateID                  *uuid.UUID  `json:"templateId"`
	MeetingIDs                  []uuid.UUID `json:"meetingIds" validate:"max=100"`
	IncludeConsolidatedInsights bool        `json:"includeConsolidatedInsights"`
	IncludeAccountResearch      bool        `json:"includeAccountResearch"`
	AdditionalContext           *string     `json:"additionalContext" validate:"omitempty,max=4000"`
}

// DocumentSelection is a fresh context selection for a regeneration. When
// omitted the new version reuses the parent's frozen selection.
type DocumentSelection struct {
	MeetingIDs                  []uuid.UUID `json:"meetingIds" validate:"max=100"`
	IncludeConsolidatedInsights bool        `json:"includeConsolidatedInsights"`
	IncludeAccountResearch      bool        `json:"includeAccountResearch"`
	AdditionalContext           *string     `json:"additionalContext" validate:"omitempty,max=4000"`
}

// RegenerateDocumentRequest requests a new version of a completed document.
type RegenerateDocumentRequest struct {
	Selection *DocumentSelection `json:"selection"`
}

// ContextSnapshotResponse echoes the selection a document was generated from.
type ContextSnapshotResponse struct {
	MeetingIDs                  []uuid.UUID `json:"meetingIds"`
	IncludeConsolidatedInsights bool        `json:"includeConsolidatedInsights"`
	IncludeAccountResearch      bool        `json:"includeAccountResearch"`
	AdditionalContext           *string     `json:"additionalContext,omitempty"`
	TemplateID                  *uuid.UUID  `json:"templateId,omitempty"`
}

// DocumentResponse is one generated document as returned by the API.
type DocumentResponse struct {
	ID               uuid.UUID               `json:"id"`
	OpportunityID    uuid.UUID               `json:"opportunityId"`
	TemplateID       *uuid.UUID              `json:"templateId,omitempty"`
	CreatedBy        *uuid.UUID              `json:"createdBy,omitempty"`
	Version          int                     `json:"version"`
	ParentVersionID  *uuid.UUID              `json:"parentVersionId,omitempty"`
	GenerationStatus string                  `json:"generationStatus"`
	Title            *string                 `json:"title,omitempty"`
	ContentMarkdown  *string                 `json:"contentMarkdown,omitempty"`
	Error            *string                 `json:"error,omitempty"`
	ContextSnapshot  ContextSnapshotResponse `json:"contextSnapshot"`
	ShareToken       *string                 `json:"shareToken,omitempty"`
	SharedAt         *time.Time              `json:"sharedAt,omitempty"`
	GeneratedAt      *time.Time              `json:"generatedAt,omitempty"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        time.Time               `json:"updatedAt"`
}

// DocumentListResponse wraps a document list.
type DocumentListResponse struct {
	Items []DocumentResponse `json:"items"`
	Total int                `json:"total"`
}

// ShareLinkResponse is the minted public link for a completed document.
type ShareLinkResponse struct {
	Token    string    `json:"token"`
	URL      string    `json:"url"`
	SharedAt time.Time `json:"sharedAt"`
}

// PublicDocumentResponse is the pruned shape served to share link visitors.
// It deliberately carries no identifiers beyond the document content itself.
type PublicDocumentResponse struct {
	Title           string     `json:"title"`
	ContentMarkdown string     `json:"contentMarkdown"`
	Version         int        `json:"version"`
	GeneratedAt     *time.Time `json:"generatedAt,omitempty"`
}

// ToDocumentResponse converts a stored document to its API shape.
func ToDocumentResponse(doc repository.Document) DocumentResponse {
	return DocumentResponse{
		ID:               doc.ID,
		OpportunityID:    doc.OpportunityID,
		TemplateID:       doc.TemplateID,
		CreatedBy:        doc.CreatedBy,
		Version:          doc.Version,
		ParentVersionID:  doc.ParentVersionID,
		GenerationStatus: doc.GenerationStatus,
		Title:            doc.Title,
		ContentMarkdown:  doc.ContentMarkdown,
		Error:            doc.Error,
		ContextSnapshot: ContextSnapshotResponse{
			MeetingIDs:                  doc.ContextSnapshot.MeetingIDs,
			IncludeConsolidatedInsights: doc.ContextSnapshot.IncludeConsolidatedInsights,
			IncludeAccountResearch:      doc.ContextSnapshot.IncludeAccountResearch,
			AdditionalContext:           doc.ContextSnapshot.AdditionalContext,
			TemplateID:                  doc.ContextSnapshot.TemplateID,
		},
		ShareToken:  doc.ShareToken,
		SharedAt:    doc.SharedAt,
		GeneratedAt: doc.GeneratedAt,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

// ToDocumentListResponse converts a slice of documents to the API list shape.
func ToDocumentListResponse(docs []repository.Document) DocumentListResponse {
	items := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		items = append(items, ToDocumentResponse(doc))
	}
	return DocumentListResponse{Items: items, Total: len(items)}
}

// ToPublicDocumentResponse converts a shared document to its public shape.
// Callers must only pass completed documents; the title and content fall back
// to empty values rather than leaking internals.
func ToPublicDocumentResponse(doc repository.Document) PublicDocumentResponse {
	resp := PublicDocumentResponse{
		Version:     doc.Version,
		GeneratedAt: doc.GeneratedAt,
	}
	if doc.Title != nil {
		resp.Title = *doc.Title
	}
	if doc.ContentMarkdown != nil {
		resp.ContentMarkdown = *doc.ContentMarkdown
	}
	return resp
}
