// Package transport defines the API data transfer objects for calendar events.
package transport

import (
	"time"

	"dealdesk_backend/internal/calendar/repository"

	"github.com/google/uuid"
)

// EventResponse is one synced calendar event as returned by the API.
type EventResponse struct {
	ID              uuid.UUID  `json:"id"`
	OpportunityID   uuid.UUID  `json:"opportunityId"`
	Provider        string     `json:"provider"`
	ProviderEventID string     `json:"providerEventId"`
	Title           string     `json:"title"`
	Status          string     `json:"status"`
	StartsAt        time.Time  `json:"startsAt"`
	EndsAt          *time.Time `json:"endsAt,omitempty"`
	Location        *string    `json:"location,omitempty"`
	MeetingLink     *string    `json:"meetingLink,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// EventListResponse wraps a list of calendar events.
type EventListResponse struct {
	Items []EventResponse `json:"items"`
	Total int             `json:"total"`
}

// ToEventResponse converts a stored event to its API shape.
func ToEventResponse(event repository.Event) EventResponse {
	return EventResponse{
		ID:              event.ID,
		OpportunityID:   event.OpportunityID,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		Title:           event.Title,
		Status:          event.Status,
		StartsAt:        event.StartsAt,
		EndsAt:          event.EndsAt,
		Location:        event.Location,
		MeetingLink:     event.MeetingLink,
		UpdatedAt:       event.UpdatedAt,
	}
}

// ToEventListResponse converts a slice of stored events to the API list shape.
func ToEventListResponse(events []repository.Event) EventListResponse {
	items := make([]EventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, ToEventResponse(event))
	}
	return EventListResponse{Items: items, Total: len(items)}
}
