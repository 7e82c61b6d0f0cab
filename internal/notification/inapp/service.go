package inapp

import (
	"context"
	"strings"

	"dealdesk_backend/internal/notification/sse"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, bool, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	CountUnreadByTriggerTypes(ctx context.Context, userID uuid.UUID, triggerTypes []string) (int, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, userID, notificationID uuid.UUID) error
}

var _ Store = (*Repository)(nil)

type Service struct {
	store Store
	sse   *sse.Service
	log   *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
	}
}

// SetSSE injects the SSE service (circular dependency avoidance).
func (s *Service) SetSSE(sseSvc *sse.Service) {
	s.sse = sseSvc
}

type SendParams struct {
	OrgID       uuid.UUID
	UserID      uuid.UUID
	TriggerType string
	ResourceID  uuid.UUID
	Title       string
	Content     string
}

// Send persists the notification and pushes it via SSE if the user is online.
// A duplicate on the (user, resource, trigger) key is suppressed: no row, no
// push, created=false.
func (s *Service) Send(ctx context.Context, p SendParams) (bool, error) {
	if s == nil || s.store == nil {
		return false, apperr.Internal("in-app notification service not configured")
	}

	notif, created, err := s.store.Create(ctx, CreateParams{
		OrganizationID: p.OrgID,
		UserID:         p.UserID,
		TriggerType:    p.TriggerType,
		ResourceID:     p.ResourceID,
		Title:          p.Title,
		Content:        p.Content,
	})
	if err != nil {
		if s.log != nil {
			s.log.Error("failed to persist in-app notification", "error", err, "userId", p.UserID)
		}
		return false, err
	}
	if !created {
		if s.log != nil {
			s.log.Debug("duplicate in-app notification suppressed",
				"userId", p.UserID, "resourceId", p.ResourceID, "trigger", p.TriggerType)
		}
		return false, nil
	}

	if s.sse != nil {
		s.sse.Publish(p.UserID, sse.Event{
			Type:    sse.EventInAppNotification,
			Message: notif.Title,
			Data:    notif,
		})
	}

	return true, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return s.store.List(ctx, userID, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

func (s *Service) CountUnreadByTriggerTypes(ctx context.Context, userID uuid.UUID, triggerTypes []string) (int, error) {
	normalized := make([]string, 0, len(triggerTypes))
	for _, item := range triggerTypes {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return s.store.CountUnreadByTriggerTypes(ctx, userID, normalized)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.Delete(ctx, userID, id)
}
