package services

import (
	"context"

	"greendrake/haggle/internal/config"
	"greendrake/haggle/internal/models"
	"greendrake/haggle/internal/repository/mongodb"
	"greendrake/haggle/internal/utils"
)

// INotificationService reads and updates the caller's own notifications.
type INotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID string, ids []utils.SixID, read bool) (int64, error)
}

type notificationService struct {
	notifications mongodb.NotificationRepository
	cfg           *config.Config
}

func NewNotificationService(notifications mongodb.NotificationRepository, cfg *config.Config) INotificationService {
	return &notificationService{notifications: notifications, cfg: cfg}
}

func (s *notificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	if userID == "" {
		return nil, newError(ErrUnauthorized, "authentication required")
	}
	limit := int64(s.cfg.NotificationListLimit)
	if limit <= 0 {
		limit = 50
	}
	notifications, err := s.notifications.List(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, internalError(err, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead sets read on the given notifications, or on all of the caller's when ids is empty.
func (s *notificationService) MarkRead(ctx context.Context, userID string, ids []utils.SixID, read bool) (int64, error) {
	if userID == "" {
		return 0, newError(ErrUnauthorized, "authentication required")
	}
	if len(ids) == 0 {
		ids = nil
	}
	n, err := s.notifications.MarkRead(ctx, userID, ids, read)
	if err != nil {
		return 0, internalError(err, "failed to update notifications")
	}
	return n, nil
}
