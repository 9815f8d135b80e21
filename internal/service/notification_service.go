package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/civic-tracker-api/pkg/errors"
)

// NotificationService manages in-app notifications.
type NotificationService struct {
	uow    UnitOfWork
	logger *zap.Logger
	now    Clock
}

// NewNotificationService constructs the service.
func NewNotificationService(uow UnitOfWork, logger *zap.Logger, clock Clock) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{uow: uow, logger: logger, now: orClock(clock)}
}

// Send creates a notification in its own unit of work.
func (s *NotificationService) Send(ctx context.Context, userID string, kind models.NotificationType, title, message string, applicationID *string) (*models.Notification, error) {
	var created *models.Notification
	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		n, err := pushNotification(ctx, r, s.now(), userID, kind, title, message, applicationID)
		created = n
		return err
	})
	if err != nil {
		return nil, mapError(err, "user not found", "failed to create notification")
	}
	return created, nil
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string) ([]models.Notification, error) {
	var out []models.Notification
	err := s.uow.View(ctx, func(r repository.Repos) error {
		var err error
		out, err = r.Notifications.ListByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, mapError(err, "notification not found", "failed to list notifications")
	}
	return out, nil
}

// MarkRead flags a notification as read. Notifications of other users are reported as missing.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	var updated *models.Notification
	err := s.uow.WithinTx(ctx, func(r repository.Repos) error {
		n, err := r.Notifications.Get(ctx, notificationID)
		if err != nil {
			return err
		}
		if n.UserID != userID {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		if n.Read {
			updated = n
			return nil
		}
		n.Read = true
		updated = n
		return r.Notifications.Update(ctx, n)
	})
	if err != nil {
		return nil, mapError(err, "notification not found", "failed to update notification")
	}
	return updated, nil
}

// pushNotification writes a notification inside the caller's unit of work.
func pushNotification(ctx context.Context, r repository.Repos, now time.Time, userID string, kind models.NotificationType, title, message string, applicationID *string) (*models.Notification, error) {
	n := &models.Notification{
		UserID:        userID,
		Type:          kind,
		Title:         title,
		Message:       message,
		ApplicationID: applicationID,
		CreatedAt:     now,
	}
	if err := r.Notifications.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}
