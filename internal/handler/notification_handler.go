package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, userID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) (*models.Notification, error)
}

// NotificationHandler serves the caller's in-app notifications.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List notifications, newest first
// @Tags Notifications
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	items, err := h.service.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags Notifications
// @Security BearerAuth
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	n, err := h.service.MarkRead(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, n)
}
