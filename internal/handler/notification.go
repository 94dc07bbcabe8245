package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"collabspace-backend/internal/auth"
	"collabspace-backend/internal/model"
)

// NotificationHandler per-user notification feed
type NotificationHandler struct {
	db *gorm.DB
}

// NewNotificationHandler creates a NotificationHandler
func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

// List returns the user's notifications, newest first
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var notifications []model.Notification
	err := h.db.Where("user_id = ?", claims.UserID).
		Order("created_at DESC").
		Limit(100).
		Find(&notifications).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list notifications"})
	}

	return c.JSON(notifications)
}

// MarkRead flags one notification as read
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	notificationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid notification id"})
	}

	result := h.db.Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, claims.UserID).
		Update("is_read", true)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update notification"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "notification not found"})
	}

	return c.JSON(fiber.Map{"success": true})
}

// MarkAllRead flags every unread notification as read
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	err := h.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = false", claims.UserID).
		Update("is_read", true).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update notifications"})
	}

	return c.JSON(fiber.Map{"success": true})
}
