package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"collabspace-backend/internal/auth"
	"collabspace-backend/internal/model"
)

// ChatHandler workspace chat history over REST
type ChatHandler struct {
	db *gorm.DB
}

// NewChatHandler creates a ChatHandler
func NewChatHandler(db *gorm.DB) *ChatHandler {
	return &ChatHandler{db: db}
}

// MessageResponse chat message with sender name
type MessageResponse struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspaceId"`
	SenderID    int64     `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
}

// History returns workspace messages newest-first, paged with
// ?limit= and ?before=<message id>.
func (h *ChatHandler) History(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	workspaceID, err := strconv.ParseInt(c.Params("workspaceId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid workspace id"})
	}

	var count int64
	h.db.Model(&model.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ?", workspaceID, claims.UserID).
		Count(&count)
	if count == 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a member of this workspace"})
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := h.db.Table("messages").
		Select("messages.id, messages.workspace_id, messages.sender_id, users.name AS sender_name, messages.text, messages.created_at").
		Joins("JOIN users ON users.id = messages.sender_id").
		Where("messages.workspace_id = ?", workspaceID)

	if before := c.QueryInt("before", 0); before > 0 {
		query = query.Where("messages.id < ?", before)
	}

	var messages []MessageResponse
	if err := query.Order("messages.id DESC").Limit(limit).Scan(&messages).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load messages"})
	}

	return c.JSON(messages)
}
