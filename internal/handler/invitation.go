package handler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"collabspace-backend/internal/auth"
	"collabspace-backend/internal/model"
)

// InvitationHandler workspace invitations and per-user notifications
type InvitationHandler struct {
	db *gorm.DB
}

// NewInvitationHandler creates an InvitationHandler
func NewInvitationHandler(db *gorm.DB) *InvitationHandler {
	return &InvitationHandler{db: db}
}

// InviteRequest invite body
type InviteRequest struct {
	WorkspaceID int64  `json:"workspaceId"`
	Email       string `json:"email"`
}

// Invite invites a user by email. Creates a PENDING invitation and a
// notification row for the invitee.
func (h *InvitationHandler) Invite(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var req InviteRequest
	if err := c.BodyParser(&req); err != nil || req.WorkspaceID == 0 || req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "workspaceId and email are required"})
	}

	var inviterMember model.WorkspaceMember
	if err := h.db.Where("workspace_id = ? AND user_id = ?", req.WorkspaceID, claims.UserID).
		First(&inviterMember).Error; err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a member of this workspace"})
	}

	var invitee model.User
	if err := h.db.Where("email = ?", req.Email).First(&invitee).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no user with that email"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to send invitation"})
	}

	var existing int64
	h.db.Model(&model.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ?", req.WorkspaceID, invitee.ID).
		Count(&existing)
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "user is already a member"})
	}

	var pending int64
	h.db.Model(&model.Invitation{}).
		Where("workspace_id = ? AND invitee_id = ? AND status = ?",
			req.WorkspaceID, invitee.ID, model.InvitationPending).
		Count(&pending)
	if pending > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invitation already pending"})
	}

	var ws model.Workspace
	if err := h.db.First(&ws, req.WorkspaceID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "workspace not found"})
	}

	inv := model.Invitation{
		WorkspaceID: req.WorkspaceID,
		InviterID:   claims.UserID,
		InviteeID:   invitee.ID,
		Status:      model.InvitationPending,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&inv).Error; err != nil {
			return err
		}
		notif := model.Notification{
			UserID:       invitee.ID,
			Type:         model.NotificationInvitation,
			Text:         fmt.Sprintf("%s invited you to %s", claims.Name, ws.Name),
			InvitationID: &inv.ID,
		}
		return tx.Create(&notif).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to send invitation"})
	}

	return c.Status(fiber.StatusCreated).JSON(inv)
}

// ListPending returns the user's pending invitations
func (h *InvitationHandler) ListPending(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var invitations []model.Invitation
	err := h.db.Preload("Workspace").Preload("Inviter").
		Where("invitee_id = ? AND status = ?", claims.UserID, model.InvitationPending).
		Order("created_at DESC").
		Find(&invitations).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list invitations"})
	}

	return c.JSON(invitations)
}

// Accept accepts an invitation and joins the workspace
func (h *InvitationHandler) Accept(c *fiber.Ctx) error {
	return h.respond(c, model.InvitationAccepted)
}

// Decline declines an invitation
func (h *InvitationHandler) Decline(c *fiber.Ctx) error {
	return h.respond(c, model.InvitationDeclined)
}

func (h *InvitationHandler) respond(c *fiber.Ctx, status string) error {
	claims := c.Locals("claims").(*auth.Claims)
	invitationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid invitation id"})
	}

	var inv model.Invitation
	if err := h.db.First(&inv, invitationID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "invitation not found"})
	}
	if inv.InviteeID != claims.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not your invitation"})
	}
	if inv.Status != model.InvitationPending {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invitation already resolved"})
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&inv).Update("status", status).Error; err != nil {
			return err
		}
		if status != model.InvitationAccepted {
			return nil
		}
		member := model.WorkspaceMember{
			WorkspaceID: inv.WorkspaceID,
			UserID:      claims.UserID,
			Role:        model.RoleMember,
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update invitation"})
	}

	return c.JSON(fiber.Map{"success": true, "status": status})
}
