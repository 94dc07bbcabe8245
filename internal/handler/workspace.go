package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"collabspace-backend/internal/auth"
	"collabspace-backend/internal/model"
	"collabspace-backend/internal/presence"
)

// WorkspaceHandler workspace CRUD and membership
type WorkspaceHandler struct {
	db     *gorm.DB
	status *presence.StatusManager
}

// NewWorkspaceHandler creates a WorkspaceHandler. status may be nil.
func NewWorkspaceHandler(db *gorm.DB, status *presence.StatusManager) *WorkspaceHandler {
	return &WorkspaceHandler{db: db, status: status}
}

// CreateWorkspaceRequest workspace creation body
type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

// MemberResponse workspace member with live status
type MemberResponse struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Online bool   `json:"online"`
}

// Create makes a workspace and adds the creator as OWNER
func (h *WorkspaceHandler) Create(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var req CreateWorkspaceRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "workspace name is required"})
	}

	ws := model.Workspace{Name: req.Name, OwnerID: claims.UserID}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ws).Error; err != nil {
			return err
		}
		member := model.WorkspaceMember{WorkspaceID: ws.ID, UserID: claims.UserID, Role: model.RoleOwner}
		return tx.Create(&member).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create workspace"})
	}

	return c.Status(fiber.StatusCreated).JSON(ws)
}

// List returns workspaces the user belongs to
func (h *WorkspaceHandler) List(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var workspaces []model.Workspace
	err := h.db.
		Joins("JOIN workspace_members ON workspace_members.workspace_id = workspaces.id").
		Where("workspace_members.user_id = ?", claims.UserID).
		Order("workspaces.created_at DESC").
		Find(&workspaces).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list workspaces"})
	}

	return c.JSON(workspaces)
}

// Get returns a single workspace the user belongs to
func (h *WorkspaceHandler) Get(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	workspaceID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid workspace id"})
	}

	if !h.isMember(workspaceID, claims.UserID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a member of this workspace"})
	}

	var ws model.Workspace
	if err := h.db.First(&ws, workspaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "workspace not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load workspace"})
	}

	return c.JSON(ws)
}

// Members returns workspace members annotated with online status
func (h *WorkspaceHandler) Members(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	workspaceID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid workspace id"})
	}

	if !h.isMember(workspaceID, claims.UserID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a member of this workspace"})
	}

	type memberRow struct {
		UserID int64
		Name   string
		Email  string
		Role   string
	}
	var rows []memberRow
	err = h.db.Table("workspace_members").
		Select("workspace_members.user_id, users.name, users.email, workspace_members.role").
		Joins("JOIN users ON users.id = workspace_members.user_id").
		Where("workspace_members.workspace_id = ?", workspaceID).
		Order("users.name ASC").
		Scan(&rows).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list members"})
	}

	online := map[int64]bool{}
	if h.status != nil {
		ids := make([]int64, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.UserID)
		}
		if statuses, err := h.status.GetMulti(c.Context(), ids); err == nil {
			for id, data := range statuses {
				online[id] = data != nil
			}
		}
	}

	members := make([]MemberResponse, 0, len(rows))
	for _, r := range rows {
		members = append(members, MemberResponse{
			UserID: r.UserID,
			Name:   r.Name,
			Email:  r.Email,
			Role:   r.Role,
			Online: online[r.UserID],
		})
	}

	return c.JSON(members)
}

// Leave removes the user from the workspace. Owners cannot leave.
func (h *WorkspaceHandler) Leave(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	workspaceID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid workspace id"})
	}

	var member model.WorkspaceMember
	if err := h.db.Where("workspace_id = ? AND user_id = ?", workspaceID, claims.UserID).
		First(&member).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not a member of this workspace"})
	}
	if member.Role == model.RoleOwner {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "owner cannot leave the workspace"})
	}

	if err := h.db.Delete(&member).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to leave workspace"})
	}

	return c.JSON(fiber.Map{"success": true})
}

func (h *WorkspaceHandler) isMember(workspaceID, userID int64) bool {
	var count int64
	h.db.Model(&model.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Count(&count)
	return count > 0
}
