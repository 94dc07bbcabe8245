package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"collabspace-backend/internal/auth"
	"collabspace-backend/internal/model"
)

// BoardHandler board CRUD and segment history
type BoardHandler struct {
	db *gorm.DB
}

// NewBoardHandler creates a BoardHandler
func NewBoardHandler(db *gorm.DB) *BoardHandler {
	return &BoardHandler{db: db}
}

// CreateBoardRequest board creation body
type CreateBoardRequest struct {
	WorkspaceID int64  `json:"workspaceId"`
	Title       string `json:"title"`
}

// RenameBoardRequest board rename body
type RenameBoardRequest struct {
	Title string `json:"title"`
}

// Create makes a board in a workspace the user belongs to
func (h *BoardHandler) Create(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var req CreateBoardRequest
	if err := c.BodyParser(&req); err != nil || req.WorkspaceID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "workspaceId is required"})
	}

	if !h.isMember(req.WorkspaceID, claims.UserID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a member of this workspace"})
	}

	board := model.Board{WorkspaceID: req.WorkspaceID}
	if req.Title != "" {
		board.Title = req.Title
	}
	if err := h.db.Create(&board).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create board"})
	}

	return c.Status(fiber.StatusCreated).JSON(board)
}

// ListByWorkspace returns a workspace's boards
func (h *BoardHandler) ListByWorkspace(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	workspaceID, err := strconv.ParseInt(c.Params("workspaceId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid workspace id"})
	}

	if !h.isMember(workspaceID, claims.UserID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a member of this workspace"})
	}

	var boards []model.Board
	if err := h.db.Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").Find(&boards).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list boards"})
	}

	return c.JSON(boards)
}

// Get returns a board with its full segment history in persisted order.
// This is the page-load read that a client replays before joining the
// board over the socket.
func (h *BoardHandler) Get(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	boardID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid board id"})
	}

	var board model.Board
	if err := h.db.First(&board, boardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "board not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load board"})
	}

	if !h.isMember(board.WorkspaceID, claims.UserID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a member of this workspace"})
	}

	var segments []model.BoardSegment
	if err := h.db.Where("board_id = ?", boardID).
		Order("id ASC").Find(&segments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load segments"})
	}
	board.Segments = segments

	return c.JSON(board)
}

// Rename updates a board title
func (h *BoardHandler) Rename(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	boardID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid board id"})
	}

	var req RenameBoardRequest
	if err := c.BodyParser(&req); err != nil || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}

	board, status, msg := h.loadMemberBoard(boardID, claims.UserID)
	if board == nil {
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}

	if err := h.db.Model(board).Update("title", req.Title).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to rename board"})
	}

	return c.JSON(board)
}

// Delete removes a board and its segments
func (h *BoardHandler) Delete(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	boardID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid board id"})
	}

	board, status, msg := h.loadMemberBoard(boardID, claims.UserID)
	if board == nil {
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("board_id = ?", boardID).Delete(&model.BoardSegment{}).Error; err != nil {
			return err
		}
		return tx.Delete(board).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete board"})
	}

	return c.JSON(fiber.Map{"success": true})
}

func (h *BoardHandler) loadMemberBoard(boardID, userID int64) (*model.Board, int, string) {
	var board model.Board
	if err := h.db.First(&board, boardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.StatusNotFound, "board not found"
		}
		return nil, fiber.StatusInternalServerError, "failed to load board"
	}
	if !h.isMember(board.WorkspaceID, userID) {
		return nil, fiber.StatusForbidden, "not a member of this workspace"
	}
	return &board, 0, ""
}

func (h *BoardHandler) isMember(workspaceID, userID int64) bool {
	var count int64
	h.db.Model(&model.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Count(&count)
	return count > 0
}
