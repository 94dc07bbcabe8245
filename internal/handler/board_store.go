package handler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"collabspace-backend/internal/model"
)

// gormBoardStore is the postgres-backed authoritative board store.
// Segments are append-only rows; accepted order is row insertion order.
type gormBoardStore struct {
	db *gorm.DB
}

// NewBoardStore wraps a gorm handle as a BoardStore
func NewBoardStore(db *gorm.DB) BoardStore {
	return &gormBoardStore{db: db}
}

func (s *gormBoardStore) AppendSegment(ctx context.Context, boardID string, seg Segment) (time.Time, error) {
	id, err := strconv.ParseInt(boardID, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid board id %q: %w", boardID, err)
	}

	now := time.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Board{}).Where("id = ?", id).Update("updated_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Create(&model.BoardSegment{
			BoardID: id,
			X0:      seg.X0,
			Y0:      seg.Y0,
			X1:      seg.X1,
			Y1:      seg.Y1,
			Color:   seg.Color,
			Width:   seg.Width,
		}).Error
	})
	if err != nil {
		return time.Time{}, err
	}

	return now, nil
}

func (s *gormBoardStore) ClearSegments(ctx context.Context, boardID string) (time.Time, error) {
	id, err := strconv.ParseInt(boardID, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid board id %q: %w", boardID, err)
	}

	now := time.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Board{}).Where("id = ?", id).Update("updated_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Where("board_id = ?", id).Delete(&model.BoardSegment{}).Error
	})
	if err != nil {
		return time.Time{}, err
	}

	return now, nil
}

// gormMembership answers workspace-membership checks from the members
// table. Read-only.
type gormMembership struct {
	db *gorm.DB
}

// NewMembershipChecker wraps a gorm handle as a MembershipChecker
func NewMembershipChecker(db *gorm.DB) MembershipChecker {
	return &gormMembership{db: db}
}

func (m *gormMembership) IsMember(ctx context.Context, roomID string, userID int64) (bool, error) {
	workspaceID, err := strconv.ParseInt(roomID, 10, 64)
	if err != nil {
		return false, nil // malformed room id is simply not a workspace
	}

	var count int64
	if err := m.db.WithContext(ctx).Model(&model.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}
