package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tawarln-chat/internal/model"
)

type ChatSessionRepository struct {
	db *gorm.DB
}

func NewChatSessionRepository(db *gorm.DB) *ChatSessionRepository {
	return &ChatSessionRepository{db: db}
}

// Upsert writes the session keyed by id. Last writer wins among the owner's
// writes; a row owned by another user is left untouched. The share flag and
// creation time of an existing row are never changed.
func (r *ChatSessionRepository) Upsert(ctx context.Context, session *model.ChatSession) error {
	if session.Version == 0 {
		session.Version = 1
	}
	// Each assignment is guarded by owner instead of an ON CONFLICT ... WHERE,
	// which MySQL's ON DUPLICATE KEY UPDATE cannot express.
	owned := func(column string, value interface{}) clause.Assignment {
		return clause.Assignment{
			Column: clause.Column{Name: column},
			Value:  gorm.Expr("CASE WHEN chat_sessions.user_id = ? THEN ? ELSE chat_sessions."+column+" END", session.UserID, value),
		}
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Set{
			owned("title", session.Title),
			owned("messages", session.Messages),
			owned("model", session.Model),
			owned("updated_at", time.Now()),
			{
				Column: clause.Column{Name: "version"},
				Value:  gorm.Expr("CASE WHEN chat_sessions.user_id = ? THEN chat_sessions.version + 1 ELSE chat_sessions.version END", session.UserID),
			},
		},
	}).Create(session).Error
	if err != nil {
		return fmt.Errorf("upsert chat session failed: %w", err)
	}
	return nil
}

// UpdateIfVersion applies the update only when the stored version matches.
// It reports whether a row was written.
func (r *ChatSessionRepository) UpdateIfVersion(ctx context.Context, session *model.ChatSession, expected int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("id = ? AND user_id = ? AND version = ?", session.ID, session.UserID, expected).
		Updates(map[string]interface{}{
			"title":      session.Title,
			"messages":   session.Messages,
			"model":      session.Model,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("update chat session failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *ChatSessionRepository) ListByUserID(ctx context.Context, userID uint) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list chat sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *ChatSessionRepository) GetByID(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat session failed: %w", err)
	}
	return &session, nil
}

func (r *ChatSessionRepository) GetShared(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.WithContext(ctx).Where("id = ? AND is_shared = ?", id, true).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get shared chat session failed: %w", err)
	}
	return &session, nil
}

func (r *ChatSessionRepository) SetShared(ctx context.Context, id string, userID uint, shared bool) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_shared", shared)
	if res.Error != nil {
		return false, fmt.Errorf("share chat session failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *ChatSessionRepository) DeleteByIDAndUserID(ctx context.Context, id string, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.ChatSession{})
	if res.Error != nil {
		return false, fmt.Errorf("delete chat session failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
