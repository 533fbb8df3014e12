package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"tawarln-chat/internal/model"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Append(ctx context.Context, entry *model.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append audit log failed: %w", err)
	}
	return nil
}

func (r *AuditLogRepository) ListByUserID(ctx context.Context, userID uint, limit int) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs failed: %w", err)
	}
	return logs, nil
}
