package model

import (
	"time"

	"gorm.io/datatypes"
)

const AuditActionAddKnowledge = "add_knowledge"

// AuditLog is append-only.
type AuditLog struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Action    string         `gorm:"size:64;not null;index" json:"action"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}
