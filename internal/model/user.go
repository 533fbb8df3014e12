package model

import "time"

const (
	UserRoleUser  = "user"
	UserRoleAdmin = "admin"
	UserRoleOwner = "owner"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:16;not null;default:user" json:"role"`
	Memory       string    `gorm:"type:text" json:"memory"`
	// OwnerSlot is true on the single owner row and NULL elsewhere.
	OwnerSlot    *bool     `gorm:"uniqueIndex" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func IsPrivilegedRole(role string) bool {
	return role == UserRoleAdmin || role == UserRoleOwner
}
