package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tawarln-chat/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by username failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by email failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) UpdateMemory(id uint, memory string) error {
	res := r.db.Model(&model.User{}).Where("id = ?", id).Update("memory", memory)
	if res.Error != nil {
		return fmt.Errorf("update user memory failed: %w", res.Error)
	}
	return nil
}

// ClaimOwnership promotes id to owner while nobody holds the owner slot. The
// unique index on owner_slot settles concurrent claims; the loser stays a
// plain user.
func (r *UserRepository) ClaimOwnership(id uint) (bool, error) {
	taken, err := r.ownerSlotTaken()
	if err != nil || taken {
		return false, err
	}
	res := r.db.Model(&model.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"role": model.UserRoleOwner, "owner_slot": true})
	if res.Error != nil {
		if taken, err := r.ownerSlotTaken(); err == nil && taken {
			return false, nil
		}
		return false, fmt.Errorf("claim ownership failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *UserRepository) ownerSlotTaken() (bool, error) {
	var n int64
	if err := r.db.Model(&model.User{}).Where("owner_slot = ?", true).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count owners failed: %w", err)
	}
	return n > 0, nil
}
