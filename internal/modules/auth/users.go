package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mx-space/drafts/internal/models"
)

// UserStore loads and records editor accounts.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*models.UserModel, error)
	Create(ctx context.Context, u *models.UserModel) error
	RecordLogin(ctx context.Context, userID, ip string, at time.Time) error
}

// GormUsers is the users table.
type GormUsers struct{ db *gorm.DB }

func NewGormUsers(db *gorm.DB) *GormUsers { return &GormUsers{db: db} }

// FindByUsername returns (nil, nil) when no such user exists.
func (s *GormUsers) FindByUsername(ctx context.Context, username string) (*models.UserModel, error) {
	var u models.UserModel
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *GormUsers) Create(ctx context.Context, u *models.UserModel) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *GormUsers) RecordLogin(ctx context.Context, userID, ip string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_time": at,
			"last_login_ip":   ip,
		}).Error
}
