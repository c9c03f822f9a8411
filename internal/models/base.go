package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries the uuid primary key and timestamps shared by host rows
// (users, sessions, pages). Drafts use integer ids instead.
type Base struct {
	ID        string         `json:"id"       gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time      `json:"created"`
	UpdatedAt time.Time      `json:"modified"`
	DeletedAt gorm.DeletedAt `json:"-"        gorm:"index"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// All lists every model migrated at startup.
func All() []any {
	return []any{
		&UserModel{},
		&UserSession{},
		&OptionModel{},
		&PageModel{},
		&PageRevisionModel{},
		&DraftModel{},
	}
}
