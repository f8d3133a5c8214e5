package models

import (
	"time"

	"gorm.io/gorm"
)

// APIKey lets scripted clients act as a user without a login session
type APIKey struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	UserID     uint           `gorm:"not null;index" json:"user_id"`
	KeyHash    string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	KeyPrefix  string         `gorm:"type:varchar(16);not null" json:"key_prefix"` // First few chars for identification
	Name       string         `json:"name"`
	LastUsedAt *time.Time     `json:"last_used_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"-"`
}
