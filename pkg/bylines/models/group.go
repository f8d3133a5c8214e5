package models

import (
	"time"

	"gorm.io/gorm"
)

// Group represents a named user group that can be credited as an author
type Group struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Name        string         `gorm:"not null" json:"name"`
	Slug        string         `gorm:"uniqueIndex;not null" json:"slug"`
	Description string         `json:"description"`

	// Relationships
	Members []GroupMembership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
}

// TableName specifies the database table name for the Group model.
// "groups" is a reserved word in MySQL 8.
func (Group) TableName() string {
	return "user_groups"
}
