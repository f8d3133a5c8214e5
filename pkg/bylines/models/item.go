package models

import (
	"time"

	"gorm.io/gorm"
)

// ItemStatus is the publication state of a content item
type ItemStatus string

const (
	StatusPublish ItemStatus = "publish"
	StatusDraft   ItemStatus = "draft"
	StatusPending ItemStatus = "pending"
	StatusPrivate ItemStatus = "private"
	StatusTrash   ItemStatus = "trash"
)

// Item represents a content item (post, page, ...)
// AuthorID is the built-in single author; the assigned authors live in ItemMeta.
type Item struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Type      string         `gorm:"type:varchar(20);not null;index:idx_item_type_status" json:"type"`
	Status    ItemStatus     `gorm:"type:varchar(20);not null;default:'draft';index:idx_item_type_status" json:"status"`
	Title     string         `json:"title"`
	Slug      string         `gorm:"index" json:"slug"`
	AuthorID  uint           `gorm:"index" json:"author_id"`

	// Relationships
	Author User       `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Meta   []ItemMeta `gorm:"foreignKey:ItemID" json:"-"`
	Terms  []ItemTerm `gorm:"foreignKey:ItemID" json:"-"`
}
