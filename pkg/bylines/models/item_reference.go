package models

// ItemReference is one row of the reverse index from a user or group to the
// items crediting it. Rows are rebuilt whenever an item's assignment is written.
type ItemReference struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	ItemID   uint   `gorm:"not null;index" json:"item_id"`
	Kind     string `gorm:"type:varchar(10);not null;index:idx_item_ref_lookup" json:"kind"`
	RefID    uint   `gorm:"not null;index:idx_item_ref_lookup" json:"ref_id"`
	Position int    `gorm:"not null;default:0" json:"position"`
}
