package models

// ItemMeta is one entry of an item's schemaless attribute bag
// MetaValue holds either a scalar or a serialized sequence; nothing about it is indexed.
type ItemMeta struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	ItemID    uint   `gorm:"not null;index:idx_item_meta_key" json:"item_id"`
	MetaKey   string `gorm:"type:varchar(191);not null;index:idx_item_meta_key;index" json:"meta_key"`
	MetaValue string `gorm:"type:text" json:"meta_value"`
}

// TableName specifies the database table name for the ItemMeta model
func (ItemMeta) TableName() string {
	return "item_meta"
}
