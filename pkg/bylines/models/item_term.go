package models

// TaxonomyUserGroup is the taxonomy name user groups are exposed under
const TaxonomyUserGroup = "user-group"

// ItemTerm attaches a taxonomy term to an item
// This is the listing engine's native term relationship and is independent of author assignments.
type ItemTerm struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	ItemID   uint   `gorm:"not null;uniqueIndex:idx_item_term" json:"item_id"`
	Taxonomy string `gorm:"type:varchar(32);not null;uniqueIndex:idx_item_term" json:"taxonomy"`
	TermID   uint   `gorm:"not null;uniqueIndex:idx_item_term" json:"term_id"`
}
