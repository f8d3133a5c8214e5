package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: users and groups must be migrated before the tables that reference them
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Group{},
		&GroupMembership{},
		&Item{},
		&ItemMeta{},
		&ItemReference{},
		&ItemTerm{},
		&APIKey{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
