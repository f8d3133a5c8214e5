// Package meta is the generic per-item attribute store.
//
// Every key is read and written independently. Values are opaque strings;
// callers decide how to serialize them.
package meta

import (
	"context"
	"errors"

	"github.com/mikepea/bylines/pkg/bylines/models"
	"gorm.io/gorm"
)

// Store reads and writes item_meta rows
type Store struct {
	db *gorm.DB
}

// NewStore creates a new attribute store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to tx
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Get returns the value stored under key. ok is false when the key was never set.
// If several rows exist for the key, the oldest one wins.
func (s *Store) Get(ctx context.Context, itemID uint, key string) (string, bool, error) {
	var row models.ItemMeta
	err := s.db.WithContext(ctx).
		Where("item_id = ? AND meta_key = ?", itemID, key).
		Order("id ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.MetaValue, true, nil
}

// GetAll returns every key of an item; the oldest row wins for duplicated keys
func (s *Store) GetAll(ctx context.Context, itemID uint) (map[string]string, error) {
	var rows []models.ItemMeta
	if err := s.db.WithContext(ctx).Where("item_id = ?", itemID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		if _, seen := values[row.MetaKey]; !seen {
			values[row.MetaKey] = row.MetaValue
		}
	}
	return values, nil
}

// Set replaces whatever is stored under key with value
func (s *Store) Set(ctx context.Context, itemID uint, key, value string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ? AND meta_key = ?", itemID, key).Delete(&models.ItemMeta{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.ItemMeta{ItemID: itemID, MetaKey: key, MetaValue: value}).Error
	})
}

// Delete removes every row stored under key
func (s *Store) Delete(ctx context.Context, itemID uint, key string) error {
	return s.db.WithContext(ctx).Where("item_id = ? AND meta_key = ?", itemID, key).Delete(&models.ItemMeta{}).Error
}

// DeleteItem removes the whole attribute bag of an item
func (s *Store) DeleteItem(ctx context.Context, itemID uint) error {
	return s.db.WithContext(ctx).Where("item_id = ?", itemID).Delete(&models.ItemMeta{}).Error
}
