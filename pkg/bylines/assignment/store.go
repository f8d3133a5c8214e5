package assignment

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mikepea/bylines/pkg/bylines/auth"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/meta"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/reference"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrPermissionDenied is returned when the actor may not edit assignments
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnsupportedType is returned for items whose type carries no assignment
	ErrUnsupportedType = errors.New("content type does not support author assignment")
	// ErrItemNotFound is returned when the item does not exist
	ErrItemNotFound = errors.New("item not found")
)

// Store is the assignment view over the item attribute store
type Store struct {
	db           *gorm.DB
	meta         *meta.Store
	contentTypes map[string]bool
}

// NewStore creates an assignment store for the given content types
func NewStore(db *gorm.DB, contentTypes []string) *Store {
	types := make(map[string]bool, len(contentTypes))
	for _, t := range contentTypes {
		types[t] = true
	}
	return &Store{db: db, meta: meta.NewStore(db), contentTypes: types}
}

// Supports reports whether items of itemType carry an assignment
func (s *Store) Supports(itemType string) bool {
	return s.contentTypes[itemType]
}

// ContentTypes lists the supported content types
func (s *Store) ContentTypes() []string {
	types := make([]string, 0, len(s.contentTypes))
	for t := range s.contentTypes {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (s *Store) item(ctx context.Context, itemID uint) (models.Item, error) {
	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return item, ErrItemNotFound
		}
		return item, fmt.Errorf("failed to load item %d: %w", itemID, err)
	}
	if !s.Supports(item.Type) {
		return item, ErrUnsupportedType
	}
	return item, nil
}

// Get returns the assignment of an item. Unset fields are empty sequences.
func (s *Store) Get(ctx context.Context, itemID uint) (Assignment, error) {
	if _, err := s.item(ctx, itemID); err != nil {
		return Assignment{}, err
	}
	return read(ctx, s.meta, itemID)
}

func read(ctx context.Context, m *meta.Store, itemID uint) (Assignment, error) {
	values, err := m.GetAll(ctx, itemID)
	if err != nil {
		return Assignment{}, fmt.Errorf("failed to read assignment of item %d: %w", itemID, err)
	}
	return Assignment{
		Users:  DecodeIDs(values[MetaUsers]),
		Groups: DecodeIDs(values[MetaGroups]),
		Order:  DecodeTokens(values[MetaOrder]),
	}, nil
}

// Set applies a partial update and returns the resulting assignment. Each
// field present in the patch is sanitized and stored independently; the
// order list is not reconciled with the id sets. The reference index of
// the item is rebuilt in the same transaction.
func (s *Store) Set(ctx context.Context, actor auth.Principal, itemID uint, patch Patch) (Assignment, error) {
	if !actor.Can(auth.CapEditPosts) {
		logger.L.Warn("assignment write refused",
			zap.Uint("item_id", itemID),
			zap.Uint("user_id", actor.UserID),
			zap.String("role", string(actor.Role)))
		return Assignment{}, ErrPermissionDenied
	}
	if _, err := s.item(ctx, itemID); err != nil {
		return Assignment{}, err
	}

	var result Assignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := s.meta.WithTx(tx)
		current, err := read(ctx, m, itemID)
		if err != nil {
			return err
		}

		if patch.Users != nil {
			current.Users = SanitizeIDs(patch.Users)
			if err := m.Set(ctx, itemID, MetaUsers, EncodeIDs(current.Users)); err != nil {
				return err
			}
		}
		if patch.Groups != nil {
			current.Groups = SanitizeIDs(patch.Groups)
			if err := m.Set(ctx, itemID, MetaGroups, EncodeIDs(current.Groups)); err != nil {
				return err
			}
		}
		if patch.Order != nil {
			current.Order = SanitizeTokens(patch.Order)
			if err := m.Set(ctx, itemID, MetaOrder, EncodeTokens(current.Order)); err != nil {
				return err
			}
		}

		result = current
		return writeReferences(ctx, tx, itemID, current)
	})
	if err != nil {
		return Assignment{}, fmt.Errorf("failed to write assignment of item %d: %w", itemID, err)
	}
	return result, nil
}

// writeReferences replaces the item's rows in the reference index
func writeReferences(ctx context.Context, tx *gorm.DB, itemID uint, a Assignment) error {
	if err := tx.WithContext(ctx).Where("item_id = ?", itemID).Delete(&models.ItemReference{}).Error; err != nil {
		return err
	}
	refs := a.References()
	if len(refs) == 0 {
		return nil
	}
	rows := make([]models.ItemReference, len(refs))
	for i, ref := range refs {
		rows[i] = models.ItemReference{
			ItemID:   itemID,
			Kind:     string(ref.Kind),
			RefID:    ref.ID,
			Position: i,
		}
	}
	return tx.WithContext(ctx).Create(&rows).Error
}

// EnsureDefault gives a fresh item its first author. When neither id set has
// entries the acting user is assigned, falling back to the item's built-in
// author. The write is gated like Set. changed is false when the item
// already had an assignment or no author could be picked.
func (s *Store) EnsureDefault(ctx context.Context, actor auth.Principal, itemID uint) (a Assignment, changed bool, err error) {
	item, err := s.item(ctx, itemID)
	if err != nil {
		return Assignment{}, false, err
	}
	current, err := read(ctx, s.meta, itemID)
	if err != nil {
		return Assignment{}, false, err
	}
	if !current.IsEmpty() {
		return current, false, nil
	}

	authorID := actor.UserID
	if authorID == 0 {
		authorID = item.AuthorID
	}
	if authorID == 0 {
		return current, false, nil
	}

	a, err = s.Set(ctx, actor, itemID, Patch{
		Users: []any{authorID},
		Order: []any{reference.User(authorID).String()},
	})
	if err != nil {
		return Assignment{}, false, err
	}
	return a, true, nil
}

// Reindex rebuilds the reference index of every item of a supported type
// from its stored attributes. Use it after attributes were written by
// anything other than Set. It returns the number of items processed.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Item{}).
		Where("type IN ?", s.ContentTypes()).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to list items: %w", err)
	}

	for _, id := range ids {
		if err := s.ReindexItem(ctx, id); err != nil {
			return 0, err
		}
	}
	logger.L.Info("reference index rebuilt", zap.Int("items", len(ids)))
	return len(ids), nil
}

// ReindexItem rebuilds the reference index rows of one item
func (s *Store) ReindexItem(ctx context.Context, itemID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := read(ctx, s.meta.WithTx(tx), itemID)
		if err != nil {
			return err
		}
		if err := writeReferences(ctx, tx, itemID, a); err != nil {
			return fmt.Errorf("failed to index item %d: %w", itemID, err)
		}
		return nil
	})
}

// Purge removes every stored attribute and index row of an item that is
// being deleted
func (s *Store) Purge(ctx context.Context, itemID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.meta.WithTx(tx).DeleteItem(ctx, itemID); err != nil {
			return err
		}
		return tx.Where("item_id = ?", itemID).Delete(&models.ItemReference{}).Error
	})
}

// WithTx returns a copy of the store bound to tx
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, meta: s.meta.WithTx(tx), contentTypes: s.contentTypes}
}
