// Package reverseindex finds the items whose author assignment names a
// given user or group.
//
// Two strategies return the same results. The index strategy reads the
// item_references join table maintained by the assignment store. The scan
// strategy preselects stored attribute values with LIKE patterns and
// decodes each candidate, so it needs no index and is usable on data
// written by other tools before a reindex.
package reverseindex

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/mikepea/bylines/pkg/bylines/assignment"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/reference"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Strategy selects how lookups are answered
type Strategy string

const (
	// StrategyIndex answers from the item_references join table
	StrategyIndex Strategy = "index"
	// StrategyScan pattern-matches the stored attribute values
	StrategyScan Strategy = "scan"
)

// Valid reports whether s is a known strategy
func (s Strategy) Valid() bool {
	return s == StrategyIndex || s == StrategyScan
}

// VisibleStatuses is the status filter used when the caller passes none
var VisibleStatuses = []models.ItemStatus{models.StatusPublish}

// Finder runs reverse lookups
type Finder struct {
	db       *gorm.DB
	strategy Strategy
}

// NewFinder creates a finder. An unknown strategy falls back to the index.
func NewFinder(db *gorm.DB, strategy Strategy) *Finder {
	if !strategy.Valid() {
		logger.L.Warn("unknown reverse index strategy, using index", zap.String("strategy", string(strategy)))
		strategy = StrategyIndex
	}
	return &Finder{db: db, strategy: strategy}
}

// Strategy returns the active strategy
func (f *Finder) Strategy() Strategy {
	return f.strategy
}

// FindItemsReferencing returns the ids of items of contentType, in one of
// statuses, whose assignment includes ref in its id set. With no statuses
// only published items are considered. The result is sorted by item id
// and has no duplicates; a malformed ref yields an empty result.
func (f *Finder) FindItemsReferencing(ctx context.Context, ref reference.Reference, contentType string, statuses ...models.ItemStatus) ([]uint, error) {
	if ref.ID == 0 || !ref.Kind.Valid() {
		return []uint{}, nil
	}
	if len(statuses) == 0 {
		statuses = VisibleStatuses
	}

	var (
		ids []uint
		err error
	)
	switch f.strategy {
	case StrategyScan:
		ids, err = f.scan(ctx, ref, contentType, statuses)
	default:
		ids, err = f.lookup(ctx, ref, contentType, statuses)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find items referencing %s: %w", ref, err)
	}
	return dedupe(ids), nil
}

// scoped restricts q to live items of contentType in statuses. It is
// applied before any value matching so the scan stays bounded.
func scoped(q *gorm.DB, itemIDColumn, contentType string, statuses []models.ItemStatus) *gorm.DB {
	return q.
		Joins("JOIN items ON items.id = "+itemIDColumn).
		Where("items.type = ?", contentType).
		Where("items.status IN ?", statuses).
		Where("items.deleted_at IS NULL")
}

func (f *Finder) lookup(ctx context.Context, ref reference.Reference, contentType string, statuses []models.ItemStatus) ([]uint, error) {
	var ids []uint
	q := scoped(f.db.WithContext(ctx).Model(&models.ItemReference{}), "item_references.item_id", contentType, statuses)
	err := q.
		Where("item_references.kind = ? AND item_references.ref_id = ?", string(ref.Kind), ref.ID).
		Order("item_references.item_id ASC").
		Pluck("item_references.item_id", &ids).Error
	return ids, err
}

func (f *Finder) scan(ctx context.Context, ref reference.Reference, contentType string, statuses []models.ItemStatus) ([]uint, error) {
	key := assignment.MetaUsers
	if ref.IsGroup() {
		key = assignment.MetaGroups
	}

	q := scoped(f.db.WithContext(ctx).Model(&models.ItemMeta{}), "item_meta.item_id", contentType, statuses).
		Where("item_meta.meta_key = ?", key)
	if patterns := LikePatterns(ref.ID); len(patterns) > 0 {
		conds := make([]string, len(patterns))
		args := make([]any, len(patterns))
		for i, p := range patterns {
			conds[i] = "item_meta.meta_value LIKE ?"
			args[i] = p
		}
		q = q.Where("("+strings.Join(conds, " OR ")+")", args...)
	}

	var rows []struct {
		ItemID    uint
		MetaValue string
	}
	err := q.
		Select("item_meta.item_id, item_meta.meta_value").
		Order("item_meta.item_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	// candidates are confirmed with the decoder the assignment store reads with
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		if slices.Contains(assignment.DecodeIDs(row.MetaValue), ref.ID) {
			ids = append(ids, row.ItemID)
		}
	}
	return ids, nil
}

// LikePatterns preselect the stored values that can decode to a set
// containing id: values holding its digits, plus any value with a decimal
// point or exponent, since a float such as 7.0 or 0.7e1 truncates to id
// without spelling it. The largest id also stands for every clamped
// out-of-range number, so no preselection is possible and nil is returned.
func LikePatterns(id uint) []string {
	if id >= math.MaxUint32 {
		return nil
	}
	return []string{
		"%" + strconv.FormatUint(uint64(id), 10) + "%",
		"%.%",
		"%e%",
		"%E%",
	}
}

// StillVisible returns the ids from ids whose item currently has one of
// statuses, keeping the input order. With no statuses only published
// items are kept.
func (f *Finder) StillVisible(ctx context.Context, ids []uint, statuses ...models.ItemStatus) ([]uint, error) {
	if len(ids) == 0 {
		return []uint{}, nil
	}
	if len(statuses) == 0 {
		statuses = VisibleStatuses
	}

	var visible []uint
	err := f.db.WithContext(ctx).Model(&models.Item{}).
		Where("id IN ? AND status IN ?", ids, statuses).
		Pluck("id", &visible).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check item visibility: %w", err)
	}

	keep := make(map[uint]bool, len(visible))
	for _, id := range visible {
		keep[id] = true
	}
	out := make([]uint, 0, len(visible))
	for _, id := range ids {
		if keep[id] {
			out = append(out, id)
			delete(keep, id)
		}
	}
	return out, nil
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
