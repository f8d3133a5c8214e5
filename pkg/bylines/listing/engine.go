// Package listing runs filterable item queries. Interceptors registered
// with Engine.Use rewrite a Query before it reaches the database; this is
// how author assignments take over archive pages and content loops.
package listing

import (
	"context"
	"fmt"
	"sort"

	"github.com/mikepea/bylines/pkg/bylines/models"
	"gorm.io/gorm"
)

// Kind tells interceptors what a query is for
type Kind string

const (
	// KindLoop is a content loop or its API preview
	KindLoop Kind = "loop"
	// KindAuthorArchive lists the items of one author
	KindAuthorArchive Kind = "author"
	// KindGroupArchive lists the items of one user group term
	KindGroupArchive Kind = "group"
)

// Sort orders
const (
	OrderByDate    = "date"
	OrderByTitle   = "title"
	OrderByInclude = "include"
)

// Query describes a listing
type Query struct {
	Kind        Kind
	ContentType string
	Statuses    []models.ItemStatus

	// AuthorID is the native single-author filter on items.author_id
	AuthorID uint
	// TermTaxonomy and TermID are the native term filter on item_terms
	TermTaxonomy string
	TermID       uint
	// Include restricts results to these ids when non-nil. An empty non-nil
	// Include matches nothing.
	Include []uint
	// Empty forces zero results
	Empty bool
	// AuthorsFilter is a "user-<id>" or "group-<id>" token
	AuthorsFilter string

	OrderBy string
	Limit   int
	Offset  int
	// Main marks the primary query of an archive page
	Main bool
}

// Interceptor may rewrite q before it runs
type Interceptor func(ctx context.Context, q *Query) error

// Engine runs listing queries
type Engine struct {
	db           *gorm.DB
	interceptors []Interceptor
}

// NewEngine creates a listing engine
func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// Use appends interceptors. They run in registration order.
func (e *Engine) Use(interceptors ...Interceptor) {
	e.interceptors = append(e.interceptors, interceptors...)
}

// Prepare applies defaults and every interceptor to q
func (e *Engine) Prepare(ctx context.Context, q Query) (Query, error) {
	if q.ContentType == "" {
		q.ContentType = "post"
	}
	if len(q.Statuses) == 0 {
		q.Statuses = []models.ItemStatus{models.StatusPublish}
	}
	if q.OrderBy == "" {
		q.OrderBy = OrderByDate
	}
	for _, intercept := range e.interceptors {
		if err := intercept(ctx, &q); err != nil {
			return q, err
		}
		if q.Empty {
			break
		}
	}
	return q, nil
}

// Run prepares q and returns the matching items with their built-in author loaded
func (e *Engine) Run(ctx context.Context, q Query) ([]models.Item, error) {
	q, err := e.Prepare(ctx, q)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, q)
}

func (e *Engine) execute(ctx context.Context, q Query) ([]models.Item, error) {
	if q.Empty || (q.Include != nil && len(q.Include) == 0) {
		return []models.Item{}, nil
	}

	tx := e.db.WithContext(ctx).Model(&models.Item{}).
		Preload("Author").
		Where("items.type = ?", q.ContentType).
		Where("items.status IN ?", q.Statuses)
	if q.AuthorID != 0 {
		tx = tx.Where("items.author_id = ?", q.AuthorID)
	}
	if q.TermID != 0 {
		tx = tx.Where("EXISTS (SELECT 1 FROM item_terms WHERE item_terms.item_id = items.id AND item_terms.taxonomy = ? AND item_terms.term_id = ?)",
			q.TermTaxonomy, q.TermID)
	}
	if q.Include != nil {
		tx = tx.Where("items.id IN ?", q.Include)
	}

	var items []models.Item
	switch q.OrderBy {
	case OrderByInclude:
		if q.Include == nil {
			tx = tx.Order("items.id ASC")
			break
		}
		// id-set order cannot be expressed portably in SQL
		if err := tx.Find(&items).Error; err != nil {
			return nil, fmt.Errorf("failed to list items: %w", err)
		}
		sortByInclude(items, q.Include)
		return paginate(items, q.Offset, q.Limit), nil
	case OrderByTitle:
		tx = tx.Order("items.title ASC").Order("items.id ASC")
	default:
		tx = tx.Order("items.created_at DESC").Order("items.id DESC")
	}

	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if err := tx.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func sortByInclude(items []models.Item, include []uint) {
	rank := make(map[uint]int, len(include))
	for i, id := range include {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return rank[items[i].ID] < rank[items[j].ID]
	})
}

func paginate(items []models.Item, offset, limit int) []models.Item {
	if offset >= len(items) {
		return []models.Item{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Intersect keeps the ids of existing that are also in matches, in the
// order of existing
func Intersect(existing, matches []uint) []uint {
	want := make(map[uint]bool, len(matches))
	for _, id := range matches {
		want[id] = true
	}
	out := make([]uint, 0, len(existing))
	for _, id := range existing {
		if want[id] {
			out = append(out, id)
			delete(want, id)
		}
	}
	return out
}
