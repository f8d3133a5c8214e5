package listing

import (
	"context"
	"strings"

	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/reference"
	"go.uber.org/zap"
)

// Finder answers reverse lookups for the interceptors
type Finder interface {
	FindItemsReferencing(ctx context.Context, ref reference.Reference, contentType string, statuses ...models.ItemStatus) ([]uint, error)
	StillVisible(ctx context.Context, ids []uint, statuses ...models.ItemStatus) ([]uint, error)
}

// restrict replaces the inclusion set with ids, or empties the listing
// when there are none. An empty lookup result is an answer, not a missing
// filter.
func restrict(q *Query, ids []uint) {
	if len(ids) == 0 {
		q.Empty = true
		q.Include = []uint{}
		return
	}
	q.Include = ids
}

// AuthorArchive makes the main author archive of a supported type list the
// items that credit the author through their assignment instead of the
// items the author owns.
func AuthorArchive(finder Finder, supports func(contentType string) bool) Interceptor {
	return func(ctx context.Context, q *Query) error {
		if q.Kind != KindAuthorArchive || !q.Main || q.AuthorID == 0 || !supports(q.ContentType) {
			return nil
		}
		ids, err := finder.FindItemsReferencing(ctx, reference.User(q.AuthorID), q.ContentType, q.Statuses...)
		if err != nil {
			return err
		}
		logger.L.Debug("author archive restricted",
			zap.Uint("author_id", q.AuthorID), zap.Int("items", len(ids)))
		q.AuthorID = 0
		restrict(q, ids)
		return nil
	}
}

// GroupArchive does the same for the main archive of a user group term. The
// native term filter is cleared so it is not applied a second time.
func GroupArchive(finder Finder, supports func(contentType string) bool) Interceptor {
	return func(ctx context.Context, q *Query) error {
		if q.Kind != KindGroupArchive || !q.Main || q.TermTaxonomy != models.TaxonomyUserGroup || q.TermID == 0 || !supports(q.ContentType) {
			return nil
		}
		ids, err := finder.FindItemsReferencing(ctx, reference.Group(q.TermID), q.ContentType, q.Statuses...)
		if err != nil {
			return err
		}
		logger.L.Debug("group archive restricted",
			zap.Uint("group_id", q.TermID), zap.Int("items", len(ids)))
		q.TermTaxonomy = ""
		q.TermID = 0
		restrict(q, ids)
		return nil
	}
}

// LoopFilter applies the AuthorsFilter token of a content loop. Matches are
// re-checked for visibility and intersected with any inclusion set already
// on the query. A malformed token leaves the query unfiltered.
func LoopFilter(finder Finder) Interceptor {
	return func(ctx context.Context, q *Query) error {
		token := strings.TrimSpace(q.AuthorsFilter)
		if token == "" {
			return nil
		}
		ref, ok := reference.Parse(token)
		if !ok {
			logger.L.Debug("ignoring malformed authors filter", zap.String("token", token))
			return nil
		}

		ids, err := finder.FindItemsReferencing(ctx, ref, q.ContentType, q.Statuses...)
		if err != nil {
			return err
		}
		ids, err = finder.StillVisible(ctx, ids, q.Statuses...)
		if err != nil {
			return err
		}
		if q.Include != nil {
			ids = Intersect(q.Include, ids)
		}
		restrict(q, ids)
		return nil
	}
}
