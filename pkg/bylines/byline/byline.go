// Package byline turns an item's author assignment into the text and link
// shown as its byline.
package byline

import (
	"context"
	"errors"
	"strings"

	"github.com/mikepea/bylines/pkg/bylines/assignment"
	"github.com/mikepea/bylines/pkg/bylines/identity"
	"github.com/mikepea/bylines/pkg/bylines/logger"
	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/permalink"
	"github.com/mikepea/bylines/pkg/bylines/reference"
	"go.uber.org/zap"
)

// Directory resolves the identities named by an assignment
type Directory interface {
	UserDisplayName(ctx context.Context, id uint) (string, error)
	GroupInfo(ctx context.Context, id uint) (identity.GroupInfo, error)
	UserArchiveLink(ctx context.Context, id uint) (string, error)
	GroupArchiveLink(ctx context.Context, id uint) (string, error)
}

// Assignments loads the assignment of an item
type Assignments interface {
	Get(ctx context.Context, itemID uint) (assignment.Assignment, error)
}

// Engine resolves bylines
type Engine struct {
	dir         Directory
	assignments Assignments
	links       *permalink.Builder
}

// NewEngine creates a byline engine
func NewEngine(dir Directory, assignments Assignments, links *permalink.Builder) *Engine {
	return &Engine{dir: dir, assignments: assignments, links: links}
}

// Byline is the rendered author credit of an item
type Byline struct {
	Display string `json:"display"`
	Link    string `json:"link"`
}

type ctxKey int

const (
	itemKey ctxKey = iota
	resolvingKey
)

// WithItem marks ctx as rendering the given item. The author link filter
// only rewrites links inside such a context.
func WithItem(ctx context.Context, itemID uint) context.Context {
	return context.WithValue(ctx, itemKey, itemID)
}

// ItemFrom returns the item set by WithItem
func ItemFrom(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(itemKey).(uint)
	return id, ok && id != 0
}

func resolving(ctx context.Context) bool {
	v, _ := ctx.Value(resolvingKey).(bool)
	return v
}

// Display returns the names of the assigned authors joined for display, or
// "" when nothing resolves. Order entries missing from their id set and
// identities that cannot be looked up are skipped.
func (e *Engine) Display(ctx context.Context, a assignment.Assignment) string {
	if a.IsEmpty() {
		return ""
	}

	var refs []reference.Reference
	if len(a.Order) > 0 {
		refs = a.OrderedReferences()
	} else {
		refs = unorderedReferences(a)
	}

	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		if name := e.name(ctx, ref); name != "" {
			names = append(names, name)
		}
	}
	return JoinNames(names)
}

// unorderedReferences lists all groups and then all users in stored order
func unorderedReferences(a assignment.Assignment) []reference.Reference {
	refs := make([]reference.Reference, 0, len(a.Groups)+len(a.Users))
	seen := make(map[reference.Reference]bool)
	add := func(ref reference.Reference) {
		if ref.ID != 0 && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	for _, id := range a.Groups {
		add(reference.Group(id))
	}
	for _, id := range a.Users {
		add(reference.User(id))
	}
	return refs
}

func (e *Engine) name(ctx context.Context, ref reference.Reference) string {
	var (
		name string
		err  error
	)
	if ref.IsGroup() {
		var info identity.GroupInfo
		info, err = e.dir.GroupInfo(ctx, ref.ID)
		name = info.Name
	} else {
		name, err = e.dir.UserDisplayName(ctx, ref.ID)
	}
	if err != nil {
		logger.L.Debug("byline entry skipped", zap.Stringer("ref", ref), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(name)
}

// JoinNames joins names as "A", "A and B" or "A, B and C"
func JoinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	last := len(names) - 1
	return strings.Join(names[:last], ", ") + " and " + names[last]
}

// LinkTarget returns the link of the first assigned author. The first order
// entry wins when it is still in its id set and resolves; otherwise the
// first group, then the first user is used. fallback is returned when
// nothing resolves, and also when ctx is already inside a LinkTarget call,
// which happens when resolving a user link runs the author link filter
// again.
func (e *Engine) LinkTarget(ctx context.Context, a assignment.Assignment, fallback string) string {
	if resolving(ctx) {
		return fallback
	}
	ctx = context.WithValue(ctx, resolvingKey, true)

	if len(a.Order) > 0 {
		if ref, ok := reference.Parse(a.Order[0]); ok && a.Contains(ref) {
			link, err := e.link(ctx, ref)
			if err == nil {
				return link
			}
			logger.L.Debug("first byline entry has no link", zap.Stringer("ref", ref), zap.Error(err))
		}
	}

	for _, id := range a.Groups {
		if id == 0 {
			continue
		}
		if link, err := e.link(ctx, reference.Group(id)); err == nil {
			return link
		}
		break
	}
	for _, id := range a.Users {
		if id == 0 {
			continue
		}
		if link, err := e.link(ctx, reference.User(id)); err == nil {
			return link
		}
		break
	}
	return fallback
}

func (e *Engine) link(ctx context.Context, ref reference.Reference) (string, error) {
	if ref.IsGroup() {
		return e.dir.GroupArchiveLink(ctx, ref.ID)
	}
	return e.dir.UserArchiveLink(ctx, ref.ID)
}

// AuthorLinkFilter rewrites author archive links built while rendering an
// item so they point at that item's first assigned author. Register it
// with permalink.Builder.Use.
func (e *Engine) AuthorLinkFilter(ctx context.Context, link string, userID uint) string {
	if resolving(ctx) {
		return link
	}
	itemID, ok := ItemFrom(ctx)
	if !ok {
		return link
	}
	a, err := e.assignments.Get(ctx, itemID)
	if err != nil {
		if !errors.Is(err, assignment.ErrUnsupportedType) {
			logger.L.Debug("author link left unchanged", zap.Uint("item_id", itemID), zap.Error(err))
		}
		return link
	}
	return e.LinkTarget(ctx, a, link)
}

// ItemByline renders the byline of an item. item.Author must be loaded; it
// is the credit used whenever the assignment is empty or does not resolve.
func (e *Engine) ItemByline(ctx context.Context, item models.Item) Byline {
	ctx = WithItem(ctx, item.ID)
	b := Byline{Display: item.Author.Name}

	a, err := e.assignments.Get(ctx, item.ID)
	if err == nil {
		if display := e.Display(ctx, a); display != "" {
			b.Display = display
		}
	} else if !errors.Is(err, assignment.ErrUnsupportedType) {
		logger.L.Warn("falling back to built-in author", zap.Uint("item_id", item.ID), zap.Error(err))
	}

	b.Link = e.links.AuthorPostsURL(ctx, item.AuthorID)
	return b
}
