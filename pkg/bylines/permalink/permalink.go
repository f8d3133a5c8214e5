// Package permalink builds public URLs for authors and groups.
//
// Author links pass through an ordered chain of filters so other packages
// can override where "posts by" links point.
package permalink

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// AuthorLinkFilter may replace the archive link computed for a user.
// link is the value produced so far; the filter returns the link to use.
type AuthorLinkFilter func(ctx context.Context, link string, userID uint) string

// Builder builds author and group URLs
type Builder struct {
	baseURL   string
	groupBase string
	filters   []AuthorLinkFilter
}

// NewBuilder creates a builder rooted at baseURL. groupBase is the path
// prefix of group archives, e.g. "users/group".
func NewBuilder(baseURL, groupBase string) *Builder {
	return &Builder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		groupBase: strings.Trim(groupBase, "/"),
	}
}

// Use appends author link filters. Filters run in registration order.
func (b *Builder) Use(filters ...AuthorLinkFilter) {
	b.filters = append(b.filters, filters...)
}

// GroupBase returns the group archive path prefix without slashes
func (b *Builder) GroupBase() string {
	return b.groupBase
}

// DefaultAuthorURL is the unfiltered archive link of a user
func (b *Builder) DefaultAuthorURL(userID uint) string {
	return b.baseURL + "/author/" + strconv.FormatUint(uint64(userID), 10)
}

// AuthorPostsURL is the archive link of a user after all filters ran
func (b *Builder) AuthorPostsURL(ctx context.Context, userID uint) string {
	link := b.DefaultAuthorURL(userID)
	for _, filter := range b.filters {
		link = filter(ctx, link, userID)
	}
	return link
}

// GroupURL is the archive link of the group with the given slug
func (b *Builder) GroupURL(slug string) string {
	return b.baseURL + "/" + b.groupBase + "/" + url.PathEscape(slug)
}
