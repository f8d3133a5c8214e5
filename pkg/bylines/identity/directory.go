// Package identity looks up users and groups by id for the rest of the service.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikepea/bylines/pkg/bylines/models"
	"github.com/mikepea/bylines/pkg/bylines/permalink"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no user or group has the requested id
	ErrNotFound = errors.New("identity not found")
	// ErrGroupsUnavailable is returned by group lookups when groups are disabled
	ErrGroupsUnavailable = errors.New("user groups are not available")
)

// GroupInfo is the public view of a group
type GroupInfo struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func groupInfo(g models.Group) GroupInfo {
	return GroupInfo{ID: g.ID, Name: g.Name, Slug: g.Slug}
}

// Directory resolves users and groups
type Directory struct {
	db            *gorm.DB
	links         *permalink.Builder
	groupsEnabled bool
}

// NewDirectory creates a directory. When groupsEnabled is false every group
// lookup fails with ErrGroupsUnavailable.
func NewDirectory(db *gorm.DB, links *permalink.Builder, groupsEnabled bool) *Directory {
	return &Directory{db: db, links: links, groupsEnabled: groupsEnabled}
}

// GroupsAvailable reports whether the group directory is present
func (d *Directory) GroupsAvailable() bool {
	return d.groupsEnabled
}

// Links returns the URL builder used for archive links
func (d *Directory) Links() *permalink.Builder {
	return d.links
}

// User loads a user by id
func (d *Directory) User(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if id == 0 {
		return user, ErrNotFound
	}
	if err := d.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user, ErrNotFound
		}
		return user, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return user, nil
}

// UserDisplayName returns the display name of a user. A user without a
// name is reported as found with an empty name.
func (d *Directory) UserDisplayName(ctx context.Context, id uint) (string, error) {
	user, err := d.User(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Name, nil
}

// UserArchiveLink returns the filtered archive link of an existing user
func (d *Directory) UserArchiveLink(ctx context.Context, id uint) (string, error) {
	if _, err := d.User(ctx, id); err != nil {
		return "", err
	}
	return d.links.AuthorPostsURL(ctx, id), nil
}

// GroupInfo loads a group by id
func (d *Directory) GroupInfo(ctx context.Context, id uint) (GroupInfo, error) {
	if !d.groupsEnabled {
		return GroupInfo{}, ErrGroupsUnavailable
	}
	if id == 0 {
		return GroupInfo{}, ErrNotFound
	}
	var group models.Group
	if err := d.db.WithContext(ctx).First(&group, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return GroupInfo{}, ErrNotFound
		}
		return GroupInfo{}, fmt.Errorf("failed to load group %d: %w", id, err)
	}
	return groupInfo(group), nil
}

// GroupBySlug loads a group by slug
func (d *Directory) GroupBySlug(ctx context.Context, slug string) (GroupInfo, error) {
	if !d.groupsEnabled {
		return GroupInfo{}, ErrGroupsUnavailable
	}
	var group models.Group
	if err := d.db.WithContext(ctx).Where("slug = ?", slug).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return GroupInfo{}, ErrNotFound
		}
		return GroupInfo{}, fmt.Errorf("failed to load group %q: %w", slug, err)
	}
	return groupInfo(group), nil
}

// GroupArchiveLink returns the archive link of an existing group
func (d *Directory) GroupArchiveLink(ctx context.Context, id uint) (string, error) {
	group, err := d.GroupInfo(ctx, id)
	if err != nil {
		return "", err
	}
	return d.links.GroupURL(group.Slug), nil
}

// ListGroups returns every group ordered by name
func (d *Directory) ListGroups(ctx context.Context) ([]GroupInfo, error) {
	if !d.groupsEnabled {
		return nil, ErrGroupsUnavailable
	}
	var groups []models.Group
	if err := d.db.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	out := make([]GroupInfo, len(groups))
	for i, g := range groups {
		out[i] = groupInfo(g)
	}
	return out, nil
}

// GroupsOf returns the groups a user belongs to, ordered by name
func (d *Directory) GroupsOf(ctx context.Context, userID uint) ([]GroupInfo, error) {
	if !d.groupsEnabled {
		return nil, ErrGroupsUnavailable
	}
	var groups []models.Group
	err := d.db.WithContext(ctx).
		Joins("JOIN group_memberships ON group_memberships.group_id = user_groups.id").
		Where("group_memberships.user_id = ?", userID).
		Order("user_groups.name ASC").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list groups of user %d: %w", userID, err)
	}
	out := make([]GroupInfo, len(groups))
	for i, g := range groups {
		out[i] = groupInfo(g)
	}
	return out, nil
}
