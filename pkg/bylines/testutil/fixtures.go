package testutil

import (
	"strings"
	"testing"

	"github.com/mikepea/bylines/pkg/bylines/models"
	"gorm.io/gorm"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *gorm.DB
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *gorm.DB) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *gorm.DB {
	return f.db
}

// CreateUser creates a user with the given display name and role.
// The email and nicename are derived from the name.
func (f *Fixtures) CreateUser(name string, role models.Role) models.User {
	f.t.Helper()

	nicename := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	user := models.User{
		Email:    nicename + "@example.com",
		Name:     name,
		Nicename: nicename,
		Role:     role,
	}
	if err := f.db.Create(&user).Error; err != nil {
		f.t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// CreateGroup creates a user group
func (f *Fixtures) CreateGroup(name, slug string) models.Group {
	f.t.Helper()

	group := models.Group{Name: name, Slug: slug}
	if err := f.db.Create(&group).Error; err != nil {
		f.t.Fatalf("Failed to create test group: %v", err)
	}
	return group
}

// AddMember adds a user to a group
func (f *Fixtures) AddMember(groupID, userID uint) {
	f.t.Helper()

	membership := models.GroupMembership{GroupID: groupID, UserID: userID}
	if err := f.db.Create(&membership).Error; err != nil {
		f.t.Fatalf("Failed to create test membership: %v", err)
	}
}

// CreateItem creates a content item
func (f *Fixtures) CreateItem(itemType string, status models.ItemStatus, title string, authorID uint) models.Item {
	f.t.Helper()

	item := models.Item{
		Type:     itemType,
		Status:   status,
		Title:    title,
		AuthorID: authorID,
	}
	if err := f.db.Create(&item).Error; err != nil {
		f.t.Fatalf("Failed to create test item: %v", err)
	}
	return item
}

// SetMeta writes a raw attribute value, bypassing sanitization and the reverse index.
// Use it to simulate data written by other tools.
func (f *Fixtures) SetMeta(itemID uint, key, value string) {
	f.t.Helper()

	if err := f.db.Where("item_id = ? AND meta_key = ?", itemID, key).Delete(&models.ItemMeta{}).Error; err != nil {
		f.t.Fatalf("Failed to clear test meta: %v", err)
	}
	row := models.ItemMeta{ItemID: itemID, MetaKey: key, MetaValue: value}
	if err := f.db.Create(&row).Error; err != nil {
		f.t.Fatalf("Failed to create test meta: %v", err)
	}
}

// AttachTerm attaches a taxonomy term to an item
func (f *Fixtures) AttachTerm(itemID uint, taxonomy string, termID uint) {
	f.t.Helper()

	term := models.ItemTerm{ItemID: itemID, Taxonomy: taxonomy, TermID: termID}
	if err := f.db.Create(&term).Error; err != nil {
		f.t.Fatalf("Failed to attach test term: %v", err)
	}
}
