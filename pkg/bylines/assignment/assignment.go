// Package assignment reads and writes the author assignment of a content item.
//
// An assignment is three co-resident attributes: the selected user ids,
// the selected group ids and the canonical order of prefixed tokens. The
// sets and the order list are written independently and may drift; readers
// must tolerate order entries that no longer appear in the sets.
package assignment

import (
	"github.com/mikepea/bylines/pkg/bylines/reference"
)

// Attribute keys in the item attribute store
const (
	MetaUsers  = "bylines_selected_users"
	MetaGroups = "bylines_selected_groups"
	MetaOrder  = "bylines_selected_order"
)

// Assignment is the decoded author assignment of one item
type Assignment struct {
	Users  []uint   `json:"selected_users"`
	Groups []uint   `json:"selected_groups"`
	Order  []string `json:"selected_order"`
}

// Empty returns an assignment with all three fields set to empty sequences
func Empty() Assignment {
	return Assignment{Users: []uint{}, Groups: []uint{}, Order: []string{}}
}

// IsEmpty reports whether neither id set has entries. The order list is
// ignored: without ids it cannot name anybody.
func (a Assignment) IsEmpty() bool {
	return len(a.Users) == 0 && len(a.Groups) == 0
}

// HasUser reports whether id is in the selected users
func (a Assignment) HasUser(id uint) bool {
	return containsID(a.Users, id)
}

// HasGroup reports whether id is in the selected groups
func (a Assignment) HasGroup(id uint) bool {
	return containsID(a.Groups, id)
}

// Contains reports whether ref is a member of the id set matching its kind
func (a Assignment) Contains(ref reference.Reference) bool {
	if ref.ID == 0 {
		return false
	}
	switch ref.Kind {
	case reference.KindUser:
		return a.HasUser(ref.ID)
	case reference.KindGroup:
		return a.HasGroup(ref.ID)
	}
	return false
}

// OrderedReferences returns the order entries that are well formed and still
// present in their id set, in order, without duplicates.
func (a Assignment) OrderedReferences() []reference.Reference {
	seen := make(map[reference.Reference]bool, len(a.Order))
	refs := make([]reference.Reference, 0, len(a.Order))
	for _, ref := range reference.ParseList(a.Order) {
		if seen[ref] || !a.Contains(ref) {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

// References returns every distinct non-zero id of both sets. Entries named
// by the order list come first in that order, followed by the remaining
// groups and then the remaining users in stored order.
func (a Assignment) References() []reference.Reference {
	refs := a.OrderedReferences()
	seen := make(map[reference.Reference]bool, len(refs))
	for _, ref := range refs {
		seen[ref] = true
	}
	add := func(ref reference.Reference) {
		if ref.ID == 0 || seen[ref] {
			return
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	for _, id := range a.Groups {
		add(reference.Group(id))
	}
	for _, id := range a.Users {
		add(reference.User(id))
	}
	return refs
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Patch is a partial assignment update. A nil field is left untouched; a
// non-nil empty field clears the attribute. Elements are raw decoded JSON
// values and are sanitized before they are stored.
type Patch struct {
	Users  []any `json:"selected_users"`
	Groups []any `json:"selected_groups"`
	Order  []any `json:"selected_order"`
}

// IsZero reports whether the patch would change nothing
func (p Patch) IsZero() bool {
	return p.Users == nil && p.Groups == nil && p.Order == nil
}

// PatchOf turns a decoded assignment into a patch replacing all three fields
func PatchOf(a Assignment) Patch {
	p := Patch{Users: []any{}, Groups: []any{}, Order: []any{}}
	for _, id := range a.Users {
		p.Users = append(p.Users, id)
	}
	for _, id := range a.Groups {
		p.Groups = append(p.Groups, id)
	}
	for _, token := range a.Order {
		p.Order = append(p.Order, token)
	}
	return p
}
