// Package reference implements the tagged user/group pointers stored in an
// item's author assignment.
//
// A reference has two textual forms. The prefixed token ("user-7",
// "group-3") is used in the canonical order list and in listing filter
// parameters; the bare id lives in the type-specific id arrays.
package reference

import (
	"math"
	"strconv"
	"strings"
)

// Kind distinguishes users from user groups
type Kind string

const (
	KindUser  Kind = "user"
	KindGroup Kind = "group"
)

// Valid reports whether k is one of the two known kinds
func (k Kind) Valid() bool {
	return k == KindUser || k == KindGroup
}

func (k Kind) prefix() string {
	return string(k) + "-"
}

// Reference points at a user or a group by id
type Reference struct {
	Kind Kind
	ID   uint
}

// User returns a reference to the user with the given id
func User(id uint) Reference {
	return Reference{Kind: KindUser, ID: id}
}

// Group returns a reference to the group with the given id
func Group(id uint) Reference {
	return Reference{Kind: KindGroup, ID: id}
}

// IsUser reports whether r points at a user
func (r Reference) IsUser() bool { return r.Kind == KindUser }

// IsGroup reports whether r points at a group
func (r Reference) IsGroup() bool { return r.Kind == KindGroup }

// String returns the prefixed token form
func (r Reference) String() string {
	return r.Kind.prefix() + strconv.FormatUint(uint64(r.ID), 10)
}

// Format is the inverse of Parse.
func Format(r Reference) string {
	return r.String()
}

// Parse reads a prefixed token. The remainder after the prefix is coerced
// with CoerceID, so "user-abc" yields id 0; ok is false for unknown
// prefixes and for id 0, which never names a real identity.
func Parse(token string) (Reference, bool) {
	for _, kind := range []Kind{KindUser, KindGroup} {
		if rest, found := strings.CutPrefix(token, kind.prefix()); found {
			id := CoerceID(rest)
			if id == 0 {
				return Reference{}, false
			}
			return Reference{Kind: kind, ID: id}, true
		}
	}
	return Reference{}, false
}

// ParseList parses every token and silently drops the malformed ones
func ParseList(tokens []string) []Reference {
	refs := make([]Reference, 0, len(tokens))
	for _, token := range tokens {
		if ref, ok := Parse(token); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// CoerceID converts s to a non-negative id the way loosely typed form input
// is usually read: leading whitespace is skipped, an optional sign is
// dropped (the absolute value is kept) and the leading run of digits is
// used. Anything without leading digits is 0. Values past the uint range are
// clamped.
func CoerceID(s string) uint {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	if s != "" && (s[0] == '-' || s[0] == '+') {
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.ParseUint(s[:end], 10, 64)
	if err != nil || n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint(n)
}
