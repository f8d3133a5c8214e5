package assignment

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mikepea/bylines/pkg/bylines/reference"
)

// EncodeIDs serializes an id set as a compact JSON array such as [7,21]
func EncodeIDs(ids []uint) string {
	if len(ids) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	b.WriteByte(']')
	return b.String()
}

// EncodeTokens serializes the order list as a JSON array of strings
func EncodeTokens(tokens []string) string {
	if len(tokens) == 0 {
		return "[]"
	}
	out, err := json.Marshal(tokens)
	if err != nil {
		// []string always marshals
		return "[]"
	}
	return string(out)
}

// DecodeIDs reads a stored id set. Besides JSON arrays it accepts the
// legacy single-reference shapes: a bare scalar 7 and a quoted "7".
// Unreadable values decode to an empty set.
func DecodeIDs(value string) []uint {
	value = strings.TrimSpace(value)
	if value == "" {
		return []uint{}
	}
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err != nil {
		if id := reference.CoerceID(value); id != 0 {
			return []uint{id}
		}
		return []uint{}
	}
	switch v := decoded.(type) {
	case []any:
		return SanitizeIDs(v)
	case nil:
		return []uint{}
	default:
		if id := coerceID(v); id != 0 {
			return []uint{id}
		}
		return []uint{}
	}
}

// DecodeTokens reads a stored order list. A single unquoted or quoted token
// is accepted as a one-element list.
func DecodeTokens(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err != nil {
		return []string{value}
	}
	switch v := decoded.(type) {
	case []any:
		return SanitizeTokens(v)
	case string:
		return []string{v}
	}
	return []string{}
}
