package assignment

import (
	"encoding/json"
	"html"
	"math"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mikepea/bylines/pkg/bylines/reference"
)

var textPolicy = bluemonday.StrictPolicy()

// SanitizeIDs coerces every element to a non-negative integer. Elements
// that cannot be read as a number become 0; they are kept so the caller
// sees one output per input, and readers ignore them.
func SanitizeIDs(raw []any) []uint {
	ids := make([]uint, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, coerceID(v))
	}
	return ids
}

func coerceID(v any) uint {
	switch n := v.(type) {
	case nil:
		return 0
	case bool:
		if n {
			return 1
		}
		return 0
	case float64:
		return clampFloat(n)
	case float32:
		return clampFloat(float64(n))
	case json.Number:
		return reference.CoerceID(n.String())
	case string:
		return reference.CoerceID(n)
	case int:
		return clampInt(int64(n))
	case int64:
		return clampInt(n)
	case int32:
		return clampInt(int64(n))
	case uint:
		return clampUint(uint64(n))
	case uint64:
		return clampUint(n)
	case uint32:
		return uint(n)
	}
	return 0
}

func clampFloat(f float64) uint {
	if math.IsNaN(f) {
		return 0
	}
	f = math.Abs(math.Trunc(f))
	if f > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint(f)
}

func clampInt(n int64) uint {
	if n < 0 {
		if n == math.MinInt64 {
			return math.MaxUint32
		}
		n = -n
	}
	return clampUint(uint64(n))
}

func clampUint(n uint64) uint {
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint(n)
}

// SanitizeTokens turns every element into a plain single-line string: markup
// is stripped, runs of whitespace collapse to one space and the result is
// trimmed. No further shape validation happens; malformed tokens are
// dropped later when the order list is parsed.
func SanitizeTokens(raw []any) []string {
	tokens := make([]string, 0, len(raw))
	for _, v := range raw {
		tokens = append(tokens, SanitizeText(stringify(v)))
	}
	return tokens
}

// SanitizeText strips markup and collapses whitespace
func SanitizeText(s string) string {
	s = html.UnescapeString(textPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		if s {
			return "1"
		}
		return ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case uint:
		return strconv.FormatUint(uint64(s), 10)
	case int:
		return strconv.Itoa(s)
	}
	// Arrays and objects have no string form
	return ""
}
