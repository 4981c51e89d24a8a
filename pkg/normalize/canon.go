package normalize

import (
	"strings"
	"unicode"

	"github.com/storekit-io/shopbulk/pkg/errors"
)

// Canon converts an API field name to the canonical snake_case column name.
// The function is idempotent: an already-canonical name passes through
// unchanged, so re-normalizing derived tables is safe.
//
//	createdAt      -> created_at
//	countryCodeV2  -> country_code_v2
//	SKU            -> sku
//	__parentId     -> parent_id
func Canon(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			// Boundary before an upper rune when the previous rune is lower
			// or a digit, or when this upper starts a new word after an
			// acronym run (next rune is lower).
			if i > 0 {
				prev := runes[i-1]
				startsWord := unicode.IsLower(prev) || unicode.IsDigit(prev)
				endsAcronym := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if startsWord || endsAcronym {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			// Every separator or symbol becomes a single underscore
			b.WriteByte('_')
		}
	}

	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}

// CanonKeys canonicalizes every key of a record. Two source keys collapsing
// to the same canonical name is a schema conflict: silently keeping one
// would drop data.
func CanonKeys(record map[string]Value) (map[string]Value, error) {
	out := make(map[string]Value, len(record))
	sources := make(map[string]string, len(record))

	for key, value := range record {
		canonical := Canon(key)
		if canonical == "" {
			canonical = "field"
		}
		if prior, exists := sources[canonical]; exists && prior != key {
			return nil, errors.Newf(errors.ErrorTypeSchemaConflict,
				"columns %q and %q both canonicalize to %q", prior, key, canonical)
		}
		sources[canonical] = key
		out[canonical] = value
	}
	return out, nil
}
