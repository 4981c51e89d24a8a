package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storekit-io/shopbulk/pkg/errors"
)

func TestCanon(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"createdAt", "created_at"},
		{"totalPriceSet", "total_price_set"},
		{"countryCodeV2", "country_code_v2"},
		{"SKU", "sku"},
		{"HTTPStatus", "http_status"},
		{"__parentId", "parent_id"},
		{"id", "id"},
		{"order-number", "order_number"},
		{"first name", "first_name"},
		{"already_snake_case", "already_snake_case"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Canon(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Canon(got), "canonicalization must be idempotent")
		})
	}
}

func TestCanonKeysConflict(t *testing.T) {
	_, err := CanonKeys(map[string]Value{
		"createdAt":  {Kind: KindString, Str: "a"},
		"created_at": {Kind: KindString, Str: "b"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaConflict))
}

func TestCanonKeys(t *testing.T) {
	out, err := CanonKeys(map[string]Value{
		"createdAt": {Kind: KindTimestamp, Str: "2024-06-01T00:00:00Z"},
		"lineItems": {Kind: KindArray},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "created_at")
	assert.Contains(t, out, "line_items")
	assert.NotContains(t, out, "createdAt")
}
