package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storekit-io/shopbulk/pkg/errors"
)

func TestNormalizeInfersSchema(t *testing.T) {
	records := []RawRecord{
		{"id": "gid://shopify/Order/1", "totalPrice": "10.50", "createdAt": "2024-06-01T10:00:00Z", "test": true},
		{"id": "gid://shopify/Order/2", "totalPrice": "7.00", "createdAt": "2024-06-02T10:00:00Z", "test": false},
	}

	table, err := NewNormalizer(zap.NewNop()).Normalize("orders", records)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	col, ok := table.Schema.Column("total_price")
	require.True(t, ok)
	assert.Equal(t, KindDecimal, col.Kind)

	col, ok = table.Schema.Column("created_at")
	require.True(t, ok)
	assert.Equal(t, KindTimestamp, col.Kind)

	col, ok = table.Schema.Column("test")
	require.True(t, ok)
	assert.Equal(t, KindBool, col.Kind)
}

func TestNormalizeWidensAcrossRows(t *testing.T) {
	// The first row alone would infer integer; the full batch must widen
	// to float without truncating the first row.
	records := []RawRecord{
		{"weight": float64(5)},
		{"weight": 5.5},
	}

	table, err := NewNormalizer(zap.NewNop()).Normalize("items", records)
	require.NoError(t, err)

	col, ok := table.Schema.Column("weight")
	require.True(t, ok)
	assert.Equal(t, KindFloat, col.Kind)
}

func TestNormalizeAllNullColumnExportsAsString(t *testing.T) {
	records := []RawRecord{
		{"id": "a", "note": nil},
		{"id": "b", "note": nil},
	}

	table, err := NewNormalizer(zap.NewNop()).Normalize("t", records)
	require.NoError(t, err)

	col, ok := table.Schema.Column("note")
	require.True(t, ok)
	assert.Equal(t, KindString, col.Kind)
}

func TestNormalizeRaggedRows(t *testing.T) {
	// Columns missing from some rows still appear in the schema and render
	// as null cells for those rows.
	records := []RawRecord{
		{"id": "a"},
		{"id": "b", "phone": "555"},
	}

	table, err := NewNormalizer(zap.NewNop()).Normalize("t", records)
	require.NoError(t, err)
	require.Len(t, table.Schema.Columns, 2)
	assert.True(t, table.Rows[0]["phone"].IsNull())
}

func TestNormalizeKeyConflict(t *testing.T) {
	records := []RawRecord{
		{"createdAt": "2024-06-01", "created_at": "2024-06-02"},
	}

	_, err := NewNormalizer(zap.NewNop()).Normalize("t", records)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaConflict))
}

func TestNormalizeDeterministicColumnOrder(t *testing.T) {
	records := []RawRecord{
		{"b": "1", "a": "2", "c": "3"},
	}

	first, err := NewNormalizer(zap.NewNop()).Normalize("t", records)
	require.NoError(t, err)
	second, err := NewNormalizer(zap.NewNop()).Normalize("t", records)
	require.NoError(t, err)

	assert.Equal(t, first.Schema.Columns, second.Schema.Columns)
}
