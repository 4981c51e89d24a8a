package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDecomposer() *Decomposer {
	log := zap.NewNop()
	return NewDecomposer(NewNormalizer(log), log)
}

func decomposeRecords(t *testing.T, name string, records []RawRecord) *WorkingSet {
	t.Helper()
	table, err := NewNormalizer(zap.NewNop()).Normalize(name, records)
	require.NoError(t, err)

	ws := NewWorkingSet()
	require.NoError(t, newTestDecomposer().Decompose(ws, table))
	return ws
}

func TestDecomposeArrayColumn(t *testing.T) {
	records := []RawRecord{
		{"id": "o1", "refunds": []interface{}{
			map[string]interface{}{"amount": "5.00"},
			map[string]interface{}{"amount": "2.50"},
		}},
		{"id": "o2", "refunds": []interface{}{
			map[string]interface{}{"amount": "1.00"},
		}},
		{"id": "o3", "refunds": nil},
	}

	ws := decomposeRecords(t, "orders", records)
	tables := ws.Tables()
	require.Len(t, tables, 2)

	parent := tables[0]
	assert.Equal(t, "orders", parent.Name)
	_, hasRefunds := parent.Schema.Column("refunds")
	assert.False(t, hasRefunds, "compound column must leave the parent")

	child := tables[1]
	assert.Equal(t, "orders_refunds", child.Name)
	// Row conservation: every array element becomes exactly one row, and a
	// null compound value contributes none.
	require.Len(t, child.Rows, 3)

	assert.Equal(t, "o1", child.Rows[0][ColumnParentID].Str)
	assert.Equal(t, int64(1), child.Rows[0][ColumnRowNumber].Int)
	assert.Equal(t, int64(2), child.Rows[1][ColumnRowNumber].Int)
	assert.Equal(t, "o2", child.Rows[2][ColumnParentID].Str)
	assert.Equal(t, int64(1), child.Rows[2][ColumnRowNumber].Int)
}

func TestDecomposeObjectColumn(t *testing.T) {
	records := []RawRecord{
		{"id": "o1", "shippingAddress": map[string]interface{}{
			"city": "Prague", "countryCodeV2": "CZ",
		}},
		{"id": "o2", "shippingAddress": nil},
	}

	ws := decomposeRecords(t, "orders", records)
	tables := ws.Tables()
	require.Len(t, tables, 2)

	child := tables[1]
	assert.Equal(t, "orders_shipping_address", child.Name)
	require.Len(t, child.Rows, 1)

	assert.Equal(t, "o1", child.Rows[0][ColumnParentID].Str)
	assert.Equal(t, "Prague", child.Rows[0]["city"].Str)
	assert.Equal(t, "CZ", child.Rows[0]["country_code_v2"].Str)
	_, hasRowNumber := child.Schema.Column(ColumnRowNumber)
	assert.False(t, hasRowNumber, "object children have no element ordering")
}

func TestDecomposeScalarArrayElements(t *testing.T) {
	records := []RawRecord{
		{"id": "p1", "tags": []interface{}{"sale", "summer"}},
	}

	ws := decomposeRecords(t, "products", records)
	tables := ws.Tables()
	require.Len(t, tables, 2)

	child := tables[1]
	require.Len(t, child.Rows, 2)
	assert.Equal(t, "sale", child.Rows[0]["value"].Str)
	assert.Equal(t, "summer", child.Rows[1]["value"].Str)
}

func TestDecomposeNullArrayElementsKeepTheirPosition(t *testing.T) {
	records := []RawRecord{
		{"id": "gid://shopify/Order/1", "tags": []interface{}{"a", nil, "b"}},
	}

	ws := decomposeRecords(t, "orders", records)
	tables := ws.Tables()
	require.Len(t, tables, 2)

	child := tables[1]
	// An array of length n yields exactly n rows; null elements hold their
	// slot so row numbers stay contiguous.
	require.Len(t, child.Rows, 3)
	for i, row := range child.Rows {
		assert.Equal(t, "gid://shopify/Order/1", row[ColumnParentID].Str)
		assert.Equal(t, int64(i+1), row[ColumnRowNumber].Int)
	}
	assert.Equal(t, "a", child.Rows[0]["value"].Str)
	assert.True(t, child.Rows[1]["value"].IsNull())
	assert.Equal(t, "b", child.Rows[2]["value"].Str)
}

func TestDecomposeGrandchildrenKeepParentLinks(t *testing.T) {
	records := []RawRecord{
		{"id": "gid://shopify/Order/1", "lineItems": []interface{}{
			map[string]interface{}{
				"title": "widget",
				"taxLines": []interface{}{
					map[string]interface{}{"rate": 0.21},
					map[string]interface{}{"rate": 0.1},
				},
			},
		}},
	}

	ws := decomposeRecords(t, "orders", records)
	names := make(map[string]*Table)
	for _, table := range ws.Tables() {
		names[table.Name] = table
	}

	grandchild := names["orders_line_items_tax_lines"]
	require.NotNil(t, grandchild)
	require.Len(t, grandchild.Rows, 2)

	// The line-item row has no id of its own, so the grandchild links back
	// through the synthesized parent_id/row_number composite.
	for i, row := range grandchild.Rows {
		assert.Equal(t, "gid://shopify/Order/1/1", row[ColumnParentID].Str)
		assert.Equal(t, int64(i+1), row[ColumnRowNumber].Int)
	}
}

func TestDecomposeRecursesIntoNestedStructures(t *testing.T) {
	records := []RawRecord{
		{"id": "o1", "transactions": []interface{}{
			map[string]interface{}{
				"id": "t1",
				"amountSet": map[string]interface{}{
					"shopMoney": map[string]interface{}{"amount": "9.99", "currencyCode": "EUR"},
				},
			},
		}},
	}

	ws := decomposeRecords(t, "orders", records)
	names := make([]string, 0)
	for _, table := range ws.Tables() {
		names = append(names, table.Name)
		assert.Empty(t, table.Schema.CompoundColumns(),
			"no exported table may keep a compound column")
	}

	assert.Equal(t, []string{
		"orders",
		"orders_transactions",
		"orders_transactions_amount_set",
		"orders_transactions_amount_set_shop_money",
	}, names)
}

func TestDecomposeSkipsUndecomposableColumn(t *testing.T) {
	// One row carries an array, another a scalar: widening marks the column
	// compound but the scalar row cannot be shaped. The column is dropped,
	// the rest of the table survives.
	records := []RawRecord{
		{"id": "a", "extra": []interface{}{map[string]interface{}{"k": "v"}}},
		{"id": "b", "extra": "oops"},
	}

	ws := decomposeRecords(t, "t", records)
	tables := ws.Tables()
	require.Len(t, tables, 1)

	_, hasExtra := tables[0].Schema.Column("extra")
	assert.False(t, hasExtra)
	_, hasID := tables[0].Schema.Column("id")
	assert.True(t, hasID)
}

func TestDecomposeEmptyArraysDropColumnWithoutChild(t *testing.T) {
	records := []RawRecord{
		{"id": "a", "tags": []interface{}{}},
		{"id": "b", "tags": []interface{}{}},
	}

	ws := decomposeRecords(t, "t", records)
	require.Len(t, ws.Tables(), 1)
	_, hasTags := ws.Tables()[0].Schema.Column("tags")
	assert.False(t, hasTags)
}

func TestWorkingSetDisambiguatesNames(t *testing.T) {
	ws := NewWorkingSet()
	first := &Table{Name: "a_b_c", Schema: &Schema{}}
	second := &Table{Name: "a_b_c", Schema: &Schema{}}

	assert.Equal(t, "a_b_c", ws.Add(first))
	assert.Equal(t, "a_b_c_2", ws.Add(second))
	assert.Equal(t, "a_b_c_2", second.Name)
	require.Len(t, ws.Tables(), 2)
}
