package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storekit-io/shopbulk/pkg/normalize"
)

func ordersTable() *normalize.Table {
	return &normalize.Table{
		Name: "orders",
		Schema: &normalize.Schema{Columns: []normalize.Column{
			{Name: "id", Kind: normalize.KindString},
			{Name: "total_price", Kind: normalize.KindDecimal},
			{Name: "created_at", Kind: normalize.KindTimestamp},
			{Name: "test", Kind: normalize.KindBool},
		}},
		Rows: []normalize.Row{
			{
				"id":          {Kind: normalize.KindString, Str: "gid://shopify/Order/1"},
				"total_price": {Kind: normalize.KindDecimal, Str: "10.50"},
				"created_at":  {Kind: normalize.KindTimestamp, Str: "2024-06-01T10:00:00Z"},
				"test":        {Kind: normalize.KindBool, Bool: false},
			},
			{
				"id":          {Kind: normalize.KindString, Str: "gid://shopify/Order/2"},
				"total_price": {Kind: normalize.KindDecimal, Str: "7.00"},
				"created_at":  {Kind: normalize.KindTimestamp, Str: "2024-06-02T10:00:00Z"},
				"test":        {Kind: normalize.KindBool, Bool: true},
			},
		},
	}
}

func TestExportWritesCSVAndManifest(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExporter(dir, "in.c-shopify", zap.NewNop())

	manifest, err := exporter.Export(ordersTable())
	require.NoError(t, err)

	file, err := os.Open(filepath.Join(dir, "orders.csv"))
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "total_price", "created_at", "test"}, rows[0])
	assert.Equal(t, []string{"gid://shopify/Order/1", "10.50", "2024-06-01T10:00:00Z", "false"}, rows[1])

	assert.Equal(t, "in.c-shopify.orders", manifest.ID)
	assert.Equal(t, []string{"id"}, manifest.PrimaryKey)
	assert.Equal(t, "NUMERIC", manifest.ColumnMetadata["total_price"].BaseType)
	assert.Equal(t, "TIMESTAMP", manifest.ColumnMetadata["created_at"].BaseType)
	assert.Equal(t, "BOOLEAN", manifest.ColumnMetadata["test"].BaseType)
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExporter(dir, "in.c-shopify", zap.NewNop())

	written, err := exporter.Export(ordersTable())
	require.NoError(t, err)

	read, err := ReadManifest(filepath.Join(dir, "orders.csv.manifest"))
	require.NoError(t, err)
	assert.Equal(t, written, read)
}

func TestExportIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExporter(dir, "in.c-shopify", zap.NewNop())

	first, err := exporter.Export(ordersTable())
	require.NoError(t, err)
	second, err := exporter.Export(ordersTable())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	data, err := os.ReadFile(filepath.Join(dir, "orders.csv"))
	require.NoError(t, err)
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 3, lines, "re-export must overwrite, not append")
}

func TestBaseTypeMappingIsTotal(t *testing.T) {
	tests := []struct {
		kind normalize.Kind
		want string
	}{
		{normalize.KindInt, "INTEGER"},
		{normalize.KindFloat, "FLOAT"},
		{normalize.KindDecimal, "NUMERIC"},
		{normalize.KindBool, "BOOLEAN"},
		{normalize.KindDate, "DATE"},
		{normalize.KindTimestamp, "TIMESTAMP"},
		{normalize.KindString, "STRING"},
		{normalize.KindNull, "STRING"},
		{normalize.KindArray, "STRING"},
		{normalize.KindObject, "STRING"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BaseType(tt.kind), tt.kind.String())
	}
}

func TestPrimaryKeySelection(t *testing.T) {
	schema := func(names ...string) *normalize.Schema {
		s := &normalize.Schema{}
		for _, n := range names {
			s.Columns = append(s.Columns, normalize.Column{Name: n, Kind: normalize.KindString})
		}
		return s
	}

	tests := []struct {
		name  string
		table *normalize.Table
		want  []string
	}{
		{
			"well-known root",
			&normalize.Table{Name: "orders", Schema: schema("id", "name")},
			[]string{"id"},
		},
		{
			"well-known nested",
			&normalize.Table{Name: "order_line_items", Schema: schema("id", "parent_id", "sku")},
			[]string{"parent_id", "id"},
		},
		{
			"well-known name but missing key column falls back",
			&normalize.Table{Name: "orders", Schema: schema("name")},
			[]string{},
		},
		{
			"array child",
			&normalize.Table{Name: "orders_refunds", Schema: schema("parent_id", "row_number", "amount")},
			[]string{"parent_id", "row_number"},
		},
		{
			"object child",
			&normalize.Table{Name: "orders_shipping_address", Schema: schema("parent_id", "city")},
			[]string{"parent_id"},
		},
		{
			"unknown table with id",
			&normalize.Table{Name: "mystery", Schema: schema("id", "x")},
			[]string{"id"},
		},
		{
			"no identity at all",
			&normalize.Table{Name: "mystery", Schema: schema("x")},
			[]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, primaryKey(tt.table))
		})
	}
}
