package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func orderRecord(id string) RawRecord {
	return RawRecord{"id": "gid://shopify/Order/" + id, "name": "#" + id}
}

func lineItemRecord(id, parent string) RawRecord {
	return RawRecord{
		"id":         "gid://shopify/LineItem/" + id,
		"__parentId": "gid://shopify/Order/" + parent,
		"quantity":   float64(1),
	}
}

func TestSplitOrdersWithLineItems(t *testing.T) {
	records := []RawRecord{
		orderRecord("1"),
		lineItemRecord("11", "1"),
		lineItemRecord("12", "1"),
		orderRecord("2"),
		lineItemRecord("21", "2"),
		orderRecord("3"),
	}

	splitter := NewSplitter("orders", zap.NewNop())
	partitions := splitter.Split(records)

	require.Len(t, partitions, 2)

	assert.Equal(t, "orders", partitions[0].Table)
	assert.Equal(t, "Order", partitions[0].TypeTag)
	assert.False(t, partitions[0].Nested)
	assert.Len(t, partitions[0].Records, 3)

	assert.Equal(t, "order_line_items", partitions[1].Table)
	assert.True(t, partitions[1].Nested)
	assert.Len(t, partitions[1].Records, 3)
}

func TestSplitPreservesRecordOrder(t *testing.T) {
	records := []RawRecord{
		orderRecord("2"),
		orderRecord("1"),
		orderRecord("3"),
	}

	partitions := NewSplitter("orders", zap.NewNop()).Split(records)
	require.Len(t, partitions, 1)

	ids := make([]string, 0, 3)
	for _, r := range partitions[0].Records {
		ids = append(ids, r["id"].(string))
	}
	assert.Equal(t, []string{
		"gid://shopify/Order/2",
		"gid://shopify/Order/1",
		"gid://shopify/Order/3",
	}, ids)
}

func TestSplitCatchAllPartition(t *testing.T) {
	records := []RawRecord{
		orderRecord("1"),
		{"name": "no id here"},
		{"id": "not-a-gid"},
	}

	partitions := NewSplitter("orders", zap.NewNop()).Split(records)
	require.Len(t, partitions, 2)
	assert.Equal(t, "orders", partitions[1].Table, "catch-all keeps the nominal name")
	assert.Len(t, partitions[1].Records, 2)
}

func TestSplitKeyFuncOverride(t *testing.T) {
	splitter := NewSplitter("events", zap.NewNop())
	splitter.KeyFunc = func(r RawRecord) (string, bool) {
		action, ok := r["action"].(string)
		return action, ok
	}

	partitions := splitter.Split([]RawRecord{
		{"action": "create"},
		{"action": "destroy"},
		{"action": "create"},
	})

	require.Len(t, partitions, 2)
	assert.Equal(t, "events", partitions[0].Table)
	assert.Len(t, partitions[0].Records, 2)
	assert.Equal(t, "event_destroys", partitions[1].Table)
}

func TestTypeTag(t *testing.T) {
	tests := []struct {
		name   string
		record RawRecord
		want   string
		ok     bool
	}{
		{"order gid", RawRecord{"id": "gid://shopify/Order/123"}, "Order", true},
		{"line item gid", RawRecord{"id": "gid://shopify/LineItem/9?order=1"}, "LineItem", true},
		{"missing id", RawRecord{}, "", false},
		{"non gid id", RawRecord{"id": "123"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, ok := tt.record.TypeTag()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, tag)
		})
	}
}
