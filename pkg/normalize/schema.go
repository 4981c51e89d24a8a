package normalize

import (
	"sort"

	"go.uber.org/zap"
)

// Column is one inferred column of a table
type Column struct {
	Name string
	Kind Kind
}

// Schema is the ordered column set of a table
type Schema struct {
	Columns []Column
}

// Column returns the named column, if present
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// CompoundColumns lists the columns that still need decomposition
func (s *Schema) CompoundColumns() []Column {
	var out []Column
	for _, c := range s.Columns {
		if c.Kind.Compound() {
			out = append(out, c)
		}
	}
	return out
}

// drop removes a column from the schema in place
func (s *Schema) drop(name string) {
	for i, c := range s.Columns {
		if c.Name == name {
			s.Columns = append(s.Columns[:i], s.Columns[i+1:]...)
			return
		}
	}
}

// Row is one record with canonical column names
type Row map[string]Value

// Table is a named, schema-typed row set
type Table struct {
	Name   string
	Schema *Schema
	Rows   []Row
}

// Normalizer infers a column schema over a full batch of rows.
// Inference is whole-batch: every row is seen before any type is final, so
// late rows can widen a column but never truncate earlier ones.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a schema normalizer
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger.With(zap.String("component", "normalizer"))}
}

// Normalize canonicalizes record keys, converts values into the tagged
// union and infers the table schema. Key collisions abort the whole table.
func (n *Normalizer) Normalize(name string, records []RawRecord) (*Table, error) {
	rows := make([]Row, 0, len(records))
	for _, record := range records {
		converted := make(map[string]Value, len(record))
		for key, raw := range record {
			converted[key] = FromJSON(raw)
		}
		row, err := CanonKeys(converted)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return n.NormalizeRows(name, rows)
}

// NormalizeRows infers a schema over rows whose keys are already canonical.
// Column order follows first appearance across the batch; a column that is
// null in every row exports as string.
func (n *Normalizer) NormalizeRows(name string, rows []Row) (*Table, error) {
	kinds := make(map[string]Kind)
	var order []string

	for _, row := range rows {
		for _, key := range sortedKeys(row) {
			current, seen := kinds[key]
			if !seen {
				order = append(order, key)
				kinds[key] = row[key].Kind
				continue
			}
			kinds[key] = Widen(current, row[key].Kind)
		}
	}

	schema := &Schema{Columns: make([]Column, 0, len(order))}
	for _, key := range order {
		kind := kinds[key]
		if kind == KindNull {
			kind = KindString
		}
		schema.Columns = append(schema.Columns, Column{Name: key, Kind: kind})
	}

	n.logger.Debug("schema inferred",
		zap.String("table", name),
		zap.Int("rows", len(rows)),
		zap.Int("columns", len(schema.Columns)))

	return &Table{Name: name, Schema: schema, Rows: rows}, nil
}

// sortedKeys gives map iteration a stable order so inferred column order is
// deterministic for identical inputs
func sortedKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
