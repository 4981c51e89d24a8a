package normalize

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/storekit-io/shopbulk/pkg/errors"
	"github.com/storekit-io/shopbulk/pkg/metrics"
)

// Shape columns added to decomposed child tables
const (
	ColumnParentID  = "parent_id"
	ColumnRowNumber = "row_number"
)

// WorkingSet accumulates every table produced for one entity extraction,
// in creation order. Name collisions between independently-derived child
// tables are disambiguated with a numeric suffix.
type WorkingSet struct {
	tables map[string]*Table
	order  []string
}

// NewWorkingSet creates an empty working set
func NewWorkingSet() *WorkingSet {
	return &WorkingSet{tables: make(map[string]*Table)}
}

// Add registers a table, renaming it if the name is already taken.
// Returns the final name.
func (w *WorkingSet) Add(t *Table) string {
	name := t.Name
	for i := 2; ; i++ {
		if _, taken := w.tables[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s_%d", t.Name, i)
	}
	t.Name = name
	w.tables[name] = t
	w.order = append(w.order, name)
	return name
}

// Tables returns every table in creation order
func (w *WorkingSet) Tables() []*Table {
	out := make([]*Table, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.tables[name])
	}
	return out
}

// Decomposer recursively flattens compound columns into child tables.
// An array column yields one child row per element, linked by parent_id and
// a 1-based row_number; an object column yields one child row per non-null
// value, linked by parent_id alone. The compound column is removed from the
// parent either way, so exported tables never contain structured cells.
type Decomposer struct {
	normalizer *Normalizer
	logger     *zap.Logger
}

// NewDecomposer creates a decomposer
func NewDecomposer(normalizer *Normalizer, logger *zap.Logger) *Decomposer {
	return &Decomposer{
		normalizer: normalizer,
		logger:     logger.With(zap.String("component", "decomposer")),
	}
}

// Decompose adds table to the working set and flattens its compound columns,
// recursing into every child table it produces. A column whose decomposition
// fails is dropped with a warning; the rest of the table is unaffected.
func (d *Decomposer) Decompose(ws *WorkingSet, table *Table) error {
	ws.Add(table)
	return d.flatten(ws, table)
}

func (d *Decomposer) flatten(ws *WorkingSet, table *Table) error {
	for _, column := range table.Schema.CompoundColumns() {
		child, err := d.decomposeColumn(table, column)

		// The column leaves the parent whether or not a child was built:
		// structured cells must never reach export.
		table.Schema.drop(column.Name)
		for _, row := range table.Rows {
			delete(row, column.Name)
		}

		if err != nil {
			d.logger.Warn("skipping column decomposition",
				zap.String("table", table.Name),
				zap.String("column", column.Name),
				zap.Error(err))
			metrics.DecompositionSkips.WithLabelValues(table.Name, column.Name).Inc()
			continue
		}
		if child == nil {
			d.logger.Debug("compound column had no decomposable values",
				zap.String("table", table.Name),
				zap.String("column", column.Name))
			continue
		}

		ws.Add(child)
		if err := d.flatten(ws, child); err != nil {
			return err
		}
	}
	return nil
}

// decomposeColumn builds the child table for one compound column.
// Returns (nil, nil) when no row holds a decomposable value.
func (d *Decomposer) decomposeColumn(parent *Table, column Column) (*Table, error) {
	childName := parent.Name + "_" + column.Name

	var childRows []Row
	for _, row := range parent.Rows {
		value, present := row[column.Name]
		if !present || value.IsNull() {
			continue
		}
		parentID := parentKey(row)

		switch value.Kind {
		case KindArray:
			for i, elem := range value.Arr {
				childRow, err := d.elementRow(elem)
				if err != nil {
					return nil, err
				}
				childRow[ColumnParentID] = parentID
				childRow[ColumnRowNumber] = Value{Kind: KindInt, Int: int64(i + 1)}
				childRows = append(childRows, childRow)
			}
		case KindObject:
			childRow, err := d.objectRow(value)
			if err != nil {
				return nil, err
			}
			childRow[ColumnParentID] = parentID
			childRows = append(childRows, childRow)
		default:
			// Widening marked the column compound; scalar stragglers in
			// individual rows cannot be given a sensible child shape.
			return nil, errors.Newf(errors.ErrorTypeDecomposition,
				"compound column holds scalar %s value", value.Kind)
		}
	}

	if len(childRows) == 0 {
		return nil, nil
	}
	return d.normalizer.NormalizeRows(childName, childRows)
}

// parentKey picks the value child rows link back to. Rows without an id of
// their own (array-element rows carry only parent_id and row_number) get a
// composite of their parent link and position, so every level of nesting
// still traces to exactly one parent row.
func parentKey(row Row) Value {
	if id, ok := row["id"]; ok && !id.IsNull() {
		return id
	}
	pid, ok := row[ColumnParentID]
	if !ok || pid.IsNull() {
		return Null
	}
	if num, ok := row[ColumnRowNumber]; ok && !num.IsNull() {
		return Value{Kind: KindString, Str: pid.Render() + "/" + num.Render()}
	}
	return pid
}

// elementRow converts one array element into a child row. Object elements
// flatten one level; scalar elements land in a single "value" column; null
// elements keep their position with an otherwise empty row, so an array of
// length n always yields n rows with contiguous row numbers.
func (d *Decomposer) elementRow(elem Value) (Row, error) {
	switch elem.Kind {
	case KindNull:
		return Row{}, nil
	case KindObject:
		return d.objectRow(elem)
	default:
		return Row{"value": elem}, nil
	}
}

// objectRow canonicalizes an object's fields into a child row. Nested
// compound fields survive as values and are decomposed on the next level.
func (d *Decomposer) objectRow(obj Value) (Row, error) {
	canonical, err := CanonKeys(obj.Obj)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDecomposition, "canonicalizing child fields")
	}
	row := make(Row, len(canonical)+2)
	for key, value := range canonical {
		row[key] = value
	}
	return row, nil
}
