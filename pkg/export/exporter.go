// Package export writes normalized tables as CSV files with typed manifests
// describing column base types and primary keys.
package export

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/storekit-io/shopbulk/pkg/errors"
	"github.com/storekit-io/shopbulk/pkg/jsonx"
	"github.com/storekit-io/shopbulk/pkg/metrics"
	"github.com/storekit-io/shopbulk/pkg/normalize"
)

// Base types understood by downstream storage. The mapping from inferred
// kinds is total: anything without a narrower type exports as STRING.
const (
	BaseTypeString    = "STRING"
	BaseTypeInteger   = "INTEGER"
	BaseTypeFloat     = "FLOAT"
	BaseTypeNumeric   = "NUMERIC"
	BaseTypeBoolean   = "BOOLEAN"
	BaseTypeDate      = "DATE"
	BaseTypeTimestamp = "TIMESTAMP"
)

// BaseType maps an inferred column kind to its export base type
func BaseType(kind normalize.Kind) string {
	switch kind {
	case normalize.KindInt:
		return BaseTypeInteger
	case normalize.KindFloat:
		return BaseTypeFloat
	case normalize.KindDecimal:
		return BaseTypeNumeric
	case normalize.KindBool:
		return BaseTypeBoolean
	case normalize.KindDate:
		return BaseTypeDate
	case normalize.KindTimestamp:
		return BaseTypeTimestamp
	default:
		return BaseTypeString
	}
}

// ColumnMeta carries the typed metadata for one exported column
type ColumnMeta struct {
	BaseType string `json:"base_type"`
}

// Manifest describes one exported table
type Manifest struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	PrimaryKey     []string              `json:"primary_key"`
	Columns        []string              `json:"columns"`
	ColumnMetadata map[string]ColumnMeta `json:"column_metadata"`
}

// wellKnownKeys are the primary keys of tables whose identity we know
// upfront. Candidate columns missing from the actual schema disqualify the
// entry and the shape-derived fallback applies instead.
var wellKnownKeys = map[string][]string{
	"orders":           {"id"},
	"products":         {"id"},
	"customers":        {"id"},
	"locations":        {"id"},
	"inventory_items":  {"id"},
	"order_line_items": {"parent_id", "id"},
	"product_variants": {"parent_id", "id"},
	"inventory_levels": {"parent_id", "id"},
}

// Exporter writes tables under a single output directory. Export is
// idempotent: re-running an extraction overwrites the previous files.
type Exporter struct {
	dir          string
	bucketPrefix string
	logger       *zap.Logger
}

// NewExporter creates an exporter rooted at dir
func NewExporter(dir, bucketPrefix string, logger *zap.Logger) *Exporter {
	return &Exporter{
		dir:          dir,
		bucketPrefix: bucketPrefix,
		logger:       logger.With(zap.String("component", "exporter")),
	}
}

// ExportAll writes every table in the working set
func (e *Exporter) ExportAll(ws *normalize.WorkingSet) ([]*Manifest, error) {
	tables := ws.Tables()
	manifests := make([]*Manifest, 0, len(tables))
	for _, table := range tables {
		manifest, err := e.Export(table)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, manifest)
	}
	return manifests, nil
}

// Export writes one table as <name>.csv plus <name>.csv.manifest
func (e *Exporter) Export(table *normalize.Table) (*Manifest, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "creating output directory")
	}

	csvPath := filepath.Join(e.dir, table.Name+".csv")
	if err := e.writeCSV(csvPath, table); err != nil {
		return nil, err
	}

	manifest := e.buildManifest(table)
	if err := writeManifest(csvPath+".manifest", manifest); err != nil {
		return nil, err
	}

	metrics.RowsExported.WithLabelValues(table.Name).Add(float64(len(table.Rows)))
	e.logger.Info("table exported",
		zap.String("table", table.Name),
		zap.Int("rows", len(table.Rows)),
		zap.Int("columns", len(table.Schema.Columns)),
		zap.Strings("primary_key", manifest.PrimaryKey))
	return manifest, nil
}

// writeCSV streams header and rows in schema column order
func (e *Exporter) writeCSV(path string, table *normalize.Table) error {
	file, err := os.Create(path) //nolint:gosec // G304: path is built from the output directory
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "creating csv file")
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)

	header := make([]string, len(table.Schema.Columns))
	for i, column := range table.Schema.Columns {
		header[i] = column.Name
	}
	if err := writer.Write(header); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "writing csv header")
	}

	record := make([]string, len(header))
	for _, row := range table.Rows {
		for i, column := range table.Schema.Columns {
			record[i] = row[column.Name].Render()
		}
		if err := writer.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "writing csv row")
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "flushing csv")
	}
	return nil
}

// buildManifest assembles the typed manifest for a table
func (e *Exporter) buildManifest(table *normalize.Table) *Manifest {
	manifest := &Manifest{
		Name:           table.Name,
		ID:             e.bucketPrefix + "." + table.Name,
		PrimaryKey:     primaryKey(table),
		Columns:        make([]string, 0, len(table.Schema.Columns)),
		ColumnMetadata: make(map[string]ColumnMeta, len(table.Schema.Columns)),
	}
	for _, column := range table.Schema.Columns {
		manifest.Columns = append(manifest.Columns, column.Name)
		manifest.ColumnMetadata[column.Name] = ColumnMeta{BaseType: BaseType(column.Kind)}
	}
	return manifest
}

// primaryKey picks the key for a table: the well-known key when the table is
// recognized and all its columns exist, otherwise derived from the table's
// shape columns.
func primaryKey(table *normalize.Table) []string {
	if key, ok := wellKnownKeys[table.Name]; ok && hasColumns(table, key) {
		return key
	}

	hasParent := hasColumns(table, []string{normalize.ColumnParentID})
	hasRowNumber := hasColumns(table, []string{normalize.ColumnRowNumber})
	switch {
	case hasParent && hasRowNumber:
		return []string{normalize.ColumnParentID, normalize.ColumnRowNumber}
	case hasParent:
		return []string{normalize.ColumnParentID}
	case hasColumns(table, []string{"id"}):
		return []string{"id"}
	default:
		return []string{}
	}
}

func hasColumns(table *normalize.Table, names []string) bool {
	for _, name := range names {
		if _, ok := table.Schema.Column(name); !ok {
			return false
		}
	}
	return true
}

// writeManifest serializes the manifest as indented JSON
func writeManifest(path string, manifest *Manifest) error {
	data, err := jsonx.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "encoding manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "writing manifest")
	}
	return nil
}

// ReadManifest loads a manifest file back; used by callers that resume or
// verify a previous export.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: caller-controlled path
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "reading manifest")
	}
	var manifest Manifest
	if err := jsonx.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "decoding manifest")
	}
	return &manifest, nil
}
