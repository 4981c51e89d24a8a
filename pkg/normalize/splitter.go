package normalize

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// RawRecord is one decoded JSONL line from a bulk artifact
type RawRecord map[string]interface{}

// ParentID returns the parent reference a nested connection node carries,
// or "" for a root node.
func (r RawRecord) ParentID() string {
	id, _ := r["__parentId"].(string)
	return id
}

// gidPattern matches the Admin API global ID form gid://shopify/<Type>/<id>
var gidPattern = regexp.MustCompile(`^gid://[^/]+/([A-Za-z0-9]+)/`)

// TypeTag extracts the entity type from a record's global ID.
// Records without a recognizable ID land in the catch-all partition.
func (r RawRecord) TypeTag() (string, bool) {
	id, _ := r["id"].(string)
	if id == "" {
		return "", false
	}
	m := gidPattern.FindStringSubmatch(id)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Partition is one homogeneous record group produced by the splitter
type Partition struct {
	// TypeTag is the discriminator value, "" for the catch-all group
	TypeTag string
	// Table is the destination table name derived from the tag
	Table string
	// Nested marks partitions whose records carry parent references
	Nested  bool
	Records []RawRecord
}

// Splitter routes a mixed record stream into per-type partitions.
// A bulk artifact interleaves root nodes with their nested connection
// nodes; the global-ID type is the discriminator. KeyFunc can override
// the discriminator to split on any record attribute instead.
type Splitter struct {
	// entity is the nominal entity name of the stream ("orders", ...)
	entity string
	logger *zap.Logger

	// KeyFunc overrides TypeTag-based routing when set
	KeyFunc func(RawRecord) (string, bool)
}

// NewSplitter creates a splitter for the nominal entity name
func NewSplitter(entity string, logger *zap.Logger) *Splitter {
	return &Splitter{
		entity: entity,
		logger: logger.With(zap.String("component", "splitter"), zap.String("entity", entity)),
	}
}

// Split partitions records by type tag, preserving record order within each
// partition and ordering partitions by first appearance. The first root-level
// tag keeps the nominal entity name; nested tags get a parent-prefixed name.
func (s *Splitter) Split(records []RawRecord) []*Partition {
	byTag := make(map[string]*Partition)
	var ordered []*Partition

	rootTag := ""

	for _, record := range records {
		tag, ok := s.key(record)
		if !ok {
			tag = ""
		}

		part := byTag[tag]
		if part == nil {
			nested := record.ParentID() != ""
			if !nested && rootTag == "" && tag != "" {
				rootTag = tag
			}
			part = &Partition{
				TypeTag: tag,
				Table:   s.tableName(tag, nested, rootTag),
				Nested:  nested,
			}
			byTag[tag] = part
			ordered = append(ordered, part)
		}
		part.Records = append(part.Records, record)
	}

	for _, part := range ordered {
		s.logger.Debug("partition built",
			zap.String("type_tag", part.TypeTag),
			zap.String("table", part.Table),
			zap.Int("records", len(part.Records)))
	}
	return ordered
}

// key applies the override or the default global-ID discriminator
func (s *Splitter) key(record RawRecord) (string, bool) {
	if s.KeyFunc != nil {
		return s.KeyFunc(record)
	}
	return record.TypeTag()
}

// tableName derives a table name from a type tag. Root records of the
// primary tag keep the nominal entity name; nested types are prefixed with
// the singular entity name so "LineItem" under "orders" becomes
// "order_line_items". Untagged records fall back to a catch-all partition
// under the nominal name.
func (s *Splitter) tableName(tag string, nested bool, rootTag string) string {
	if tag == "" {
		return s.entity
	}
	if !nested && tag == rootTag {
		return s.entity
	}
	return singular(s.entity) + "_" + plural(Canon(tag))
}

func singular(name string) string {
	return strings.TrimSuffix(name, "s")
}

func plural(name string) string {
	if strings.HasSuffix(name, "s") {
		return name
	}
	return name + "s"
}
