package pipeline

import (
	"sort"
	"strings"

	"github.com/storekit-io/shopbulk/pkg/config"
)

// Mode selects how an entity is extracted
type Mode int

const (
	// ModeBulk submits a bulk operation and streams the JSONL artifact
	ModeBulk Mode = iota
	// ModeLegacy walks the connection with cursor pagination
	ModeLegacy
)

// Entity describes one extractable endpoint: which document drives it, how
// it is extracted, and which filters apply.
type Entity struct {
	// Name is the endpoint name as it appears in configuration
	Name string
	Mode Mode
	// Document is the registry name of the driving document
	Document string
	// DataKey names the root connection in legacy responses
	DataKey string
	// Table is the destination root table; defaults to Name
	Table string
	// BaseFilter always applies to the root connection
	BaseFilter string
	// DateField is the search field bounded by the loading options
	DateField string
}

// catalogue maps endpoint names to their extraction descriptors
var catalogue = map[string]Entity{
	"orders": {
		Mode: ModeBulk, Document: "BulkOrders", DateField: "updated_at",
	},
	"orders_legacy": {
		Mode: ModeLegacy, Document: "GetOrders", DataKey: "orders",
		Table: "orders", DateField: "updated_at",
	},
	"products": {
		Mode: ModeBulk, Document: "BulkProducts", DateField: "updated_at",
	},
	"products_legacy": {
		Mode: ModeLegacy, Document: "GetProducts", DataKey: "products",
		Table: "products",
	},
	"products_drafts": {
		Mode: ModeBulk, Document: "BulkProducts", BaseFilter: "status:draft",
	},
	"products_archived": {
		Mode: ModeBulk, Document: "BulkProducts", BaseFilter: "status:archived",
	},
	"customers": {
		Mode: ModeBulk, Document: "BulkCustomers", DateField: "updated_at",
	},
	"customers_legacy": {
		Mode: ModeLegacy, Document: "GetCustomers", DataKey: "customers",
		Table: "customers",
	},
	"inventory": {
		Mode: ModeBulk, Document: "BulkInventory",
	},
	"inventory_items": {
		Mode: ModeBulk, Document: "BulkInventoryItems",
	},
	"locations": {
		Mode: ModeLegacy, Document: "GetLocations", DataKey: "locations",
	},
	"product_metafields": {
		Mode: ModeBulk, Document: "BulkProductMetafields",
	},
	"variant_metafields": {
		Mode: ModeBulk, Document: "BulkVariantMetafields",
	},
	"events": {
		Mode: ModeBulk, Document: "BulkEvents", DateField: "created_at",
	},
}

// Lookup resolves an endpoint name to its descriptor
func Lookup(name string) (Entity, bool) {
	ent, ok := catalogue[name]
	if !ok {
		return Entity{}, false
	}
	ent.Name = name
	if ent.Table == "" {
		ent.Table = name
	}
	return ent, true
}

// Names lists every known endpoint in sorted order
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// filterFor combines the entity's base filter with the configured date
// window into one search expression.
func filterFor(ent Entity, cfg *config.Config) string {
	var parts []string
	if ent.BaseFilter != "" {
		parts = append(parts, ent.BaseFilter)
	}
	if ent.Name == "products" && !cfg.Features.ArchivedProducts {
		parts = append(parts, "-status:archived")
	}
	if ent.DateField != "" {
		if since := cfg.LoadingOptions.DateSince; since != "" {
			parts = append(parts, ent.DateField+":>="+since)
		}
		if to := cfg.LoadingOptions.DateTo; to != "" {
			parts = append(parts, ent.DateField+":<="+to)
		}
	}
	return strings.Join(parts, " AND ")
}
