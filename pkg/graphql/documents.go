package graphql

import (
	"embed"
	"strings"
	"sync"
	"text/template"

	"github.com/storekit-io/shopbulk/pkg/errors"
)

//go:embed queries/*.graphql queries/fragments/*.graphql
var queryFS embed.FS

// Document is a ready-to-send GraphQL document
type Document struct {
	// Name is the logical operation name, used for logs and metrics
	Name string
	// Body is the full document text
	Body string
}

// Fragments selects the optional pieces composed into a document.
// Composition is declarative: templates reference fragments by name and the
// registry renders them in, so no document text is ever search-replaced.
type Fragments struct {
	ProductMetafields bool
	VariantMetafields bool
	OrderTransactions bool
	// Filter is a Shopify search syntax expression applied to the root
	// connection (e.g. "status:archived", "created_at:>=2024-01-01")
	Filter string
}

// Registry loads and composes GraphQL documents from the embedded store
type Registry struct {
	mu        sync.Mutex
	templates map[string]*template.Template
	fragments map[string]string
}

// NewRegistry creates a document registry backed by the embedded queries
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]*template.Template),
		fragments: make(map[string]string),
	}
}

// fragmentFiles maps fragment names to their embedded sources
var fragmentFiles = map[string]string{
	"ProductMetafields": "queries/fragments/product_metafields.graphql",
	"VariantMetafields": "queries/fragments/variant_metafields.graphql",
	"OrderTransactions": "queries/fragments/order_transactions.graphql",
}

// documentFiles maps logical document names to their embedded sources
var documentFiles = map[string]string{
	"GetOrders":           "queries/get_orders.graphql",
	"GetProducts":         "queries/get_products.graphql",
	"GetCustomers":        "queries/get_customers.graphql",
	"GetLocations":        "queries/get_locations.graphql",
	"BulkOrders":            "queries/bulk_orders.graphql",
	"BulkProducts":          "queries/bulk_products.graphql",
	"BulkCustomers":         "queries/bulk_customers.graphql",
	"BulkInventory":         "queries/bulk_inventory.graphql",
	"BulkInventoryItems":    "queries/bulk_inventory_items.graphql",
	"BulkProductMetafields": "queries/bulk_product_metafields.graphql",
	"BulkVariantMetafields": "queries/bulk_variant_metafields.graphql",
	"BulkEvents":            "queries/bulk_events.graphql",
	"BulkOperationStatus":   "queries/bulk_status.graphql",
}

// templateParams is the context every document template renders against
type templateParams struct {
	ProductMetafields string
	VariantMetafields string
	OrderTransactions string
	// Filter is the raw search expression; paginated documents splice it
	// into their existing argument list
	Filter string
	// FilterArg renders as a full connection argument for bulk documents
	// whose root connection otherwise takes no arguments
	FilterArg string
}

// Load composes the named document with the given fragment selection
func (r *Registry) Load(name string, frags Fragments) (Document, error) {
	tmpl, err := r.templateFor(name)
	if err != nil {
		return Document{}, err
	}

	params := templateParams{}
	if frags.ProductMetafields {
		if params.ProductMetafields, err = r.fragment("ProductMetafields"); err != nil {
			return Document{}, err
		}
	}
	if frags.VariantMetafields {
		if params.VariantMetafields, err = r.fragment("VariantMetafields"); err != nil {
			return Document{}, err
		}
	}
	if frags.OrderTransactions {
		if params.OrderTransactions, err = r.fragment("OrderTransactions"); err != nil {
			return Document{}, err
		}
	}
	if frags.Filter != "" {
		params.Filter = frags.Filter
		params.FilterArg = `(query: "` + frags.Filter + `")`
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, params); err != nil {
		return Document{}, errors.Wrap(err, errors.ErrorTypeInternal, "composing document "+name)
	}

	return Document{Name: name, Body: sb.String()}, nil
}

// MustLoad composes a document that takes no fragments, panicking on
// registry corruption. Used for the fixed status/pagination documents.
func (r *Registry) MustLoad(name string) Document {
	doc, err := r.Load(name, Fragments{})
	if err != nil {
		panic(err)
	}
	return doc
}

// templateFor parses and caches the named document template
func (r *Registry) templateFor(name string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tmpl, ok := r.templates[name]; ok {
		return tmpl, nil
	}

	path, ok := documentFiles[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeInternal, "unknown document %q", name)
	}

	raw, err := queryFS.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "reading document "+name)
	}

	tmpl, err := template.New(name).Parse(string(raw))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "parsing document "+name)
	}

	r.templates[name] = tmpl
	return tmpl, nil
}

// fragment loads and caches a fragment body by name
func (r *Registry) fragment(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if body, ok := r.fragments[name]; ok {
		return body, nil
	}

	path, ok := fragmentFiles[name]
	if !ok {
		return "", errors.Newf(errors.ErrorTypeInternal, "unknown fragment %q", name)
	}

	raw, err := queryFS.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "reading fragment "+name)
	}

	body := strings.TrimSpace(string(raw))
	r.fragments[name] = body
	return body, nil
}
