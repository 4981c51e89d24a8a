package graphql

import (
	"context"

	"go.uber.org/zap"

	"github.com/storekit-io/shopbulk/pkg/errors"
)

// Paginator drives cursor-based pagination over one query document.
// Used by the legacy extraction path only; bulk operations stream the whole
// dataset in one artifact instead.
type Paginator struct {
	transport *Transport
	doc       Document
	// dataKey names the connection in the response data ("orders", "products", ...)
	dataKey   string
	batchSize int
	// maxItems caps the total yield; zero means unbounded
	maxItems int
	logger   *zap.Logger
}

// NewPaginator creates a paginator over the given document
func NewPaginator(transport *Transport, doc Document, dataKey string, batchSize int, logger *zap.Logger) *Paginator {
	return &Paginator{
		transport: transport,
		doc:       doc,
		dataKey:   dataKey,
		batchSize: batchSize,
		logger:    logger.With(zap.String("component", "paginator"), zap.String("connection", dataKey)),
	}
}

// WithMaxItems caps the total number of items yielded
func (p *Paginator) WithMaxItems(n int) *Paginator {
	p.maxItems = n
	return p
}

// Pages invokes fn for each page of nodes until pagination is exhausted,
// fn returns an error, or the item cap is reached.
func (p *Paginator) Pages(ctx context.Context, fn func(items []map[string]interface{}) error) error {
	var cursor string
	total := 0

	for {
		variables := map[string]interface{}{"first": p.batchSize}
		if cursor != "" {
			variables["after"] = cursor
		}

		data, err := p.transport.Execute(ctx, p.doc, variables)
		if err != nil {
			return err
		}

		connection, ok := data[p.dataKey].(map[string]interface{})
		if !ok {
			return errors.Newf(errors.ErrorTypeQuery, "response missing connection %q", p.dataKey)
		}

		edges, _ := connection["edges"].([]interface{})
		if len(edges) == 0 {
			return nil
		}

		items := make([]map[string]interface{}, 0, len(edges))
		for _, edge := range edges {
			e, ok := edge.(map[string]interface{})
			if !ok {
				continue
			}
			if node, ok := e["node"].(map[string]interface{}); ok {
				items = append(items, node)
			}
		}

		if p.maxItems > 0 {
			remaining := p.maxItems - total
			if len(items) > remaining {
				items = items[:remaining]
			}
		}
		total += len(items)

		if err := fn(items); err != nil {
			return err
		}

		if p.maxItems > 0 && total >= p.maxItems {
			p.logger.Info("reached item cap, stopping pagination", zap.Int("total", total))
			return nil
		}

		pageInfo, _ := connection["pageInfo"].(map[string]interface{})
		hasNext, _ := pageInfo["hasNextPage"].(bool)
		if !hasNext {
			return nil
		}

		cursor, _ = pageInfo["endCursor"].(string)
		if cursor == "" {
			return nil
		}
	}
}
