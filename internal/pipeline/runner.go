// Package pipeline drives end-to-end extraction runs: for each configured
// endpoint it composes the GraphQL document, extracts the records over the
// bulk or legacy path, normalizes them into typed tables and exports the
// result. Endpoints run sequentially and fail independently.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storekit-io/shopbulk/pkg/backoff"
	"github.com/storekit-io/shopbulk/pkg/bulk"
	"github.com/storekit-io/shopbulk/pkg/clients"
	"github.com/storekit-io/shopbulk/pkg/config"
	"github.com/storekit-io/shopbulk/pkg/errors"
	"github.com/storekit-io/shopbulk/pkg/export"
	"github.com/storekit-io/shopbulk/pkg/graphql"
	"github.com/storekit-io/shopbulk/pkg/logger"
	"github.com/storekit-io/shopbulk/pkg/normalize"
)

// Runner owns every component of one extraction run
type Runner struct {
	cfg          *config.Config
	registry     *graphql.Registry
	http         *clients.HTTPClient
	transport    *graphql.Transport
	orchestrator *bulk.Orchestrator
	exporter     *export.Exporter
	normalizer   *normalize.Normalizer
	decomposer   *normalize.Decomposer
	log          *zap.Logger
}

// NewRunner wires a runner from configuration
func NewRunner(cfg *config.Config, log *zap.Logger) *Runner {
	httpClient := clients.NewHTTPClient(nil, log)
	retry := &backoff.RetryPolicy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   2.0,
	}
	transport := graphql.NewTransport(cfg.GraphQLEndpoint(), cfg.APIToken, httpClient, retry, log)
	downloader := clients.NewDownloader(httpClient, log)
	registry := graphql.NewRegistry()
	normalizer := normalize.NewNormalizer(log)

	return &Runner{
		cfg:          cfg,
		registry:     registry,
		http:         httpClient,
		transport:    transport,
		orchestrator: bulk.NewOrchestrator(transport, downloader, registry.MustLoad("BulkOperationStatus"), cfg.Polling, log),
		exporter:     export.NewExporter(cfg.Output.Directory, cfg.Output.BucketPrefix, log),
		normalizer:   normalizer,
		decomposer:   normalize.NewDecomposer(normalizer, log),
		log:          log,
	}
}

// Close releases the runner's network resources
func (r *Runner) Close() {
	_ = r.http.Close()
}

// Run extracts every configured endpoint in order. A failing endpoint is
// logged and recorded but does not stop the remaining ones; the aggregate
// error names every endpoint that failed.
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	log := logger.WithContext(ctx, r.log)
	log.Info("extraction run starting",
		zap.String("store", r.cfg.StoreName),
		zap.Strings("endpoints", r.cfg.Endpoints))

	var failed []string
	for _, endpoint := range r.cfg.Endpoints {
		ent, ok := Lookup(endpoint)
		if !ok {
			return errors.Newf(errors.ErrorTypeConfig, "unknown endpoint %q", endpoint)
		}

		entCtx := context.WithValue(ctx, logger.EntityKey, ent.Name)
		if err := r.runEntity(entCtx, runID, ent, logger.WithContext(entCtx, r.log)); err != nil {
			log.Error("endpoint extraction failed",
				zap.String("entity", ent.Name),
				zap.Error(err))
			failed = append(failed, endpoint)
			continue
		}
	}

	total, httpFailed := r.http.Stats()
	if len(failed) > 0 {
		return errors.Newf(errors.ErrorTypeData, "extraction failed for endpoints: %s",
			strings.Join(failed, ", "))
	}
	log.Info("extraction run finished",
		zap.Int64("http_requests", total),
		zap.Int64("http_failures", httpFailed))
	return nil
}

// runEntity extracts one endpoint over its configured path
func (r *Runner) runEntity(ctx context.Context, runID string, ent Entity, log *zap.Logger) error {
	doc, err := r.registry.Load(ent.Document, r.fragmentsFor(ent))
	if err != nil {
		return err
	}

	var records []normalize.RawRecord
	switch ent.Mode {
	case ModeBulk:
		records, err = r.extractBulk(ctx, runID, ent, doc, log)
	case ModeLegacy:
		records, err = r.extractLegacy(ctx, ent, doc)
	default:
		return errors.Newf(errors.ErrorTypeInternal, "unknown extraction mode %d", ent.Mode)
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		log.Info("no records extracted, writing empty table")
	}
	return r.process(ent, records, log)
}

// fragmentsFor selects document fragments from the feature flags and the
// entity's filter expression
func (r *Runner) fragmentsFor(ent Entity) graphql.Fragments {
	frags := graphql.Fragments{Filter: filterFor(ent, r.cfg)}
	switch ent.Document {
	case "BulkOrders", "GetOrders":
		frags.OrderTransactions = r.cfg.Features.OrderTransactions
	case "BulkProducts", "GetProducts":
		frags.ProductMetafields = r.cfg.Features.ProductMetafields
		frags.VariantMetafields = r.cfg.Features.VariantMetafields
	}
	return frags
}

// extractBulk runs the bulk path: submit, poll, download, decode.
// The artifact is deleted on every exit path unless debug mode retains it.
func (r *Runner) extractBulk(ctx context.Context, runID string, ent Entity, doc graphql.Document, log *zap.Logger) ([]normalize.RawRecord, error) {
	if err := os.MkdirAll(r.cfg.Output.WorkDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "creating work directory")
	}
	artifactPath := filepath.Join(r.cfg.Output.WorkDir,
		fmt.Sprintf("%s-%s.jsonl", ent.Name, runID))

	defer func() {
		if r.cfg.Debug {
			log.Info("debug mode, retaining artifact", zap.String("path", artifactPath))
			return
		}
		if err := os.Remove(artifactPath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove artifact", zap.String("path", artifactPath), zap.Error(err))
		}
	}()

	result, err := r.orchestrator.Run(ctx, ent.Name, doc, artifactPath)
	if err != nil {
		return nil, err
	}

	records := make([]normalize.RawRecord, 0, result.ItemCount)
	err = bulk.ReadArtifact(result.ArtifactPath, func(record map[string]interface{}) error {
		records = append(records, normalize.RawRecord(record))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// extractLegacy walks the connection with cursor pagination
func (r *Runner) extractLegacy(ctx context.Context, ent Entity, doc graphql.Document) ([]normalize.RawRecord, error) {
	paginator := graphql.NewPaginator(r.transport, doc, ent.DataKey, r.cfg.BatchSize, r.log)

	var records []normalize.RawRecord
	err := paginator.Pages(ctx, func(items []map[string]interface{}) error {
		for _, item := range items {
			records = append(records, normalize.RawRecord(item))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// process splits, normalizes, decomposes and exports one entity's records
func (r *Runner) process(ent Entity, records []normalize.RawRecord, log *zap.Logger) error {
	splitter := normalize.NewSplitter(ent.Table, r.log)
	ws := normalize.NewWorkingSet()

	partitions := splitter.Split(records)
	if len(partitions) == 0 {
		// Empty dataset still produces the root table so downstream
		// consumers see a consistent table set.
		table, err := r.normalizer.Normalize(ent.Table, nil)
		if err != nil {
			return err
		}
		ws.Add(table)
	}

	for _, partition := range partitions {
		table, err := r.normalizer.Normalize(partition.Table, partition.Records)
		if err != nil {
			return err
		}
		if err := r.decomposer.Decompose(ws, table); err != nil {
			return err
		}
	}

	manifests, err := r.exporter.ExportAll(ws)
	if err != nil {
		return err
	}
	log.Info("entity exported",
		zap.Int("tables", len(manifests)),
		zap.Int("records", len(records)))
	return nil
}
