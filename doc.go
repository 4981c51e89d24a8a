// Package shopbulk extracts Shopify store data through the Admin GraphQL
// Bulk Operations API and turns the resulting JSONL artifacts into flat,
// typed, relationally-linked CSV tables with manifests.
//
// # Architecture
//
// An extraction run walks the configured endpoints sequentially. For each
// endpoint the pipeline:
//
//  1. Composes the GraphQL document from embedded templates and optional
//     fragments (pkg/graphql).
//  2. Submits a bulk operation, polls it to a terminal state on a tiered
//     cadence and streams the artifact to disk (pkg/bulk) — or, for legacy
//     endpoints, walks the connection with cursor pagination.
//  3. Splits the polymorphic record stream by global-ID type, infers a
//     typed column schema over the full batch and recursively decomposes
//     nested structures into child tables (pkg/normalize).
//  4. Writes one CSV plus one typed manifest per table (pkg/export).
//
// Throttled API calls are retried with deterministic exponential backoff
// (pkg/backoff); every error carries a structured category (pkg/errors).
//
// # Quick Start
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	runner := pipeline.NewRunner(cfg, logger.Get())
//	defer runner.Close()
//	if err := runner.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package shopbulk
