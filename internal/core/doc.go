// Package core provides the business logic for catalog ingestion.
//
// This package is independent of any transport or storage technology. The
// HTTP server and the catalogctl CLI both drive it through [Service.Ingest],
// and persistence is reached only through the narrow interfaces declared in
// repository.go.
//
// # Pipeline
//
// An ingestion turns a manifest plus a batch of images into a site's new
// catalog:
//
//  1. [ParseManifest] reads CSV or XLSX into rows. Malformed lines are
//     dropped and counted; a missing item_name column is a [ValidationError].
//  2. [AssetIngestor.Prepare] sniffs, bounds, resizes, and re-encodes each
//     image on a bounded worker pool. Every image gets an [AssetOutcome].
//  3. [AssetIngestor.Stage] names accepted images and writes them to a
//     staging area of the [AssetStore].
//  4. [Correlate] points each row's image_name at the stored file.
//  5. [CatalogReplacer.Replace] swaps the whole catalog in one transaction
//     and writes the upload record.
//  6. Staged images are promoted after commit, or discarded on failure.
//
// # Concurrency
//
// [IngestLimiter] caps concurrent ingestions and the payload bytes they hold
// process-wide. Image decodes inside one ingestion run on a bounded worker
// pool. A [SiteLocker]
// serializes ingestions for the same site from staging through promotion;
// stores add their own transaction-scoped lock.
//
// # Error Handling
//
// Per-row and per-image problems never abort an ingestion. Only
// [ValidationError], [ZeroRowsError], and [TransientStorageError] do.
// Technical errors are mapped to user-friendly messages using [MapError].
package core
