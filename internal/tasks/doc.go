// Package tasks orchestrates scrobble ingestion and metadata enrichment with real-time progress reporting.
//
// # Core Operations
//
// Three engines cover the pipeline:
//
//  1. [SyncEngine] : Incremental, full, and backfill history sync
//     - Pages through Last.fm recent tracks inside a watermark-derived window
//     - Filters now-playing and dateless rows, dedupes on save
//     - Imports ListenBrainz listens via max_ts cursor pagination
//
//  2. [FileImporter] : Local ListenBrainz export ingestion
//     - Walks listens/<year>/<month>.jsonl under the export root
//     - Skips files whose mtime matches the stored watermark unless forced
//
//  3. [EnrichEngine] : Parallel metadata enrichment
//     - Discovers un-enriched entities from listening history
//     - Fans targets out to workers; cache entries gate re-processing
//     - Merges Last.fm, MusicBrainz, and Discogs per a fixed source order
//
// # Progress Reporting
//
// All operations send [ProgressUpdate] values over optional channels using
// select with default, so a slow or absent consumer never blocks the work.
//
// # Dependencies
//
// Engines depend on narrow provider interfaces ([HistoryProvider],
// [ListenProvider], [InfoProvider], [MusicBrainzProvider], [DiscogsProvider])
// satisfied by the providers package clients, and on [repositories.Store] for
// persistence.
package tasks
