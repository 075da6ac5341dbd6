// Package models defines domain entities for the scrobble sync and enrichment pipeline.
//
// The package contains two categories of types:
//
// 1. Listening history: Rows written by the sync engine
//   - [Scrobble] : A single play of a track by a local user
//   - [ImportWatermark] : Per-source, per-unit sync progress cursor
//
// 2. Enrichment output: Metadata fetched from external providers
//   - [ArtistDetail], [AlbumDetail], [TrackDetail] : Canonical per-entity metadata
//   - [GenreAssignment] : A (entity, source, genre) tag row
//   - [AlbumReleaseDate], [AlbumLabel] : Supplementary album facts
//   - [CacheEntry] : A cached provider response with an expiry
//
// Entities carry no behavior beyond validation and key derivation; all
// persistence lives in the repositories package.
package models
